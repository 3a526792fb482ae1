package app

import (
	"context"
	"log"
	"time"

	"quiz-battle-service/internal/domain"
)

// RoomRegistry abstracts how battle rooms are stored (in-memory, Redis-backed, etc).
type RoomRegistry interface {
	GetOrCreate(roomID, creatorID string) *Room
	Get(roomID string) (*Room, bool)
	Remove(roomID string)
	ListSummaries() []domain.RoomSummary
}

// QuestionRepository loads question sets (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// ResultSink receives the final report of each battle exactly once. The core
// never retries a failed hand-off.
type ResultSink interface {
	PublishBattleResult(ctx context.Context, report domain.BattleReport) error
}

// Settings carries the room caps and cleanup windows.
type Settings struct {
	MaxParticipants        int
	MinParticipantsToStart int
	FinishedGrace          time.Duration
	ExpiredGrace           time.Duration
	IdleAfter              time.Duration
	SweepInterval          time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxParticipants <= 0 {
		s.MaxParticipants = 30
	}
	if s.MinParticipantsToStart <= 0 {
		s.MinParticipantsToStart = 2
	}
	if s.FinishedGrace <= 0 {
		s.FinishedGrace = 5 * time.Minute
	}
	if s.ExpiredGrace <= 0 {
		s.ExpiredGrace = 30 * time.Second
	}
	if s.IdleAfter <= 0 {
		s.IdleAfter = time.Hour
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = 5 * time.Minute
	}
	return s
}

// BattleService contains the battle lifecycle use cases.
type BattleService struct {
	rooms     RoomRegistry
	questions QuestionRepository
	sink      ResultSink
	cleanup   *CleanupScheduler
	settings  Settings
}

func NewBattleService(rooms RoomRegistry, questions QuestionRepository, sink ResultSink, settings Settings) *BattleService {
	settings = settings.withDefaults()
	return &BattleService{
		rooms:     rooms,
		questions: questions,
		sink:      sink,
		cleanup:   NewCleanupScheduler(rooms, settings),
		settings:  settings,
	}
}

// Cleanup exposes the scheduler so the process root can run its idle sweep.
func (s *BattleService) Cleanup() *CleanupScheduler {
	return s.cleanup
}

// CreateOrJoinRoom creates the room on first join (the first joiner is the
// creator) or joins an existing Waiting room.
func (s *BattleService) CreateOrJoinRoom(_ context.Context, roomID, userID, displayName, connectionRef string) (domain.RoomSnapshot, error) {
	room := s.rooms.GetOrCreate(roomID, userID)
	return room.join(userID, displayName, connectionRef)
}

// LeaveRoom removes the participant. An emptied room is deleted immediately;
// a lobby abandoned by its creator expires and is reclaimed after a short grace.
func (s *BattleService) LeaveRoom(ctx context.Context, roomID, userID string) (domain.RoomSnapshot, bool, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, false, domain.ErrRoomNotFound
	}
	out, err := room.leave(userID)
	if err != nil {
		return domain.RoomSnapshot{}, false, err
	}
	if out.empty {
		s.cleanup.Cancel(roomID)
		s.rooms.Remove(roomID)
		return out.snapshot, true, nil
	}
	if out.expired {
		s.cleanup.Schedule(roomID, s.settings.ExpiredGrace)
	}
	if out.report != nil {
		s.finalize(ctx, roomID, *out.report)
	}
	return out.snapshot, false, nil
}

// SetReady flips the advisory ready flag. It never gates the start condition.
func (s *BattleService) SetReady(_ context.Context, roomID, userID string, ready bool) (domain.RoomSnapshot, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	return room.setReady(userID, ready)
}

// StartBattle resolves the question set and starts the battle. Only the
// creator may start, and only from Waiting with enough players.
func (s *BattleService) StartBattle(ctx context.Context, roomID, requesterID, questionSetID string) (domain.RoomSnapshot, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	// Load outside the room lock; the loader may hit Redis or Postgres.
	set, err := s.questions.GetQuestionSet(ctx, questionSetID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.start(requesterID, set.Questions)
}

// SubmitAnswer applies one in-order answer. When the last participant
// finishes, the room transitions to Finished and the report is published.
func (s *BattleService) SubmitAnswer(ctx context.Context, roomID, userID string, questionIndex int, chosenOption string, elapsedMs int64) (domain.AnswerOutcome, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrRoomNotFound
	}
	outcome, report, err := room.submitAnswer(userID, questionIndex, chosenOption, elapsedMs)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if report != nil {
		s.finalize(ctx, roomID, *report)
	}
	return outcome, nil
}

// EndBattle forces the battle into Finished. Idempotent: repeat calls return
// the cached report and do not publish again.
func (s *BattleService) EndBattle(ctx context.Context, roomID, reason string) (domain.BattleReport, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.BattleReport{}, domain.ErrRoomNotFound
	}
	report, fresh, err := room.end(reason)
	if err != nil {
		return domain.BattleReport{}, err
	}
	if fresh {
		s.finalize(ctx, roomID, *report)
	}
	return *report, nil
}

// RoomSnapshot returns a point-in-time view of the room.
func (s *BattleService) RoomSnapshot(_ context.Context, roomID string) (domain.RoomSnapshot, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

// ListRooms returns lightweight summaries for operational visibility.
func (s *BattleService) ListRooms(_ context.Context) []domain.RoomSummary {
	return s.rooms.ListSummaries()
}

// Subscribe returns a channel of room events for the transport layer.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *BattleService) Subscribe(_ context.Context, roomID string) (<-chan RoomEvent, func(), error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, nil, domain.ErrRoomNotFound
	}
	ch, cancel := room.subscribe()
	return ch, cancel, nil
}

// finalize runs after the room lock is released, with a report snapshot.
func (s *BattleService) finalize(ctx context.Context, roomID string, report domain.BattleReport) {
	if s.sink != nil {
		if err := s.sink.PublishBattleResult(ctx, report); err != nil {
			log.Printf("publish battle result for room %s: %v", roomID, err)
		}
	}
	s.cleanup.Schedule(roomID, s.settings.FinishedGrace)
}
