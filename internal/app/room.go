package app

import (
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// RoomEvent is pushed to subscribers on every state change so the transport
// layer can relay it to connected clients.
type RoomEvent struct {
	Type   string                `json:"type"`
	UserID string                `json:"userId,omitempty"`
	Room   *domain.RoomSnapshot  `json:"room,omitempty"`
	Report *domain.BattleReport  `json:"report,omitempty"`
	Answer *domain.AnswerOutcome `json:"answer,omitempty"`
}

// Room holds one battle's in-memory state. Every read-modify-write runs under
// the room mutex; callers in different rooms never contend.
type Room struct {
	id         string
	creatorID  string
	maxPlayers int
	minToStart int
	now        func() time.Time

	mu           sync.RWMutex
	status       domain.RoomStatus
	active       bool
	participants map[string]*domain.Participant
	joinOrder    []string
	questions    []domain.Question
	createdAt    time.Time
	startedAt    *time.Time
	endedAt      *time.Time
	report       *domain.BattleReport
	subscribers  map[chan RoomEvent]struct{}
}

// NewRoom is exported for registry implementations that need to seed rooms.
func NewRoom(id, creatorID string, settings Settings) *Room {
	return NewRoomWithClock(id, creatorID, settings, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(id, creatorID string, settings Settings, now func() time.Time) *Room {
	settings = settings.withDefaults()
	return &Room{
		id:           id,
		creatorID:    creatorID,
		maxPlayers:   settings.MaxParticipants,
		minToStart:   settings.MinParticipantsToStart,
		now:          now,
		status:       domain.StatusWaiting,
		active:       true,
		participants: make(map[string]*domain.Participant),
		createdAt:    now(),
		subscribers:  make(map[chan RoomEvent]struct{}),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// CreatorID returns the user who created the room. Set once, never re-derived
// from map iteration order.
func (r *Room) CreatorID() string { return r.creatorID }

func (r *Room) join(userID, displayName, connectionRef string) (domain.RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.status == domain.StatusActive:
		return domain.RoomSnapshot{}, domain.ErrBattleAlreadyStarted
	case !r.active || r.status == domain.StatusFinished || r.status == domain.StatusExpired:
		return domain.RoomSnapshot{}, domain.ErrBattleAlreadyEnded
	}

	if participant, ok := r.participants[userID]; ok {
		// Rejoin refreshes the display name and transport handle only.
		participant.DisplayName = displayName
		participant.ConnectionRef = connectionRef
		return r.broadcastLocked("participantJoined", userID), nil
	}

	if len(r.participants) >= r.maxPlayers {
		return domain.RoomSnapshot{}, domain.ErrRoomFull
	}

	r.participants[userID] = &domain.Participant{
		UserID:        userID,
		DisplayName:   displayName,
		ConnectionRef: connectionRef,
		JoinedAt:      r.now(),
	}
	r.joinOrder = append(r.joinOrder, userID)
	return r.broadcastLocked("participantJoined", userID), nil
}

type leaveOutcome struct {
	snapshot domain.RoomSnapshot
	empty    bool
	expired  bool
	report   *domain.BattleReport
}

func (r *Room) leave(userID string) (leaveOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[userID]; !ok {
		return leaveOutcome{}, domain.ErrParticipantNotFound
	}
	delete(r.participants, userID)
	for i, id := range r.joinOrder {
		if id == userID {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}

	out := leaveOutcome{empty: len(r.participants) == 0}
	if userID == r.creatorID && r.status == domain.StatusWaiting {
		// Creator abandoned the lobby before start.
		r.status = domain.StatusExpired
		r.active = false
		out.expired = true
	}
	// A laggard leaving may make everyone remaining finished.
	if !out.empty && r.status == domain.StatusActive && r.allFinishedLocked() {
		if report, fresh := r.endLocked("completed"); fresh {
			out.report = report
		}
	}
	out.snapshot = r.broadcastLocked("participantLeft", userID)
	return out, nil
}

func (r *Room) setReady(userID string, ready bool) (domain.RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participant, ok := r.participants[userID]
	if !ok {
		return domain.RoomSnapshot{}, domain.ErrParticipantNotFound
	}
	if r.status == domain.StatusFinished || r.status == domain.StatusExpired {
		return domain.RoomSnapshot{}, domain.ErrBattleAlreadyEnded
	}
	participant.Ready = ready
	return r.broadcastLocked("readyChanged", userID), nil
}

func (r *Room) start(requesterID string, questions []domain.Question) (domain.RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case domain.StatusActive:
		return domain.RoomSnapshot{}, domain.ErrBattleAlreadyStarted
	case domain.StatusFinished, domain.StatusExpired:
		return domain.RoomSnapshot{}, domain.ErrBattleAlreadyEnded
	}
	if requesterID != r.creatorID {
		return domain.RoomSnapshot{}, domain.ErrNotCreator
	}
	if len(r.participants) < r.minToStart {
		return domain.RoomSnapshot{}, domain.ErrTooFewPlayers
	}

	// Snapshot the questions; correctness never drifts mid-battle.
	r.questions = make([]domain.Question, len(questions))
	copy(r.questions, questions)

	for _, participant := range r.participants {
		participant.Progress = 0
		participant.Score = 0
		participant.Answers = make([]domain.AnswerSlot, 0, len(r.questions))
	}

	now := r.now()
	r.status = domain.StatusActive
	r.startedAt = &now
	return r.broadcastLocked("battleStarted", requesterID), nil
}

func (r *Room) submitAnswer(userID string, questionIndex int, chosenOption string, elapsedMs int64) (domain.AnswerOutcome, *domain.BattleReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case domain.StatusActive:
	case domain.StatusFinished:
		return domain.AnswerOutcome{}, nil, domain.ErrAlreadyFinished
	default:
		return domain.AnswerOutcome{}, nil, domain.ErrNotActive
	}

	participant, ok := r.participants[userID]
	if !ok {
		return domain.AnswerOutcome{}, nil, domain.ErrParticipantNotFound
	}
	if participant.Progress >= len(r.questions) {
		return domain.AnswerOutcome{}, nil, domain.ErrAlreadyFinished
	}
	if questionIndex != participant.Progress {
		return domain.AnswerOutcome{}, nil, domain.ErrOutOfOrderAnswer
	}

	question := r.questions[questionIndex]
	correct := false
	for _, opt := range question.Options {
		if opt.ID == chosenOption && opt.Correct {
			correct = true
			break
		}
	}

	awarded := Score(correct, elapsedMs)
	participant.Score += awarded
	participant.Answers = append(participant.Answers, domain.AnswerSlot{
		ChosenOption: chosenOption,
		Correct:      correct,
		ElapsedMs:    elapsedMs,
		AnsweredAt:   r.now(),
	})
	participant.Progress++

	outcome := domain.AnswerOutcome{
		QuestionIndex: questionIndex,
		Correct:       correct,
		Awarded:       awarded,
		TotalScore:    participant.Score,
		Finished:      participant.Progress == len(r.questions),
		AllFinished:   r.allFinishedLocked(),
	}

	var report *domain.BattleReport
	if outcome.AllFinished {
		report, _ = r.endLocked("completed")
	} else {
		r.publishLocked(RoomEvent{Type: "progress", UserID: userID, Answer: &outcome})
	}
	return outcome, report, nil
}

// end forces the battle into Finished. The bool reports whether this call
// performed the transition; repeated calls return the cached report.
func (r *Room) end(reason string) (*domain.BattleReport, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == domain.StatusExpired {
		return nil, false, domain.ErrBattleAlreadyEnded
	}
	report, fresh := r.endLocked(reason)
	return report, fresh, nil
}

func (r *Room) endLocked(reason string) (*domain.BattleReport, bool) {
	if r.report != nil {
		return r.report, false
	}
	now := r.now()
	r.status = domain.StatusFinished
	r.active = false
	r.endedAt = &now
	if r.startedAt == nil {
		// Forced stop on a never-started lobby; startedAt must be set for any
		// Finished room.
		r.startedAt = &now
	}

	ordered := make([]*domain.Participant, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		if participant, ok := r.participants[id]; ok {
			ordered = append(ordered, participant)
		}
	}
	report := compileReport(r.id, reason, ordered, len(r.questions), now)
	r.report = &report

	snapshot := r.snapshotLocked()
	r.publishLocked(RoomEvent{Type: "battleEnded", Room: &snapshot, Report: r.report})
	return r.report, true
}

func (r *Room) allFinishedLocked() bool {
	if len(r.questions) == 0 {
		return false
	}
	for _, participant := range r.participants {
		if participant.Progress < len(r.questions) {
			return false
		}
	}
	return true
}

// Reclaimable reports whether deferred cleanup may delete the room now.
// Checked at timer fire time, never at schedule time.
func (r *Room) Reclaimable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status == domain.StatusFinished || r.status == domain.StatusExpired
}

// IdleSince reports whether the room is still a lobby created before cutoff.
func (r *Room) IdleSince(cutoff time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status == domain.StatusWaiting && r.createdAt.Before(cutoff)
}

// Snapshot returns a point-in-time copy of the room state.
func (r *Room) Snapshot() domain.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Summary returns the lightweight listing used by the registry.
func (r *Room) Summary() domain.RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.RoomSummary{
		ID:               r.id,
		Status:           r.status,
		Active:           r.active,
		ParticipantCount: len(r.participants),
		MaxParticipants:  r.maxPlayers,
	}
}

// Report returns the cached final report once the battle has finished.
func (r *Room) Report() (*domain.BattleReport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.report == nil {
		return nil, false
	}
	return r.report, true
}

func (r *Room) subscribe() (<-chan RoomEvent, func()) {
	ch := make(chan RoomEvent, 8)

	r.mu.Lock()
	// Seed the snapshot before registering: the channel is empty here and all
	// other sends happen under this lock, so the send cannot block and no
	// publish can slot in ahead of the initial event.
	initial := r.snapshotLocked()
	ch <- RoomEvent{Type: "room", Room: &initial}
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Room) broadcastLocked(eventType, userID string) domain.RoomSnapshot {
	snapshot := r.snapshotLocked()
	r.publishLocked(RoomEvent{Type: eventType, UserID: userID, Room: &snapshot})
	return snapshot
}

func (r *Room) publishLocked(event RoomEvent) {
	for ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Drop the oldest update so a slow client cannot block broadcast.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

func (r *Room) snapshotLocked() domain.RoomSnapshot {
	views := make([]domain.ParticipantView, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		participant, ok := r.participants[id]
		if !ok {
			continue
		}
		views = append(views, domain.ParticipantView{
			UserID:      participant.UserID,
			DisplayName: participant.DisplayName,
			Progress:    participant.Progress,
			Score:       participant.Score,
			Ready:       participant.Ready,
		})
	}

	return domain.RoomSnapshot{
		ID:              r.id,
		Status:          r.status,
		Active:          r.active,
		CreatorID:       r.creatorID,
		Participants:    views,
		TotalQuestions:  len(r.questions),
		MaxParticipants: r.maxPlayers,
		CreatedAt:       r.createdAt,
		StartedAt:       r.startedAt,
		EndedAt:         r.endedAt,
	}
}
