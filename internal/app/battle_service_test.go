package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func TestCreatorOnlyStart(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")

	if _, err := service.StartBattle(ctx, "R1", "u2", "set-1"); !errors.Is(err, domain.ErrNotCreator) {
		t.Fatalf("expected NotCreator, got %v", err)
	}

	snapshot, err := service.StartBattle(ctx, "R1", "u1", "set-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if snapshot.Status != domain.StatusActive {
		t.Fatalf("expected active status, got %s", snapshot.Status)
	}
	if snapshot.TotalQuestions != 3 {
		t.Fatalf("expected 3 questions, got %d", snapshot.TotalQuestions)
	}
	if snapshot.StartedAt == nil {
		t.Fatalf("expected startedAt set once active")
	}
}

func TestStartRequiresMinimumPlayers(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")

	if _, err := service.StartBattle(ctx, "R1", "u1", "set-1"); !errors.Is(err, domain.ErrTooFewPlayers) {
		t.Fatalf("expected TooFewPlayers, got %v", err)
	}
}

func TestSecondStartRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")
	mustStart(t, service, "R1", "u1")

	if _, err := service.StartBattle(ctx, "R1", "u1", "set-1"); !errors.Is(err, domain.ErrBattleAlreadyStarted) {
		t.Fatalf("expected BattleAlreadyStarted, got %v", err)
	}
}

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{MaxParticipants: 2})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")

	if _, err := service.CreateOrJoinRoom(ctx, "R1", "u3", "Carol", ""); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected RoomFull, got %v", err)
	}

	mustStart(t, service, "R1", "u1")
	if _, err := service.CreateOrJoinRoom(ctx, "R1", "u3", "Carol", ""); !errors.Is(err, domain.ErrBattleAlreadyStarted) {
		t.Fatalf("expected BattleAlreadyStarted, got %v", err)
	}

	if _, err := service.EndBattle(ctx, "R1", "stopped"); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := service.CreateOrJoinRoom(ctx, "R1", "u3", "Carol", ""); !errors.Is(err, domain.ErrBattleAlreadyEnded) {
		t.Fatalf("expected BattleAlreadyEnded, got %v", err)
	}
}

func TestAnswersMustBeInOrder(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")
	mustStart(t, service, "R1", "u1")

	if _, err := service.SubmitAnswer(ctx, "R1", "u1", 1, "o2", 1000); !errors.Is(err, domain.ErrOutOfOrderAnswer) {
		t.Fatalf("expected OutOfOrderAnswer, got %v", err)
	}

	outcome, err := service.SubmitAnswer(ctx, "R1", "u1", 0, "o2", 1000)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !outcome.Correct {
		t.Fatalf("expected correct answer")
	}
	if outcome.QuestionIndex != 0 || outcome.Finished {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	// Retrying the same index is rejected, not double-scored.
	if _, err := service.SubmitAnswer(ctx, "R1", "u1", 0, "o2", 1000); !errors.Is(err, domain.ErrOutOfOrderAnswer) {
		t.Fatalf("expected OutOfOrderAnswer on retry, got %v", err)
	}

	snapshot, err := service.RoomSnapshot(ctx, "R1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Participants[0].Progress != 1 {
		t.Fatalf("expected progress 1, got %d", snapshot.Participants[0].Progress)
	}
}

func TestSubmitBeforeStartRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")

	if _, err := service.SubmitAnswer(ctx, "R1", "u1", 0, "o2", 1000); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected NotActive, got %v", err)
	}
}

func TestAllFinishedEndsBattle(t *testing.T) {
	ctx := context.Background()
	service, sink := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")
	mustStart(t, service, "R1", "u1")

	answerAll(t, service, "R1", "u1", 1000)
	outcomes := answerAll(t, service, "R1", "u2", 2000)

	last := outcomes[len(outcomes)-1]
	if !last.Finished || !last.AllFinished {
		t.Fatalf("expected final submission to report allFinished, got %+v", last)
	}

	snapshot, err := service.RoomSnapshot(ctx, "R1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Status != domain.StatusFinished {
		t.Fatalf("expected finished room, got %s", snapshot.Status)
	}
	if snapshot.EndedAt == nil {
		t.Fatalf("expected endedAt set once finished")
	}
	if got := sink.count("R1"); got != 1 {
		t.Fatalf("expected one published report, got %d", got)
	}

	report := sink.last("R1")
	if report.Reason != "completed" {
		t.Fatalf("expected completed reason, got %q", report.Reason)
	}
	// Same correct answers, faster total time wins.
	if report.Results[0].UserID != "u1" || report.Results[0].Rank != 1 {
		t.Fatalf("expected u1 ranked first, got %+v", report.Results[0])
	}
	if report.Results[1].UserID != "u2" || report.Results[1].Rank != 2 {
		t.Fatalf("expected u2 ranked second, got %+v", report.Results[1])
	}
	if report.Results[0].CorrectAnswers != 3 || report.Results[0].TotalQuestions != 3 {
		t.Fatalf("unexpected result counts %+v", report.Results[0])
	}
}

func TestEndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, sink := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")
	mustStart(t, service, "R1", "u1")

	first, err := service.EndBattle(ctx, "R1", "admin stop")
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	second, err := service.EndBattle(ctx, "R1", "admin stop again")
	if err != nil {
		t.Fatalf("second end failed: %v", err)
	}

	if first.Reason != second.Reason || len(first.Results) != len(second.Results) {
		t.Fatalf("expected identical reports, got %+v vs %+v", first, second)
	}
	for i := range first.Results {
		if first.Results[i] != second.Results[i] {
			t.Fatalf("report drift at %d: %+v vs %+v", i, first.Results[i], second.Results[i])
		}
	}
	if got := sink.count("R1"); got != 1 {
		t.Fatalf("expected single publish, got %d", got)
	}
}

func TestDeterministicTieBreakByJoinOrder(t *testing.T) {
	service, sink := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")
	mustStart(t, service, "R1", "u1")

	// Identical answers and timing for both players.
	answerAll(t, service, "R1", "u1", 1000)
	answerAll(t, service, "R1", "u2", 1000)

	report := sink.last("R1")
	if report.Results[0].UserID != "u1" {
		t.Fatalf("expected first joiner to win the tie, got %s", report.Results[0].UserID)
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")

	if _, deleted, err := service.LeaveRoom(ctx, "R1", "u2"); err != nil || deleted {
		t.Fatalf("expected room kept, deleted=%v err=%v", deleted, err)
	}
	// Creator leaving a Waiting lobby expires it; last leaver deletes it.
	if _, deleted, err := service.LeaveRoom(ctx, "R1", "u1"); err != nil || !deleted {
		t.Fatalf("expected room deleted, deleted=%v err=%v", deleted, err)
	}
	if _, err := service.RoomSnapshot(ctx, "R1"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected RoomNotFound, got %v", err)
	}
}

func TestCreatorLeavingExpiresLobby(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{ExpiredGrace: 20 * time.Millisecond})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")

	snapshot, deleted, err := service.LeaveRoom(ctx, "R1", "u1")
	if err != nil || deleted {
		t.Fatalf("expected expired room kept for grace, deleted=%v err=%v", deleted, err)
	}
	if snapshot.Status != domain.StatusExpired {
		t.Fatalf("expected expired status, got %s", snapshot.Status)
	}

	// Joins are rejected while the expired room lingers.
	if _, err := service.CreateOrJoinRoom(ctx, "R1", "u3", "Carol", ""); !errors.Is(err, domain.ErrBattleAlreadyEnded) {
		t.Fatalf("expected BattleAlreadyEnded, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := service.RoomSnapshot(ctx, "R1"); errors.Is(err, domain.ErrRoomNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired room was not reclaimed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLaggardLeavingFinishesBattle(t *testing.T) {
	ctx := context.Background()
	service, sink := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")
	mustStart(t, service, "R1", "u1")

	answerAll(t, service, "R1", "u1", 1000)

	// u2 never answers and leaves; everyone remaining has finished.
	snapshot, deleted, err := service.LeaveRoom(ctx, "R1", "u2")
	if err != nil || deleted {
		t.Fatalf("leave: deleted=%v err=%v", deleted, err)
	}
	if snapshot.Status != domain.StatusFinished {
		t.Fatalf("expected finished room after laggard left, got %s", snapshot.Status)
	}
	if got := sink.count("R1"); got != 1 {
		t.Fatalf("expected one published report, got %d", got)
	}

	report := sink.last("R1")
	if len(report.Results) != 1 || report.Results[0].UserID != "u1" {
		t.Fatalf("expected report for the remaining player, got %+v", report.Results)
	}
	if report.Reason != "completed" {
		t.Fatalf("expected completed reason, got %q", report.Reason)
	}
}

func TestEndOnWaitingRoomSetsStartedAt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")

	if _, err := service.EndBattle(ctx, "R1", "admin stop"); err != nil {
		t.Fatalf("end: %v", err)
	}

	snapshot, err := service.RoomSnapshot(ctx, "R1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Status != domain.StatusFinished {
		t.Fatalf("expected finished room, got %s", snapshot.Status)
	}
	// startedAt is set if and only if the room is Active or Finished.
	if snapshot.StartedAt == nil || snapshot.EndedAt == nil {
		t.Fatalf("expected startedAt and endedAt on a finished room, got %+v", snapshot)
	}
	if !snapshot.StartedAt.Equal(*snapshot.EndedAt) {
		t.Fatalf("expected startedAt == endedAt for a never-started room")
	}
}

func TestSubscribeDuringBroadcastStorm(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")

	// Publishers flip the ready flag while subscribers come and go; the
	// initial snapshot must arrive first and nothing may deadlock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := service.SetReady(ctx, "R1", "u2", i%2 == 0); err != nil {
				t.Errorf("set ready: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		ch, cancel, err := service.Subscribe(ctx, "R1")
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		first := <-ch
		if first.Type != "room" {
			t.Fatalf("expected initial room event, got %s", first.Type)
		}
		cancel()
	}
	<-done
}

func TestReadyFlagIsAdvisory(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")

	snapshot, err := service.SetReady(ctx, "R1", "u2", true)
	if err != nil {
		t.Fatalf("set ready: %v", err)
	}
	if !snapshot.Participants[1].Ready {
		t.Fatalf("expected ready flag set")
	}

	// Nobody else is ready; the battle still starts.
	mustStart(t, service, "R1", "u1")
}

func TestIncorrectAnswersNeverScore(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R1", "u2", "Bob")
	mustStart(t, service, "R1", "u1")

	outcome, err := service.SubmitAnswer(ctx, "R1", "u1", 0, "o1", 500)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Correct || outcome.Awarded != 0 || outcome.TotalScore != 0 {
		t.Fatalf("incorrect answer scored: %+v", outcome)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	ctx := context.Background()
	service, sink := newTestService(app.Settings{MaxParticipants: 16})

	mustJoin(t, service, "R1", "u0", "P0")
	for i := 1; i < 8; i++ {
		mustJoin(t, service, "R1", userID(i), "P")
	}
	mustStart(t, service, "R1", "u0")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			for q := 0; q < 3; q++ {
				if _, err := service.SubmitAnswer(ctx, "R1", user, q, "o2", 1000); err != nil {
					t.Errorf("submit %s q%d: %v", user, q, err)
				}
			}
		}(userID(i))
	}
	wg.Wait()

	if got := sink.count("R1"); got != 1 {
		t.Fatalf("expected exactly one publish under contention, got %d", got)
	}
	report := sink.last("R1")
	for _, result := range report.Results {
		// 3 correct answers at base 2 + bonus 1 each.
		if result.Score != 9 {
			t.Fatalf("expected score 9 for %s, got %d", result.UserID, result.Score)
		}
		if result.CorrectAnswers != 3 {
			t.Fatalf("expected 3 correct for %s, got %d", result.UserID, result.CorrectAnswers)
		}
	}
}

func TestListRooms(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	mustJoin(t, service, "R2", "u2", "Bob")

	summaries := service.ListRooms(ctx)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(summaries))
	}
	for _, summary := range summaries {
		if summary.Status != domain.StatusWaiting || summary.ParticipantCount != 1 {
			t.Fatalf("unexpected summary %+v", summary)
		}
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(app.Settings{})

	mustJoin(t, service, "R1", "u1", "Alice")
	ch, cancel, err := service.Subscribe(ctx, "R1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := <-ch // initial snapshot
	if first.Type != "room" || first.Room == nil {
		t.Fatalf("expected initial room event, got %+v", first)
	}

	mustJoin(t, service, "R1", "u2", "Bob")
	event := <-ch
	if event.Type != "participantJoined" || event.UserID != "u2" {
		t.Fatalf("expected join event, got %+v", event)
	}
}

func userID(i int) string {
	return "u" + string(rune('0'+i))
}

func mustJoin(t *testing.T, service *app.BattleService, roomID, userID, name string) {
	t.Helper()
	if _, err := service.CreateOrJoinRoom(context.Background(), roomID, userID, name, ""); err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
}

func mustStart(t *testing.T, service *app.BattleService, roomID, requesterID string) {
	t.Helper()
	if _, err := service.StartBattle(context.Background(), roomID, requesterID, "set-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func answerAll(t *testing.T, service *app.BattleService, roomID, userID string, elapsedMs int64) []domain.AnswerOutcome {
	t.Helper()
	outcomes := make([]domain.AnswerOutcome, 0, 3)
	for q := 0; q < 3; q++ {
		outcome, err := service.SubmitAnswer(context.Background(), roomID, userID, q, "o2", elapsedMs)
		if err != nil {
			t.Fatalf("submit %s q%d: %v", userID, q, err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// collectSink records published reports for idempotency assertions.
type collectSink struct {
	mu      sync.Mutex
	reports map[string][]domain.BattleReport
}

func newCollectSink() *collectSink {
	return &collectSink{reports: make(map[string][]domain.BattleReport)}
}

func (s *collectSink) PublishBattleResult(_ context.Context, report domain.BattleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.RoomID] = append(s.reports[report.RoomID], report)
	return nil
}

func (s *collectSink) count(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports[roomID])
}

func (s *collectSink) last(roomID string) domain.BattleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	reports := s.reports[roomID]
	return reports[len(reports)-1]
}

func newTestService(settings app.Settings) (*app.BattleService, *collectSink) {
	registry := memory.NewRoomRegistry(settings)
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionSetLoader(map[string]domain.QuestionSet{
		"set-1": {
			ID: "set-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "Pick the right option",
					Options: []domain.Option{
						{ID: "o1", Text: "Wrong", Correct: false},
						{ID: "o2", Text: "Right", Correct: true},
					},
				},
				{
					ID:     "q2",
					Prompt: "Pick the right option again",
					Options: []domain.Option{
						{ID: "o1", Text: "Wrong", Correct: false},
						{ID: "o2", Text: "Right", Correct: true},
					},
				},
				{
					ID:     "q3",
					Prompt: "One more time",
					Options: []domain.Option{
						{ID: "o1", Text: "Wrong", Correct: false},
						{ID: "o2", Text: "Right", Correct: true},
					},
				},
			},
		},
	}), 5*time.Minute)
	sink := newCollectSink()
	return app.NewBattleService(registry, questions, sink, settings), sink
}
