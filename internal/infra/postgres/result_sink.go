package postgres

import (
	"context"
	"fmt"

	"quiz-battle-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultSink persists one row per ranked participant when a battle finishes.
// Downstream jobs (leaderboards, badges) read from battle_results.
type ResultSink struct {
	pool *pgxpool.Pool
}

func NewResultSink(pool *pgxpool.Pool) *ResultSink {
	return &ResultSink{pool: pool}
}

func (s *ResultSink) PublishBattleResult(ctx context.Context, report domain.BattleReport) error {
	batch := &pgx.Batch{}
	for _, result := range report.Results {
		batch.Queue(
			`INSERT INTO battle_results
			   (room_id, user_id, display_name, score, rank, correct_answers, total_questions, total_elapsed_ms, reason, ended_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			report.RoomID, result.UserID, result.DisplayName, result.Score, result.Rank,
			result.CorrectAnswers, result.TotalQuestions, result.TotalElapsedMs,
			report.Reason, report.EndedAt,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range report.Results {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert battle result: %w", err)
		}
	}
	return nil
}
