package app

import (
	"sort"
	"time"

	"quiz-battle-service/internal/domain"
)

// compileReport ranks participants by score descending, ties broken by lower
// total elapsed time, then by join order. The input slice must already be in
// join order; the stable sort preserves it for full ties.
func compileReport(roomID, reason string, participants []*domain.Participant, totalQuestions int, endedAt time.Time) domain.BattleReport {
	results := make([]domain.RankedResult, 0, len(participants))
	for _, participant := range participants {
		correct := 0
		var elapsed int64
		for _, answer := range participant.Answers {
			if answer.Correct {
				correct++
			}
			elapsed += answer.ElapsedMs
		}
		results = append(results, domain.RankedResult{
			UserID:         participant.UserID,
			DisplayName:    participant.DisplayName,
			Score:          participant.Score,
			CorrectAnswers: correct,
			TotalQuestions: totalQuestions,
			TotalElapsedMs: elapsed,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].TotalElapsedMs < results[j].TotalElapsedMs
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	return domain.BattleReport{
		RoomID:  roomID,
		Reason:  reason,
		Results: results,
		EndedAt: endedAt,
	}
}
