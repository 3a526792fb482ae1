package app

// Scoring constants are tunable. Whatever the curve, incorrect answers score
// zero, contributions are never negative, and a faster correct answer never
// scores less than a slower one.
const (
	basePoints    = 2
	maxTimeBonus  = 1
	bonusWindowMs = 10000
)

// Score computes the points awarded for one submission.
func Score(correct bool, elapsedMs int64) int {
	if !correct {
		return 0
	}
	return basePoints + timeBonus(elapsedMs)
}

func timeBonus(elapsedMs int64) int {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	bonus := maxTimeBonus - int(elapsedMs/bonusWindowMs)
	if bonus < 0 {
		return 0
	}
	return bonus
}
