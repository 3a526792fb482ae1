package app

import "testing"

func TestScoreIncorrectIsZero(t *testing.T) {
	for _, elapsed := range []int64{0, 500, 10000, 60000} {
		if got := Score(false, elapsed); got != 0 {
			t.Fatalf("incorrect answer at %dms scored %d", elapsed, got)
		}
	}
}

func TestScoreNeverNegative(t *testing.T) {
	for _, elapsed := range []int64{-1, 0, 5000, 10000, 100000, 1 << 40} {
		if got := Score(true, elapsed); got < 0 {
			t.Fatalf("score negative at %dms: %d", elapsed, got)
		}
	}
}

func TestFasterNeverScoresLess(t *testing.T) {
	prev := Score(true, 0)
	for elapsed := int64(0); elapsed <= 30000; elapsed += 500 {
		got := Score(true, elapsed)
		if got > prev {
			t.Fatalf("slower answer at %dms scored more: %d > %d", elapsed, got, prev)
		}
		prev = got
	}
}

func TestScoreCurve(t *testing.T) {
	if got := Score(true, 100); got != basePoints+maxTimeBonus {
		t.Fatalf("fast correct answer: got %d", got)
	}
	if got := Score(true, bonusWindowMs); got != basePoints {
		t.Fatalf("slow correct answer: got %d", got)
	}
}
