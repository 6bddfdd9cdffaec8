package game

import "errors"

// ScoreTable holds the points awarded for a correct guess, indexed by the
// cycle (1..MaxCycle) the guess landed in.
type ScoreTable [MaxCycle]int

var DefaultScoreTable = ScoreTable{40, 30, 20, 10}

func (t ScoreTable) ScoreFor(cycle int) int {
	if cycle < 1 || cycle > MaxCycle {
		return 0
	}
	return t[cycle-1]
}

func (t ScoreTable) Validate() error {
	for i := 1; i < len(t); i++ {
		if t[i] > t[i-1] {
			return errors.New("scores must not increase with the cycle")
		}
	}
	if t[len(t)-1] <= 0 {
		return errors.New("last cycle must still award points")
	}
	return nil
}
