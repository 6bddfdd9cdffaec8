package game

import (
	"errors"
	"fmt"
	"time"
)

type PausePolicy int

const (
	PauseOwnerOnly PausePolicy = iota
	PauseAnyPlayer
)

type RestartPolicy int

const (
	// RestartOnAnyVote restarts as soon as one player votes yes.
	RestartOnAnyVote RestartPolicy = iota
	// RestartOnUnanimousVote waits for a yes from every connected player.
	RestartOnUnanimousVote
)

func ParsePausePolicy(s string) (PausePolicy, error) {
	switch s {
	case "owner":
		return PauseOwnerOnly, nil
	case "any":
		return PauseAnyPlayer, nil
	}
	return 0, fmt.Errorf("unknown pause policy %q (want owner or any)", s)
}

func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch s {
	case "any":
		return RestartOnAnyVote, nil
	case "unanimous":
		return RestartOnUnanimousVote, nil
	}
	return 0, fmt.Errorf("unknown restart policy %q (want any or unanimous)", s)
}

// Settings are the per-deployment parameters every room is created with.
type Settings struct {
	MaxPlayers int
	MinPlayers int

	CycleDurations      [MaxCycle]time.Duration
	StartCountdown      int
	InterRoundCountdown int
	CountdownStep       time.Duration

	ReconnectionGrace time.Duration
	IdleDispose       time.Duration

	CollaboratorTimeout time.Duration

	Scores        ScoreTable
	PausePolicy   PausePolicy
	RestartPolicy RestartPolicy
}

func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:          8,
		MinPlayers:          2,
		CycleDurations:      [MaxCycle]time.Duration{20 * time.Second, 15 * time.Second, 10 * time.Second, 5 * time.Second},
		StartCountdown:      3,
		InterRoundCountdown: 5,
		CountdownStep:       time.Second,
		ReconnectionGrace:   15 * time.Second,
		IdleDispose:         180 * time.Second,
		CollaboratorTimeout: 5 * time.Second,
		Scores:              DefaultScoreTable,
		PausePolicy:         PauseOwnerOnly,
		RestartPolicy:       RestartOnAnyVote,
	}
}

func (s Settings) Validate() error {
	if s.MaxPlayers < 1 {
		return errors.New("max players must be at least 1")
	}
	if s.MinPlayers < 1 || s.MinPlayers > s.MaxPlayers {
		return fmt.Errorf("min players must be between 1 and %d", s.MaxPlayers)
	}
	for i, d := range s.CycleDurations {
		if d <= 0 {
			return fmt.Errorf("cycle %d duration must be positive", i+1)
		}
		if i > 0 && d >= s.CycleDurations[i-1] {
			return fmt.Errorf("cycle %d must be shorter than cycle %d", i+1, i)
		}
	}
	if s.StartCountdown < 1 || s.InterRoundCountdown < 1 {
		return errors.New("countdowns must last at least one step")
	}
	if s.CountdownStep <= 0 {
		return errors.New("countdown step must be positive")
	}
	if s.ReconnectionGrace <= 0 || s.IdleDispose <= 0 {
		return errors.New("reconnection grace and idle dispose must be positive")
	}
	if s.CollaboratorTimeout <= 0 {
		return errors.New("collaborator timeout must be positive")
	}
	return s.Scores.Validate()
}
