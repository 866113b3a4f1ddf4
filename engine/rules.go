package engine

import (
	"fmt"
	"time"

	"duel-match-system/models"
)

// Rules parameterize the match loop for one game type
type Rules struct {
	WinsNeeded      int           // round wins that end the match early
	MaxRounds       int           // hard cap on rounds played, draws included
	MoveTimeout     time.Duration // per-round wait for both choices
	InterRoundDelay time.Duration // pause between a resolved round and the next one
}

// Min/max for the per-offer move timeout override
const (
	MinMoveTimeout = 5 * time.Second
	MaxMoveTimeout = 60 * time.Second
)

// DefaultRules is the built-in rule table
func DefaultRules() map[models.GameType]Rules {
	return map[models.GameType]Rules{
		models.GameTypeRockPaperScissors: {
			WinsNeeded:      2, // best of 3
			MaxRounds:       9,
			MoveTimeout:     15 * time.Second,
			InterRoundDelay: 2 * time.Second,
		},
		models.GameTypeCoinFlip: {
			WinsNeeded:  1,
			MaxRounds:   1,
			MoveTimeout: 30 * time.Second,
		},
	}
}

func (r Rules) Validate() error {
	if r.WinsNeeded < 1 {
		return fmt.Errorf("wins_needed must be >= 1, got %d", r.WinsNeeded)
	}
	if r.MaxRounds < r.WinsNeeded {
		return fmt.Errorf("max_rounds (%d) must be >= wins_needed (%d)", r.MaxRounds, r.WinsNeeded)
	}
	if r.MoveTimeout <= 0 {
		return fmt.Errorf("move_timeout must be positive")
	}
	if r.InterRoundDelay < 0 {
		return fmt.Errorf("inter_round_delay must not be negative")
	}
	return nil
}

// SingleRound reports whether the game is decided by exactly one round
func (r Rules) SingleRound() bool {
	return r.MaxRounds == 1
}

// WithMoveTimeout applies a per-offer override in whole seconds (0 keeps the default)
func (r Rules) WithMoveTimeout(sec int) Rules {
	if sec > 0 {
		r.MoveTimeout = time.Duration(sec) * time.Second
	}
	return r
}

// MaxDuration bounds the whole match; exceeding it voids the match.
func (r Rules) MaxDuration(slack time.Duration) time.Duration {
	return time.Duration(r.MaxRounds)*(r.MoveTimeout+r.InterRoundDelay) + slack
}

// decide returns the match result once the score settles it, or "" to keep playing.
func (r Rules) decide(scoreA, scoreB, roundsPlayed int) models.MatchResult {
	switch {
	case scoreA >= r.WinsNeeded:
		return models.ResultPlayerA
	case scoreB >= r.WinsNeeded:
		return models.ResultPlayerB
	case roundsPlayed < r.MaxRounds:
		return ""
	case scoreA > scoreB:
		return models.ResultPlayerA
	case scoreB > scoreA:
		return models.ResultPlayerB
	default:
		return models.ResultDraw
	}
}
