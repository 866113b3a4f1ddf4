package engine

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"duel-match-system/models"
)

// Choice is a player's declaration for one round
type Choice string

const (
	ChoiceRock     Choice = "ROCK"
	ChoicePaper    Choice = "PAPER"
	ChoiceScissors Choice = "SCISSORS"
	ChoiceHeads    Choice = "HEADS"
	ChoiceTails    Choice = "TAILS"

	// ChoiceForfeit is applied to a seat that misses the move timeout.
	// It loses to every real choice and is never accepted from a client.
	ChoiceForfeit Choice = "FORFEIT"
)

// ParseChoice normalizes client input; validation happens in Validate.
func ParseChoice(raw string) Choice {
	return Choice(strings.ToUpper(strings.TrimSpace(raw)))
}

// Outcome of a single round
type Outcome string

const (
	OutcomeWinA Outcome = "WIN_A"
	OutcomeWinB Outcome = "WIN_B"
	OutcomeDraw Outcome = "DRAW"
)

// Seat identifies a side of the match
type Seat int

const (
	SeatA Seat = iota
	SeatB
)

func (s Seat) String() string {
	if s == SeatA {
		return "A"
	}
	return "B"
}

// Toss carries the chance inputs of a match. Variants without chance ignore it.
type Toss struct {
	Side   Choice // drawn coin side
	Caller Seat   // seat whose call stands when both declare the same side
}

// DrawToss derives the match's coin side from its stored seed. The caller is
// always seat A, the player who created the offer.
func DrawToss(seed int64) Toss {
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	side := ChoiceHeads
	if r.IntN(2) == 1 {
		side = ChoiceTails
	}
	return Toss{Side: side, Caller: SeatA}
}

type variant interface {
	accepts(c Choice) bool
	resolve(a, b Choice, toss Toss) Outcome
}

var variants = map[models.GameType]variant{
	models.GameTypeRockPaperScissors: rockPaperScissors{},
	models.GameTypeCoinFlip:          coinFlip{},
}

// SupportedGame reports whether a game type has a resolver
func SupportedGame(gameType models.GameType) bool {
	_, ok := variants[gameType]
	return ok
}

// Validate checks a client-submitted choice for the game type
func Validate(gameType models.GameType, c Choice) error {
	v, ok := variants[gameType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGame, gameType)
	}
	if c == ChoiceForfeit || !v.accepts(c) {
		return fmt.Errorf("%w: %q is not a valid choice for %s", ErrInvalidMove, c, gameType)
	}
	return nil
}

// Resolve decides one round. It is pure: the same inputs always give the same outcome.
func Resolve(gameType models.GameType, a, b Choice, toss Toss) (Outcome, error) {
	v, ok := variants[gameType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGame, gameType)
	}
	for _, c := range []Choice{a, b} {
		if c != ChoiceForfeit && !v.accepts(c) {
			return "", fmt.Errorf("%w: %q is not a valid choice for %s", ErrInvalidMove, c, gameType)
		}
	}

	switch {
	case a == ChoiceForfeit && b == ChoiceForfeit:
		return OutcomeDraw, nil
	case a == ChoiceForfeit:
		return OutcomeWinB, nil
	case b == ChoiceForfeit:
		return OutcomeWinA, nil
	}
	return v.resolve(a, b, toss), nil
}

type rockPaperScissors struct{}

var rpsBeats = map[Choice]Choice{
	ChoiceRock:     ChoiceScissors,
	ChoicePaper:    ChoiceRock,
	ChoiceScissors: ChoicePaper,
}

func (rockPaperScissors) accepts(c Choice) bool {
	_, ok := rpsBeats[c]
	return ok
}

func (rockPaperScissors) resolve(a, b Choice, _ Toss) Outcome {
	switch {
	case a == b:
		return OutcomeDraw
	case rpsBeats[a] == b:
		return OutcomeWinA
	default:
		return OutcomeWinB
	}
}

type coinFlip struct{}

func (coinFlip) accepts(c Choice) bool {
	return c == ChoiceHeads || c == ChoiceTails
}

func (coinFlip) resolve(a, b Choice, toss Toss) Outcome {
	if a != b {
		if a == toss.Side {
			return OutcomeWinA
		}
		return OutcomeWinB
	}
	// Same call from both seats: the caller keeps it, the other seat takes the opposite side.
	callerWins := a == toss.Side
	if (toss.Caller == SeatA) == callerWins {
		return OutcomeWinA
	}
	return OutcomeWinB
}
