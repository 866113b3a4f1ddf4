package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-match-system/models"
)

var rpsChoices = []Choice{ChoiceRock, ChoicePaper, ChoiceScissors}

func TestResolve_RockPaperScissorsAntisymmetric(t *testing.T) {
	for _, a := range rpsChoices {
		for _, b := range rpsChoices {
			ab, err := Resolve(models.GameTypeRockPaperScissors, a, b, Toss{})
			require.NoError(t, err)
			ba, err := Resolve(models.GameTypeRockPaperScissors, b, a, Toss{})
			require.NoError(t, err)

			if a == b {
				assert.Equal(t, OutcomeDraw, ab, "%s vs %s", a, b)
				continue
			}
			assert.Equal(t, ab == OutcomeWinA, ba == OutcomeWinB, "%s vs %s", a, b)
			assert.NotEqual(t, OutcomeDraw, ab)
		}
	}
}

func TestResolve_RockPaperScissorsTable(t *testing.T) {
	cases := []struct {
		a, b Choice
		want Outcome
	}{
		{ChoiceRock, ChoiceScissors, OutcomeWinA},
		{ChoicePaper, ChoiceRock, OutcomeWinA},
		{ChoiceScissors, ChoicePaper, OutcomeWinA},
		{ChoiceScissors, ChoiceRock, OutcomeWinB},
		{ChoicePaper, ChoicePaper, OutcomeDraw},
	}
	for _, tc := range cases {
		got, err := Resolve(models.GameTypeRockPaperScissors, tc.a, tc.b, Toss{})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s vs %s", tc.a, tc.b)
	}
}

func TestResolve_Forfeit(t *testing.T) {
	got, err := Resolve(models.GameTypeRockPaperScissors, ChoiceRock, ChoiceForfeit, Toss{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeWinA, got)

	got, err = Resolve(models.GameTypeCoinFlip, ChoiceForfeit, ChoiceTails, Toss{Side: ChoiceHeads})
	require.NoError(t, err)
	assert.Equal(t, OutcomeWinB, got, "a forfeit loses even against the wrong call")

	got, err = Resolve(models.GameTypeRockPaperScissors, ChoiceForfeit, ChoiceForfeit, Toss{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDraw, got)
}

func TestResolve_CoinFlip(t *testing.T) {
	heads := Toss{Side: ChoiceHeads, Caller: SeatA}
	tails := Toss{Side: ChoiceTails, Caller: SeatA}

	cases := []struct {
		name string
		a, b Choice
		toss Toss
		want Outcome
	}{
		{"a matches", ChoiceHeads, ChoiceTails, heads, OutcomeWinA},
		{"b matches", ChoiceHeads, ChoiceTails, tails, OutcomeWinB},
		{"same call, caller right", ChoiceTails, ChoiceTails, tails, OutcomeWinA},
		{"same call, caller wrong", ChoiceHeads, ChoiceHeads, tails, OutcomeWinB},
		{"same call, seat B caller right", ChoiceHeads, ChoiceHeads, Toss{Side: ChoiceHeads, Caller: SeatB}, OutcomeWinB},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(models.GameTypeCoinFlip, tc.a, tc.b, tc.toss)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_NeverDrawsCoinFlip(t *testing.T) {
	sides := []Choice{ChoiceHeads, ChoiceTails}
	for _, side := range sides {
		for _, a := range sides {
			for _, b := range sides {
				got, err := Resolve(models.GameTypeCoinFlip, a, b, Toss{Side: side, Caller: SeatA})
				require.NoError(t, err)
				assert.NotEqual(t, OutcomeDraw, got)
			}
		}
	}
}

func TestResolve_RejectsUnknownChoices(t *testing.T) {
	_, err := Resolve(models.GameTypeRockPaperScissors, ChoiceHeads, ChoiceRock, Toss{})
	assert.ErrorIs(t, err, ErrInvalidMove)

	_, err = Resolve(models.GameTypeCoinFlip, ChoiceHeads, "EDGE", Toss{Side: ChoiceHeads})
	assert.ErrorIs(t, err, ErrInvalidMove)

	_, err = Resolve("CHESS", ChoiceRock, ChoiceRock, Toss{})
	assert.ErrorIs(t, err, ErrUnknownGame)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(models.GameTypeRockPaperScissors, ParseChoice(" rock ")))
	assert.NoError(t, Validate(models.GameTypeCoinFlip, ParseChoice("tails")))

	assert.ErrorIs(t, Validate(models.GameTypeRockPaperScissors, "LIZARD"), ErrInvalidMove)
	assert.ErrorIs(t, Validate(models.GameTypeRockPaperScissors, ChoiceForfeit), ErrInvalidMove)
	assert.ErrorIs(t, Validate(models.GameTypeCoinFlip, ""), ErrInvalidMove)
	assert.ErrorIs(t, Validate("CHESS", ChoiceRock), ErrUnknownGame)
}

func TestDrawToss_Reproducible(t *testing.T) {
	seen := map[Choice]bool{}
	for seed := int64(0); seed < 64; seed++ {
		first := DrawToss(seed)
		assert.Equal(t, first, DrawToss(seed))
		assert.Equal(t, SeatA, first.Caller)
		seen[first.Side] = true
	}
	assert.True(t, seen[ChoiceHeads] && seen[ChoiceTails], "both sides should come up over 64 seeds")
}

func TestRules_Decide(t *testing.T) {
	rps := DefaultRules()[models.GameTypeRockPaperScissors]
	assert.Equal(t, models.MatchResult(""), rps.decide(1, 0, 1))
	assert.Equal(t, models.MatchResult(""), rps.decide(0, 0, 3), "draws keep the match going")
	assert.Equal(t, models.ResultPlayerA, rps.decide(2, 1, 3))
	assert.Equal(t, models.ResultPlayerB, rps.decide(0, 2, 2))
	assert.Equal(t, models.ResultPlayerA, rps.decide(1, 0, rps.MaxRounds))
	assert.Equal(t, models.ResultDraw, rps.decide(1, 1, rps.MaxRounds))

	flip := DefaultRules()[models.GameTypeCoinFlip]
	assert.True(t, flip.SingleRound())
	assert.Equal(t, models.ResultDraw, flip.decide(0, 0, 1))
	assert.Equal(t, models.ResultPlayerB, flip.decide(0, 1, 1))
}

func TestRules_Validate(t *testing.T) {
	for gameType, rules := range DefaultRules() {
		assert.NoError(t, rules.Validate(), gameType)
	}
	assert.Error(t, Rules{WinsNeeded: 2, MaxRounds: 1, MoveTimeout: 1}.Validate())
	assert.Error(t, Rules{WinsNeeded: 1, MaxRounds: 1}.Validate())
	assert.Equal(t, 20, int(DefaultRules()[models.GameTypeCoinFlip].WithMoveTimeout(20).MoveTimeout.Seconds()))
}
