package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-match-system/engine"
)

func TestPriceOracle(t *testing.T) {
	o := testOracle(t)

	assert.Equal(t, int64(666_666), o.EURToUnits(decimal.RequireFromString("0.10")))
	assert.Equal(t, int64(1_000_000_000), o.EURToUnits(decimal.NewFromInt(150)))
	assert.Equal(t, "150.00", o.UnitsToEUR(1_000_000_000).StringFixed(2))
	assert.Equal(t, "0.10", o.UnitsToEUR(666_667).StringFixed(2))
	assert.Equal(t, "1.5", o.UnitsToCoins(1_500_000_000))

	_, err := NewPriceOracle(decimal.Zero, 1)
	assert.Error(t, err)
	_, err = NewPriceOracle(decimal.NewFromInt(1), 0)
	assert.Error(t, err)
}

func TestParseStake(t *testing.T) {
	v, err := ParseStake(" 1500 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), v)

	_, err = ParseStake("1.5")
	assert.ErrorIs(t, err, engine.ErrInvalidRequest)
	_, err = ParseStake("")
	assert.ErrorIs(t, err, engine.ErrInvalidRequest)
	_, err = ParseStake("-3")
	assert.ErrorIs(t, err, engine.ErrStakeOutOfRange)
	_, err = ParseStake(fmt.Sprint(engine.MaxStake) + "0")
	assert.ErrorIs(t, err, engine.ErrStakeOutOfRange)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{engine.ErrInvalidMove, http.StatusBadRequest},
		{engine.ErrUnknownGame, http.StatusBadRequest},
		{engine.ErrNotEligible, http.StatusForbidden},
		{engine.ErrNotAPlayer, http.StatusForbidden},
		{engine.ErrMatchNotFound, http.StatusNotFound},
		{engine.ErrAlreadyMoved, http.StatusConflict},
		{engine.ErrSelfJoin, http.StatusConflict},
		{engine.ErrInvalidState, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, sentinel := StatusFor(fmt.Errorf("handler: %w", tc.err))
		assert.Equal(t, tc.want, got, tc.err.Error())
		if tc.want != http.StatusInternalServerError {
			assert.Equal(t, tc.err, sentinel)
		} else {
			assert.Nil(t, sentinel)
		}
	}
}
