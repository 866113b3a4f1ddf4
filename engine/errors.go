package engine

import "errors"

// Local errors are returned synchronously and never mutate match state.
var (
	ErrInvalidMove   = errors.New("invalid move")
	ErrInvalidState  = errors.New("match is not accepting this action in its current state")
	ErrNotAPlayer    = errors.New("caller is not a player in this match")
	ErrAlreadyMoved  = errors.New("move already submitted for this round")
	ErrMatchNotFound = errors.New("match not found")
	ErrOfferNotFound = errors.New("offer not found")
	ErrSelfJoin      = errors.New("cannot join your own offer")

	ErrInvalidRequest = errors.New("invalid request")

	ErrNotEligible     = errors.New("player is not eligible to play")
	ErrStakeOutOfRange = errors.New("stake amount out of range")
	ErrUnknownGame     = errors.New("unknown game type")

	// ErrSettlementFailure means the terminal write could not be persisted
	ErrSettlementFailure = errors.New("settlement failed")
	// ErrAlreadyFinalized is returned by a Store when the match already left the live states
	ErrAlreadyFinalized = errors.New("match already finalized")
	// ErrOfferTaken is returned by a Store when the offer is no longer OPEN
	ErrOfferTaken = errors.New("offer is no longer open")

	ErrSchedulerClosed = errors.New("scheduler is shut down")
)
