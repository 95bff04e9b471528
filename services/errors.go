// services/errors.go
package services

import "errors"

// Rejection errors surfaced by the settlement operations. Every one of these
// means "the operation did not take effect"; none leave partial state behind.
// The names mirror the on-chain custom errors so clients can match either
// surface.
var (
	// Input validation
	ErrInvalidEntryFee     = errors.New("invalid entry fee")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrInvalidArrayLength  = errors.New("invalid array length")

	// Not found
	ErrRaceNotFound = errors.New("race not found")

	// Authorization
	ErrUnauthorized = errors.New("unauthorized")
	ErrOnlyOracle   = errors.New("only oracle may record results")

	// State conflict
	ErrAlreadyJoined    = errors.New("already joined")
	ErrRaceNotJoinable  = errors.New("race is not accepting players")
	ErrRaceNotStartable = errors.New("race already started or ended")
	ErrRaceNotStarted   = errors.New("race is not in progress")
	ErrNotEnoughPlayers = errors.New("both teams need at least one player")
	ErrInvalidTeam      = errors.New("winners must all belong to one team")
	ErrAlreadyClaimed   = errors.New("winnings already claimed")
	ErrNotAWinner       = errors.New("nothing to claim")
)
