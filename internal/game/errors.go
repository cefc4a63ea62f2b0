package game

import "errors"

// Action admission errors. Storage-level conflicts (duplicate bet,
// insufficient balance) surface as the storage package sentinels.
var (
	ErrRoundNotWaiting = errors.New("betting is closed for this round")
	ErrRoundNotActive  = errors.New("round is not active")
	ErrNoActiveBet     = errors.New("no active bet to cash out")
	ErrBetTooSmall     = errors.New("bet is below the minimum")
	ErrBetTooLarge     = errors.New("bet is above the maximum")
	ErrQueueFull       = errors.New("action queue full")
	ErrActionTimeout   = errors.New("action timed out")
)
