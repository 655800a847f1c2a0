package domain

import "errors"

var (
	// ErrInvalidParameter marks a programming error in pricing inputs,
	// e.g. a non-positive liquidity parameter. It aborts the single
	// evaluation it occurred in, never the whole batch.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoSolution is the normal negative result of an inverse solve:
	// no forward trade reaches the requested target.
	ErrNoSolution = errors.New("no solution")

	// ErrUpstreamUnavailable wraps collaborator failures (AMM state,
	// order book, FX rate could not be fetched).
	ErrUpstreamUnavailable = errors.New("upstream data unavailable")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
)
