package engine

import "errors"

var (
	// ErrMalformedOrder rejects zero amounts and non-positive limit prices.
	ErrMalformedOrder = errors.New("order amount must be non-zero and limit price positive")

	// ErrInternal wraps persistence failures surfaced to the caller.
	ErrInternal = errors.New("internal transaction error")
)
