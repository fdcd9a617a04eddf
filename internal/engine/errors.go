package engine

import (
	"errors"
	"fmt"
)

// Engine errors. ErrInvalidOrder is a caller problem and is safe to surface
// to the submitter; ErrInvariantViolation means an upstream layer handed the
// sweep corrupted state and the whole match invocation is aborted.
var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvariantViolation = errors.New("order book invariant violation")

	errEngineStopped = errors.New("engine stopped")
)

func errDuplicateID(id string) error {
	return fmt.Errorf("%w: duplicate order id %q", ErrInvalidOrder, id)
}

func errNegativeState(side, id string) error {
	return fmt.Errorf("%w: %s order %q has negative quantity or price", ErrInvariantViolation, side, id)
}
