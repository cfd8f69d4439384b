// README: Order module errors.
package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("order state conflict")
	ErrNotAssigned       = errors.New("order not assigned to driver")
	ErrBadRequest        = errors.New("bad request")
	ErrDuplicateNumber   = errors.New("order number already used")
)

// TransitionError reports the state that was observed when an edge was rejected.
type TransitionError struct {
	Machine string // status | delivery
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s %s -> %s", ErrInvalidTransition, e.Machine, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func statusError(from, to Status) error {
	return &TransitionError{Machine: "status", From: string(from), To: string(to)}
}

func deliveryError(from, to DeliveryStatus) error {
	return &TransitionError{Machine: "delivery", From: string(from), To: string(to)}
}

func badRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}
