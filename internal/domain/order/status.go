package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Status enumerates the order lifecycle states.
type Status string

const (
	// StatusPending is the initial state of every created order.
	StatusPending Status = "pending"
	// StatusConfirmed marks an order accepted by its handler.
	StatusConfirmed Status = "confirmed"
	// StatusCompleted is a terminal state for fulfilled orders.
	StatusCompleted Status = "completed"
	// StatusCancelled is a terminal state for abandoned orders.
	StatusCancelled Status = "cancelled"
)

// ErrUnknownStatus is returned when a status string is not one of the four
// lifecycle states.
var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus converts a raw string into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
}

// transitions is the forward-only lifecycle graph. Terminal states have no
// outgoing edges; setting the current status again is treated as a no-op by
// ValidateTransition, not encoded here.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// InvalidTransitionError indicates a status change that the lifecycle graph
// does not allow.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// ValidateTransition checks whether an order in state from may move to state
// to. Same-state transitions are allowed so that status updates are
// idempotent.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}
