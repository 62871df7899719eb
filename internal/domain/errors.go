package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("concurrent update conflict")
)

// InvalidTransitionError reports a rejected order status change.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.From.Terminal() {
		return "order status can no longer be updated"
	}
	msg := fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
	if next := AllowedNext(e.From); len(next) > 0 {
		allowed := make([]string, len(next))
		for i, s := range next {
			allowed[i] = string(s)
		}
		msg += " (allowed: " + strings.Join(allowed, ", ") + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
