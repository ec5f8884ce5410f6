package order

import (
	"slices"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusPaymentDone Status = "payment_done"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

var ErrInvalidTransition = errs.New(errs.ErrConflict, "order: invalid status transition")

// transitions is the complete lifecycle table. Any pair not listed is rejected.
var transitions = map[Status][]Status{
	StatusPending:     {StatusConfirmed, StatusPaymentDone, StatusCancelled},
	StatusConfirmed:   {StatusPaymentDone, StatusCancelled},
	StatusPaymentDone: {StatusRefunded},
	StatusCancelled:   nil,
	StatusRefunded:    nil,
}

// CanTransition reports whether from → to is in the lifecycle table.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", errs.Validation("order: unknown status %q", v)
	}
	return s, nil
}
