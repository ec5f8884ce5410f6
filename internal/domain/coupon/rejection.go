package coupon

import (
	"fmt"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
)

type Reason string

const (
	ReasonNotFound        Reason = "COUPON_NOT_FOUND"
	ReasonInactive        Reason = "COUPON_INACTIVE"
	ReasonNotStarted      Reason = "COUPON_NOT_STARTED"
	ReasonExpired         Reason = "COUPON_EXPIRED"
	ReasonWrongRestaurant Reason = "COUPON_WRONG_RESTAURANT"
	ReasonUsageLimit      Reason = "COUPON_USAGE_LIMIT_REACHED"
	ReasonUserLimit       Reason = "COUPON_USER_LIMIT_REACHED"
	ReasonUserNotAllowed  Reason = "COUPON_USER_NOT_ALLOWED"
)

// Rejection is returned when a code fails validation. It matches
// errs.ErrNotFound for unknown codes, errs.ErrConflict for exhausted limits and
// errs.ErrValidation otherwise.
type Rejection struct {
	Reason Reason
	Code   string
}

func reject(reason Reason, code string) *Rejection {
	return &Rejection{Reason: reason, Code: code}
}

// NewRejection builds a rejection for code.
func NewRejection(reason Reason, code string) *Rejection {
	return reject(reason, code)
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("coupon: %q rejected: %s", r.Code, r.Reason)
}

func (r *Rejection) Unwrap() error {
	switch r.Reason {
	case ReasonNotFound:
		return errs.ErrNotFound
	case ReasonUsageLimit, ReasonUserLimit:
		return errs.ErrConflict
	default:
		return errs.ErrValidation
	}
}
