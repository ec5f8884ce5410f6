package payment

import (
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errs.New(errs.ErrNotFound, "payment: not found")
	ErrAlreadyExists = errs.New(errs.ErrConflict, "payment: order already has a payment")
	ErrNotRefundable = errs.New(errs.ErrConflict, "payment: only paid payments can be refunded")
)

type Method string

const (
	MethodCash   Method = "cash"
	MethodCard   Method = "card"
	MethodUPI    Method = "upi"
	MethodWallet Method = "wallet"
	MethodOther  Method = "other"
)

func ParseMethod(v string) (Method, error) {
	switch m := Method(v); m {
	case MethodCash, MethodCard, MethodUPI, MethodWallet, MethodOther:
		return m, nil
	case "":
		return "", errs.Validation("payment: method is required")
	default:
		return "", errs.Validation("payment: unknown method %q", v)
	}
}

type Status string

const (
	// StatusPending is a payment row that exists but has not settled yet.
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusRefunded Status = "refunded"
)

// Payment is the single settlement record of an order.
type Payment struct {
	ID             string
	OrderID        string
	Amount         decimal.Decimal
	Method         Method
	Status         Status
	TransactionRef string
	PaidAt         time.Time
	RefundedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func New(id, orderID string, amount decimal.Decimal, method Method, ref string, now time.Time) (*Payment, error) {
	if orderID == "" {
		return nil, errs.Validation("payment: order id is required")
	}
	if amount.IsNegative() {
		return nil, errs.Validation("payment: amount must be zero or greater")
	}
	now = now.UTC()
	return &Payment{
		ID:             id,
		OrderID:        orderID,
		Amount:         amount,
		Method:         method,
		Status:         StatusPaid,
		TransactionRef: ref,
		PaidAt:         now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UpdateReference records a new external transaction reference. It reports
// whether anything changed.
func (p *Payment) UpdateReference(ref string, now time.Time) bool {
	if ref == "" || ref == p.TransactionRef {
		return false
	}
	p.TransactionRef = ref
	p.UpdatedAt = now.UTC()
	return true
}

// Settle marks a pending payment as paid for amount.
func (p *Payment) Settle(amount decimal.Decimal, method Method, ref string, now time.Time) error {
	switch p.Status {
	case StatusPaid:
		return ErrAlreadyExists
	case StatusRefunded:
		return ErrNotRefundable
	}
	if amount.IsNegative() {
		return errs.Validation("payment: amount must be zero or greater")
	}
	now = now.UTC()
	p.Amount, p.Method, p.Status = amount, method, StatusPaid
	p.UpdateReference(ref, now)
	p.PaidAt, p.UpdatedAt = now, now
	return nil
}

func (p *Payment) Refund(now time.Time) error {
	if p.Status != StatusPaid {
		return ErrNotRefundable
	}
	now = now.UTC()
	p.Status = StatusRefunded
	p.RefundedAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		clone.RefundedAt = &t
	}
	return &clone
}
