package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentRecordedEvent struct {
	PaymentID      string
	OrderID        string
	Amount         decimal.Decimal
	Method         Method
	TransactionRef string
	OccurredAt     time.Time
}

func (PaymentRecordedEvent) EventName() string { return "payment.recorded" }

func NewPaymentRecordedEvent(p *Payment) PaymentRecordedEvent {
	return PaymentRecordedEvent{
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		Amount:         p.Amount,
		Method:         p.Method,
		TransactionRef: p.TransactionRef,
		OccurredAt:     time.Now().UTC(),
	}
}

type PaymentRefundedEvent struct {
	PaymentID  string
	OrderID    string
	Amount     decimal.Decimal
	Reason     string
	OccurredAt time.Time
}

func (PaymentRefundedEvent) EventName() string { return "payment.refunded" }

func NewPaymentRefundedEvent(p *Payment, reason string) PaymentRefundedEvent {
	return PaymentRefundedEvent{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Amount:     p.Amount,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
