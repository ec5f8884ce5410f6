package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

func TestParseMethod(t *testing.T) {
	for _, v := range []string{"cash", "card", "upi", "wallet", "other"} {
		if _, err := ParseMethod(v); err != nil {
			t.Fatalf("ParseMethod(%q): %v", v, err)
		}
	}
	for _, v := range []string{"", "bitcoin"} {
		if _, err := ParseMethod(v); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("ParseMethod(%q) = %v, want validation error", v, err)
		}
	}
}

func TestRefundOnlyOnce(t *testing.T) {
	p, err := New("p1", "R1_1", decimal.NewFromInt(200), MethodCard, "tx-1", time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Refund(time.Now()); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if p.Status != StatusRefunded || p.RefundedAt == nil {
		t.Fatalf("unexpected payment after refund: %+v", p)
	}
	if err := p.Refund(time.Now()); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("second refund: %v", err)
	}
}

func TestUpdateReference(t *testing.T) {
	p, _ := New("p1", "R1_1", decimal.Zero, MethodCash, "", time.Now())
	if p.UpdateReference("", time.Now()) {
		t.Fatal("empty reference must not count as a change")
	}
	if !p.UpdateReference("tx-9", time.Now()) || p.TransactionRef != "tx-9" {
		t.Fatalf("reference not updated: %+v", p)
	}
	if p.UpdateReference("tx-9", time.Now()) {
		t.Fatal("same reference must not count as a change")
	}
}

func TestNewRejectsNegativeAmount(t *testing.T) {
	if _, err := New("p1", "R1_1", decimal.NewFromInt(-1), MethodCash, "", time.Now()); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("New negative amount: %v", err)
	}
}

func TestSettlePending(t *testing.T) {
	p := &Payment{ID: "p1", OrderID: "R1_1", Status: StatusPending}
	if err := p.Refund(time.Now()); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("refund pending: %v", err)
	}
	if err := p.Settle(decimal.NewFromInt(120), MethodUPI, "upi-3", time.Now()); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if p.Status != StatusPaid || !p.Amount.Equal(decimal.NewFromInt(120)) || p.TransactionRef != "upi-3" || p.PaidAt.IsZero() {
		t.Fatalf("settled payment = %+v", p)
	}
	if err := p.Settle(decimal.NewFromInt(120), MethodUPI, "", time.Now()); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second settle: %v", err)
	}
}
