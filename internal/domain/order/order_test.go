package order

import (
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New("R1", "Bistro", "T1", "", 7, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func assertTotalInvariant(t *testing.T, o *Order) {
	t.Helper()
	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	if !o.TotalCost.Equal(sum) {
		t.Fatalf("total %s != sum of lines %s", o.TotalCost, sum)
	}
}

func TestNewFormatsRestaurantScopedID(t *testing.T) {
	o := newOrder(t)
	if o.ID != "R1_7" {
		t.Fatalf("ID = %q, want R1_7", o.ID)
	}
	if o.Status != StatusPending || o.PaymentStatus != PaymentPending {
		t.Fatalf("unexpected initial state %s/%s", o.Status, o.PaymentStatus)
	}
}

func TestAddLinesMergesAndKeepsInvariant(t *testing.T) {
	o := newOrder(t)
	if err := o.AddLines([]NewLine{{MenuItemID: "I1", Quantity: 2, UnitPrice: price(100)}}, now); err != nil {
		t.Fatalf("AddLines: %v", err)
	}
	assertTotalInvariant(t, o)

	if err := o.AddLines([]NewLine{
		{MenuItemID: "I1", Quantity: 1, UnitPrice: price(100)},
		{MenuItemID: "I2", Quantity: 3, UnitPrice: price(20)},
	}, now); err != nil {
		t.Fatalf("AddLines merge: %v", err)
	}
	if len(o.Lines) != 2 || o.Lines[0].Quantity != 3 {
		t.Fatalf("expected I1 merged to qty 3 and I2 appended, got %+v", o.Lines)
	}
	if !o.TotalCost.Equal(price(360)) {
		t.Fatalf("total = %s, want 360", o.TotalCost)
	}
	assertTotalInvariant(t, o)
}

func TestAddLinesKeepsEarlierSalePrice(t *testing.T) {
	o := newOrder(t)
	_ = o.AddLines([]NewLine{{MenuItemID: "I1", Quantity: 1, UnitPrice: price(100)}}, now)
	if err := o.AddLines([]NewLine{{MenuItemID: "I1", Quantity: 1, UnitPrice: price(120)}}, now); err != nil {
		t.Fatalf("AddLines: %v", err)
	}
	if len(o.Lines) != 2 {
		t.Fatalf("a price change must append a new line, got %+v", o.Lines)
	}
	if !o.Lines[0].UnitPrice.Equal(price(100)) {
		t.Fatalf("historical price rewritten: %s", o.Lines[0].UnitPrice)
	}
	if !o.TotalCost.Equal(price(220)) {
		t.Fatalf("total = %s, want 220", o.TotalCost)
	}
}

func TestValidateLines(t *testing.T) {
	cases := []struct {
		name  string
		lines []NewLine
	}{
		{"empty", nil},
		{"zero qty", []NewLine{{MenuItemID: "I1", Quantity: 0}}},
		{"negative qty", []NewLine{{MenuItemID: "I1", Quantity: -1}}},
		{"missing id", []NewLine{{Quantity: 1}}},
		{"duplicate", []NewLine{{MenuItemID: "I1", Quantity: 1}, {MenuItemID: "I1", Quantity: 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateLines(tc.lines); !errors.Is(err, errs.ErrValidation) {
				t.Fatalf("ValidateLines() = %v, want validation error", err)
			}
		})
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusPaymentDone, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusPaymentDone, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPaymentDone, StatusRefunded, true},
		{StatusConfirmed, StatusPending, false},
		{StatusPaymentDone, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusRefunded, StatusRefunded, false},
		{StatusPending, StatusRefunded, false},
	}
	for _, tc := range cases {
		o := newOrder(t)
		o.Status = tc.from
		_, err := o.Transition(tc.to, "staff-1", "", now)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s rejected: %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, errs.ErrConflict) {
				t.Fatalf("%s -> %s: err = %v, want invalid transition conflict", tc.from, tc.to, err)
			}
			if o.Status != tc.from {
				t.Fatalf("%s -> %s: status changed on rejection", tc.from, tc.to)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !StatusCancelled.Terminal() || !StatusRefunded.Terminal() {
		t.Fatal("cancelled and refunded must be terminal")
	}
	if StatusPaymentDone.Terminal() {
		t.Fatal("payment_done can still be refunded")
	}
	if _, err := ParseStatus("shipped"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("ParseStatus accepted unknown status: %v", err)
	}
}

func TestMarkPaidThenRefund(t *testing.T) {
	o := newOrder(t)
	if _, err := o.MarkRefunded("staff-1", "", now); !errors.Is(err, ErrNotPaid) {
		t.Fatalf("refund before payment: %v", err)
	}
	if _, err := o.MarkPaid("staff-1", "", now); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if o.IsOpen() {
		t.Fatal("paid order must not accept lines")
	}
	change, err := o.MarkRefunded("staff-1", "customer complaint", now)
	if err != nil {
		t.Fatalf("MarkRefunded: %v", err)
	}
	if change.From != StatusPaymentDone || change.To != StatusRefunded || o.PaymentStatus != PaymentRefunded {
		t.Fatalf("unexpected refund result %+v / %s", change, o.PaymentStatus)
	}
}

func TestApplyCouponRecomputesDiscount(t *testing.T) {
	o := newOrder(t)
	_ = o.AddLines([]NewLine{{MenuItemID: "I1", Quantity: 2, UnitPrice: price(100)}}, now)
	applied := AppliedCoupon{CouponID: "c1", Code: "TEN", Discount: coupon.Percentage{Percent: price(10)}}
	if err := o.ApplyCoupon(applied, now); err != nil {
		t.Fatalf("ApplyCoupon: %v", err)
	}
	if !o.Discount.Equal(price(20)) || !o.Payable().Equal(price(180)) {
		t.Fatalf("discount %s payable %s", o.Discount, o.Payable())
	}
	_ = o.AddLines([]NewLine{{MenuItemID: "I2", Quantity: 1, UnitPrice: price(100)}}, now)
	if !o.Discount.Equal(price(30)) {
		t.Fatalf("discount not recomputed after merge: %s", o.Discount)
	}
	if err := o.ApplyCoupon(applied, now); err != nil {
		t.Fatalf("re-applying the same coupon must be a no-op: %v", err)
	}
	other := AppliedCoupon{CouponID: "c2", Discount: coupon.FixedAmount{Value: price(5)}}
	if err := o.ApplyCoupon(other, now); !errors.Is(err, ErrCouponAlreadySet) {
		t.Fatalf("second coupon: %v", err)
	}
	assertTotalInvariant(t, o)
}

func TestCloneIsDeep(t *testing.T) {
	o := newOrder(t)
	_ = o.AddLines([]NewLine{{MenuItemID: "I1", Quantity: 1, UnitPrice: price(10)}}, now)
	c := o.Clone()
	c.Lines[0].Quantity = 99
	if o.Lines[0].Quantity != 1 {
		t.Fatal("clone shares line storage")
	}
}
