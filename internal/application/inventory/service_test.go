package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/id"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(memory.NewStore(), id.NewUUID(), nil, nil)
}

func track(t *testing.T, s *Service, item, qty, threshold string) {
	t.Helper()
	_, err := s.Track(context.Background(), TrackInput{
		RestaurantID:      "R1",
		MenuItemID:        item,
		Unit:              "portion",
		LowStockThreshold: d(threshold),
		InitialQuantity:   d(qty),
		Actor:             "manager-1",
	})
	if err != nil {
		t.Fatalf("Track(%s): %v", item, err)
	}
}

func allEntries(t *testing.T, s *Service, item string) []dominv.Entry {
	t.Helper()
	var out []dominv.Entry
	offset := 0
	for {
		page, err := s.History(context.Background(), HistoryInput{RestaurantID: "R1", MenuItemID: item, Limit: MaxHistoryLimit, Offset: offset})
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		out = append(out, page.Entries...)
		if page.NextOffset == 0 {
			return out
		}
		offset = page.NextOffset
	}
}

func assertLedgerMatchesRecord(t *testing.T, s *Service, item string) {
	t.Helper()
	rec, err := s.Get(context.Background(), "R1", item)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	sum := decimal.Zero
	for _, e := range allEntries(t, s, item) {
		sum = sum.Add(e.Delta)
	}
	if !rec.Quantity.Equal(sum) {
		t.Fatalf("record quantity %s != ledger sum %s", rec.Quantity, sum)
	}
}

func TestDeductAndAdjustKeepLedgerConsistent(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	track(t, s, "I1", "10", "2")

	if _, err := s.Deduct(ctx, DeductInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("3"), Actor: "staff-1"}); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	// negative quantities are treated as their magnitude
	if _, err := s.Deduct(ctx, DeductInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("-1.5"), Actor: "staff-1"}); err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	res, err := s.Adjust(ctx, AdjustInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("20"), Kind: dominv.KindCorrection, Actor: "manager-1"})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if !res.Entry.Delta.Equal(d("14.5")) {
		t.Fatalf("adjust delta = %s, want 14.5", res.Entry.Delta)
	}
	if _, err := s.Adjust(ctx, AdjustInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("18"), Kind: dominv.KindSpoilage, Actor: "manager-1", Reason: "dropped tray"}); err != nil {
		t.Fatalf("Adjust spoilage: %v", err)
	}

	rec, _ := s.Get(ctx, "R1", "I1")
	if !rec.Quantity.Equal(d("18")) {
		t.Fatalf("quantity = %s, want 18", rec.Quantity)
	}
	if rec.Version != 5 {
		t.Fatalf("version = %d, want 5", rec.Version)
	}
	assertLedgerMatchesRecord(t, s, "I1")
}

func TestDeductUntrackedIsNoop(t *testing.T) {
	s := newService(t)
	res, err := s.Deduct(context.Background(), DeductInput{RestaurantID: "R1", MenuItemID: "ghost", Quantity: d("1"), Actor: "staff-1"})
	if err != nil {
		t.Fatalf("Deduct untracked: %v", err)
	}
	if res.Tracked || res.Entry != nil {
		t.Fatalf("untracked deduction wrote something: %+v", res)
	}
	if _, err := s.Get(context.Background(), "R1", "ghost"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("record created for untracked item: %v", err)
	}
}

func TestDeductBelowZeroIsFlagged(t *testing.T) {
	s := newService(t)
	track(t, s, "I1", "1", "0")
	res, err := s.Deduct(context.Background(), DeductInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("3"), Actor: "staff-1"})
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if !res.NegativeStock || !res.Entry.Negative || !res.Record.Quantity.Equal(d("-2")) {
		t.Fatalf("unexpected result %+v", res)
	}
	assertLedgerMatchesRecord(t, s, "I1")
}

func TestConcurrentDeductsSerialize(t *testing.T) {
	s := newService(t)
	track(t, s, "I1", "100", "0")

	const n = 50
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Deduct(context.Background(), DeductInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("1"), Actor: "staff-1"})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("Deduct: %v", err)
		}
	}

	rec, _ := s.Get(context.Background(), "R1", "I1")
	if !rec.Quantity.Equal(d("50")) {
		t.Fatalf("quantity = %s, want 50 (lost update)", rec.Quantity)
	}
	if got := len(allEntries(t, s, "I1")); got != n+1 {
		t.Fatalf("entries = %d, want %d", got, n+1)
	}
	assertLedgerMatchesRecord(t, s, "I1")
}

func TestTrackTwiceConflicts(t *testing.T) {
	s := newService(t)
	track(t, s, "I1", "5", "0")
	_, err := s.Track(context.Background(), TrackInput{RestaurantID: "R1", MenuItemID: "I1", Actor: "manager-1"})
	if !errors.Is(err, dominv.ErrAlreadyTracked) || !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("second Track = %v, want conflict", err)
	}
}

func TestAdjustValidation(t *testing.T) {
	s := newService(t)
	track(t, s, "I1", "5", "0")
	ctx := context.Background()

	cases := []struct {
		name string
		in   AdjustInput
		kind error
	}{
		{"negative target", AdjustInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("-1"), Kind: dominv.KindCorrection, Actor: "m"}, errs.ErrValidation},
		{"sale kind", AdjustInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("1"), Kind: dominv.KindSaleDeduction, Actor: "m"}, errs.ErrValidation},
		{"no actor", AdjustInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("1"), Kind: dominv.KindCorrection}, errs.ErrValidation},
		{"missing record", AdjustInput{RestaurantID: "R1", MenuItemID: "nope", Quantity: d("1"), Kind: dominv.KindCorrection, Actor: "m"}, errs.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Adjust(ctx, tc.in); !errors.Is(err, tc.kind) {
				t.Fatalf("Adjust = %v, want %v", err, tc.kind)
			}
		})
	}
	rec, _ := s.Get(ctx, "R1", "I1")
	if !rec.Quantity.Equal(d("5")) || rec.Version != 1 {
		t.Fatalf("rejected adjustments changed the record: %+v", rec)
	}
}

func TestHistoryPaging(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	track(t, s, "I1", "500", "0")
	for i := 0; i < 59; i++ {
		if _, err := s.Deduct(ctx, DeductInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("1"), Actor: "staff-1"}); err != nil {
			t.Fatalf("Deduct: %v", err)
		}
	}

	first, err := s.History(ctx, HistoryInput{RestaurantID: "R1", MenuItemID: "I1"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(first.Entries) != DefaultHistoryLimit || first.NextOffset != DefaultHistoryLimit {
		t.Fatalf("first page: %d entries, next %d", len(first.Entries), first.NextOffset)
	}
	if first.Entries[0].Seq != 60 {
		t.Fatalf("newest entry seq = %d, want 60", first.Entries[0].Seq)
	}

	second, _ := s.History(ctx, HistoryInput{RestaurantID: "R1", MenuItemID: "I1", Offset: first.NextOffset})
	if len(second.Entries) != 10 || second.NextOffset != 0 {
		t.Fatalf("second page: %d entries, next %d", len(second.Entries), second.NextOffset)
	}
	if second.Entries[9].Kind != dominv.KindInitialStock {
		t.Fatalf("oldest entry kind = %s", second.Entries[9].Kind)
	}

	if _, err := s.History(ctx, HistoryInput{RestaurantID: "R1", MenuItemID: "I1", Offset: -1}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("negative offset: %v", err)
	}
	if _, err := s.History(ctx, HistoryInput{RestaurantID: "R1", MenuItemID: "nope"}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("history of untracked item: %v", err)
	}
}

func TestLowStock(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	track(t, s, "I1", "5", "2")
	track(t, s, "I2", "1", "3")
	track(t, s, "I3", "0", "0")

	res, err := s.Deduct(ctx, DeductInput{RestaurantID: "R1", MenuItemID: "I1", Quantity: d("3"), Actor: "staff-1"})
	if err != nil {
		t.Fatalf("Deduct: %v", err)
	}
	if !res.LowStock {
		t.Fatal("deduction to the threshold must report low stock")
	}

	low, err := s.LowStock(ctx)
	if err != nil {
		t.Fatalf("LowStock: %v", err)
	}
	if len(low) != 2 || low[0].MenuItemID != "I1" || low[1].MenuItemID != "I2" {
		t.Fatalf("low stock = %+v", low)
	}
}
