package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	appcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/application/coupon"
	appinventory "github.com/Zhima-Mochi/restaurant-pos/internal/application/inventory"
	apppayment "github.com/Zhima-Mochi/restaurant-pos/internal/application/payment"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/menu"
	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/id"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *capturePublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type failingLedger struct {
	next StockLedger
}

var errLedgerDown = errors.New("ledger down")

func (f failingLedger) DeductForOrder(ctx context.Context, tx application.Tx, o *domain.Order, actor string) (*appinventory.Settlement, error) {
	if _, err := f.next.DeductForOrder(ctx, tx, o, actor); err != nil {
		return nil, err
	}
	return nil, errs.Persistence("inventory: deduct", errLedgerDown)
}

type fixture struct {
	orders    *Service
	inventory *appinventory.Service
	coupons   *appcoupon.Service
	payments  *apppayment.Service
	published *capturePublisher
}

func newFixture(t *testing.T, wrap func(StockLedger) StockLedger) *fixture {
	t.Helper()
	store := memory.NewStore()
	ids := id.NewUUID()
	pub := &capturePublisher{}

	catalog := memory.NewCatalog()
	catalog.AddRestaurant(menu.Restaurant{ID: "R1", Name: "Bistro"})
	catalog.AddRestaurant(menu.Restaurant{ID: "R2", Name: "Diner"})
	catalog.AddItem(menu.Item{ID: "I1", RestaurantID: "R1", Name: "Burger", CategoryID: "mains", Price: decimal.NewFromInt(100), Available: true})
	catalog.AddItem(menu.Item{ID: "I2", RestaurantID: "R1", Name: "Cola", CategoryID: "drinks", Price: decimal.NewFromInt(30), Available: true})
	catalog.AddItem(menu.Item{ID: "I3", RestaurantID: "R1", Name: "Soup", CategoryID: "mains", Price: decimal.NewFromInt(50)})
	catalog.AddItem(menu.Item{ID: "X1", RestaurantID: "R2", Name: "Pie", CategoryID: "desserts", Price: decimal.NewFromInt(40), Available: true})

	inv := appinventory.NewService(store, ids, pub, nil)
	cpn := appcoupon.NewService(store, ids, pub, nil)
	pay := apppayment.NewService(store, ids, inv, pub, nil)

	var stock StockLedger = inv
	if wrap != nil {
		stock = wrap(inv)
	}
	svc := NewService(Deps{
		UnitOfWork: store,
		Catalog:    catalog,
		Stock:      stock,
		Coupons:    cpn,
		Refunder:   pay,
		Publisher:  pub,
	}, nil)

	if _, err := inv.Track(context.Background(), appinventory.TrackInput{
		RestaurantID:    "R1",
		MenuItemID:      "I1",
		InitialQuantity: decimal.NewFromInt(50),
		Actor:           "manager-1",
	}); err != nil {
		t.Fatalf("Track: %v", err)
	}
	return &fixture{orders: svc, inventory: inv, coupons: cpn, payments: pay, published: pub}
}

func (f *fixture) place(t *testing.T, in PlaceInput) *PlaceResult {
	t.Helper()
	if in.RestaurantID == "" {
		in.RestaurantID = "R1"
	}
	if in.Actor == "" {
		in.Actor = "waiter-1"
	}
	res, err := f.orders.OpenOrAppend(context.Background(), in)
	if err != nil {
		t.Fatalf("OpenOrAppend: %v", err)
	}
	return res
}

func (f *fixture) stock(t *testing.T, item string) decimal.Decimal {
	t.Helper()
	rec, err := f.inventory.Get(context.Background(), "R1", item)
	if err != nil {
		t.Fatalf("inventory Get: %v", err)
	}
	return rec.Quantity
}

func TestPlaceAndMergeTableOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 2}}})
	if !first.Created || first.Order.ID != "R1_1" || !first.Order.TotalCost.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("first placement = %+v", first.Order)
	}
	if first.Order.RestaurantName != "Bistro" || first.Order.Status != domain.StatusPending {
		t.Fatalf("order header = %+v", first.Order)
	}

	second := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}})
	if second.Created || second.Order.ID != "R1_1" {
		t.Fatalf("second placement must merge: %+v", second)
	}
	o := second.Order
	if len(o.Lines) != 1 || o.Lines[0].Quantity != 3 || o.Lines[0].ID != "R1_1-1" {
		t.Fatalf("lines = %+v", o.Lines)
	}
	if !o.TotalCost.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("total = %s", o.TotalCost)
	}
	if got := f.stock(t, "I1"); !got.Equal(decimal.NewFromInt(47)) {
		t.Fatalf("stock = %s, want 47", got)
	}

	page, err := f.inventory.History(ctx, appinventory.HistoryInput{RestaurantID: "R1", MenuItemID: "I1"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(page.Entries) != 3 || !page.Entries[0].Delta.Equal(decimal.NewFromInt(-1)) || !page.Entries[1].Delta.Equal(decimal.NewFromInt(-2)) {
		t.Fatalf("ledger = %+v", page.Entries)
	}
	if page.Entries[0].OrderID != "R1_1" {
		t.Fatalf("sale entry order id = %q", page.Entries[0].OrderID)
	}

	paid, err := f.payments.MarkPaid(ctx, apppayment.MarkPaidInput{OrderID: "R1_1", Method: dompay.MethodCard, Actor: "cashier-1"})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !paid.Payment.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("payment amount = %s", paid.Payment.Amount)
	}
	if got := f.stock(t, "I1"); !got.Equal(decimal.NewFromInt(47)) {
		t.Fatalf("payment deducted again: stock = %s", got)
	}

	next := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I2", Quantity: 1}}})
	if !next.Created || next.Order.ID != "R1_2" {
		t.Fatalf("paid order must not take new lines: %+v", next.Order)
	}
}

func TestPlaceAndMergeDrawsDownStock(t *testing.T) {
	store := memory.NewStore()
	catalog := memory.NewCatalog()
	catalog.AddRestaurant(menu.Restaurant{ID: "R1", Name: "Bistro"})
	catalog.AddItem(menu.Item{ID: "I1", RestaurantID: "R1", Name: "Burger", Price: decimal.NewFromInt(100), Available: true})
	inv := appinventory.NewService(store, id.NewUUID(), nil, nil)
	svc := NewService(Deps{UnitOfWork: store, Catalog: catalog, Stock: inv}, nil)
	ctx := context.Background()

	if _, err := inv.Track(ctx, appinventory.TrackInput{RestaurantID: "R1", MenuItemID: "I1", InitialQuantity: decimal.NewFromInt(5), Actor: "manager-1"}); err != nil {
		t.Fatalf("Track: %v", err)
	}
	stock := func() decimal.Decimal {
		rec, err := inv.Get(ctx, "R1", "I1")
		if err != nil {
			t.Fatalf("inventory Get: %v", err)
		}
		return rec.Quantity
	}
	place := func(qty int) *PlaceResult {
		res, err := svc.OpenOrAppend(ctx, PlaceInput{RestaurantID: "R1", TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: qty}}, Actor: "waiter-1"})
		if err != nil {
			t.Fatalf("OpenOrAppend: %v", err)
		}
		return res
	}

	first := place(2)
	if !first.Order.TotalCost.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("total = %s, want 200", first.Order.TotalCost)
	}
	if got := stock(); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("stock = %s, want 3", got)
	}

	second := place(1)
	if second.Created || second.Order.ID != first.Order.ID {
		t.Fatalf("second placement must merge: %+v", second.Order)
	}
	if !second.Order.TotalCost.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("total = %s, want 300", second.Order.TotalCost)
	}
	if got := stock(); !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("stock = %s, want 2", got)
	}

	page, err := inv.History(ctx, appinventory.HistoryInput{RestaurantID: "R1", MenuItemID: "I1"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// newest first, after the initial stock entry
	if len(page.Entries) != 3 || !page.Entries[1].Delta.Equal(decimal.NewFromInt(-2)) || !page.Entries[0].Delta.Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("ledger = %+v", page.Entries)
	}
	if _, err := svc.Get(ctx, "R1_2"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second order row exists: %v", err)
	}
}

func TestPlaceAppendsLineAtNewPrice(t *testing.T) {
	store := memory.NewStore()
	catalog := memory.NewCatalog()
	catalog.AddRestaurant(menu.Restaurant{ID: "R1", Name: "Bistro"})
	catalog.AddItem(menu.Item{ID: "I1", RestaurantID: "R1", Name: "Burger", Price: decimal.NewFromInt(100), Available: true})
	inv := appinventory.NewService(store, id.NewUUID(), nil, nil)
	svc := NewService(Deps{UnitOfWork: store, Catalog: catalog, Stock: inv}, nil)
	ctx := context.Background()

	in := PlaceInput{RestaurantID: "R1", TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}, Actor: "waiter-1"}
	if _, err := svc.OpenOrAppend(ctx, in); err != nil {
		t.Fatalf("first: %v", err)
	}
	catalog.AddItem(menu.Item{ID: "I1", RestaurantID: "R1", Name: "Burger", Price: decimal.NewFromInt(120), Available: true})
	res, err := svc.OpenOrAppend(ctx, in)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(res.Order.Lines) != 2 || !res.Order.Lines[0].UnitPrice.Equal(decimal.NewFromInt(100)) || res.Order.Lines[1].ID != "R1_1-2" {
		t.Fatalf("lines = %+v", res.Order.Lines)
	}
	if !res.Order.TotalCost.Equal(decimal.NewFromInt(220)) {
		t.Fatalf("total = %s", res.Order.TotalCost)
	}
}

func TestConcurrentPlacementsShareOneTableOrder(t *testing.T) {
	f := newFixture(t, nil)
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.OpenOrAppend(context.Background(), PlaceInput{
				RestaurantID: "R1",
				TableID:      "T1",
				Lines:        []PlaceLine{{MenuItemID: "I1", Quantity: 1}},
				Actor:        "waiter-1",
			})
			if err != nil {
				t.Errorf("OpenOrAppend: %v", err)
			}
		}()
	}
	wg.Wait()

	o, err := f.orders.Get(context.Background(), "R1_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if o.Lines[0].Quantity != n {
		t.Fatalf("quantity = %d, want %d", o.Lines[0].Quantity, n)
	}
	if _, err := f.orders.Get(context.Background(), "R1_2"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second order exists: %v", err)
	}
	if got := f.stock(t, "I1"); !got.Equal(decimal.NewFromInt(50 - n)) {
		t.Fatalf("stock = %s", got)
	}
}

func TestPlacementRollsBackAsAUnit(t *testing.T) {
	f := newFixture(t, func(next StockLedger) StockLedger { return failingLedger{next: next} })
	ctx := context.Background()
	if _, err := f.coupons.Issue(ctx, appcoupon.IssueInput{
		Code:       "ONCE",
		Discount:   domcoupon.FixedAmount{Value: decimal.NewFromInt(5)},
		UsageLimit: 1,
		Active:     true,
	}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	before := len(f.published.names())

	_, err := f.orders.OpenOrAppend(ctx, PlaceInput{
		RestaurantID: "R1",
		TableID:      "T1",
		CustomerID:   "alice",
		Lines:        []PlaceLine{{MenuItemID: "I1", Quantity: 2}},
		CouponCode:   "ONCE",
		Actor:        "waiter-1",
	})
	if !errors.Is(err, errLedgerDown) || !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("err = %v", err)
	}

	if _, err := f.orders.Get(ctx, "R1_1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("order persisted: %v", err)
	}
	if got := f.stock(t, "I1"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("stock = %s, want 50", got)
	}
	if _, err := f.coupons.ValidateAndRedeem(ctx, appcoupon.RedeemInput{Code: "ONCE", UserID: "bob", RestaurantID: "R1"}); err != nil {
		t.Fatalf("redemption leaked from rolled back order: %v", err)
	}
	// only bob's redemption publishes
	if added := f.published.names()[before:]; len(added) != 1 || added[0] != "coupon.redeemed" {
		t.Fatalf("events published for rolled back order: %v", added)
	}
}

func TestPlaceValidation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name string
		in   PlaceInput
		kind error
	}{
		{"no lines", PlaceInput{RestaurantID: "R1", Actor: "w"}, errs.ErrValidation},
		{"no actor", PlaceInput{RestaurantID: "R1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}}, errs.ErrValidation},
		{"duplicate item", PlaceInput{RestaurantID: "R1", Actor: "w", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}, {MenuItemID: "I1", Quantity: 2}}}, errs.ErrValidation},
		{"zero quantity", PlaceInput{RestaurantID: "R1", Actor: "w", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 0}}}, errs.ErrValidation},
		{"unavailable", PlaceInput{RestaurantID: "R1", Actor: "w", Lines: []PlaceLine{{MenuItemID: "I3", Quantity: 1}}}, errs.ErrValidation},
		{"unknown item", PlaceInput{RestaurantID: "R1", Actor: "w", Lines: []PlaceLine{{MenuItemID: "nope", Quantity: 1}}}, errs.ErrValidation},
		{"other restaurant item", PlaceInput{RestaurantID: "R1", Actor: "w", Lines: []PlaceLine{{MenuItemID: "X1", Quantity: 1}}}, errs.ErrValidation},
		{"coupon without customer", PlaceInput{RestaurantID: "R1", Actor: "w", CouponCode: "TEN", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}}, errs.ErrValidation},
		{"unknown restaurant", PlaceInput{RestaurantID: "R9", Actor: "w", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}}, errs.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orders.OpenOrAppend(context.Background(), tc.in)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("err = %v, want %v", err, tc.kind)
			}
		})
	}
	if got := f.stock(t, "I1"); !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("rejected placements touched stock: %s", got)
	}
}

func TestPlaceWithCoupon(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.coupons.Issue(ctx, appcoupon.IssueInput{
		Code:     "TEN",
		Discount: domcoupon.Percentage{Percent: decimal.NewFromInt(10)},
		Active:   true,
	}); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	res := f.place(t, PlaceInput{TableID: "T1", CustomerID: "alice", CouponCode: "ten", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 2}}})
	if res.Coupon == nil || res.Order.Coupon == nil || res.Order.Coupon.Code != "TEN" {
		t.Fatalf("coupon not applied: %+v", res)
	}
	if !res.Order.Discount.Equal(decimal.NewFromInt(20)) || !res.Order.Payable().Equal(decimal.NewFromInt(180)) {
		t.Fatalf("discount = %s payable = %s", res.Order.Discount, res.Order.Payable())
	}

	merged := f.place(t, PlaceInput{TableID: "T1", CustomerID: "alice", CouponCode: "TEN", Lines: []PlaceLine{{MenuItemID: "I2", Quantity: 1}}})
	if !merged.Coupon.Replayed || merged.Coupon.RedemptionID != res.Coupon.RedemptionID {
		t.Fatalf("merge must replay the redemption: %+v", merged.Coupon)
	}
	if !merged.Order.Discount.Equal(decimal.NewFromInt(23)) {
		t.Fatalf("discount after merge = %s", merged.Order.Discount)
	}

	paid, err := f.payments.MarkPaid(ctx, apppayment.MarkPaidInput{OrderID: merged.Order.ID, Method: dompay.MethodCash, Actor: "cashier-1"})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !paid.Payment.Amount.Equal(decimal.NewFromInt(207)) {
		t.Fatalf("payment amount = %s", paid.Payment.Amount)
	}
}

func TestDailyCouponCoversOneOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.coupons.Issue(ctx, appcoupon.IssueInput{
		Code:         "DAILY",
		Discount:     domcoupon.FixedAmount{Value: decimal.NewFromInt(50)},
		UsageLimit:   1,
		PerUserLimit: 1,
		Active:       true,
		Policy:       domcoupon.PolicyPerUserDay,
	}); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	first := f.place(t, PlaceInput{TableID: "T1", CustomerID: "alice", CouponCode: "DAILY", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 2}}})
	if !first.Order.Discount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("discount = %s", first.Order.Discount)
	}
	merged := f.place(t, PlaceInput{TableID: "T1", CustomerID: "alice", CouponCode: "DAILY", Lines: []PlaceLine{{MenuItemID: "I2", Quantity: 1}}})
	if !merged.Coupon.Replayed || merged.Coupon.RedemptionID != first.Coupon.RedemptionID {
		t.Fatalf("merge must replay the redemption: %+v", merged.Coupon)
	}

	_, err := f.orders.OpenOrAppend(ctx, PlaceInput{
		RestaurantID: "R1",
		TableID:      "T2",
		CustomerID:   "alice",
		CouponCode:   "DAILY",
		Lines:        []PlaceLine{{MenuItemID: "I1", Quantity: 1}},
		Actor:        "waiter-1",
	})
	var rej *domcoupon.Rejection
	if !errors.As(err, &rej) || rej.Reason != domcoupon.ReasonUsageLimit {
		t.Fatalf("second order err = %v", err)
	}
	if _, err := f.orders.Get(ctx, "R1_2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rejected order persisted: %v", err)
	}
}

func TestTransitionStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I2", Quantity: 1}}}).Order

	if _, err := f.orders.TransitionStatus(ctx, TransitionInput{OrderID: o.ID, Status: domain.StatusPaymentDone, Actor: "w"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("payment_done via transition: %v", err)
	}
	if _, err := f.orders.TransitionStatus(ctx, TransitionInput{OrderID: o.ID, Status: "served", Actor: "w"}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("unknown status: %v", err)
	}
	if _, err := f.orders.TransitionStatus(ctx, TransitionInput{OrderID: o.ID, Status: domain.StatusConfirmed}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("missing actor: %v", err)
	}

	got, err := f.orders.TransitionStatus(ctx, TransitionInput{OrderID: o.ID, Status: domain.StatusConfirmed, Actor: "chef-1", Reason: "cooking"})
	if err != nil || got.Status != domain.StatusConfirmed {
		t.Fatalf("confirm = %+v, %v", got, err)
	}
	if _, err := f.orders.TransitionStatus(ctx, TransitionInput{OrderID: o.ID, Status: domain.StatusPending, Actor: "w"}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("backwards transition: %v", err)
	}

	history, err := f.orders.History(ctx, o.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[1].From != domain.StatusPending || history[1].To != domain.StatusConfirmed || history[1].Actor != "chef-1" {
		t.Fatalf("history = %+v", history)
	}
	if _, err := f.orders.History(ctx, "R1_99"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("history of unknown order: %v", err)
	}
}

func TestCancelAfterPaymentIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}}).Order
	if _, err := f.payments.MarkPaid(ctx, apppayment.MarkPaidInput{OrderID: o.ID, Method: dompay.MethodCash, Actor: "cashier-1"}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	if _, err := f.orders.Cancel(ctx, o.ID, "w", "changed mind"); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("cancel after payment: %v", err)
	}
	got, err := f.orders.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusPaymentDone || got.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("order changed: %+v", got)
	}
}

func TestCancelKeepsStock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 4}}}).Order

	got, err := f.orders.Cancel(ctx, o.ID, "w", "walked out")
	if err != nil || got.Status != domain.StatusCancelled {
		t.Fatalf("Cancel = %+v, %v", got, err)
	}
	if s := f.stock(t, "I1"); !s.Equal(decimal.NewFromInt(46)) {
		t.Fatalf("stock restored on cancel: %s", s)
	}
	next := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}})
	if !next.Created {
		t.Fatal("cancelled order must free the table")
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}}).Order

	if _, err := f.orders.Refund(ctx, o.ID, "manager-1", "cold"); !errors.Is(err, domain.ErrNotPaid) {
		t.Fatalf("refund before payment: %v", err)
	}
	if _, err := f.payments.MarkPaid(ctx, apppayment.MarkPaidInput{OrderID: o.ID, Method: dompay.MethodCard, Actor: "cashier-1"}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	got, err := f.orders.Refund(ctx, o.ID, "manager-1", "cold")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got.Status != domain.StatusRefunded || got.PaymentStatus != domain.PaymentRefunded {
		t.Fatalf("refunded order = %+v", got)
	}
	p, err := f.payments.Get(ctx, o.ID)
	if err != nil || p.Status != dompay.StatusRefunded || p.RefundedAt == nil {
		t.Fatalf("payment = %+v, %v", p, err)
	}
	if _, err := f.orders.Refund(ctx, o.ID, "manager-1", "again"); !errors.Is(err, domain.ErrNotPaid) {
		t.Fatalf("second refund: %v", err)
	}
	if s := f.stock(t, "I1"); !s.Equal(decimal.NewFromInt(49)) {
		t.Fatalf("stock restored on refund: %s", s)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t, nil)
	before := len(f.published.names())
	f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I1", Quantity: 1}}})
	f.place(t, PlaceInput{TableID: "T1", Lines: []PlaceLine{{MenuItemID: "I2", Quantity: 1}}})

	names := f.published.names()[before:]
	want := []string{"order.placed", "inventory.changed", "order.items_added"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}
}
