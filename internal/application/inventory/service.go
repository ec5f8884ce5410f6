package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/shopspring/decimal"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService = "inventory-service"

	useCaseDeduct   = "inventory.deduct"
	useCaseTrack    = "inventory.track"
	useCaseAdjust   = "inventory.adjust"
	useCaseHistory  = "inventory.history"
	useCaseGet      = "inventory.get"
	useCaseLowStock = "inventory.low_stock"

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Service is the inventory ledger. Every quantity change goes through one
// locked read of the record, one ledger entry and one record write.
type Service struct {
	uow       application.UnitOfWork
	ids       application.IDGenerator
	publisher domoutbox.Publisher
	obs       *application.Instrumentation
	now       func() time.Time
}

func NewService(
	uow application.UnitOfWork,
	ids application.IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	return &Service{
		uow:       uow,
		ids:       ids,
		publisher: publisher,
		obs:       application.NewInstrumentation(inventoryService, tel),
		now:       time.Now,
	}
}

// ChangeResult describes one applied change. Tracked is false when the item
// has no inventory record; nothing is written in that case.
type ChangeResult struct {
	Tracked       bool
	Record        *dominv.Record
	Entry         *dominv.Entry
	NegativeStock bool
	LowStock      bool
}

// Settlement is what DeductForOrder changed. Events must be published by the
// caller once its unit of work has committed.
type Settlement struct {
	Results []ChangeResult
	Events  []domoutbox.Event
}

func (s *Settlement) add(res ChangeResult, events []domoutbox.Event) {
	s.Results = append(s.Results, res)
	s.Events = append(s.Events, events...)
}

// NegativeEntries returns the entries that left a record below zero.
func (s *Settlement) NegativeEntries() []dominv.Entry {
	var out []dominv.Entry
	for _, r := range s.Results {
		if r.NegativeStock && r.Entry != nil {
			out = append(out, *r.Entry)
		}
	}
	return out
}

type DeductInput struct {
	RestaurantID string
	MenuItemID   string
	Quantity     decimal.Decimal
	Reason       string
	Actor        string
}

// Deduct removes |Quantity| from a tracked item in its own unit of work.
func (s *Service) Deduct(ctx context.Context, in DeductInput) (_ *ChangeResult, err error) {
	ctx, run := s.obs.Start(ctx, useCaseDeduct, "Deduct",
		attribute.String("inventory.restaurant_id", in.RestaurantID),
		attribute.String("inventory.menu_item_id", in.MenuItemID),
	)
	defer func() { run.End(err) }()

	if in.RestaurantID == "" || in.MenuItemID == "" {
		return nil, errs.Validation("inventory: restaurant id and menu item id are required")
	}
	if in.Quantity.IsZero() {
		return nil, dominv.ErrInvalidQuantity
	}
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}

	var res ChangeResult
	var events []domoutbox.Event
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var derr error
		res, events, derr = s.DeductInTx(ctx, tx, in.RestaurantID, in.MenuItemID, in.Quantity, dominv.Change{
			Kind:   dominv.KindSaleDeduction,
			Actor:  in.Actor,
			Reason: in.Reason,
		})
		return derr
	})
	if err != nil {
		return nil, err
	}

	if !res.Tracked {
		run.SetStatus("NOT_TRACKED")
		return &res, nil
	}
	if res.NegativeStock {
		run.Logger().Warn("negative_stock",
			observability.F("restaurant_id", in.RestaurantID),
			observability.F("menu_item_id", in.MenuItemID),
			observability.F("quantity", res.Record.Quantity.String()),
		)
	}
	run.Field("resulting_quantity", res.Record.Quantity.String())
	run.Publish(s.publisher, events...)
	return &res, nil
}

// DeductInTx applies a sale-style deduction inside the caller's unit of work.
// Meta supplies actor, reason and order references; its delta is replaced by
// -|qty|.
func (s *Service) DeductInTx(
	ctx context.Context,
	tx application.Tx,
	restaurantID, menuItemID string,
	qty decimal.Decimal,
	meta dominv.Change,
) (ChangeResult, []domoutbox.Event, error) {
	meta.Delta = qty.Abs().Neg()
	if meta.Kind == "" {
		meta.Kind = dominv.KindSaleDeduction
	}

	rec, err := tx.Inventory().Get(ctx, restaurantID, menuItemID)
	if errors.Is(err, dominv.ErrNotFound) {
		return ChangeResult{Tracked: false}, nil, nil
	}
	if err != nil {
		return ChangeResult{}, nil, errs.Persistence("inventory: load record", err)
	}
	return s.apply(ctx, tx, rec, meta)
}

// DeductForOrder deducts the outstanding quantity of every line of o and marks
// it stocked, so calling it again for the same order deducts nothing. It is
// the only path that records sale deductions for orders.
func (s *Service) DeductForOrder(ctx context.Context, tx application.Tx, o *domorder.Order, actor string) (*Settlement, error) {
	out := &Settlement{}
	for i := range o.Lines {
		l := &o.Lines[i]
		n := l.Outstanding()
		if n <= 0 {
			continue
		}
		res, events, err := s.DeductInTx(ctx, tx, o.RestaurantID, l.MenuItemID, decimal.NewFromInt(int64(n)), dominv.Change{
			Kind:    dominv.KindSaleDeduction,
			Actor:   actor,
			Reason:  "order " + o.ID,
			OrderID: o.ID,
			LineID:  l.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("inventory: deduct line %s: %w", l.ID, err)
		}
		l.StockedQuantity = l.Quantity
		if res.Tracked {
			out.add(res, events)
		}
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, tx application.Tx, rec *dominv.Record, c dominv.Change) (ChangeResult, []domoutbox.Event, error) {
	entry := rec.Apply(s.ids.NewID(), c, s.now())
	if err := tx.Inventory().Update(ctx, rec); err != nil {
		return ChangeResult{}, nil, errs.Persistence("inventory: save record", err)
	}
	if err := tx.Inventory().AppendEntry(ctx, entry); err != nil {
		return ChangeResult{}, nil, errs.Persistence("inventory: append ledger entry", err)
	}

	res := ChangeResult{
		Tracked:       true,
		Record:        rec.Clone(),
		Entry:         &entry,
		NegativeStock: entry.Negative,
		LowStock:      rec.IsLow(),
	}
	events := []domoutbox.Event{dominv.NewStockChangedEvent(entry)}
	if res.NegativeStock {
		events = append(events, dominv.NewNegativeStockEvent(entry))
	}
	if res.LowStock {
		events = append(events, dominv.NewLowStockEvent(rec))
	}
	return res, events, nil
}

type TrackInput struct {
	RestaurantID      string
	MenuItemID        string
	Unit              string
	LowStockThreshold decimal.Decimal
	InitialQuantity   decimal.Decimal
	Actor             string
}

// Track starts stock tracking for an item with an initial_stock entry.
func (s *Service) Track(ctx context.Context, in TrackInput) (_ *dominv.Record, err error) {
	ctx, run := s.obs.Start(ctx, useCaseTrack, "Track",
		attribute.String("inventory.restaurant_id", in.RestaurantID),
		attribute.String("inventory.menu_item_id", in.MenuItemID),
	)
	defer func() { run.End(err) }()

	if in.InitialQuantity.IsNegative() {
		return nil, dominv.ErrNegativeTarget
	}
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}
	rec, err := dominv.NewRecord(in.RestaurantID, in.MenuItemID, in.Unit, in.LowStockThreshold, s.now())
	if err != nil {
		return nil, err
	}

	var events []domoutbox.Event
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		_, gerr := tx.Inventory().Get(ctx, in.RestaurantID, in.MenuItemID)
		switch {
		case gerr == nil:
			return dominv.ErrAlreadyTracked
		case !errors.Is(gerr, dominv.ErrNotFound):
			return errs.Persistence("inventory: load record", gerr)
		}

		entry := rec.Apply(s.ids.NewID(), dominv.Change{
			Delta:  in.InitialQuantity,
			Kind:   dominv.KindInitialStock,
			Actor:  in.Actor,
			Reason: "tracking started",
		}, s.now())
		if err := tx.Inventory().Insert(ctx, rec); err != nil {
			return errs.Persistence("inventory: insert record", err)
		}
		if err := tx.Inventory().AppendEntry(ctx, entry); err != nil {
			return errs.Persistence("inventory: append ledger entry", err)
		}
		events = append(events, dominv.NewStockChangedEvent(entry))
		if rec.IsLow() {
			events = append(events, dominv.NewLowStockEvent(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	run.Publish(s.publisher, events...)
	return rec.Clone(), nil
}

type AdjustInput struct {
	RestaurantID string
	MenuItemID   string
	// Quantity is the new absolute stock level.
	Quantity decimal.Decimal
	Kind     dominv.ChangeKind
	Actor    string
	Reason   string
}

// Adjust sets a tracked item to an absolute level and records the implied delta.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (_ *ChangeResult, err error) {
	ctx, run := s.obs.Start(ctx, useCaseAdjust, "Adjust",
		attribute.String("inventory.restaurant_id", in.RestaurantID),
		attribute.String("inventory.menu_item_id", in.MenuItemID),
		attribute.String("inventory.kind", string(in.Kind)),
	)
	defer func() { run.End(err) }()

	if !in.Kind.IsAdjustment() {
		return nil, fmt.Errorf("%w: %q", dominv.ErrInvalidKind, in.Kind)
	}
	if in.Quantity.IsNegative() {
		return nil, dominv.ErrNegativeTarget
	}
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}

	var res ChangeResult
	var events []domoutbox.Event
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		rec, gerr := tx.Inventory().Get(ctx, in.RestaurantID, in.MenuItemID)
		if gerr != nil {
			return errs.Persistence("inventory: load record", gerr)
		}
		var aerr error
		res, events, aerr = s.apply(ctx, tx, rec, dominv.Change{
			Delta:  in.Quantity.Sub(rec.Quantity),
			Kind:   in.Kind,
			Actor:  in.Actor,
			Reason: in.Reason,
		})
		return aerr
	})
	if err != nil {
		return nil, err
	}

	run.Field("delta", res.Entry.Delta.String())
	run.Field("resulting_quantity", res.Entry.Resulting.String())
	run.Publish(s.publisher, events...)
	return &res, nil
}

type HistoryInput struct {
	RestaurantID string
	MenuItemID   string
	Limit        int
	Offset       int
}

// HistoryPage is one page of ledger entries, newest first. NextOffset is zero
// when there are no more entries.
type HistoryPage struct {
	Entries    []dominv.Entry
	NextOffset int
}

func (s *Service) History(ctx context.Context, in HistoryInput) (_ *HistoryPage, err error) {
	ctx, run := s.obs.Start(ctx, useCaseHistory, "History",
		attribute.String("inventory.restaurant_id", in.RestaurantID),
		attribute.String("inventory.menu_item_id", in.MenuItemID),
	)
	defer func() { run.End(err) }()

	if in.Offset < 0 || in.Limit < 0 {
		return nil, errs.Validation("inventory: limit and offset must not be negative")
	}
	limit := in.Limit
	switch {
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	page := &HistoryPage{}
	err = s.uow.View(ctx, func(ctx context.Context, tx application.Tx) error {
		if _, gerr := tx.Inventory().Get(ctx, in.RestaurantID, in.MenuItemID); gerr != nil {
			return errs.Persistence("inventory: load record", gerr)
		}
		entries, herr := tx.Inventory().History(ctx, in.RestaurantID, in.MenuItemID, limit+1, in.Offset)
		if herr != nil {
			return errs.Persistence("inventory: load history", herr)
		}
		if len(entries) > limit {
			entries = entries[:limit]
			page.NextOffset = in.Offset + limit
		}
		page.Entries = entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("entries", len(page.Entries))
	return page, nil
}

func (s *Service) Get(ctx context.Context, restaurantID, menuItemID string) (_ *dominv.Record, err error) {
	ctx, run := s.obs.Start(ctx, useCaseGet, "Get",
		attribute.String("inventory.restaurant_id", restaurantID),
		attribute.String("inventory.menu_item_id", menuItemID),
	)
	defer func() { run.End(err) }()

	var rec *dominv.Record
	err = s.uow.View(ctx, func(ctx context.Context, tx application.Tx) error {
		r, gerr := tx.Inventory().Get(ctx, restaurantID, menuItemID)
		if gerr != nil {
			return errs.Persistence("inventory: load record", gerr)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// LowStock lists every record at or below its threshold.
func (s *Service) LowStock(ctx context.Context) (_ []dominv.Record, err error) {
	ctx, run := s.obs.Start(ctx, useCaseLowStock, "LowStock")
	defer func() { run.End(err) }()

	var out []dominv.Record
	err = s.uow.View(ctx, func(ctx context.Context, tx application.Tx) error {
		recs, lerr := tx.Inventory().ListLow(ctx)
		if lerr != nil {
			return errs.Persistence("inventory: list low stock", lerr)
		}
		out = recs
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Field("items", len(out))
	return out, nil
}

func requireActor(actor string) error {
	if actor == "" {
		return errs.Validation("inventory: actor is required")
	}
	return nil
}
