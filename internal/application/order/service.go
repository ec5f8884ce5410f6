package order

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	appcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/application/coupon"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/menu"
	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService = "order-service"

	useCasePlace      = "order.open_or_append"
	useCaseTransition = "order.transition_status"
	useCaseCancel     = "order.cancel"
	useCaseRefund     = "order.refund"
	useCaseGet        = "order.get"
	useCaseHistory    = "order.history"
)

// Deps are the collaborators of the order service.
type Deps struct {
	UnitOfWork application.UnitOfWork
	Catalog    menu.Catalog
	Stock      StockLedger
	Coupons    CouponRedeemer
	Refunder   Refunder
	Publisher  domoutbox.Publisher
}

// Service owns the order lifecycle: opening and merging table orders, status
// transitions, and refunds through payment reconciliation.
type Service struct {
	uow       application.UnitOfWork
	catalog   menu.Catalog
	stock     StockLedger
	coupons   CouponRedeemer
	refunder  Refunder
	publisher domoutbox.Publisher
	obs       *application.Instrumentation
	now       func() time.Time
}

func NewService(deps Deps, tel observability.Observability) *Service {
	return &Service{
		uow:       deps.UnitOfWork,
		catalog:   deps.Catalog,
		stock:     deps.Stock,
		coupons:   deps.Coupons,
		refunder:  deps.Refunder,
		publisher: deps.Publisher,
		obs:       application.NewInstrumentation(orderService, tel),
		now:       time.Now,
	}
}

type PlaceLine struct {
	MenuItemID string
	Quantity   int
}

type PlaceInput struct {
	RestaurantID string
	TableID      string
	CustomerID   string
	Lines        []PlaceLine
	CouponCode   string
	Actor        string
}

type PlaceResult struct {
	Order *domain.Order
	// Created is false when the lines were merged into an open table order.
	Created bool
	Coupon  *domcoupon.Detail
}

// OpenOrAppend adds lines to the open order of a table, or opens a new order.
// Pricing, coupon redemption, totals and stock deduction commit together or
// not at all.
func (s *Service) OpenOrAppend(ctx context.Context, in PlaceInput) (_ *PlaceResult, err error) {
	ctx, run := s.obs.Start(ctx, useCasePlace, "OpenOrAppend",
		attribute.String("order.restaurant_id", in.RestaurantID),
		attribute.String("order.table_id", in.TableID),
		attribute.Int("order.lines", len(in.Lines)),
	)
	defer func() { run.End(err) }()

	if in.RestaurantID == "" {
		return nil, errs.Validation("order: restaurant id is required")
	}
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}
	if in.CouponCode != "" && in.CustomerID == "" {
		return nil, errs.Validation("order: customer id is required to redeem a coupon")
	}
	raw := make([]domain.NewLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		raw = append(raw, domain.NewLine{MenuItemID: l.MenuItemID, Quantity: l.Quantity})
	}
	if err := domain.ValidateLines(raw); err != nil {
		run.Fail("INVALID_LINES")
		return nil, err
	}

	restaurant, err := s.catalog.GetRestaurant(ctx, in.RestaurantID)
	if err != nil {
		return nil, errs.Persistence("order: load restaurant", err)
	}
	priced, err := s.priceLines(ctx, in.RestaurantID, raw)
	if err != nil {
		run.Fail("MENU_VALIDATION_FAILED")
		return nil, err
	}

	res := &PlaceResult{}
	var events []domoutbox.Event
	var negative []dominv.Entry
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		events = events[:0]
		now := s.now()

		var o *domain.Order
		if in.TableID != "" {
			open, ferr := tx.Orders().FindOpenByTable(ctx, in.RestaurantID, in.TableID)
			if ferr != nil {
				return errs.Persistence("order: find open table order", ferr)
			}
			o = open
		}
		created := o == nil
		if created {
			n, nerr := tx.Orders().NextNumber(ctx, in.RestaurantID)
			if nerr != nil {
				return errs.Persistence("order: next number", nerr)
			}
			o, nerr = domain.New(in.RestaurantID, restaurant.Name, in.TableID, in.CustomerID, n, now)
			if nerr != nil {
				return nerr
			}
		} else if o.CustomerID == "" {
			o.CustomerID = in.CustomerID
		}

		if aerr := o.AddLines(priced, now); aerr != nil {
			return aerr
		}

		if in.CouponCode != "" {
			detail, cevents, cerr := s.coupons.RedeemInTx(ctx, tx, appcoupon.RedeemInput{
				Code:         in.CouponCode,
				UserID:       in.CustomerID,
				RestaurantID: in.RestaurantID,
				OrderID:      o.ID,
			})
			if cerr != nil {
				return cerr
			}
			if aerr := o.ApplyCoupon(domain.AppliedCoupon{
				CouponID:     detail.CouponID,
				Code:         detail.Code,
				RedemptionID: detail.RedemptionID,
				Discount:     detail.Discount,
			}, now); aerr != nil {
				return aerr
			}
			res.Coupon = detail
			events = append(events, cevents...)
		}

		settlement, serr := s.stock.DeductForOrder(ctx, tx, o, in.Actor)
		if serr != nil {
			return serr
		}

		if created {
			if ierr := tx.Orders().Insert(ctx, o); ierr != nil {
				return errs.Persistence("order: insert", ierr)
			}
			if herr := tx.Orders().AppendStatusChange(ctx, o.Created(in.Actor)); herr != nil {
				return errs.Persistence("order: append history", herr)
			}
			events = append(events, domain.NewOrderPlacedEvent(o))
		} else {
			if uerr := tx.Orders().Update(ctx, o); uerr != nil {
				return errs.Persistence("order: update", uerr)
			}
			events = append(events, domain.NewOrderItemsAddedEvent(o))
		}
		events = append(events, settlement.Events...)

		negative = settlement.NegativeEntries()
		res.Order = o
		res.Created = created
		return nil
	})
	if err != nil {
		var rej *domcoupon.Rejection
		if errors.As(err, &rej) {
			run.Fail(string(rej.Reason))
		}
		return nil, err
	}

	if !res.Created {
		run.SetStatus("MERGED")
	}
	for _, e := range negative {
		run.Logger().Warn("negative_stock",
			observability.F("order_id", res.Order.ID),
			observability.F("menu_item_id", e.MenuItemID),
			observability.F("quantity", e.Resulting.String()),
		)
	}
	run.Attr(
		attribute.String("order.id", res.Order.ID),
		attribute.String("order.status", string(res.Order.Status)),
	)
	run.Field("order_id", res.Order.ID)
	run.Field("total_cost", res.Order.TotalCost.String())
	run.Publish(s.publisher, events...)
	return res, nil
}

// priceLines resolves each requested line against the menu and captures its
// current price.
func (s *Service) priceLines(ctx context.Context, restaurantID string, lines []domain.NewLine) ([]domain.NewLine, error) {
	out := make([]domain.NewLine, 0, len(lines))
	for _, l := range lines {
		item, err := s.catalog.GetMenuItem(ctx, restaurantID, l.MenuItemID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return nil, errs.Validation("order: unknown menu item %q", l.MenuItemID)
		case err != nil:
			return nil, errs.Persistence("order: load menu item", err)
		}
		if item.RestaurantID != restaurantID {
			return nil, errs.Validation("order: menu item %q does not belong to restaurant %q", l.MenuItemID, restaurantID)
		}
		if !item.Available {
			return nil, errs.Validation("order: menu item %q is not available", l.MenuItemID)
		}
		out = append(out, domain.NewLine{
			MenuItemID: item.ID,
			Name:       item.Name,
			CategoryID: item.CategoryID,
			Quantity:   l.Quantity,
			UnitPrice:  item.Price,
		})
	}
	return out, nil
}

type TransitionInput struct {
	OrderID string
	Status  domain.Status
	Actor   string
	Reason  string
}

// TransitionStatus moves an order along the lifecycle table. Settlement
// statuses are reserved for payment reconciliation.
func (s *Service) TransitionStatus(ctx context.Context, in TransitionInput) (_ *domain.Order, err error) {
	ctx, run := s.obs.Start(ctx, useCaseTransition, "TransitionStatus",
		attribute.String("order.id", in.OrderID),
		attribute.String("order.to", string(in.Status)),
	)
	defer func() { run.End(err) }()

	if _, err := domain.ParseStatus(string(in.Status)); err != nil {
		return nil, err
	}
	if in.Status == domain.StatusPaymentDone || in.Status == domain.StatusRefunded {
		return nil, errs.Validation("order: status %q is set by payment reconciliation", in.Status)
	}
	return s.transition(ctx, run, in)
}

// Cancel moves an order to cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, actor, reason string) (_ *domain.Order, err error) {
	ctx, run := s.obs.Start(ctx, useCaseCancel, "Cancel",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	return s.transition(ctx, run, TransitionInput{OrderID: orderID, Status: domain.StatusCancelled, Actor: actor, Reason: reason})
}

func (s *Service) transition(ctx context.Context, run *application.Run, in TransitionInput) (*domain.Order, error) {
	if in.OrderID == "" {
		return nil, errs.Validation("order: order id is required")
	}
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}

	var o *domain.Order
	var events []domoutbox.Event
	err := s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		loaded, gerr := tx.Orders().Get(ctx, in.OrderID)
		if gerr != nil {
			return errs.Persistence("order: load", gerr)
		}
		change, terr := loaded.Transition(in.Status, in.Actor, in.Reason, s.now())
		if terr != nil {
			return terr
		}
		if uerr := tx.Orders().Update(ctx, loaded); uerr != nil {
			return errs.Persistence("order: update", uerr)
		}
		if herr := tx.Orders().AppendStatusChange(ctx, change); herr != nil {
			return errs.Persistence("order: append history", herr)
		}
		o = loaded
		events = []domoutbox.Event{domain.NewOrderStatusChangedEvent(loaded, change)}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			run.Fail("INVALID_TRANSITION")
		}
		return nil, err
	}
	run.Attr(attribute.String("order.status", string(o.Status)))
	run.Publish(s.publisher, events...)
	return o, nil
}

// Refund refunds a paid order.
func (s *Service) Refund(ctx context.Context, orderID, actor, reason string) (_ *domain.Order, err error) {
	ctx, run := s.obs.Start(ctx, useCaseRefund, "Refund",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	if orderID == "" {
		return nil, errs.Validation("order: order id is required")
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var o *domain.Order
	var events []domoutbox.Event
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		loaded, gerr := tx.Orders().Get(ctx, orderID)
		if gerr != nil {
			return errs.Persistence("order: load", gerr)
		}
		if loaded.PaymentStatus != domain.PaymentPaid {
			return domain.ErrNotPaid
		}
		evs, rerr := s.refunder.RefundInTx(ctx, tx, loaded, actor, reason)
		if rerr != nil {
			return rerr
		}
		o, events = loaded, evs
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Publish(s.publisher, events...)
	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (_ *domain.Order, err error) {
	ctx, run := s.obs.Start(ctx, useCaseGet, "Get",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	var o *domain.Order
	err = s.uow.View(ctx, func(ctx context.Context, tx application.Tx) error {
		loaded, gerr := tx.Orders().Get(ctx, orderID)
		if gerr != nil {
			return errs.Persistence("order: load", gerr)
		}
		o = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// History returns the status changes of an order, oldest first.
func (s *Service) History(ctx context.Context, orderID string) (_ []domain.StatusChange, err error) {
	ctx, run := s.obs.Start(ctx, useCaseHistory, "History",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	var out []domain.StatusChange
	err = s.uow.View(ctx, func(ctx context.Context, tx application.Tx) error {
		if _, gerr := tx.Orders().Get(ctx, orderID); gerr != nil {
			return errs.Persistence("order: load", gerr)
		}
		changes, herr := tx.Orders().StatusHistory(ctx, orderID)
		if herr != nil {
			return errs.Persistence("order: load history", herr)
		}
		out = changes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func requireActor(actor string) error {
	if actor == "" {
		return errs.Validation("order: actor is required")
	}
	return nil
}
