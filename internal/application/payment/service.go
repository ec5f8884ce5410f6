package payment

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService = "payment-service"

	useCaseMarkPaid     = "payment.mark_paid"
	useCaseMarkRefunded = "payment.mark_refunded"
	useCaseGet          = "payment.get"
)

var (
	ErrOrderRefunded  = errs.New(errs.ErrConflict, "payment: order is already refunded")
	ErrOrderCancelled = errs.New(errs.ErrConflict, "payment: order is cancelled")
)

// Service reconciles payments with the order lifecycle. Every call works
// under the order lock, so duplicate clicks settle an order once.
type Service struct {
	uow       application.UnitOfWork
	ids       application.IDGenerator
	stock     StockLedger
	publisher domoutbox.Publisher
	obs       *application.Instrumentation
	now       func() time.Time
}

func NewService(
	uow application.UnitOfWork,
	ids application.IDGenerator,
	stock StockLedger,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	return &Service{
		uow:       uow,
		ids:       ids,
		stock:     stock,
		publisher: publisher,
		obs:       application.NewInstrumentation(paymentService, tel),
		now:       time.Now,
	}
}

type MarkPaidInput struct {
	OrderID        string
	Method         dompay.Method
	TransactionRef string
	Actor          string
}

type Result struct {
	Order   *domorder.Order
	Payment *dompay.Payment
	// Replayed is true when the call found the order already settled.
	Replayed bool
}

// MarkPaid settles an order. Calling it again for a paid order succeeds
// without deducting stock or creating a second payment; a new transaction
// reference is recorded.
func (s *Service) MarkPaid(ctx context.Context, in MarkPaidInput) (_ *Result, err error) {
	ctx, run := s.obs.Start(ctx, useCaseMarkPaid, "MarkPaid",
		attribute.String("order.id", in.OrderID),
		attribute.String("payment.method", string(in.Method)),
	)
	defer func() { run.End(err) }()

	if in.OrderID == "" {
		return nil, errs.Validation("payment: order id is required")
	}
	if _, err := dompay.ParseMethod(string(in.Method)); err != nil {
		return nil, err
	}
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}

	res := &Result{}
	var events []domoutbox.Event
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		events = events[:0]
		now := s.now()

		o, gerr := tx.Orders().Get(ctx, in.OrderID)
		if gerr != nil {
			return errs.Persistence("payment: load order", gerr)
		}
		res.Order = o

		switch o.PaymentStatus {
		case domorder.PaymentPaid:
			p, perr := tx.Payments().GetByOrder(ctx, o.ID)
			if perr != nil {
				return errs.Persistence("payment: load payment", perr)
			}
			if p.UpdateReference(in.TransactionRef, now) {
				if uerr := tx.Payments().Update(ctx, p); uerr != nil {
					return errs.Persistence("payment: update payment", uerr)
				}
			}
			res.Payment, res.Replayed = p, true
			return nil
		case domorder.PaymentRefunded:
			return ErrOrderRefunded
		}
		if o.Status == domorder.StatusCancelled {
			return ErrOrderCancelled
		}

		settlement, serr := s.stock.DeductForOrder(ctx, tx, o, in.Actor)
		if serr != nil {
			return serr
		}
		change, merr := o.MarkPaid(in.Actor, "payment recorded", now)
		if merr != nil {
			return merr
		}

		p, perr := tx.Payments().GetByOrder(ctx, o.ID)
		switch {
		case errors.Is(perr, dompay.ErrNotFound):
			p, perr = dompay.New(s.ids.NewID(), o.ID, o.Payable(), in.Method, in.TransactionRef, now)
			if perr != nil {
				return perr
			}
			if ierr := tx.Payments().Insert(ctx, p); ierr != nil {
				return errs.Persistence("payment: insert payment", ierr)
			}
		case perr != nil:
			return errs.Persistence("payment: load payment", perr)
		default:
			if serr := p.Settle(o.Payable(), in.Method, in.TransactionRef, now); serr != nil {
				return serr
			}
			if uerr := tx.Payments().Update(ctx, p); uerr != nil {
				return errs.Persistence("payment: update payment", uerr)
			}
		}

		if uerr := tx.Orders().Update(ctx, o); uerr != nil {
			return errs.Persistence("payment: update order", uerr)
		}
		if herr := tx.Orders().AppendStatusChange(ctx, change); herr != nil {
			return errs.Persistence("payment: append history", herr)
		}

		res.Payment = p
		events = append(events,
			domorder.NewOrderStatusChangedEvent(o, change),
			dompay.NewPaymentRecordedEvent(p),
		)
		events = append(events, settlement.Events...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	run.Field("payment_id", res.Payment.ID)
	run.Field("amount", res.Payment.Amount.String())
	if res.Replayed {
		run.SetStatus("ALREADY_PAID")
		return res, nil
	}
	run.Publish(s.publisher, events...)
	return res, nil
}

// MarkRefunded refunds a paid order. Refunding an already refunded order is a
// no-op success.
func (s *Service) MarkRefunded(ctx context.Context, orderID, actor, reason string) (_ *Result, err error) {
	ctx, run := s.obs.Start(ctx, useCaseMarkRefunded, "MarkRefunded",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	if orderID == "" {
		return nil, errs.Validation("payment: order id is required")
	}
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	res := &Result{}
	var events []domoutbox.Event
	err = s.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		o, gerr := tx.Orders().Get(ctx, orderID)
		if gerr != nil {
			return errs.Persistence("payment: load order", gerr)
		}
		res.Order = o

		if o.PaymentStatus == domorder.PaymentRefunded {
			p, perr := tx.Payments().GetByOrder(ctx, o.ID)
			if perr != nil && !errors.Is(perr, dompay.ErrNotFound) {
				return errs.Persistence("payment: load payment", perr)
			}
			res.Payment, res.Replayed = p, true
			return nil
		}

		evs, rerr := s.RefundInTx(ctx, tx, o, actor, reason)
		if rerr != nil {
			return rerr
		}
		p, perr := tx.Payments().GetByOrder(ctx, o.ID)
		if perr != nil {
			return errs.Persistence("payment: load payment", perr)
		}
		res.Payment, events = p, evs
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Replayed {
		run.SetStatus("ALREADY_REFUNDED")
		return res, nil
	}
	run.Publish(s.publisher, events...)
	return res, nil
}

// RefundInTx refunds o and its payment inside the caller's unit of work. It
// leaves stock untouched; restocking is an explicit inventory correction.
func (s *Service) RefundInTx(ctx context.Context, tx application.Tx, o *domorder.Order, actor, reason string) ([]domoutbox.Event, error) {
	now := s.now()
	change, err := o.MarkRefunded(actor, reason, now)
	if err != nil {
		return nil, err
	}
	p, err := tx.Payments().GetByOrder(ctx, o.ID)
	if err != nil {
		return nil, errs.Persistence("payment: load payment", err)
	}
	if err := p.Refund(now); err != nil {
		return nil, err
	}
	if err := tx.Payments().Update(ctx, p); err != nil {
		return nil, errs.Persistence("payment: update payment", err)
	}
	if err := tx.Orders().Update(ctx, o); err != nil {
		return nil, errs.Persistence("payment: update order", err)
	}
	if err := tx.Orders().AppendStatusChange(ctx, change); err != nil {
		return nil, errs.Persistence("payment: append history", err)
	}
	return []domoutbox.Event{
		domorder.NewOrderStatusChangedEvent(o, change),
		dompay.NewPaymentRefundedEvent(p, reason),
	}, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (_ *dompay.Payment, err error) {
	ctx, run := s.obs.Start(ctx, useCaseGet, "Get",
		attribute.String("order.id", orderID),
	)
	defer func() { run.End(err) }()

	var p *dompay.Payment
	err = s.uow.View(ctx, func(ctx context.Context, tx application.Tx) error {
		got, gerr := tx.Payments().GetByOrder(ctx, orderID)
		if gerr != nil {
			return errs.Persistence("payment: load payment", gerr)
		}
		p = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func requireActor(actor string) error {
	if actor == "" {
		return errs.Validation("payment: actor is required")
	}
	return nil
}
