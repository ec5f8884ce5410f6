package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
)

type paymentRepository struct{ t *tx }

func (r paymentRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	_ = ctx
	if p, ok := r.t.payments[orderID]; ok {
		return p.Clone(), nil
	}
	p, ok := r.t.s.payments[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r paymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if _, err := r.GetByOrder(ctx, p.OrderID); err == nil {
		return domain.ErrAlreadyExists
	}
	r.t.payments[p.OrderID] = p.Clone()
	return nil
}

func (r paymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if _, err := r.GetByOrder(ctx, p.OrderID); err != nil {
		return err
	}
	r.t.payments[p.OrderID] = p.Clone()
	return nil
}
