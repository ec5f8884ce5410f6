package payment

import "context"

// Repository is bound to one unit of work. An order has at most one payment.
type Repository interface {
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)
	Insert(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment) error
}
