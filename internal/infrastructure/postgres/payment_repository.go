package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
	"github.com/jackc/pgx/v5"
)

type paymentRepository struct{ t *tx }

func (r paymentRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.t.q.QueryRow(ctx, `
		SELECT id, order_id, amount, method, status, transaction_ref, paid_at, refunded_at, created_at, updated_at
		FROM payments WHERE order_id = $1`+r.t.forUpdate(), orderID).Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Status, &p.TransactionRef, &p.PaidAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load payment of %s: %w", orderID, err)
	}
	return &p, nil
}

func (r paymentRepository) Insert(ctx context.Context, p *domain.Payment) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, method, status, transaction_ref, paid_at, refunded_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.OrderID, p.Amount, p.Method, p.Status, p.TransactionRef, p.PaidAt, p.RefundedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		err = mapError(err)
		if isConstraint(err, "payments_order_id_key") {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert payment: %w", err)
	}
	return nil
}

func (r paymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	tag, err := r.t.q.Exec(ctx, `
		UPDATE payments SET amount = $2, method = $3, status = $4, transaction_ref = $5,
			paid_at = $6, refunded_at = $7, updated_at = $8
		WHERE id = $1`,
		p.ID, p.Amount, p.Method, p.Status, p.TransactionRef, p.PaidAt, p.RefundedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
