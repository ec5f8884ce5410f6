package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	"github.com/jackc/pgx/v5"
)

type orderRepository struct{ t *tx }

const orderColumns = `id, number, restaurant_id, restaurant_name, table_id, customer_id, status, payment_status,
	total_cost, discount, coupon_id, coupon_code, coupon_redemption_id, coupon_discount, created_at, updated_at`

func (r orderRepository) NextNumber(ctx context.Context, restaurantID string) (int64, error) {
	if err := r.t.checkWritable(); err != nil {
		return 0, err
	}
	var n int64
	err := r.t.q.QueryRow(ctx, `
		INSERT INTO order_sequences (restaurant_id, last_value) VALUES ($1, 1)
		ON CONFLICT (restaurant_id) DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value`, restaurantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: next order number: %w", err)
	}
	return n, nil
}

// FindOpenByTable holds an advisory lock on the table for the rest of the
// unit of work, so two first placements cannot both open an order.
func (r orderRepository) FindOpenByTable(ctx context.Context, restaurantID, tableID string) (*domain.Order, error) {
	if err := r.t.lockKey(ctx, "table:"+restaurantID+"/"+tableID); err != nil {
		return nil, err
	}
	var id string
	err := r.t.q.QueryRow(ctx, `
		SELECT id FROM orders
		WHERE restaurant_id = $1 AND table_id = $2
		  AND payment_status = 'pending' AND status IN ('pending', 'confirmed')`,
		restaurantID, tableID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find open table order: %w", err)
	}
	return r.Get(ctx, id)
}

func (r orderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.t.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+r.t.forUpdate(), id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load order %s: %w", id, err)
	}

	rows, err := r.t.q.Query(ctx, `
		SELECT id, menu_item_id, name, category_id, quantity, unit_price, stocked_quantity, created_at
		FROM order_lines WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: load order lines %s: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Line, error) {
		var l domain.Line
		err := row.Scan(&l.ID, &l.MenuItemID, &l.Name, &l.CategoryID, &l.Quantity, &l.UnitPrice, &l.StockedQuantity, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order lines %s: %w", id, err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                        domain.Order
		couponID, code, redeemID *string
		discount                 []byte
	)
	err := row.Scan(&o.ID, &o.Number, &o.RestaurantID, &o.RestaurantName, &o.TableID, &o.CustomerID,
		&o.Status, &o.PaymentStatus, &o.TotalCost, &o.Discount,
		&couponID, &code, &redeemID, &discount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if couponID != nil {
		applied := &domain.AppliedCoupon{CouponID: *couponID}
		if code != nil {
			applied.Code = *code
		}
		if redeemID != nil {
			applied.RedemptionID = *redeemID
		}
		if len(discount) > 0 {
			var spec domcoupon.Spec
			if err := json.Unmarshal(discount, &spec); err != nil {
				return nil, fmt.Errorf("decode coupon discount: %w", err)
			}
			if applied.Discount, err = spec.Decode(); err != nil {
				return nil, err
			}
		}
		o.Coupon = applied
	}
	return &o, nil
}

func couponColumns(o *domain.Order) (id, code, redemptionID *string, discount []byte, err error) {
	if o.Coupon == nil {
		return nil, nil, nil, nil, nil
	}
	c := o.Coupon
	if c.Discount != nil {
		discount, err = json.Marshal(domcoupon.SpecOf(c.Discount))
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return &c.CouponID, &c.Code, &c.RedemptionID, discount, nil
}

func (r orderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	cid, code, rid, discount, err := couponColumns(o)
	if err != nil {
		return err
	}
	_, err = r.t.q.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		o.ID, o.Number, o.RestaurantID, o.RestaurantName, o.TableID, o.CustomerID, o.Status, o.PaymentStatus,
		o.TotalCost, o.Discount, cid, code, rid, discount, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		err = mapError(err)
		if isConstraint(err, "orders_open_table_idx") {
			return domain.ErrTableHasOpenOrder
		}
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return r.saveLines(ctx, o)
}

func (r orderRepository) Update(ctx context.Context, o *domain.Order) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	cid, code, rid, discount, err := couponColumns(o)
	if err != nil {
		return err
	}
	tag, err := r.t.q.Exec(ctx, `
		UPDATE orders SET customer_id = $2, status = $3, payment_status = $4, total_cost = $5, discount = $6,
			coupon_id = $7, coupon_code = $8, coupon_redemption_id = $9, coupon_discount = $10, updated_at = $11
		WHERE id = $1`,
		o.ID, o.CustomerID, o.Status, o.PaymentStatus, o.TotalCost, o.Discount, cid, code, rid, discount, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return r.saveLines(ctx, o)
}

// saveLines upserts every line. Lines are never removed from an order and
// their captured price never changes.
func (r orderRepository) saveLines(ctx context.Context, o *domain.Order) error {
	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`
			INSERT INTO order_lines (id, order_id, position, menu_item_id, name, category_id, quantity, unit_price, stocked_quantity, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity, stocked_quantity = EXCLUDED.stocked_quantity`,
			l.ID, o.ID, i+1, l.MenuItemID, l.Name, l.CategoryID, l.Quantity, l.UnitPrice, l.StockedQuantity, l.CreatedAt)
	}
	br := r.t.q.SendBatch(ctx, batch)
	for range o.Lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: save order lines %s: %w", o.ID, mapError(err))
		}
	}
	return br.Close()
}

func (r orderRepository) AppendStatusChange(ctx context.Context, c domain.StatusChange) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, actor, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.OrderID, c.From, c.To, c.Actor, c.Reason, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("postgres: append status change %s: %w", c.OrderID, err)
	}
	return nil
}

func (r orderRepository) StatusHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := r.t.q.Query(ctx, `
		SELECT order_id, from_status, to_status, actor, reason, changed_at
		FROM order_status_log WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load status history %s: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusChange, error) {
		var c domain.StatusChange
		err := row.Scan(&c.OrderID, &c.From, &c.To, &c.Actor, &c.Reason, &c.ChangedAt)
		return c, err
	})
}
