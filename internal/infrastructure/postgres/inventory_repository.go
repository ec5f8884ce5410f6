package postgres

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	"github.com/jackc/pgx/v5"
)

type inventoryRepository struct{ t *tx }

const recordColumns = `restaurant_id, menu_item_id, unit, quantity, low_stock_threshold, version, created_at, updated_at`

func scanRecord(row pgx.Row) (domain.Record, error) {
	var rec domain.Record
	err := row.Scan(&rec.RestaurantID, &rec.MenuItemID, &rec.Unit, &rec.Quantity, &rec.LowStockThreshold,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (r inventoryRepository) Get(ctx context.Context, restaurantID, menuItemID string) (*domain.Record, error) {
	row := r.t.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records
		WHERE restaurant_id = $1 AND menu_item_id = $2`+r.t.forUpdate(), restaurantID, menuItemID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load inventory record %s/%s: %w", restaurantID, menuItemID, err)
	}
	return &rec, nil
}

func (r inventoryRepository) Insert(ctx context.Context, rec *domain.Record) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `INSERT INTO inventory_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.RestaurantID, rec.MenuItemID, rec.Unit, rec.Quantity, rec.LowStockThreshold, rec.Version, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		err = mapError(err)
		if isConstraint(err, "inventory_records_pkey") {
			return domain.ErrAlreadyTracked
		}
		return fmt.Errorf("postgres: insert inventory record: %w", err)
	}
	return nil
}

func (r inventoryRepository) Update(ctx context.Context, rec *domain.Record) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	tag, err := r.t.q.Exec(ctx, `
		UPDATE inventory_records SET quantity = $3, low_stock_threshold = $4, version = $5, updated_at = $6
		WHERE restaurant_id = $1 AND menu_item_id = $2`,
		rec.RestaurantID, rec.MenuItemID, rec.Quantity, rec.LowStockThreshold, rec.Version, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update inventory record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r inventoryRepository) AppendEntry(ctx context.Context, e domain.Entry) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	_, err := r.t.q.Exec(ctx, `
		INSERT INTO inventory_ledger (id, restaurant_id, menu_item_id, seq, previous, delta, resulting, kind,
			actor, reason, order_id, line_id, negative, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.RestaurantID, e.MenuItemID, e.Seq, e.Previous, e.Delta, e.Resulting, e.Kind,
		e.Actor, e.Reason, e.OrderID, e.LineID, e.Negative, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry: %w", mapError(err))
	}
	return nil
}

func (r inventoryRepository) History(ctx context.Context, restaurantID, menuItemID string, limit, offset int) ([]domain.Entry, error) {
	rows, err := r.t.q.Query(ctx, `
		SELECT id, restaurant_id, menu_item_id, seq, previous, delta, resulting, kind,
			actor, reason, order_id, line_id, negative, created_at
		FROM inventory_ledger
		WHERE restaurant_id = $1 AND menu_item_id = $2
		ORDER BY seq DESC LIMIT $3 OFFSET $4`, restaurantID, menuItemID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: load ledger: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Entry, error) {
		var e domain.Entry
		err := row.Scan(&e.ID, &e.RestaurantID, &e.MenuItemID, &e.Seq, &e.Previous, &e.Delta, &e.Resulting, &e.Kind,
			&e.Actor, &e.Reason, &e.OrderID, &e.LineID, &e.Negative, &e.CreatedAt)
		return e, err
	})
}

func (r inventoryRepository) ListLow(ctx context.Context) ([]domain.Record, error) {
	rows, err := r.t.q.Query(ctx, `SELECT `+recordColumns+` FROM inventory_records
		WHERE low_stock_threshold > 0 AND quantity <= low_stock_threshold
		ORDER BY restaurant_id, menu_item_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list low stock: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Record, error) {
		return scanRecord(row)
	})
}
