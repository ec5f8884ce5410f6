package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
)

type inventoryRepository struct{ t *tx }

func (r inventoryRepository) Get(ctx context.Context, restaurantID, menuItemID string) (*domain.Record, error) {
	_ = ctx
	key := itemKey(restaurantID, menuItemID)
	if rec, ok := r.t.records[key]; ok {
		return rec.Clone(), nil
	}
	rec, ok := r.t.s.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r inventoryRepository) Insert(ctx context.Context, rec *domain.Record) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if _, err := r.Get(ctx, rec.RestaurantID, rec.MenuItemID); err == nil {
		return domain.ErrAlreadyTracked
	}
	r.t.records[itemKey(rec.RestaurantID, rec.MenuItemID)] = rec.Clone()
	return nil
}

func (r inventoryRepository) Update(ctx context.Context, rec *domain.Record) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if _, err := r.Get(ctx, rec.RestaurantID, rec.MenuItemID); err != nil {
		return err
	}
	r.t.records[itemKey(rec.RestaurantID, rec.MenuItemID)] = rec.Clone()
	return nil
}

func (r inventoryRepository) AppendEntry(ctx context.Context, e domain.Entry) error {
	_ = ctx
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if e.ID == "" {
		return fmt.Errorf("inventory repository: entry id is required")
	}
	key := itemKey(e.RestaurantID, e.MenuItemID)
	r.t.ledger[key] = append(r.t.ledger[key], e)
	return nil
}

func (r inventoryRepository) History(ctx context.Context, restaurantID, menuItemID string, limit, offset int) ([]domain.Entry, error) {
	_ = ctx
	key := itemKey(restaurantID, menuItemID)
	all := slices.Clone(r.t.s.ledger[key])
	all = append(all, r.t.ledger[key]...)
	slices.Reverse(all)

	if offset >= len(all) {
		return []domain.Entry{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (r inventoryRepository) ListLow(ctx context.Context) ([]domain.Record, error) {
	_ = ctx
	seen := make(map[string]struct{}, len(r.t.records))
	var out []domain.Record
	for k, rec := range r.t.records {
		seen[k] = struct{}{}
		if rec.IsLow() {
			out = append(out, *rec)
		}
	}
	for k, rec := range r.t.s.records {
		if _, staged := seen[k]; staged {
			continue
		}
		if rec.IsLow() {
			out = append(out, *rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.Record) int {
		return strings.Compare(itemKey(a.RestaurantID, a.MenuItemID), itemKey(b.RestaurantID, b.MenuItemID))
	})
	return out, nil
}
