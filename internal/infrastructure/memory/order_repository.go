package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	domain "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
)

type orderRepository struct{ t *tx }

func (r orderRepository) NextNumber(ctx context.Context, restaurantID string) (int64, error) {
	_ = ctx
	if err := r.t.checkWritable(); err != nil {
		return 0, err
	}
	n, ok := r.t.sequences[restaurantID]
	if !ok {
		n = r.t.s.sequences[restaurantID]
	}
	n++
	r.t.sequences[restaurantID] = n
	return n, nil
}

func (r orderRepository) FindOpenByTable(ctx context.Context, restaurantID, tableID string) (*domain.Order, error) {
	_ = ctx
	for _, o := range r.t.orders {
		if o.RestaurantID == restaurantID && o.TableID == tableID && o.IsOpen() {
			return o.Clone(), nil
		}
	}
	id, ok := r.t.s.openTables[tableKey(restaurantID, tableID)]
	if !ok {
		return nil, nil
	}
	if _, staged := r.t.orders[id]; staged {
		// closed within this unit of work
		return nil, nil
	}
	return r.t.s.orders[id].Clone(), nil
}

func (r orderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx
	if o, ok := r.t.orders[id]; ok {
		return o.Clone(), nil
	}
	o, ok := r.t.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r orderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	if _, err := r.Get(ctx, o.ID); err == nil {
		return errs.Conflict("order repository: order %s already exists", o.ID)
	}
	if o.TableID != "" && o.IsOpen() {
		open, _ := r.FindOpenByTable(ctx, o.RestaurantID, o.TableID)
		if open != nil {
			return domain.ErrTableHasOpenOrder
		}
	}
	r.t.orders[o.ID] = o.Clone()
	return nil
}

func (r orderRepository) Update(ctx context.Context, o *domain.Order) error {
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	if _, err := r.Get(ctx, o.ID); err != nil {
		return err
	}
	r.t.orders[o.ID] = o.Clone()
	return nil
}

func (r orderRepository) AppendStatusChange(ctx context.Context, c domain.StatusChange) error {
	_ = ctx
	if err := r.t.checkWritable(); err != nil {
		return err
	}
	r.t.statusLog[c.OrderID] = append(r.t.statusLog[c.OrderID], c)
	return nil
}

func (r orderRepository) StatusHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	_ = ctx
	out := slices.Clone(r.t.s.statusLog[orderID])
	return append(out, r.t.statusLog[orderID]...), nil
}
