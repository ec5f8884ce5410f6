package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/menu"
	"github.com/jackc/pgx/v5"
)

// Catalog reads restaurants and menu items maintained by the menu service in
// the same database.
type Catalog struct {
	s *Store
}

func NewCatalog(s *Store) *Catalog {
	return &Catalog{s: s}
}

func (c *Catalog) GetRestaurant(ctx context.Context, restaurantID string) (menu.Restaurant, error) {
	var r menu.Restaurant
	err := c.s.pool.QueryRow(ctx, `SELECT id, name FROM restaurants WHERE id = $1`, restaurantID).Scan(&r.ID, &r.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, menu.ErrRestaurantNotFound
	}
	if err != nil {
		return r, fmt.Errorf("postgres: load restaurant %s: %w", restaurantID, err)
	}
	return r, nil
}

func (c *Catalog) GetMenuItem(ctx context.Context, restaurantID, itemID string) (menu.Item, error) {
	var it menu.Item
	err := c.s.pool.QueryRow(ctx, `
		SELECT id, restaurant_id, name, category_id, price, available
		FROM menu_items WHERE id = $1`, itemID).
		Scan(&it.ID, &it.RestaurantID, &it.Name, &it.CategoryID, &it.Price, &it.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return it, menu.ErrItemNotFound
	}
	if err != nil {
		return it, fmt.Errorf("postgres: load menu item %s/%s: %w", restaurantID, itemID, err)
	}
	return it, nil
}

// Upsert writes a restaurant and its items; it backs the start-up seed.
func (c *Catalog) Upsert(ctx context.Context, r menu.Restaurant, items []menu.Item) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO restaurants (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, r.ID, r.Name)
	for _, it := range items {
		batch.Queue(`
			INSERT INTO menu_items (id, restaurant_id, name, category_id, price, available)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category_id = EXCLUDED.category_id,
				price = EXCLUDED.price, available = EXCLUDED.available`,
			it.ID, r.ID, it.Name, it.CategoryID, it.Price, it.Available)
	}
	if err := c.s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: seed restaurant %s: %w", r.ID, err)
	}
	return nil
}
