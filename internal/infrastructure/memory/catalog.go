package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/menu"
)

// Catalog is an in-process menu collaborator, seeded at start-up or by tests.
type Catalog struct {
	mu          sync.RWMutex
	restaurants map[string]menu.Restaurant
	items       map[string]menu.Item
}

func NewCatalog() *Catalog {
	return &Catalog{
		restaurants: make(map[string]menu.Restaurant),
		items:       make(map[string]menu.Item),
	}
}

func (c *Catalog) AddRestaurant(r menu.Restaurant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restaurants[r.ID] = r
}

// AddItem stores or replaces a menu item.
func (c *Catalog) AddItem(it menu.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[it.ID] = it
}

func (c *Catalog) GetRestaurant(ctx context.Context, restaurantID string) (menu.Restaurant, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.restaurants[restaurantID]
	if !ok {
		return menu.Restaurant{}, menu.ErrRestaurantNotFound
	}
	return r, nil
}

// GetMenuItem returns the item regardless of restaurant, as a remote menu
// service would; callers check ownership.
func (c *Catalog) GetMenuItem(ctx context.Context, restaurantID, itemID string) (menu.Item, error) {
	_ = ctx
	_ = restaurantID
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[itemID]
	if !ok {
		return menu.Item{}, menu.ErrItemNotFound
	}
	return it, nil
}
