package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	domcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/domain/coupon"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
	dompay "github.com/Zhima-Mochi/restaurant-pos/internal/domain/payment"
)

var errReadOnly = errors.New("memory store: write in read-only unit of work")

// Store keeps all state in process. Read-write units of work are serialized
// by one mutex, which also provides every row and table lock the repositories
// promise. Writes are staged per unit of work and applied only on commit.
type Store struct {
	mu sync.RWMutex

	orders      map[string]*domorder.Order
	openTables  map[string]string // restaurant/table -> open order id
	sequences   map[string]int64
	statusLog   map[string][]domorder.StatusChange
	records     map[string]*dominv.Record
	ledger      map[string][]dominv.Entry
	coupons     map[string]*domcoupon.Coupon // by code
	redemptions map[string][]domcoupon.Redemption
	payments    map[string]*dompay.Payment // by order id
}

func NewStore() *Store {
	return &Store{
		orders:      make(map[string]*domorder.Order),
		openTables:  make(map[string]string),
		sequences:   make(map[string]int64),
		statusLog:   make(map[string][]domorder.StatusChange),
		records:     make(map[string]*dominv.Record),
		ledger:      make(map[string][]dominv.Entry),
		coupons:     make(map[string]*domcoupon.Coupon),
		redemptions: make(map[string][]domcoupon.Redemption),
		payments:    make(map[string]*dompay.Payment),
	}
}

var _ application.UnitOfWork = (*Store)(nil)

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(s, true)
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, newTx(s, false))
}

// tx is the staged overlay of one unit of work.
type tx struct {
	s        *Store
	writable bool

	orders      map[string]*domorder.Order
	sequences   map[string]int64
	statusLog   map[string][]domorder.StatusChange
	records     map[string]*dominv.Record
	ledger      map[string][]dominv.Entry
	coupons     map[string]*domcoupon.Coupon
	redemptions map[string][]domcoupon.Redemption
	payments    map[string]*dompay.Payment
}

func newTx(s *Store, writable bool) *tx {
	t := &tx{s: s, writable: writable}
	if writable {
		t.orders = make(map[string]*domorder.Order)
		t.sequences = make(map[string]int64)
		t.statusLog = make(map[string][]domorder.StatusChange)
		t.records = make(map[string]*dominv.Record)
		t.ledger = make(map[string][]dominv.Entry)
		t.coupons = make(map[string]*domcoupon.Coupon)
		t.redemptions = make(map[string][]domcoupon.Redemption)
		t.payments = make(map[string]*dompay.Payment)
	}
	return t
}

func (t *tx) Orders() domorder.Repository   { return orderRepository{t} }
func (t *tx) Inventory() dominv.Repository  { return inventoryRepository{t} }
func (t *tx) Coupons() domcoupon.Repository { return couponRepository{t} }
func (t *tx) Payments() dompay.Repository   { return paymentRepository{t} }

func (t *tx) checkWritable() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

func (t *tx) commit() {
	s := t.s
	for id, o := range t.orders {
		if old, ok := s.orders[id]; ok && old.TableID != "" && s.openTables[tableKey(old.RestaurantID, old.TableID)] == id {
			delete(s.openTables, tableKey(old.RestaurantID, old.TableID))
		}
		s.orders[id] = o
		if o.TableID != "" && o.IsOpen() {
			s.openTables[tableKey(o.RestaurantID, o.TableID)] = id
		}
	}
	for k, v := range t.sequences {
		s.sequences[k] = v
	}
	for k, v := range t.statusLog {
		s.statusLog[k] = append(s.statusLog[k], v...)
	}
	for k, v := range t.records {
		s.records[k] = v
	}
	for k, v := range t.ledger {
		s.ledger[k] = append(s.ledger[k], v...)
	}
	for k, v := range t.coupons {
		s.coupons[k] = v
	}
	for k, v := range t.redemptions {
		s.redemptions[k] = append(s.redemptions[k], v...)
	}
	for k, v := range t.payments {
		s.payments[k] = v
	}
}

func tableKey(restaurantID, tableID string) string {
	return restaurantID + "/" + tableID
}

func itemKey(restaurantID, menuItemID string) string {
	return restaurantID + "/" + menuItemID
}
