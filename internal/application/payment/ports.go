package payment

import (
	"context"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	appinventory "github.com/Zhima-Mochi/restaurant-pos/internal/application/inventory"
	domorder "github.com/Zhima-Mochi/restaurant-pos/internal/domain/order"
)

// StockLedger settles stock not yet deducted for an order inside the caller's
// unit of work.
type StockLedger interface {
	DeductForOrder(ctx context.Context, tx application.Tx, o *domorder.Order, actor string) (*appinventory.Settlement, error)
}
