package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LowStockEvent is raised after a committed outgoing movement leaves quantity at
// or below the reorder level.
type LowStockEvent struct {
	ProductID       int64           `json:"product_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	MovementType    MovementType    `json:"movement_type"`
	At              time.Time       `json:"at"`
}

// AlertPort delivers low stock events, typically by enqueueing a background task.
type AlertPort interface {
	NotifyLowStock(ctx context.Context, evt LowStockEvent) error
}

// LowStockEventFor builds the event for stock.
func LowStockEventFor(stock StockRecord, mt MovementType, at time.Time) LowStockEvent {
	return LowStockEvent{
		ProductID:       stock.ProductID,
		Quantity:        stock.Quantity,
		ReorderLevel:    stock.ReorderLevel,
		ReorderQuantity: stock.ReorderQuantity,
		MovementType:    mt,
		At:              at,
	}
}
