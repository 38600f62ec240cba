package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// quantityScale is the number of decimal places a quantity may carry.
const quantityScale = 2

// ValidateQuantity checks qty is non-negative with at most two decimal places.
func ValidateQuantity(qty decimal.Decimal) error {
	if qty.IsNegative() {
		return fmt.Errorf("%w: got %s", ErrInvalidQuantity, qty)
	}
	if !qty.Equal(qty.Truncate(quantityScale)) {
		return fmt.Errorf("%w: got %s", ErrInvalidQuantity, qty)
	}
	return nil
}

// Apply applies one movement to stock and returns the new stock state together
// with the movement to append. stock is not modified.
func Apply(stock StockRecord, mt MovementType, qty decimal.Decimal, remark string, at time.Time) (StockRecord, Movement, error) {
	info, ok := movementLookup(mt)
	if !ok {
		return stock, Movement{}, fmt.Errorf("%w %q", ErrUnknownMovementType, string(mt))
	}
	if err := ValidateQuantity(qty); err != nil {
		return stock, Movement{}, err
	}
	before := stock.Quantity
	delta := qty
	if info.direction == DirectionOut {
		if qty.GreaterThan(before) {
			return stock, Movement{}, fmt.Errorf("%w: product %d has %s, requested %s", ErrInsufficientStock, stock.ProductID, before, qty)
		}
		delta = qty.Neg()
	}
	next := stock
	next.Quantity = before.Add(delta)
	next.LastMovementType = mt
	next.LastMovementQuantity = qty
	next.LastRemark = remark
	next.UpdatedAt = at

	mv := Movement{
		ID:             uuid.New(),
		ProductID:      stock.ProductID,
		Type:           mt,
		Quantity:       qty,
		Delta:          delta,
		QuantityBefore: before,
		QuantityAfter:  next.Quantity,
		Remark:         remark,
		PostedAt:       at,
	}
	return next, mv, nil
}

// ClampOutgoing returns the part of qty that stock can satisfy. Callers that
// want to sell whatever is left call it explicitly before Apply.
func ClampOutgoing(stock StockRecord, qty decimal.Decimal) decimal.Decimal {
	if stock.Quantity.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(qty, stock.Quantity)
}
