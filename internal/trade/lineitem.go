package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

// Effects are the side effects of a line command that the engine persists in
// one unit of work.
type Effects struct {
	// Stock is the stock record after every movement.
	Stock     inventory.StockRecord
	Movements []inventory.Movement
	// Delta is added to the aggregate totals.
	Delta Totals
}

// LineInput prices a new line.
type LineInput struct {
	Quantity      decimal.Decimal
	Wholesale     bool
	UnitPrice     *decimal.Decimal
	SellAvailable bool
}

// LineChange re-prices an existing line. Nil fields keep the current value.
type LineChange struct {
	Quantity      *decimal.Decimal
	Wholesale     *bool
	UnitPrice     *decimal.Decimal
	SellAvailable bool
}

func validateLineQuantity(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidQuantity, qty)
	}
	if err := inventory.ValidateQuantity(qty); err != nil {
		return fmt.Errorf("%w: got %s", ErrInvalidQuantity, qty)
	}
	return nil
}

func checkProduct(kind Kind, stock inventory.StockRecord, product masterdata.Product) error {
	if stock.ProductID != product.ID {
		return fmt.Errorf("trade: stock of product %d does not match product %d", stock.ProductID, product.ID)
	}
	if kind == KindSale {
		return masterdata.RequireSellable(product)
	}
	return masterdata.RequireStocked(product)
}

// price fills quantity-dependent fields of line from the current stock prices.
func price(kind Kind, line LineItem, stock inventory.StockRecord, product masterdata.Product, unitPrice *decimal.Decimal) (LineItem, error) {
	switch kind {
	case KindSale:
		if line.Wholesale {
			line.UnitPrice = stock.PriceWholesale
		} else {
			line.UnitPrice = stock.PriceRetail
		}
		line.UnitCost = stock.CostPerUnit
	case KindPurchase:
		if unitPrice != nil {
			if unitPrice.IsNegative() {
				return LineItem{}, fmt.Errorf("%w: got %s", ErrInvalidPrice, unitPrice)
			}
			line.UnitPrice = *unitPrice
		} else {
			line.UnitPrice = stock.CostPerUnit
		}
		line.UnitCost = line.UnitPrice
		line.Wholesale = false
	default:
		return LineItem{}, fmt.Errorf("%w: %q", ErrKindMismatch, kind)
	}
	line.ExtendedPrice = line.Quantity.Mul(line.UnitPrice).RoundBank(2)
	line.TaxClass = product.TaxClass
	taxAmount, total, err := tax.TotalWithTax(line.ExtendedPrice, product.TaxClass)
	if err != nil {
		return LineItem{}, err
	}
	line.TaxAmount = taxAmount
	line.Total = total
	return line, nil
}

func applyMovement(stock inventory.StockRecord, mt inventory.MovementType, qty decimal.Decimal, line LineItem, remark string, at time.Time) (inventory.StockRecord, inventory.Movement, error) {
	next, mv, err := inventory.Apply(stock, mt, qty, remark, at)
	if err != nil {
		if errors.Is(err, inventory.ErrInsufficientStock) {
			return stock, inventory.Movement{}, fmt.Errorf("%w: %v", ErrInsufficientStock, err)
		}
		return stock, inventory.Movement{}, err
	}
	mv.RefKind = line.Kind.lineRef()
	mv.RefID = line.UUID.String()
	return next, mv, nil
}

// resolveQuantity applies the explicit sell-what-is-left mode on sales.
func resolveQuantity(kind Kind, stock inventory.StockRecord, qty decimal.Decimal, sellAvailable bool) (decimal.Decimal, error) {
	if kind != KindSale || !sellAvailable {
		return qty, nil
	}
	clamped := inventory.ClampOutgoing(stock, qty)
	if !clamped.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: product %d is out of stock", ErrInsufficientStock, stock.ProductID)
	}
	return clamped, nil
}

// CreateLine prices a new line on txn and issues its forward movement.
func CreateLine(kind Kind, txn Transaction, stock inventory.StockRecord, product masterdata.Product, in LineInput, at time.Time) (LineItem, Effects, error) {
	if !kind.Valid() || txn.Kind != kind {
		return LineItem{}, Effects{}, fmt.Errorf("%w: transaction is %q", ErrKindMismatch, txn.Kind)
	}
	if !txn.Open() {
		return LineItem{}, Effects{}, ErrTransactionClosed
	}
	if err := validateLineQuantity(in.Quantity); err != nil {
		return LineItem{}, Effects{}, err
	}
	if err := checkProduct(kind, stock, product); err != nil {
		return LineItem{}, Effects{}, err
	}
	qty, err := resolveQuantity(kind, stock, in.Quantity, in.SellAvailable)
	if err != nil {
		return LineItem{}, Effects{}, err
	}

	line := LineItem{
		UUID:          uuid.New(),
		Kind:          kind,
		TransactionID: txn.ID,
		ProductID:     product.ID,
		Quantity:      qty,
		Wholesale:     kind == KindSale && in.Wholesale,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	line, err = price(kind, line, stock, product, in.UnitPrice)
	if err != nil {
		return LineItem{}, Effects{}, err
	}
	remark := fmt.Sprintf("%s %s", kind, txn.UUID)
	next, mv, err := applyMovement(stock, kind.ForwardMovement(), qty, line, remark, at)
	if err != nil {
		return LineItem{}, Effects{}, err
	}
	return line, Effects{Stock: next, Movements: []inventory.Movement{mv}, Delta: line.Totals()}, nil
}

// UpdateLine reverses the current quantity of line, re-prices it from change and
// re-applies the forward movement. The delta is the new contribution minus the
// old one.
func UpdateLine(kind Kind, txn Transaction, line LineItem, stock inventory.StockRecord, product masterdata.Product, change LineChange, at time.Time) (LineItem, Effects, error) {
	if !kind.Valid() || line.Kind != kind || txn.Kind != kind {
		return LineItem{}, Effects{}, fmt.Errorf("%w: line is %q", ErrKindMismatch, line.Kind)
	}
	if line.TransactionID != txn.ID {
		return LineItem{}, Effects{}, ErrLineNotFound
	}
	if !txn.Open() {
		return LineItem{}, Effects{}, ErrTransactionClosed
	}
	if line.ProductID != product.ID {
		return LineItem{}, Effects{}, fmt.Errorf("trade: line %d belongs to product %d", line.ID, line.ProductID)
	}
	newQty := line.Quantity
	if change.Quantity != nil {
		newQty = *change.Quantity
	}
	if err := validateLineQuantity(newQty); err != nil {
		return LineItem{}, Effects{}, err
	}
	if err := checkProduct(kind, stock, product); err != nil {
		return LineItem{}, Effects{}, err
	}

	remark := fmt.Sprintf("%s %s edit", kind, txn.UUID)
	reversed, reversal, err := applyMovement(stock, kind.ReversalMovement(), line.Quantity, line, remark, at)
	if err != nil {
		return LineItem{}, Effects{}, err
	}
	newQty, err = resolveQuantity(kind, reversed, newQty, change.SellAvailable)
	if err != nil {
		return LineItem{}, Effects{}, err
	}

	updated := line
	updated.Quantity = newQty
	if change.Wholesale != nil && kind == KindSale {
		updated.Wholesale = *change.Wholesale
	}
	updated.UpdatedAt = at
	unitPrice := change.UnitPrice
	if kind == KindPurchase && unitPrice == nil {
		kept := line.UnitPrice
		unitPrice = &kept
	}
	updated, err = price(kind, updated, reversed, product, unitPrice)
	if err != nil {
		return LineItem{}, Effects{}, err
	}
	if kind == KindSale {
		// cost snapshot survives edits
		updated.UnitCost = line.UnitCost
	}
	next, forward, err := applyMovement(reversed, kind.ForwardMovement(), newQty, updated, remark, at)
	if err != nil {
		return LineItem{}, Effects{}, err
	}
	return updated, Effects{
		Stock:     next,
		Movements: []inventory.Movement{reversal, forward},
		Delta:     updated.Totals().Sub(line.Totals()),
	}, nil
}

// DeleteLine reverses the stock and aggregate effects of line.
func DeleteLine(kind Kind, txn Transaction, line LineItem, stock inventory.StockRecord, at time.Time) (Effects, error) {
	if !kind.Valid() || line.Kind != kind || txn.Kind != kind {
		return Effects{}, fmt.Errorf("%w: line is %q", ErrKindMismatch, line.Kind)
	}
	if line.TransactionID != txn.ID {
		return Effects{}, ErrLineNotFound
	}
	if !txn.Open() {
		return Effects{}, ErrTransactionClosed
	}
	if stock.ProductID != line.ProductID {
		return Effects{}, fmt.Errorf("trade: stock of product %d does not match line product %d", stock.ProductID, line.ProductID)
	}
	remark := fmt.Sprintf("%s %s detach", kind, txn.UUID)
	next, reversal, err := applyMovement(stock, kind.ReversalMovement(), line.Quantity, line, remark, at)
	if err != nil {
		return Effects{}, err
	}
	return Effects{Stock: next, Movements: []inventory.Movement{reversal}, Delta: line.Totals().Neg()}, nil
}
