package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// MovementType enumerates the coded reasons for a stock quantity change.
type MovementType string

const (
	MovementImport           MovementType = "01"
	MovementPurchase         MovementType = "02"
	MovementReturnIn         MovementType = "03"
	MovementStockMovementIn  MovementType = "04"
	MovementProcessingIn     MovementType = "05"
	MovementAdjustmentIn     MovementType = "06"
	MovementSale             MovementType = "11"
	MovementReturnOut        MovementType = "12"
	MovementStockMovementOut MovementType = "13"
	MovementProcessingOut    MovementType = "14"
	MovementDiscarding       MovementType = "15"
	MovementAdjustmentOut    MovementType = "16"
)

// Direction tells whether a movement adds to or removes from stock.
type Direction int

const (
	// DirectionUnknown is returned for codes outside the closed set.
	DirectionUnknown Direction = iota
	// DirectionIn adds quantity.
	DirectionIn
	// DirectionOut removes quantity.
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

type movementInfo struct {
	typ       MovementType
	label     string
	direction Direction
}

// Labels are kept as printed by the legacy back office, including the
// lower-case "outgoing" on the last two rows.
var movementTable = []movementInfo{
	{MovementImport, "Incoming-Import", DirectionIn},
	{MovementPurchase, "Incoming-Purchase", DirectionIn},
	{MovementReturnIn, "Incoming-Return", DirectionIn},
	{MovementStockMovementIn, "Incoming-Stock Movement", DirectionIn},
	{MovementProcessingIn, "Incoming-Processing", DirectionIn},
	{MovementAdjustmentIn, "Incoming-Adjustment", DirectionIn},
	{MovementSale, "Outgoing-Sale", DirectionOut},
	{MovementReturnOut, "Outgoing-Return", DirectionOut},
	{MovementStockMovementOut, "Outgoing-Stock Movement", DirectionOut},
	{MovementProcessingOut, "Outgoing-Processing", DirectionOut},
	{MovementDiscarding, "outgoing-Discarding", DirectionOut},
	{MovementAdjustmentOut, "outgoing-Adjustment", DirectionOut},
}

func movementLookup(mt MovementType) (movementInfo, bool) {
	for _, info := range movementTable {
		if info.typ == mt {
			return info, true
		}
	}
	return movementInfo{}, false
}

// MovementTypes lists every movement type in code order.
func MovementTypes() []MovementType {
	out := make([]MovementType, len(movementTable))
	for i, info := range movementTable {
		out[i] = info.typ
	}
	return out
}

// ParseMovementType maps a wire code to a MovementType.
func ParseMovementType(code string) (MovementType, error) {
	if _, ok := movementLookup(MovementType(code)); !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownMovementType, code)
	}
	return MovementType(code), nil
}

// ParseMovementLabel maps a display label to a MovementType.
func ParseMovementLabel(label string) (MovementType, error) {
	for _, info := range movementTable {
		if info.label == label {
			return info.typ, nil
		}
	}
	return "", fmt.Errorf("%w label %q", ErrUnknownMovementType, label)
}

// Label returns the display label, empty for unknown codes.
func (mt MovementType) Label() string {
	info, _ := movementLookup(mt)
	return info.label
}

// Direction returns whether mt adds or removes stock.
func (mt MovementType) Direction() Direction {
	info, _ := movementLookup(mt)
	return info.direction
}

// StockRecord holds the single running quantity and pricing of one product.
type StockRecord struct {
	ProductID            int64
	Quantity             decimal.Decimal
	CostPerUnit          decimal.Decimal
	PriceRetail          decimal.Decimal
	PriceWholesale       decimal.Decimal
	ReorderLevel         decimal.Decimal
	ReorderQuantity      decimal.Decimal
	LastMovementType     MovementType
	LastMovementQuantity decimal.Decimal
	LastRemark           string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// BelowReorder reports whether the quantity sits at or under the reorder level.
// A zero reorder level disables the check.
func (s StockRecord) BelowReorder() bool {
	return s.ReorderLevel.IsPositive() && s.Quantity.LessThanOrEqual(s.ReorderLevel)
}

// Movement is an immutable stock history entry.
type Movement struct {
	ID             uuid.UUID
	ProductID      int64
	Type           MovementType
	Quantity       decimal.Decimal
	Delta          decimal.Decimal
	QuantityBefore decimal.Decimal
	QuantityAfter  decimal.Decimal
	Remark         string
	RefKind        string
	RefID          string
	ActorID        int64
	PostedAt       time.Time
}

// ProvisionInput creates the stock row for a catalog product.
type ProvisionInput struct {
	ProductID       int64
	CostPerUnit     decimal.Decimal
	PriceRetail     decimal.Decimal
	PriceWholesale  decimal.Decimal
	ReorderLevel    decimal.Decimal
	ReorderQuantity decimal.Decimal
	// OpeningQuantity is posted as an Import movement when positive.
	OpeningQuantity decimal.Decimal
	ActorID         int64
}

// MovementInput posts a manual movement not caused by a line item.
type MovementInput struct {
	ProductID      int64
	Type           MovementType
	Quantity       decimal.Decimal
	Remark         string
	ActorID        int64
	IdempotencyKey string
}

// PricingInput changes prices and reorder thresholds. Nil fields are kept.
type PricingInput struct {
	ProductID       int64
	CostPerUnit     *decimal.Decimal
	PriceRetail     *decimal.Decimal
	PriceWholesale  *decimal.Decimal
	ReorderLevel    *decimal.Decimal
	ReorderQuantity *decimal.Decimal
	ActorID         int64
}

// StockFilter narrows ListStocks.
type StockFilter struct {
	ProductIDs []int64
	Limit      int
	Offset     int
}

// MovementFilter narrows the movement stream. Zero times leave the range open.
type MovementFilter struct {
	ProductID int64
	Types     []MovementType
	From      time.Time
	To        time.Time
	Limit     int
}

var (
	// ErrStockNotFound indicates the product has no stock record.
	ErrStockNotFound = fmt.Errorf("%w: inventory: stock record", shared.ErrNotFound)
	// ErrStockExists indicates the product was already provisioned.
	ErrStockExists = fmt.Errorf("%w: inventory: stock record already provisioned", shared.ErrValidation)
	// ErrInvalidQuantity indicates a negative quantity or one with more than two decimals.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be >= 0 with at most 2 decimals", shared.ErrValidation)
	// ErrInvalidPrice indicates a negative price or cost.
	ErrInvalidPrice = fmt.Errorf("%w: inventory: prices must be >= 0", shared.ErrValidation)
	// ErrUnknownMovementType indicates a code outside the closed set.
	ErrUnknownMovementType = fmt.Errorf("%w: inventory: unknown movement type", shared.ErrValidation)
	// ErrInsufficientStock indicates an outgoing movement larger than the quantity on hand.
	ErrInsufficientStock = fmt.Errorf("inventory: %w", shared.ErrInsufficientStock)
)
