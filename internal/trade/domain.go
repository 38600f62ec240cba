// Package trade keeps sale and purchase aggregates consistent with their line
// items and the stock ledger. Sales and purchases share one engine
// parameterised by Kind.
package trade

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

// Kind selects the sales or purchase path.
type Kind string

const (
	// KindSale sells stock to a customer.
	KindSale Kind = "sale"
	// KindPurchase receives stock from a supplier.
	KindPurchase Kind = "purchase"
)

// ParseKind accepts the singular or plural form used in URLs.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(raw) {
	case "sale", "sales":
		return KindSale, nil
	case "purchase", "purchases":
		return KindPurchase, nil
	}
	return "", fmt.Errorf("%w: trade: unknown kind %q", shared.ErrValidation, raw)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindSale || k == KindPurchase }

// ForwardMovement is the movement a new line posts.
func (k Kind) ForwardMovement() inventory.MovementType {
	if k == KindPurchase {
		return inventory.MovementPurchase
	}
	return inventory.MovementSale
}

// ReversalMovement cancels the forward movement of a line on edit or detach.
func (k Kind) ReversalMovement() inventory.MovementType {
	if k == KindPurchase {
		return inventory.MovementDiscarding
	}
	return inventory.MovementReturnIn
}

func (k Kind) lineRef() string { return string(k) + "_line" }

// Status follows the approval progress of a transaction.
type Status string

const (
	StatusWaiting             Status = "01"
	StatusApproved            Status = "02"
	StatusCreditNoteRequested Status = "03"
	StatusCancelled           Status = "04"
	StatusCreditNoteGenerated Status = "05"
	StatusTransferred         Status = "06"
)

var statusLabels = []struct {
	status Status
	label  string
}{
	{StatusWaiting, "Wait for Approval"},
	{StatusApproved, "Approved"},
	{StatusCreditNoteRequested, "Credit Note Requested"},
	{StatusCancelled, "Cancelled"},
	{StatusCreditNoteGenerated, "Credit Note Generated"},
	{StatusTransferred, "Transferred"},
}

// Label returns the display label of s.
func (s Status) Label() string {
	for _, row := range statusLabels {
		if row.status == s {
			return row.label
		}
	}
	return ""
}

// ParseStatus maps a wire code to a Status.
func ParseStatus(code string) (Status, error) {
	if Status(code).Label() == "" {
		return "", fmt.Errorf("%w: trade: unknown status %q", shared.ErrValidation, code)
	}
	return Status(code), nil
}

// ReceiptType distinguishes sale receipts from credit notes.
type ReceiptType string

const (
	ReceiptSale       ReceiptType = "S"
	ReceiptCreditNote ReceiptType = "C"
)

// Label returns the display label of t.
func (t ReceiptType) Label() string {
	switch t {
	case ReceiptSale:
		return "Sale"
	case ReceiptCreditNote:
		return "Credit Note"
	}
	return ""
}

// ReceiptKind marks how a receipt was issued.
type ReceiptKind string

const (
	ReceiptCopy     ReceiptKind = "C"
	ReceiptNormal   ReceiptKind = "N"
	ReceiptProforma ReceiptKind = "P"
	ReceiptTraining ReceiptKind = "T"
)

// Label returns the display label of k.
func (k ReceiptKind) Label() string {
	switch k {
	case ReceiptCopy:
		return "Copy"
	case ReceiptNormal:
		return "Normal"
	case ReceiptProforma:
		return "Proforma"
	case ReceiptTraining:
		return "Training"
	}
	return ""
}

// PaymentMethod is the settlement channel recorded at finalization.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "01"
	PaymentCredit      PaymentMethod = "02"
	PaymentCashCredit  PaymentMethod = "03"
	PaymentBankCheck   PaymentMethod = "04"
	PaymentCard        PaymentMethod = "05"
	PaymentMobileMoney PaymentMethod = "06"
	PaymentOther       PaymentMethod = "07"
)

var paymentLabels = []struct {
	method PaymentMethod
	label  string
}{
	{PaymentCash, "CASH"},
	{PaymentCredit, "CREDIT"},
	{PaymentCashCredit, "CASH/CREDIT"},
	{PaymentBankCheck, "BANK CHECK"},
	{PaymentCard, "DEBIT AND CREDIT CARD"},
	{PaymentMobileMoney, "MOBILE MONEY"},
	{PaymentOther, "OTHER"},
}

// PaymentMethods lists every method in code order.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(paymentLabels))
	for i, row := range paymentLabels {
		out[i] = row.method
	}
	return out
}

// ParsePaymentMethod maps a wire code to a PaymentMethod.
func ParsePaymentMethod(code string) (PaymentMethod, error) {
	if PaymentMethod(code).Label() == "" {
		return "", fmt.Errorf("%w: trade: unknown payment method %q", shared.ErrValidation, code)
	}
	return PaymentMethod(code), nil
}

// ParsePaymentLabel maps a display label to a PaymentMethod.
func ParsePaymentLabel(label string) (PaymentMethod, error) {
	for _, row := range paymentLabels {
		if row.label == label {
			return row.method, nil
		}
	}
	return "", fmt.Errorf("%w: trade: unknown payment label %q", shared.ErrValidation, label)
}

// Label returns the display label of m.
func (m PaymentMethod) Label() string {
	for _, row := range paymentLabels {
		if row.method == m {
			return row.label
		}
	}
	return ""
}

// IsCashBased reports whether the customer hands over cash and may get change.
func (m PaymentMethod) IsCashBased() bool {
	return m == PaymentCash || m == PaymentCashCredit
}

// Totals are the running aggregate amounts of a transaction.
type Totals struct {
	AmountWithTax decimal.Decimal `json:"amount_with_tax"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Cost          decimal.Decimal `json:"cost"`
}

// Add returns t + o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		AmountWithTax: t.AmountWithTax.Add(o.AmountWithTax),
		TaxAmount:     t.TaxAmount.Add(o.TaxAmount),
		Cost:          t.Cost.Add(o.Cost),
	}
}

// Sub returns t - o.
func (t Totals) Sub(o Totals) Totals {
	return t.Add(o.Neg())
}

// Neg returns -t.
func (t Totals) Neg() Totals {
	return Totals{AmountWithTax: t.AmountWithTax.Neg(), TaxAmount: t.TaxAmount.Neg(), Cost: t.Cost.Neg()}
}

// Equal compares amounts numerically.
func (t Totals) Equal(o Totals) bool {
	return t.AmountWithTax.Equal(o.AmountWithTax) && t.TaxAmount.Equal(o.TaxAmount) && t.Cost.Equal(o.Cost)
}

// IsZero reports whether every amount is zero.
func (t Totals) IsZero() bool {
	return t.AmountWithTax.IsZero() && t.TaxAmount.IsZero() && t.Cost.IsZero()
}

// LineItem is one product quantity inside a transaction.
type LineItem struct {
	ID            int64
	UUID          uuid.UUID
	Kind          Kind
	TransactionID int64
	ProductID     int64
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	ExtendedPrice decimal.Decimal
	TaxClass      tax.Class
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
	// UnitCost is the cost per unit captured when the line was priced.
	UnitCost  decimal.Decimal
	Wholesale bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cost is the cost of goods carried by the line.
func (l LineItem) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost).RoundBank(2)
}

// Totals is the contribution of the line to its transaction.
func (l LineItem) Totals() Totals {
	return Totals{AmountWithTax: l.Total, TaxAmount: l.TaxAmount, Cost: l.Cost()}
}

// Transaction is a sale or purchase aggregate.
type Transaction struct {
	ID             int64
	UUID           uuid.UUID
	Kind           Kind
	Status         Status
	ReceiptType    ReceiptType
	AmountWithTax  decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalCost      decimal.Decimal
	BusinessID     int64
	CounterpartyID int64
	EmployeeID     int64
	PaymentMethod  PaymentMethod
	AmountTendered decimal.Decimal
	Change         decimal.Decimal
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Totals returns the running aggregate amounts.
func (t Transaction) Totals() Totals {
	return Totals{AmountWithTax: t.AmountWithTax, TaxAmount: t.TaxAmount, Cost: t.TotalCost}
}

// WithTotals returns t carrying totals.
func (t Transaction) WithTotals(totals Totals) Transaction {
	t.AmountWithTax = totals.AmountWithTax
	t.TaxAmount = totals.TaxAmount
	t.TotalCost = totals.Cost
	return t
}

// Open reports whether lines may still be attached, edited or detached.
func (t Transaction) Open() bool { return t.Status == StatusWaiting }

// SumLines totals lines; the aggregate of a consistent transaction equals it.
func SumLines(lines []LineItem) Totals {
	sum := Totals{AmountWithTax: decimal.Zero, TaxAmount: decimal.Zero, Cost: decimal.Zero}
	for _, l := range lines {
		sum = sum.Add(l.Totals())
	}
	return sum
}

// OpenInput creates an empty transaction.
type OpenInput struct {
	Kind           Kind
	BusinessID     int64
	CounterpartyID int64
	EmployeeID     int64
	ReceiptType    ReceiptType
}

// AttachInput adds a line to an open transaction.
type AttachInput struct {
	Kind          Kind
	TransactionID int64
	ProductID     int64
	Quantity      decimal.Decimal
	Wholesale     bool
	// UnitPrice overrides the stock cost on purchases.
	UnitPrice *decimal.Decimal
	// SellAvailable sells whatever stock is left instead of failing.
	SellAvailable bool
	ActorID       int64
}

// EditInput changes a line. Nil fields keep the current value.
type EditInput struct {
	Kind          Kind
	TransactionID int64
	LineID        int64
	Quantity      *decimal.Decimal
	Wholesale     *bool
	UnitPrice     *decimal.Decimal
	SellAvailable bool
	ActorID       int64
}

// DetachInput removes a line.
type DetachInput struct {
	Kind          Kind
	TransactionID int64
	LineID        int64
	ActorID       int64
}

// FinalizeInput approves a transaction and settles payment.
type FinalizeInput struct {
	Kind           Kind
	TransactionID  int64
	PaymentMethod  PaymentMethod
	AmountTendered decimal.Decimal
	ActorID        int64
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	Kind    Kind
	Status  Status
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

var (
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = fmt.Errorf("%w: trade: transaction", shared.ErrNotFound)
	// ErrLineNotFound indicates an unknown line id or a line of another transaction.
	ErrLineNotFound = fmt.Errorf("%w: trade: line item", shared.ErrNotFound)
	// ErrTransactionClosed indicates the transaction is no longer open for changes.
	ErrTransactionClosed = fmt.Errorf("%w: trade: transaction is not open", shared.ErrValidation)
	// ErrInvalidQuantity indicates a non-positive quantity or more than two decimals.
	ErrInvalidQuantity = fmt.Errorf("%w: trade: quantity must be > 0 with at most 2 decimals", shared.ErrValidation)
	// ErrInvalidPrice indicates a negative unit price.
	ErrInvalidPrice = fmt.Errorf("%w: trade: unit price must be >= 0", shared.ErrValidation)
	// ErrKindMismatch indicates a line or transaction of the other kind.
	ErrKindMismatch = fmt.Errorf("%w: trade: kind mismatch", shared.ErrValidation)
	// ErrEmptyTransaction indicates finalization without lines.
	ErrEmptyTransaction = fmt.Errorf("%w: trade: transaction has no lines", shared.ErrValidation)
	// ErrInsufficientPayment indicates cash tendered below the amount due.
	ErrInsufficientPayment = fmt.Errorf("%w: trade: amount tendered is below amount due", shared.ErrValidation)
	// ErrNotFinalized indicates a receipt request for an open transaction.
	ErrNotFinalized = fmt.Errorf("%w: trade: transaction is not finalized", shared.ErrValidation)
	// ErrInsufficientStock wraps the ledger failure for line operations.
	ErrInsufficientStock = fmt.Errorf("trade: %w", shared.ErrInsufficientStock)
)
