package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

// ReportLine is the contribution of one line item to a report.
type ReportLine struct {
	ProductID     int64           `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ExtendedPrice decimal.Decimal `json:"extended_price"`
	TaxClass      tax.Class       `json:"tax_class"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Cost          decimal.Decimal `json:"cost"`
	Profit        decimal.Decimal `json:"profit"`
}

// ReportEntry summarises one finalized transaction.
type ReportEntry struct {
	TransactionID   int64           `json:"transaction_id"`
	TransactionUUID uuid.UUID       `json:"transaction_uuid"`
	EmployeeID      int64           `json:"employee_id"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	ReceiptLabel    string          `json:"receipt_label"`
	AmountWithTax   decimal.Decimal `json:"amount_with_tax"`
	CreatedAt       time.Time       `json:"created_at"`
	Lines           []ReportLine    `json:"lines"`
	Sales           decimal.Decimal `json:"sales"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Profit          decimal.Decimal `json:"profit"`
}

// Report totals finalized transactions over a date range.
type Report struct {
	Kind          Kind            `json:"kind"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Entries       []ReportEntry   `json:"entries"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	AmountWithTax decimal.Decimal `json:"amount_with_tax"`
}

// BuildReport computes line cost and profit for txns. lines is keyed by
// transaction id.
func BuildReport(kind Kind, from, to time.Time, txns []Transaction, lines map[int64][]LineItem) Report {
	r := Report{
		Kind:          kind,
		From:          from,
		To:            to,
		Entries:       make([]ReportEntry, 0, len(txns)),
		TotalSales:    decimal.Zero,
		TotalTax:      decimal.Zero,
		TotalCost:     decimal.Zero,
		TotalProfit:   decimal.Zero,
		AmountWithTax: decimal.Zero,
	}
	for _, txn := range txns {
		entry := ReportEntry{
			TransactionID:   txn.ID,
			TransactionUUID: txn.UUID,
			EmployeeID:      txn.EmployeeID,
			PaymentMethod:   txn.PaymentMethod,
			ReceiptLabel:    receiptLabel(ReceiptNormal, txn.ReceiptType),
			AmountWithTax:   txn.AmountWithTax,
			CreatedAt:       txn.CreatedAt,
			Lines:           []ReportLine{},
			Sales:           decimal.Zero,
			TaxAmount:       decimal.Zero,
			Profit:          decimal.Zero,
		}
		for _, l := range lines[txn.ID] {
			cost := l.Cost()
			profit := l.UnitPrice.Sub(l.UnitCost).Mul(l.Quantity).RoundBank(2)
			entry.Lines = append(entry.Lines, ReportLine{
				ProductID:     l.ProductID,
				Quantity:      l.Quantity,
				UnitPrice:     l.UnitPrice,
				UnitCost:      l.UnitCost,
				ExtendedPrice: l.ExtendedPrice,
				TaxClass:      l.TaxClass,
				TaxAmount:     l.TaxAmount,
				Cost:          cost,
				Profit:        profit,
			})
			entry.Sales = entry.Sales.Add(l.ExtendedPrice)
			entry.TaxAmount = entry.TaxAmount.Add(l.TaxAmount)
			entry.Profit = entry.Profit.Add(profit)
			r.TotalCost = r.TotalCost.Add(cost)
		}
		r.TotalSales = r.TotalSales.Add(entry.Sales)
		r.TotalTax = r.TotalTax.Add(entry.TaxAmount)
		r.TotalProfit = r.TotalProfit.Add(entry.Profit)
		r.AmountWithTax = r.AmountWithTax.Add(txn.AmountWithTax)
		r.Entries = append(r.Entries, entry)
	}
	return r
}

// Report builds the report of transactions finalized and created in [from, to].
func (e *Engine) Report(ctx context.Context, kind Kind, from, to time.Time) (Report, error) {
	if err := requireKind(kind); err != nil {
		return Report{}, err
	}
	if from.IsZero() || to.IsZero() {
		return Report{}, fmt.Errorf("%w: trade: report requires from and to", shared.ErrValidation)
	}
	if from.After(to) {
		return Report{}, fmt.Errorf("%w: trade: from after to", shared.ErrValidation)
	}
	txns, lines, err := e.repo.FinalizedBetween(ctx, kind, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("trade: report: %w", err)
	}
	return BuildReport(kind, from, to, txns, lines), nil
}
