package trade

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

// Party is the counterparty printed on a receipt.
type Party struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	TaxPIN string `json:"tax_pin,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// ReceiptLine is one printed line.
type ReceiptLine struct {
	ProductID        int64           `json:"product_id"`
	ProductCode      string          `json:"product_code"`
	ProductName      string          `json:"product_name"`
	Description      string          `json:"description,omitempty"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Quantity         decimal.Decimal `json:"quantity"`
	AmountWithoutTax decimal.Decimal `json:"amount_without_tax"`
	TaxClass         tax.Class       `json:"tax_class"`
	TaxLabel         string          `json:"tax_label"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	Total            decimal.Decimal `json:"total"`
}

// TaxSummary totals the lines of one tax class.
type TaxSummary struct {
	Class     tax.Class       `json:"class"`
	Label     string          `json:"label"`
	Rate      decimal.Decimal `json:"rate"`
	Taxable   decimal.Decimal `json:"taxable"`
	TaxAmount decimal.Decimal `json:"tax_amount"`
}

// Receipt is the immutable snapshot issued when a transaction is finalized.
type Receipt struct {
	TransactionID    int64               `json:"transaction_id"`
	TransactionUUID  uuid.UUID           `json:"transaction_uuid"`
	Kind             Kind                `json:"kind"`
	ReceiptType      ReceiptType         `json:"receipt_type"`
	ReceiptKind      ReceiptKind         `json:"receipt_kind"`
	Label            string              `json:"label"`
	Business         masterdata.Business `json:"business"`
	CashierID        int64               `json:"cashier_id"`
	Cashier          string              `json:"cashier"`
	Counterparty     *Party              `json:"counterparty,omitempty"`
	Lines            []ReceiptLine       `json:"lines"`
	TaxSummary       []TaxSummary        `json:"tax_summary"`
	AmountWithoutTax decimal.Decimal     `json:"amount_without_tax"`
	TaxAmount        decimal.Decimal     `json:"tax_amount"`
	AmountWithTax    decimal.Decimal     `json:"amount_with_tax"`
	PaymentMethod    PaymentMethod       `json:"payment_method"`
	PaymentLabel     string              `json:"payment_label"`
	AmountTendered   decimal.Decimal     `json:"amount_tendered"`
	Change           decimal.Decimal     `json:"change"`
	IssuedAt         time.Time           `json:"issued_at"`
	Fingerprint      string              `json:"fingerprint"`
}

// receiptLabel combines the receipt kind and type, for example "NS".
func receiptLabel(k ReceiptKind, t ReceiptType) string {
	return string(k) + string(t)
}

// AsCopy returns r marked as a reprint. The fingerprint is unchanged because it
// does not cover the receipt kind.
func (r Receipt) AsCopy() Receipt {
	r.ReceiptKind = ReceiptCopy
	r.Label = receiptLabel(r.ReceiptKind, r.ReceiptType)
	return r
}

// ComputeFingerprint hashes the canonical JSON of r without its kind, label
// and fingerprint.
func ComputeFingerprint(r Receipt) (string, error) {
	r.ReceiptKind = ""
	r.Label = ""
	r.Fingerprint = ""
	raw, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether the fingerprint matches the content.
func (r Receipt) Verify() bool {
	fp, err := ComputeFingerprint(r)
	return err == nil && fp == r.Fingerprint
}

type receiptParts struct {
	business     masterdata.Business
	employee     masterdata.Employee
	counterparty *Party
	products     map[int64]masterdata.Product
}

func (e *Engine) loadReceiptParts(ctx context.Context, txn Transaction, lines []LineItem) (receiptParts, error) {
	parts := receiptParts{products: make(map[int64]masterdata.Product, len(lines))}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := e.directory.Business(ctx, txn.BusinessID)
		if err != nil {
			return err
		}
		parts.business = b
		return nil
	})
	g.Go(func() error {
		emp, err := e.directory.Employee(ctx, txn.EmployeeID)
		if err != nil {
			return err
		}
		parts.employee = emp
		return nil
	})
	if txn.CounterpartyID != 0 {
		g.Go(func() error {
			if txn.Kind == KindSale {
				c, err := e.directory.Customer(ctx, txn.CounterpartyID)
				if err != nil {
					return err
				}
				parts.counterparty = &Party{ID: c.ID, Name: c.Name, TaxPIN: c.TaxPIN, Phone: c.Phone}
				return nil
			}
			s, err := e.directory.Supplier(ctx, txn.CounterpartyID)
			if err != nil {
				return err
			}
			parts.counterparty = &Party{ID: s.ID, Name: s.Name, TaxPIN: s.TaxPIN, Phone: s.Phone}
			return nil
		})
	}
	seen := map[int64]bool{}
	for _, l := range lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		productID := l.ProductID
		g.Go(func() error {
			p, err := e.catalog.Product(ctx, productID)
			if err != nil {
				return err
			}
			mu.Lock()
			parts.products[productID] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return receiptParts{}, err
	}
	return parts, nil
}

// buildReceipt assembles the normal receipt of a finalized transaction.
func (e *Engine) buildReceipt(ctx context.Context, txn Transaction, lines []LineItem) (Receipt, error) {
	parts, err := e.loadReceiptParts(ctx, txn, lines)
	if err != nil {
		return Receipt{}, err
	}
	issuedAt := txn.UpdatedAt
	if txn.PaidAt != nil {
		issuedAt = *txn.PaidAt
	}
	r := Receipt{
		TransactionID:    txn.ID,
		TransactionUUID:  txn.UUID,
		Kind:             txn.Kind,
		ReceiptType:      txn.ReceiptType,
		ReceiptKind:      ReceiptNormal,
		Label:            receiptLabel(ReceiptNormal, txn.ReceiptType),
		Business:         parts.business,
		CashierID:        parts.employee.ID,
		Cashier:          parts.employee.FullName,
		Counterparty:     parts.counterparty,
		Lines:            make([]ReceiptLine, 0, len(lines)),
		AmountWithoutTax: decimal.Zero,
		TaxAmount:        txn.TaxAmount,
		AmountWithTax:    txn.AmountWithTax,
		PaymentMethod:    txn.PaymentMethod,
		PaymentLabel:     txn.PaymentMethod.Label(),
		AmountTendered:   txn.AmountTendered,
		Change:           txn.Change,
		IssuedAt:         issuedAt.UTC().Truncate(time.Microsecond),
	}
	summary := map[tax.Class]*TaxSummary{}
	for _, l := range lines {
		p := parts.products[l.ProductID]
		r.Lines = append(r.Lines, ReceiptLine{
			ProductID:        l.ProductID,
			ProductCode:      p.Code,
			ProductName:      p.Name,
			Description:      p.Description,
			UnitPrice:        l.UnitPrice,
			Quantity:         l.Quantity,
			AmountWithoutTax: l.ExtendedPrice,
			TaxClass:         l.TaxClass,
			TaxLabel:         l.TaxClass.Label(),
			TaxAmount:        l.TaxAmount,
			Total:            l.Total,
		})
		r.AmountWithoutTax = r.AmountWithoutTax.Add(l.ExtendedPrice)
		row, ok := summary[l.TaxClass]
		if !ok {
			rate, err := l.TaxClass.Rate()
			if err != nil {
				return Receipt{}, err
			}
			row = &TaxSummary{Class: l.TaxClass, Label: l.TaxClass.Label(), Rate: rate, Taxable: decimal.Zero, TaxAmount: decimal.Zero}
			summary[l.TaxClass] = row
		}
		row.Taxable = row.Taxable.Add(l.ExtendedPrice)
		row.TaxAmount = row.TaxAmount.Add(l.TaxAmount)
	}
	r.TaxSummary = make([]TaxSummary, 0, len(summary))
	for _, row := range summary {
		r.TaxSummary = append(r.TaxSummary, *row)
	}
	sort.Slice(r.TaxSummary, func(i, j int) bool { return r.TaxSummary[i].Class < r.TaxSummary[j].Class })

	fp, err := ComputeFingerprint(r)
	if err != nil {
		return Receipt{}, err
	}
	r.Fingerprint = fp
	return r, nil
}

const receiptWidth = 44

// Text renders the receipt for a plain text printer.
func (r Receipt) Text() string {
	p := message.NewPrinter(language.English)
	money := func(d decimal.Decimal) string {
		return p.Sprint(number.Decimal(d.InexactFloat64(), number.Scale(2)))
	}
	var b strings.Builder
	rule := strings.Repeat("-", receiptWidth) + "\n"
	row := func(left, right string) {
		pad := receiptWidth - len(left) - len(right)
		if pad < 1 {
			pad = 1
		}
		b.WriteString(left + strings.Repeat(" ", pad) + right + "\n")
	}

	b.WriteString(strings.ToUpper(r.Business.Name) + "\n")
	if r.Business.Address != "" {
		b.WriteString(r.Business.Address + "\n")
	}
	if r.Business.TaxPIN != "" {
		b.WriteString("PIN: " + r.Business.TaxPIN + "\n")
	}
	if r.Business.Phone != "" || r.Business.Email != "" {
		b.WriteString(strings.TrimSpace(r.Business.Phone+" "+r.Business.Email) + "\n")
	}
	b.WriteString(rule)
	row(r.Label+" "+r.ReceiptKind.Label()+" "+r.ReceiptType.Label(), r.IssuedAt.Format("2006-01-02 15:04"))
	b.WriteString(r.TransactionUUID.String() + "\n")
	b.WriteString("Cashier: " + r.Cashier + "\n")
	if r.Counterparty != nil {
		who := "Customer"
		if r.Kind == KindPurchase {
			who = "Supplier"
		}
		line := who + ": " + r.Counterparty.Name
		if r.Counterparty.TaxPIN != "" {
			line += " (" + r.Counterparty.TaxPIN + ")"
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(rule)
	for _, l := range r.Lines {
		b.WriteString(l.ProductName + "\n")
		row(fmt.Sprintf("  %s x %s", l.Quantity.String(), money(l.UnitPrice)), money(l.Total)+" "+l.TaxLabel)
	}
	b.WriteString(rule)
	for _, s := range r.TaxSummary {
		row(fmt.Sprintf("%s %s%%", s.Label, s.Rate.Mul(decimal.NewFromInt(100)).String()), money(s.Taxable)+" / "+money(s.TaxAmount))
	}
	row("SUBTOTAL", money(r.AmountWithoutTax))
	row("TAX", money(r.TaxAmount))
	row("TOTAL", money(r.AmountWithTax))
	b.WriteString(rule)
	row(r.PaymentLabel, money(r.AmountTendered))
	row("CHANGE", money(r.Change))
	b.WriteString(rule)
	fp := r.Fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	b.WriteString("FP " + fp + "\n")
	return b.String()
}
