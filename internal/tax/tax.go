// Package tax computes tax-inclusive amounts for the closed set of tax classes
// printed on receipts.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Class identifies a tax class by its wire code.
type Class string

const (
	// ClassExempt is exempt from tax.
	ClassExempt Class = "A"
	// ClassStandard is the standard 16% rate.
	ClassStandard Class = "B_16"
	// ClassZeroRated is taxable at 0%.
	ClassZeroRated Class = "C"
	// ClassNonVAT is outside the VAT scope.
	ClassNonVAT Class = "D"
	// ClassReduced is the reduced 8% rate.
	ClassReduced Class = "E"
)

// ErrInvalidClass is returned for codes outside the closed set.
var ErrInvalidClass = fmt.Errorf("%w: tax: invalid tax class", shared.ErrValidation)

type classInfo struct {
	class Class
	label string
	rate  decimal.Decimal
}

var table = []classInfo{
	{ClassExempt, "A-Exempt", decimal.Zero},
	{ClassStandard, "B-16%", decimal.RequireFromString("0.16")},
	{ClassZeroRated, "C-0%", decimal.Zero},
	{ClassNonVAT, "D-Non-VAT", decimal.Zero},
	{ClassReduced, "E-8%", decimal.RequireFromString("0.08")},
}

func lookup(c Class) (classInfo, bool) {
	for _, info := range table {
		if info.class == c {
			return info, true
		}
	}
	return classInfo{}, false
}

// Classes lists every tax class in receipt order.
func Classes() []Class {
	out := make([]Class, len(table))
	for i, info := range table {
		out[i] = info.class
	}
	return out
}

// ParseClass maps a wire code to a Class.
func ParseClass(code string) (Class, error) {
	if _, ok := lookup(Class(code)); !ok {
		return "", fmt.Errorf("%w %q", ErrInvalidClass, code)
	}
	return Class(code), nil
}

// ParseLabel maps a receipt label such as "B-16%" to a Class.
func ParseLabel(label string) (Class, error) {
	for _, info := range table {
		if info.label == label {
			return info.class, nil
		}
	}
	return "", fmt.Errorf("%w label %q", ErrInvalidClass, label)
}

// Valid reports whether c belongs to the closed set.
func (c Class) Valid() bool {
	_, ok := lookup(c)
	return ok
}

// Label returns the receipt label, empty for unknown classes.
func (c Class) Label() string {
	info, _ := lookup(c)
	return info.label
}

// Rate returns the fractional rate of c.
func (c Class) Rate() (decimal.Decimal, error) {
	info, ok := lookup(c)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w %q", ErrInvalidClass, string(c))
	}
	return info.rate, nil
}

// TotalWithTax returns the tax amount on base and the tax-inclusive total.
// The tax amount is rounded half-even to two decimal places and total is
// always base plus that rounded amount.
func TotalWithTax(base decimal.Decimal, class Class) (taxAmount, total decimal.Decimal, err error) {
	rate, err := class.Rate()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	raw := base.Mul(decimal.NewFromInt(1).Add(rate))
	taxAmount = raw.Sub(base).RoundBank(2)
	return taxAmount, base.Add(taxAmount), nil
}
