package trade

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// DefaultDenominations are the shilling notes and coins handed out as change.
var DefaultDenominations = []decimal.Decimal{
	decimal.NewFromInt(1000),
	decimal.NewFromInt(500),
	decimal.NewFromInt(200),
	decimal.NewFromInt(100),
	decimal.NewFromInt(50),
	decimal.NewFromInt(20),
	decimal.NewFromInt(10),
	decimal.NewFromInt(5),
	decimal.NewFromInt(1),
}

// DenominationCount is the number of pieces of one value.
type DenominationCount struct {
	Value decimal.Decimal `json:"value"`
	Count int64           `json:"count"`
}

// ChangeBreakdown splits change into pieces. Remainder is what no denomination
// can cover, typically cents.
type ChangeBreakdown struct {
	Change    decimal.Decimal     `json:"change"`
	Pieces    []DenominationCount `json:"pieces"`
	Remainder decimal.Decimal     `json:"remainder"`
}

// BreakDownChange greedily splits change into the largest denominations first.
// Empty denominations use DefaultDenominations.
func BreakDownChange(change decimal.Decimal, denominations []decimal.Decimal) (ChangeBreakdown, error) {
	if change.IsNegative() {
		return ChangeBreakdown{}, fmt.Errorf("%w: trade: change must be >= 0", shared.ErrValidation)
	}
	if len(denominations) == 0 {
		denominations = DefaultDenominations
	}
	values := make([]decimal.Decimal, 0, len(denominations))
	for _, d := range denominations {
		if !d.IsPositive() {
			return ChangeBreakdown{}, fmt.Errorf("%w: trade: denomination %s must be > 0", shared.ErrValidation, d)
		}
		values = append(values, d)
	}
	sort.Slice(values, func(i, j int) bool { return values[i].GreaterThan(values[j]) })

	out := ChangeBreakdown{Change: change, Pieces: []DenominationCount{}}
	left := change
	for i, v := range values {
		if i > 0 && v.Equal(values[i-1]) {
			continue
		}
		n := left.Div(v).Floor()
		if !n.IsPositive() {
			continue
		}
		out.Pieces = append(out.Pieces, DenominationCount{Value: v, Count: n.IntPart()})
		left = left.Sub(v.Mul(n))
	}
	out.Remainder = left
	return out, nil
}

// ChangeBreakdown splits the change of a finalized transaction.
func (e *Engine) ChangeBreakdown(ctx context.Context, kind Kind, id int64, denominations []decimal.Decimal) (ChangeBreakdown, error) {
	txn, err := e.Get(ctx, kind, id)
	if err != nil {
		return ChangeBreakdown{}, err
	}
	if txn.Status != StatusApproved {
		return ChangeBreakdown{}, ErrNotFinalized
	}
	return BreakDownChange(txn.Change, denominations)
}
