package inventory

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestMovementTable(t *testing.T) {
	codes := []string{"01", "02", "03", "04", "05", "06", "11", "12", "13", "14", "15", "16"}
	types := MovementTypes()
	require.Len(t, types, len(codes))
	for i, code := range codes {
		require.Equal(t, MovementType(code), types[i])
		mt, err := ParseMovementType(code)
		require.NoError(t, err)
		byLabel, err := ParseMovementLabel(mt.Label())
		require.NoError(t, err)
		require.Equal(t, mt, byLabel)
		if code[0] == '0' {
			require.Equal(t, DirectionIn, mt.Direction(), code)
		} else {
			require.Equal(t, DirectionOut, mt.Direction(), code)
		}
	}
	require.Equal(t, "Incoming-Return", MovementReturnIn.Label())
	require.Equal(t, "outgoing-Discarding", MovementDiscarding.Label())

	_, err := ParseMovementType("07")
	require.ErrorIs(t, err, ErrUnknownMovementType)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, DirectionUnknown, MovementType("99").Direction())
}

func TestApplyIncomingAndOutgoing(t *testing.T) {
	stock := StockRecord{ProductID: 1, Quantity: d("10")}

	next, mv, err := Apply(stock, MovementPurchase, d("5.50"), "grn 12", testTime)
	require.NoError(t, err)
	require.True(t, next.Quantity.Equal(d("15.50")))
	require.True(t, mv.QuantityBefore.Equal(d("10")))
	require.True(t, mv.QuantityAfter.Equal(d("15.50")))
	require.True(t, mv.Delta.Equal(d("5.50")))
	require.Equal(t, "grn 12", next.LastRemark)
	require.Equal(t, MovementPurchase, next.LastMovementType)
	require.True(t, stock.Quantity.Equal(d("10")), "input stock must not change")

	next, mv, err = Apply(next, MovementSale, d("15.50"), "sale", testTime)
	require.NoError(t, err)
	require.True(t, next.Quantity.IsZero())
	require.True(t, mv.Delta.Equal(d("-15.50")))
	require.True(t, mv.Quantity.Equal(d("15.50")))
	require.Equal(t, testTime, mv.PostedAt)
}

func TestApplyRejectsOversell(t *testing.T) {
	stock := StockRecord{ProductID: 3, Quantity: d("5")}
	for _, mt := range MovementTypes() {
		if mt.Direction() != DirectionOut {
			continue
		}
		got, _, err := Apply(stock, mt, d("5.01"), "", testTime)
		require.ErrorIs(t, err, ErrInsufficientStock, mt)
		require.ErrorIs(t, err, shared.ErrInsufficientStock)
		require.True(t, got.Quantity.Equal(d("5")))
	}
}

func TestApplyValidation(t *testing.T) {
	stock := StockRecord{ProductID: 1, Quantity: d("1")}
	_, _, err := Apply(stock, MovementImport, d("-1"), "", testTime)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = Apply(stock, MovementImport, d("1.005"), "", testTime)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = Apply(stock, MovementType("10"), d("1"), "", testTime)
	require.ErrorIs(t, err, ErrUnknownMovementType)

	next, _, err := Apply(stock, MovementAdjustmentIn, d("0"), "noop", testTime)
	require.NoError(t, err)
	require.True(t, next.Quantity.Equal(d("1")))
}

func TestClampOutgoing(t *testing.T) {
	stock := StockRecord{Quantity: d("3")}
	require.True(t, ClampOutgoing(stock, d("5")).Equal(d("3")))
	require.True(t, ClampOutgoing(stock, d("2")).Equal(d("2")))
	require.True(t, ClampOutgoing(StockRecord{Quantity: d("-1")}, d("2")).IsZero())
}

func TestStockConservation(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	types := MovementTypes()
	stock := StockRecord{ProductID: 9, Quantity: d("20")}
	initial := stock.Quantity
	in, out := decimal.Zero, decimal.Zero
	for i := 0; i < 500; i++ {
		mt := types[rng.IntN(len(types))]
		qty := decimal.New(int64(rng.IntN(1000)), -2)
		next, mv, err := Apply(stock, mt, qty, "", testTime)
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientStock)
			require.True(t, qty.GreaterThan(stock.Quantity))
			continue
		}
		require.True(t, mv.QuantityAfter.Equal(mv.QuantityBefore.Add(mv.Delta)))
		require.False(t, next.Quantity.IsNegative())
		if mt.Direction() == DirectionIn {
			in = in.Add(qty)
		} else {
			out = out.Add(qty)
		}
		stock = next
	}
	require.True(t, stock.Quantity.Equal(initial.Add(in).Sub(out)))
}

func TestBelowReorder(t *testing.T) {
	require.True(t, StockRecord{Quantity: d("5"), ReorderLevel: d("5")}.BelowReorder())
	require.False(t, StockRecord{Quantity: d("6"), ReorderLevel: d("5")}.BelowReorder())
	require.False(t, StockRecord{Quantity: d("0")}.BelowReorder())
}
