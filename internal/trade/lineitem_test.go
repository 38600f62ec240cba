package trade

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

var testTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

var standardProduct = masterdata.Product{ID: 1, Code: "SUGAR-1KG", Name: "Sugar 1kg", TaxClass: tax.ClassStandard, Type: masterdata.ProductFinished, ActiveForSale: true}

func openTxn(kind Kind) Transaction {
	return Transaction{ID: 7, UUID: uuid.New(), Kind: kind, Status: StatusWaiting, ReceiptType: ReceiptSale,
		AmountWithTax: decimal.Zero, TaxAmount: decimal.Zero, TotalCost: decimal.Zero}
}

func stockOf(qty string) inventory.StockRecord {
	return inventory.StockRecord{
		ProductID:      1,
		Quantity:       d(qty),
		CostPerUnit:    d("7.50"),
		PriceRetail:    d("10.00"),
		PriceWholesale: d("9.00"),
	}
}

func TestLineLifecycleScenario(t *testing.T) {
	txn := openTxn(KindSale)
	stock := stockOf("100")

	line, eff, err := CreateLine(KindSale, txn, stock, standardProduct, LineInput{Quantity: d("10")}, testTime)
	require.NoError(t, err)
	require.True(t, line.ExtendedPrice.Equal(d("100.00")))
	require.True(t, line.TaxAmount.Equal(d("16.00")))
	require.True(t, line.Total.Equal(d("116.00")))
	require.True(t, eff.Stock.Quantity.Equal(d("90")))
	require.Len(t, eff.Movements, 1)
	require.Equal(t, inventory.MovementSale, eff.Movements[0].Type)
	require.Equal(t, "sale_line", eff.Movements[0].RefKind)
	require.Equal(t, line.UUID.String(), eff.Movements[0].RefID)
	txn = txn.WithTotals(txn.Totals().Add(eff.Delta))
	require.True(t, txn.AmountWithTax.Equal(d("116.00")))
	require.True(t, txn.TaxAmount.Equal(d("16.00")))

	edited, eff, err := UpdateLine(KindSale, txn, line, eff.Stock, standardProduct, LineChange{Quantity: dp("5")}, testTime)
	require.NoError(t, err)
	require.True(t, edited.Total.Equal(d("58.00")))
	require.True(t, eff.Stock.Quantity.Equal(d("95")))
	require.Len(t, eff.Movements, 2)
	require.Equal(t, inventory.MovementReturnIn, eff.Movements[0].Type)
	require.Equal(t, inventory.MovementSale, eff.Movements[1].Type)
	txn = txn.WithTotals(txn.Totals().Add(eff.Delta))
	require.True(t, txn.AmountWithTax.Equal(d("58.00")))
	require.True(t, txn.TaxAmount.Equal(d("8.00")))

	eff, err = DeleteLine(KindSale, txn, edited, eff.Stock, testTime)
	require.NoError(t, err)
	require.True(t, eff.Stock.Quantity.Equal(d("100")))
	txn = txn.WithTotals(txn.Totals().Add(eff.Delta))
	require.True(t, txn.Totals().IsZero())
}

func TestCreateLineAtExactlyAvailableStock(t *testing.T) {
	txn := openTxn(KindSale)
	_, eff, err := CreateLine(KindSale, txn, stockOf("10"), standardProduct, LineInput{Quantity: d("10")}, testTime)
	require.NoError(t, err)
	require.True(t, eff.Stock.Quantity.IsZero())

	_, _, err = CreateLine(KindSale, txn, stockOf("10"), standardProduct, LineInput{Quantity: d("10.01")}, testTime)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestCreateLineSellAvailableClamps(t *testing.T) {
	txn := openTxn(KindSale)
	line, eff, err := CreateLine(KindSale, txn, stockOf("3"), standardProduct, LineInput{Quantity: d("5"), SellAvailable: true}, testTime)
	require.NoError(t, err)
	require.True(t, line.Quantity.Equal(d("3")))
	require.True(t, eff.Stock.Quantity.IsZero())

	_, _, err = CreateLine(KindSale, txn, stockOf("0"), standardProduct, LineInput{Quantity: d("1"), SellAvailable: true}, testTime)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestCreateLineValidation(t *testing.T) {
	txn := openTxn(KindSale)
	stock := stockOf("10")
	for _, qty := range []string{"0", "-1", "1.005"} {
		_, _, err := CreateLine(KindSale, txn, stock, standardProduct, LineInput{Quantity: d(qty)}, testTime)
		require.ErrorIs(t, err, ErrInvalidQuantity, qty)
	}

	inactive := standardProduct
	inactive.ActiveForSale = false
	_, _, err := CreateLine(KindSale, txn, stock, inactive, LineInput{Quantity: d("1")}, testTime)
	require.ErrorIs(t, err, masterdata.ErrInactiveProduct)

	service := standardProduct
	service.Type = masterdata.ProductService
	_, _, err = CreateLine(KindSale, txn, stock, service, LineInput{Quantity: d("1")}, testTime)
	require.ErrorIs(t, err, masterdata.ErrNotStocked)

	_, _, err = CreateLine(KindPurchase, txn, stock, standardProduct, LineInput{Quantity: d("1")}, testTime)
	require.ErrorIs(t, err, ErrKindMismatch)

	closed := txn
	closed.Status = StatusApproved
	_, _, err = CreateLine(KindSale, closed, stock, standardProduct, LineInput{Quantity: d("1")}, testTime)
	require.ErrorIs(t, err, ErrTransactionClosed)
}

func TestWholesalePricing(t *testing.T) {
	line, _, err := CreateLine(KindSale, openTxn(KindSale), stockOf("10"), standardProduct, LineInput{Quantity: d("2"), Wholesale: true}, testTime)
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(d("9.00")))
	require.True(t, line.Total.Equal(d("20.88")))
	require.True(t, line.UnitCost.Equal(d("7.50")))
	require.True(t, line.Cost().Equal(d("15.00")))
}

func TestPurchaseLines(t *testing.T) {
	txn := openTxn(KindPurchase)
	line, eff, err := CreateLine(KindPurchase, txn, stockOf("4"), standardProduct, LineInput{Quantity: d("6"), UnitPrice: dp("8.25")}, testTime)
	require.NoError(t, err)
	require.True(t, line.UnitPrice.Equal(d("8.25")))
	require.True(t, line.UnitCost.Equal(d("8.25")))
	require.True(t, eff.Stock.Quantity.Equal(d("10")))
	require.Equal(t, inventory.MovementPurchase, eff.Movements[0].Type)
	txn = txn.WithTotals(txn.Totals().Add(eff.Delta))

	edited, eff, err := UpdateLine(KindPurchase, txn, line, eff.Stock, standardProduct, LineChange{Quantity: dp("2")}, testTime)
	require.NoError(t, err)
	require.True(t, edited.UnitPrice.Equal(d("8.25")), "price kept on edit")
	require.True(t, eff.Stock.Quantity.Equal(d("6")))
	require.Equal(t, inventory.MovementDiscarding, eff.Movements[0].Type)

	_, _, err = CreateLine(KindPurchase, txn, stockOf("4"), standardProduct, LineInput{Quantity: d("1"), UnitPrice: dp("-1")}, testTime)
	require.ErrorIs(t, err, ErrInvalidPrice)

	// received stock already sold cannot be reversed
	_, err = DeleteLine(KindPurchase, txn, line, stockOf("2"), testTime)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestUpdateLineKeepsCostSnapshot(t *testing.T) {
	txn := openTxn(KindSale)
	line, eff, err := CreateLine(KindSale, txn, stockOf("10"), standardProduct, LineInput{Quantity: d("2")}, testTime)
	require.NoError(t, err)
	txn = txn.WithTotals(txn.Totals().Add(eff.Delta))

	repriced := eff.Stock
	repriced.CostPerUnit = d("9.99")
	repriced.PriceRetail = d("12.00")
	edited, _, err := UpdateLine(KindSale, txn, line, repriced, standardProduct, LineChange{Quantity: dp("3")}, testTime)
	require.NoError(t, err)
	require.True(t, edited.UnitPrice.Equal(d("12.00")))
	require.True(t, edited.UnitCost.Equal(d("7.50")))
}

func TestUpdateLineFailureLeavesInputs(t *testing.T) {
	txn := openTxn(KindSale)
	line, eff, err := CreateLine(KindSale, txn, stockOf("10"), standardProduct, LineInput{Quantity: d("4")}, testTime)
	require.NoError(t, err)
	txn = txn.WithTotals(txn.Totals().Add(eff.Delta))

	_, _, err = UpdateLine(KindSale, txn, line, eff.Stock, standardProduct, LineChange{Quantity: dp("11")}, testTime)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, eff.Stock.Quantity.Equal(d("6")))
	require.True(t, line.Quantity.Equal(d("4")))

	other := txn
	other.ID = 99
	_, _, err = UpdateLine(KindSale, other, line, eff.Stock, standardProduct, LineChange{}, testTime)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestAggregateMatchesLinesAfterAnySequence(t *testing.T) {
	txn := openTxn(KindSale)
	stock := stockOf("500")
	reduced := standardProduct
	reduced.TaxClass = tax.ClassReduced
	lines := map[int64]LineItem{}
	nextID := int64(1)

	quantities := []string{"3", "1.25", "7.5", "0.33", "12", "2.01"}
	for i, q := range quantities {
		product := standardProduct
		if i%2 == 1 {
			product = reduced
		}
		line, eff, err := CreateLine(KindSale, txn, stock, product, LineInput{Quantity: d(q), Wholesale: i%3 == 0}, testTime)
		require.NoError(t, err)
		line.ID = nextID
		nextID++
		lines[line.ID] = line
		stock = eff.Stock
		txn = txn.WithTotals(txn.Totals().Add(eff.Delta))
	}
	for id, q := range map[int64]string{2: "4.44", 5: "1"} {
		product := standardProduct
		if lines[id].TaxClass == tax.ClassReduced {
			product = reduced
		}
		edited, eff, err := UpdateLine(KindSale, txn, lines[id], stock, product, LineChange{Quantity: dp(q)}, testTime)
		require.NoError(t, err)
		lines[id] = edited
		stock = eff.Stock
		txn = txn.WithTotals(txn.Totals().Add(eff.Delta))
	}
	eff, err := DeleteLine(KindSale, txn, lines[3], stock, testTime)
	require.NoError(t, err)
	delete(lines, 3)
	stock = eff.Stock
	txn = txn.WithTotals(txn.Totals().Add(eff.Delta))

	remaining := make([]LineItem, 0, len(lines))
	sold := decimal.Zero
	for _, l := range lines {
		remaining = append(remaining, l)
		sold = sold.Add(l.Quantity)
	}
	require.True(t, SumLines(remaining).Equal(txn.Totals()), fmt.Sprintf("%v != %v", SumLines(remaining), txn.Totals()))
	require.True(t, stock.Quantity.Add(sold).Equal(d("500")))
}

func TestAttachDetachRoundTrip(t *testing.T) {
	txn := openTxn(KindSale)
	stock := stockOf("42.5")
	line, eff, err := CreateLine(KindSale, txn, stock, standardProduct, LineInput{Quantity: d("17.25")}, testTime)
	require.NoError(t, err)
	after := txn.WithTotals(txn.Totals().Add(eff.Delta))

	back, err := DeleteLine(KindSale, after, line, eff.Stock, testTime)
	require.NoError(t, err)
	require.True(t, back.Stock.Quantity.Equal(stock.Quantity))
	require.True(t, after.Totals().Add(back.Delta).Equal(txn.Totals()))
}
