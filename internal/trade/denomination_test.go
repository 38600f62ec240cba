package trade

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestBreakDownChange(t *testing.T) {
	cases := []struct {
		name      string
		change    string
		denoms    []decimal.Decimal
		pieces    []DenominationCount
		remainder string
	}{
		{
			name:      "zero",
			change:    "0",
			pieces:    []DenominationCount{},
			remainder: "0",
		},
		{
			name:   "default notes with cents left",
			change: "1786.40",
			pieces: []DenominationCount{
				{Value: d("1000"), Count: 1},
				{Value: d("500"), Count: 1},
				{Value: d("200"), Count: 1},
				{Value: d("50"), Count: 1},
				{Value: d("20"), Count: 1},
				{Value: d("10"), Count: 1},
				{Value: d("5"), Count: 1},
				{Value: d("1"), Count: 1},
			},
			remainder: "0.4",
		},
		{
			name:   "custom unordered with duplicates",
			change: "0.85",
			denoms: []decimal.Decimal{d("0.05"), d("0.50"), d("0.10"), d("0.50")},
			pieces: []DenominationCount{
				{Value: d("0.50"), Count: 1},
				{Value: d("0.10"), Count: 3},
				{Value: d("0.05"), Count: 1},
			},
			remainder: "0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := BreakDownChange(d(tc.change), tc.denoms)
			require.NoError(t, err)
			require.Len(t, out.Pieces, len(tc.pieces))
			for i, want := range tc.pieces {
				require.True(t, want.Value.Equal(out.Pieces[i].Value), "piece %d value %s", i, out.Pieces[i].Value)
				require.Equal(t, want.Count, out.Pieces[i].Count, "piece %d", i)
			}
			require.True(t, out.Remainder.Equal(d(tc.remainder)), "remainder %s", out.Remainder)

			sum := out.Remainder
			for _, p := range out.Pieces {
				sum = sum.Add(p.Value.Mul(decimal.NewFromInt(p.Count)))
			}
			require.True(t, sum.Equal(d(tc.change)))
		})
	}
}

func TestBreakDownChangeRejectsBadInput(t *testing.T) {
	_, err := BreakDownChange(d("-1"), nil)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = BreakDownChange(d("10"), []decimal.Decimal{d("5"), d("0")})
	require.ErrorIs(t, err, shared.ErrValidation)
}
