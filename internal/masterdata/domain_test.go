package masterdata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

func TestProductTypeLabels(t *testing.T) {
	require.Equal(t, "Raw Material", ProductRawMaterial.Label())
	require.Equal(t, "Finished Product", ProductFinished.Label())
	require.Equal(t, "Service Without Stock", ProductService.Label())
	require.Empty(t, ProductType("9").Label())
	require.True(t, ProductFinished.Stocked())
	require.False(t, ProductService.Stocked())
}

func TestRequireSellable(t *testing.T) {
	p := Product{ID: 1, Code: "SKU-1", TaxClass: tax.ClassStandard, Type: ProductFinished, ActiveForSale: true}
	require.NoError(t, RequireSellable(p))

	inactive := p
	inactive.ActiveForSale = false
	require.ErrorIs(t, RequireSellable(inactive), ErrInactiveProduct)
	require.NoError(t, RequireStocked(inactive))

	service := p
	service.Type = ProductService
	require.ErrorIs(t, RequireStocked(service), ErrNotStocked)
	require.ErrorIs(t, RequireSellable(service), shared.ErrValidation)

	badTax := p
	badTax.TaxClass = "Z"
	require.ErrorIs(t, RequireStocked(badTax), tax.ErrInvalidClass)
}

func TestTaxClassOf(t *testing.T) {
	require.Equal(t, tax.ClassStandard, taxClassOf("B_16"))
	require.Equal(t, tax.ClassReduced, taxClassOf("E-8%"))
	require.Equal(t, tax.Class("??"), taxClassOf("??"))
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(ErrProductNotFound))
	require.False(t, IsNotFound(ErrNotStocked))
}
