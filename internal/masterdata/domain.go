// Package masterdata provides read-only lookups for catalog, identity and
// counterparty records owned by other systems.
package masterdata

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

// ProductType classifies catalog products.
type ProductType string

const (
	// ProductRawMaterial is a stocked raw material.
	ProductRawMaterial ProductType = "1"
	// ProductFinished is a stocked finished product.
	ProductFinished ProductType = "2"
	// ProductService carries no stock.
	ProductService ProductType = "3"
)

var productTypeLabels = []struct {
	typ   ProductType
	label string
}{
	{ProductRawMaterial, "Raw Material"},
	{ProductFinished, "Finished Product"},
	{ProductService, "Service Without Stock"},
}

// Label returns the display label for t.
func (t ProductType) Label() string {
	for _, row := range productTypeLabels {
		if row.typ == t {
			return row.label
		}
	}
	return ""
}

// Stocked reports whether products of type t keep a stock record.
func (t ProductType) Stocked() bool {
	return t == ProductRawMaterial || t == ProductFinished
}

// Product is the catalog snapshot the ledger and line engine read.
type Product struct {
	ID            int64
	Code          string
	Name          string
	Description   string
	TaxClass      tax.Class
	Type          ProductType
	ActiveForSale bool
}

// Employee identifies a cashier or back-office user.
type Employee struct {
	ID       int64
	FullName string
	Active   bool
}

// Customer is the counterparty of a sale.
type Customer struct {
	ID     int64
	Name   string
	TaxPIN string
	Phone  string
}

// Supplier is the counterparty of a purchase.
type Supplier struct {
	ID     int64
	Name   string
	TaxPIN string
	Phone  string
}

// Business is the trading identity printed on receipts.
type Business struct {
	ID      int64
	Name    string
	Address string
	TaxPIN  string
	Phone   string
	Email   string
}

var (
	// ErrProductNotFound indicates an unknown product id.
	ErrProductNotFound = fmt.Errorf("%w: masterdata: product", shared.ErrNotFound)
	// ErrEmployeeNotFound indicates an unknown employee id.
	ErrEmployeeNotFound = fmt.Errorf("%w: masterdata: employee", shared.ErrNotFound)
	// ErrCustomerNotFound indicates an unknown customer id.
	ErrCustomerNotFound = fmt.Errorf("%w: masterdata: customer", shared.ErrNotFound)
	// ErrSupplierNotFound indicates an unknown supplier id.
	ErrSupplierNotFound = fmt.Errorf("%w: masterdata: supplier", shared.ErrNotFound)
	// ErrBusinessNotFound indicates an unknown business id.
	ErrBusinessNotFound = fmt.Errorf("%w: masterdata: business", shared.ErrNotFound)
	// ErrNotStocked is returned for service products, which carry no stock.
	ErrNotStocked = fmt.Errorf("%w: masterdata: product carries no stock", shared.ErrValidation)
	// ErrInactiveProduct is returned when a product is not active for sale.
	ErrInactiveProduct = fmt.Errorf("%w: masterdata: product not active for sale", shared.ErrValidation)
	// ErrInactiveEmployee is returned when the employee is deactivated.
	ErrInactiveEmployee = fmt.Errorf("%w: masterdata: employee inactive", shared.ErrValidation)
)

// RequireStocked checks p may carry a stock record.
func RequireStocked(p Product) error {
	if !p.Type.Stocked() {
		return fmt.Errorf("%w: %s", ErrNotStocked, p.Code)
	}
	if !p.TaxClass.Valid() {
		return fmt.Errorf("masterdata: product %s: %w", p.Code, tax.ErrInvalidClass)
	}
	return nil
}

// RequireSellable checks p may be attached to a sale.
func RequireSellable(p Product) error {
	if err := RequireStocked(p); err != nil {
		return err
	}
	if !p.ActiveForSale {
		return fmt.Errorf("%w: %s", ErrInactiveProduct, p.Code)
	}
	return nil
}

// IsNotFound reports whether err is any lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
