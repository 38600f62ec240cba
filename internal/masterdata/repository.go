package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the read-only lookups with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

// Product loads a catalog product by id.
func (r *Repository) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	var taxClass, productType string
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, COALESCE(description, ''), tax_type, product_type, COALESCE(active_for_sale, FALSE)
FROM products WHERE id=$1`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Description, &taxClass, &productType, &p.ActiveForSale)
	if err != nil {
		return Product{}, notFound(err, ErrProductNotFound)
	}
	p.TaxClass = taxClassOf(taxClass)
	p.Type = ProductType(productType)
	return p, nil
}

// Employee loads an employee by id.
func (r *Repository) Employee(ctx context.Context, id int64) (Employee, error) {
	var e Employee
	err := r.pool.QueryRow(ctx, `SELECT id, full_name, is_active FROM employees WHERE id=$1`, id).
		Scan(&e.ID, &e.FullName, &e.Active)
	if err != nil {
		return Employee{}, notFound(err, ErrEmployeeNotFound)
	}
	return e, nil
}

// Customer loads a customer by id.
func (r *Repository) Customer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(tax_pin, ''), COALESCE(phone, '') FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.TaxPIN, &c.Phone)
	if err != nil {
		return Customer{}, notFound(err, ErrCustomerNotFound)
	}
	return c, nil
}

// Supplier loads a supplier by id.
func (r *Repository) Supplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(tax_pin, ''), COALESCE(phone, '') FROM suppliers WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.TaxPIN, &s.Phone)
	if err != nil {
		return Supplier{}, notFound(err, ErrSupplierNotFound)
	}
	return s, nil
}

// Business loads the trading identity by id.
func (r *Repository) Business(ctx context.Context, id int64) (Business, error) {
	var b Business
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(address, ''), COALESCE(tax_pin, ''), COALESCE(phone, ''), COALESCE(email, '')
FROM businesses WHERE id=$1`, id).Scan(&b.ID, &b.Name, &b.Address, &b.TaxPIN, &b.Phone, &b.Email)
	if err != nil {
		return Business{}, notFound(err, ErrBusinessNotFound)
	}
	return b, nil
}
