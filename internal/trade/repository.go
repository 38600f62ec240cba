package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists transactions and line items in PostgreSQL. Sales and
// purchases share the tables and are told apart by their kind column.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

type txRepository struct {
	inventory.TxRepository
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction shared with
// the stock ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("trade repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxRepository: inventory.NewTxRepository(tx), tx: tx})
	})
}

const transactionColumns = `id, uuid, kind, status, receipt_type, amount_with_tax, tax_amount, total_cost, business_id,
COALESCE(counterparty_id, 0), employee_id, COALESCE(payment_method, ''), amount_tendered, change_due, paid_at, created_at, updated_at`

func scanTransaction(row pgx.Row, extra ...any) (Transaction, error) {
	var t Transaction
	dest := []any{&t.ID, &t.UUID, &t.Kind, &t.Status, &t.ReceiptType, &t.AmountWithTax, &t.TaxAmount, &t.TotalCost, &t.BusinessID,
		&t.CounterpartyID, &t.EmployeeID, &t.PaymentMethod, &t.AmountTendered, &t.Change, &t.PaidAt, &t.CreatedAt, &t.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return t, err
}

const lineColumns = `id, uuid, kind, transaction_id, product_id, quantity, unit_price, extended_price, tax_class, tax_amount, total,
unit_cost, wholesale, created_at, updated_at`

func scanLine(row pgx.Row) (LineItem, error) {
	var l LineItem
	err := row.Scan(&l.ID, &l.UUID, &l.Kind, &l.TransactionID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.ExtendedPrice, &l.TaxClass,
		&l.TaxAmount, &l.Total, &l.UnitCost, &l.Wholesale, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func collectLines(rows pgx.Rows) ([]LineItem, error) {
	defer rows.Close()
	lines := []LineItem{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func transactionNotFound(err error, kind Kind, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", ErrTransactionNotFound, kind, id)
	}
	return err
}

func lineNotFound(err error, kind Kind, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s line %d", ErrLineNotFound, kind, id)
	}
	return err
}

// GetTransaction loads a transaction without locking it.
func (r *Repository) GetTransaction(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE kind=$1 AND id=$2`, string(kind), id))
	if err != nil {
		return Transaction{}, transactionNotFound(err, kind, id)
	}
	return t, nil
}

// GetLine loads a line without locking it.
func (r *Repository) GetLine(ctx context.Context, kind Kind, lineID int64) (LineItem, error) {
	l, err := scanLine(r.pool.QueryRow(ctx, `SELECT `+lineColumns+` FROM line_items WHERE kind=$1 AND id=$2`, string(kind), lineID))
	if err != nil {
		return LineItem{}, lineNotFound(err, kind, lineID)
	}
	return l, nil
}

// ListLines returns the lines of a transaction in attach order.
func (r *Repository) ListLines(ctx context.Context, kind Kind, transactionID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM line_items WHERE kind=$1 AND transaction_id=$2 ORDER BY id`, string(kind), transactionID)
	if err != nil {
		return nil, err
	}
	return collectLines(rows)
}

// ListTransactions pages transactions, newest first, and returns the total match count.
func (r *Repository) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	offset := (filter.Page - 1) * filter.PerPage
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+`, COUNT(*) OVER() FROM transactions
WHERE kind=$1
  AND ($2::text = '' OR status = $2)
  AND created_at BETWEEN COALESCE($3::timestamptz, '-infinity') AND COALESCE($4::timestamptz, 'infinity')
ORDER BY created_at DESC, id DESC
LIMIT $5 OFFSET $6`, string(filter.Kind), string(filter.Status), nullTime(filter.From), nullTime(filter.To), filter.PerPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Transaction{}
	total := 0
	for rows.Next() {
		t, err := scanTransaction(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// FinalizedBetween implements RepositoryPort.
func (r *Repository) FinalizedBetween(ctx context.Context, kind Kind, from, to time.Time) ([]Transaction, map[int64][]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
WHERE kind=$1 AND status=$2 AND created_at BETWEEN $3 AND $4
ORDER BY created_at, id`, string(kind), string(StatusApproved), from, to)
	if err != nil {
		return nil, nil, err
	}
	txns := []Transaction{}
	ids := []int64{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		txns = append(txns, t)
		ids = append(ids, t.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	byTxn := make(map[int64][]LineItem, len(txns))
	if len(ids) == 0 {
		return txns, byTxn, nil
	}
	lineRows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM line_items WHERE kind=$1 AND transaction_id = ANY($2) ORDER BY id`, string(kind), ids)
	if err != nil {
		return nil, nil, err
	}
	lines, err := collectLines(lineRows)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range lines {
		byTxn[l.TransactionID] = append(byTxn[l.TransactionID], l)
	}
	return txns, byTxn, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transactions (uuid, kind, status, receipt_type, amount_with_tax, tax_amount, total_cost, business_id,
counterparty_id, employee_id, payment_method, amount_tendered, change_due, paid_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id`, t.UUID, string(t.Kind), string(t.Status), string(t.ReceiptType), t.AmountWithTax, t.TaxAmount, t.TotalCost, t.BusinessID,
		nullInt(t.CounterpartyID), t.EmployeeID, nullString(string(t.PaymentMethod)), t.AmountTendered, t.Change, t.PaidAt, t.CreatedAt, t.UpdatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	t, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE kind=$1 AND id=$2 FOR UPDATE`, string(kind), id))
	if err != nil {
		return Transaction{}, transactionNotFound(err, kind, id)
	}
	return t, nil
}

func (r *txRepository) UpdateTransaction(ctx context.Context, t Transaction) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transactions SET status=$3, receipt_type=$4, amount_with_tax=$5, tax_amount=$6, total_cost=$7,
payment_method=$8, amount_tendered=$9, change_due=$10, paid_at=$11, updated_at=$12
WHERE kind=$1 AND id=$2`, string(t.Kind), t.ID, string(t.Status), string(t.ReceiptType), t.AmountWithTax, t.TaxAmount, t.TotalCost,
		nullString(string(t.PaymentMethod)), t.AmountTendered, t.Change, t.PaidAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", ErrTransactionNotFound, t.Kind, t.ID)
	}
	return nil
}

func (r *txRepository) DeleteTransaction(ctx context.Context, kind Kind, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE kind=$1 AND id=$2`, string(kind), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", ErrTransactionNotFound, kind, id)
	}
	return nil
}

func (r *txRepository) InsertLine(ctx context.Context, l LineItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO line_items (uuid, kind, transaction_id, product_id, quantity, unit_price, extended_price, tax_class,
tax_amount, total, unit_cost, wholesale, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id`, l.UUID, string(l.Kind), l.TransactionID, l.ProductID, l.Quantity, l.UnitPrice, l.ExtendedPrice, string(l.TaxClass),
		l.TaxAmount, l.Total, l.UnitCost, l.Wholesale, l.CreatedAt, l.UpdatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetLineForUpdate(ctx context.Context, kind Kind, lineID int64) (LineItem, error) {
	l, err := scanLine(r.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM line_items WHERE kind=$1 AND id=$2 FOR UPDATE`, string(kind), lineID))
	if err != nil {
		return LineItem{}, lineNotFound(err, kind, lineID)
	}
	return l, nil
}

func (r *txRepository) ListLinesForUpdate(ctx context.Context, kind Kind, transactionID int64) ([]LineItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lineColumns+` FROM line_items WHERE kind=$1 AND transaction_id=$2 ORDER BY id FOR UPDATE`, string(kind), transactionID)
	if err != nil {
		return nil, err
	}
	return collectLines(rows)
}

func (r *txRepository) UpdateLine(ctx context.Context, l LineItem) error {
	tag, err := r.tx.Exec(ctx, `UPDATE line_items SET quantity=$3, unit_price=$4, extended_price=$5, tax_class=$6, tax_amount=$7, total=$8,
unit_cost=$9, wholesale=$10, updated_at=$11
WHERE kind=$1 AND id=$2`, string(l.Kind), l.ID, l.Quantity, l.UnitPrice, l.ExtendedPrice, string(l.TaxClass), l.TaxAmount, l.Total,
		l.UnitCost, l.Wholesale, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s line %d", ErrLineNotFound, l.Kind, l.ID)
	}
	return nil
}

func (r *txRepository) DeleteLine(ctx context.Context, kind Kind, lineID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM line_items WHERE kind=$1 AND id=$2`, string(kind), lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s line %d", ErrLineNotFound, kind, lineID)
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
