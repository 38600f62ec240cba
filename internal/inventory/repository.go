package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Repository persists stock records and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	opts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, opts db.TxOptions) *Repository {
	return &Repository{pool: pool, opts: opts}
}

// TxRepository exposes the transactional writes of the ledger. Line item
// persistence reuses it inside its own transactions.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, productID int64) (StockRecord, error)
	InsertStock(ctx context.Context, stock StockRecord) error
	UpdateStock(ctx context.Context, stock StockRecord) error
	InsertMovement(ctx context.Context, mv Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.opts, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const stockColumns = `product_id, quantity, cost_per_unit, price_retail, price_wholesale, reorder_level, reorder_quantity,
COALESCE(last_movement_type, ''), COALESCE(last_movement_quantity, 0), COALESCE(last_remark, ''), created_at, updated_at`

func scanStock(row pgx.Row) (StockRecord, error) {
	var s StockRecord
	err := row.Scan(&s.ProductID, &s.Quantity, &s.CostPerUnit, &s.PriceRetail, &s.PriceWholesale, &s.ReorderLevel, &s.ReorderQuantity,
		&s.LastMovementType, &s.LastMovementQuantity, &s.LastRemark, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func collectStocks(rows pgx.Rows) ([]StockRecord, error) {
	defer rows.Close()
	stocks := []StockRecord{}
	for rows.Next() {
		s, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// GetStock loads a stock record without locking it.
func (r *Repository) GetStock(ctx context.Context, productID int64) (StockRecord, error) {
	s, err := scanStock(r.pool.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE product_id=$1`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{}, fmt.Errorf("%w: product %d", ErrStockNotFound, productID)
		}
		return StockRecord{}, err
	}
	return s, nil
}

// ListStocks returns stock records ordered by product.
func (r *Repository) ListStocks(ctx context.Context, filter StockFilter) ([]StockRecord, error) {
	ids := filter.ProductIDs
	if ids == nil {
		ids = []int64{}
	}
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE cardinality($1::bigint[]) = 0 OR product_id = ANY($1)
ORDER BY product_id
LIMIT $2 OFFSET $3`, ids, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return collectStocks(rows)
}

// ReorderCandidates returns stocks at or under their reorder level, most depleted first.
func (r *Repository) ReorderCandidates(ctx context.Context, limit int) ([]StockRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks
WHERE reorder_level > 0 AND quantity <= reorder_level
ORDER BY quantity - reorder_level ASC, product_id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectStocks(rows)
}

// ListMovements returns the movement stream in posting order.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	types := make([]string, 0, len(filter.Types))
	for _, t := range filter.Types {
		types = append(types, string(t))
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, movement_type, quantity, delta, quantity_before, quantity_after,
COALESCE(remark, ''), COALESCE(ref_kind, ''), COALESCE(ref_id, ''), COALESCE(actor_id, 0), posted_at
FROM stock_movements
WHERE ($1::bigint = 0 OR product_id = $1)
  AND (cardinality($2::text[]) = 0 OR movement_type = ANY($2))
  AND posted_at BETWEEN COALESCE($3::timestamptz, '-infinity') AND COALESCE($4::timestamptz, 'infinity')
ORDER BY posted_at ASC, seq ASC
LIMIT $5`, filter.ProductID, types, nullTime(filter.From), nullTime(filter.To), filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.Type, &mv.Quantity, &mv.Delta, &mv.QuantityBefore, &mv.QuantityAfter,
			&mv.Remark, &mv.RefKind, &mv.RefID, &mv.ActorID, &mv.PostedAt); err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, productID int64) (StockRecord, error) {
	s, err := scanStock(r.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM stocks WHERE product_id=$1 FOR UPDATE`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{ProductID: productID}, fmt.Errorf("%w: product %d", ErrStockNotFound, productID)
		}
		return StockRecord{}, err
	}
	return s, nil
}

func (r *txRepository) InsertStock(ctx context.Context, s StockRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stocks (product_id, quantity, cost_per_unit, price_retail, price_wholesale, reorder_level, reorder_quantity,
last_movement_type, last_movement_quantity, last_remark, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, s.ProductID, s.Quantity, s.CostPerUnit, s.PriceRetail, s.PriceWholesale,
		s.ReorderLevel, s.ReorderQuantity, nullString(string(s.LastMovementType)), s.LastMovementQuantity, nullString(s.LastRemark), s.CreatedAt, s.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: product %d", ErrStockExists, s.ProductID)
	}
	return err
}

func (r *txRepository) UpdateStock(ctx context.Context, s StockRecord) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stocks SET quantity=$2, cost_per_unit=$3, price_retail=$4, price_wholesale=$5, reorder_level=$6, reorder_quantity=$7,
last_movement_type=$8, last_movement_quantity=$9, last_remark=$10, updated_at=$11
WHERE product_id=$1`, s.ProductID, s.Quantity, s.CostPerUnit, s.PriceRetail, s.PriceWholesale, s.ReorderLevel, s.ReorderQuantity,
		nullString(string(s.LastMovementType)), s.LastMovementQuantity, nullString(s.LastRemark), s.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", ErrStockNotFound, s.ProductID)
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, mv Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, product_id, movement_type, quantity, delta, quantity_before, quantity_after,
remark, ref_kind, ref_id, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, mv.ID, mv.ProductID, string(mv.Type), mv.Quantity, mv.Delta, mv.QuantityBefore, mv.QuantityAfter,
		nullString(mv.Remark), nullString(mv.RefKind), nullString(mv.RefID), nullInt(mv.ActorID), mv.PostedAt)
	return err
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
