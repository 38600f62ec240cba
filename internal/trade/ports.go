package trade

import (
	"context"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts trade persistence for the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransaction(ctx context.Context, kind Kind, id int64) (Transaction, error)
	GetLine(ctx context.Context, kind Kind, lineID int64) (LineItem, error)
	ListLines(ctx context.Context, kind Kind, transactionID int64) ([]LineItem, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, int, error)
	// FinalizedBetween returns approved transactions created in [from, to] with their lines.
	FinalizedBetween(ctx context.Context, kind Kind, from, to time.Time) ([]Transaction, map[int64][]LineItem, error)
}

// TxRepository exposes the writes of one unit of work. It embeds the ledger
// writes so stock, movements, lines and the aggregate commit together.
type TxRepository interface {
	inventory.TxRepository
	InsertTransaction(ctx context.Context, txn Transaction) (int64, error)
	GetTransactionForUpdate(ctx context.Context, kind Kind, id int64) (Transaction, error)
	UpdateTransaction(ctx context.Context, txn Transaction) error
	DeleteTransaction(ctx context.Context, kind Kind, id int64) error
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	GetLineForUpdate(ctx context.Context, kind Kind, lineID int64) (LineItem, error)
	ListLinesForUpdate(ctx context.Context, kind Kind, transactionID int64) ([]LineItem, error)
	UpdateLine(ctx context.Context, line LineItem) error
	DeleteLine(ctx context.Context, kind Kind, lineID int64) error
}

// CatalogPort looks up catalog products.
type CatalogPort interface {
	Product(ctx context.Context, id int64) (masterdata.Product, error)
}

// DirectoryPort looks up the people and businesses a transaction refers to.
type DirectoryPort interface {
	Employee(ctx context.Context, id int64) (masterdata.Employee, error)
	Customer(ctx context.Context, id int64) (masterdata.Customer, error)
	Supplier(ctx context.Context, id int64) (masterdata.Supplier, error)
	Business(ctx context.Context, id int64) (masterdata.Business, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerObserver receives committed stock effects, for metrics and low stock alerts.
type LedgerObserver interface {
	Committed(ctx context.Context, stocks []inventory.StockRecord, movements []inventory.Movement)
}

// MetricsPort counts line item operations.
type MetricsPort interface {
	RecordLineItemOp(kind, op, outcome string)
}

// ReceiptStore caches issued receipts.
type ReceiptStore interface {
	Put(ctx context.Context, r Receipt) error
	GetOrBuild(ctx context.Context, kind Kind, id int64, build func(context.Context) (Receipt, error)) (Receipt, error)
}
