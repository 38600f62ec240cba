package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/masterdata"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// errLockSetChanged signals that lines were attached between planning the lock
// set and acquiring it.
var errLockSetChanged = errors.New("trade: lock set changed")

// Engine maintains sale and purchase aggregates.
type Engine struct {
	repo              RepositoryPort
	catalog           CatalogPort
	directory         DirectoryPort
	uow               shared.UnitOfWork
	audit             AuditPort
	ledger            LedgerObserver
	receipts          ReceiptStore
	metrics           MetricsPort
	logger            *slog.Logger
	now               func() time.Time
	defaultBusinessID int64
}

// EngineConfig groups optional collaborators.
type EngineConfig struct {
	Ledger            LedgerObserver
	Receipts          ReceiptStore
	Metrics           MetricsPort
	Logger            *slog.Logger
	Clock             func() time.Time
	DefaultBusinessID int64
}

// NewEngine builds Engine.
func NewEngine(repo RepositoryPort, catalog CatalogPort, directory DirectoryPort, uow shared.UnitOfWork, audit AuditPort, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		repo:              repo,
		catalog:           catalog,
		directory:         directory,
		uow:               uow,
		audit:             audit,
		ledger:            cfg.Ledger,
		receipts:          cfg.Receipts,
		metrics:           cfg.Metrics,
		logger:            logger,
		now:               clock,
		defaultBusinessID: cfg.DefaultBusinessID,
	}
}

func requireKind(kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: trade: unknown kind %q", shared.ErrValidation, kind)
	}
	return nil
}

// Open creates an empty transaction waiting for lines.
func (e *Engine) Open(ctx context.Context, in OpenInput) (Transaction, error) {
	if err := requireKind(in.Kind); err != nil {
		return Transaction{}, err
	}
	receiptType := in.ReceiptType
	if receiptType == "" {
		receiptType = ReceiptSale
	}
	if receiptType.Label() == "" {
		return Transaction{}, fmt.Errorf("%w: trade: unknown receipt type %q", shared.ErrValidation, receiptType)
	}
	businessID := in.BusinessID
	if businessID == 0 {
		businessID = e.defaultBusinessID
	}
	if businessID == 0 {
		return Transaction{}, fmt.Errorf("%w: trade: business required", shared.ErrValidation)
	}
	if in.EmployeeID == 0 {
		return Transaction{}, fmt.Errorf("%w: trade: employee required", shared.ErrValidation)
	}
	if _, err := e.directory.Business(ctx, businessID); err != nil {
		return Transaction{}, fmt.Errorf("trade: open: %w", err)
	}
	employee, err := e.directory.Employee(ctx, in.EmployeeID)
	if err != nil {
		return Transaction{}, fmt.Errorf("trade: open: %w", err)
	}
	if !employee.Active {
		return Transaction{}, fmt.Errorf("trade: open: %w", masterdata.ErrInactiveEmployee)
	}
	if in.CounterpartyID != 0 {
		if in.Kind == KindSale {
			_, err = e.directory.Customer(ctx, in.CounterpartyID)
		} else {
			_, err = e.directory.Supplier(ctx, in.CounterpartyID)
		}
		if err != nil {
			return Transaction{}, fmt.Errorf("trade: open: %w", err)
		}
	}

	now := e.now()
	txn := Transaction{
		UUID:           uuid.New(),
		Kind:           in.Kind,
		Status:         StatusWaiting,
		ReceiptType:    receiptType,
		AmountWithTax:  decimal.Zero,
		TaxAmount:      decimal.Zero,
		TotalCost:      decimal.Zero,
		BusinessID:     businessID,
		CounterpartyID: in.CounterpartyID,
		EmployeeID:     in.EmployeeID,
		AmountTendered: decimal.Zero,
		Change:         decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = e.uow.Run(ctx, string(in.Kind), nil, func(ctx context.Context) error {
		return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			id, err := tx.InsertTransaction(ctx, txn)
			if err != nil {
				return err
			}
			txn.ID = id
			return nil
		})
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("trade: open: %w", err)
	}
	e.record(ctx, in.EmployeeID, "open", txn, nil)
	return txn, nil
}

// Attach adds a line to an open transaction, moving stock and the aggregate
// totals in one unit of work.
func (e *Engine) Attach(ctx context.Context, in AttachInput) (line LineItem, txn Transaction, err error) {
	defer func() { e.observe(in.Kind, "attach", err) }()
	if err := requireKind(in.Kind); err != nil {
		return LineItem{}, Transaction{}, err
	}
	if in.TransactionID == 0 || in.ProductID == 0 {
		return LineItem{}, Transaction{}, fmt.Errorf("%w: trade: transaction and product required", shared.ErrValidation)
	}
	if err := validateLineQuantity(in.Quantity); err != nil {
		return LineItem{}, Transaction{}, err
	}
	product, err := e.catalog.Product(ctx, in.ProductID)
	if err != nil {
		return LineItem{}, Transaction{}, fmt.Errorf("trade: attach: %w", err)
	}
	if err := masterdata.RequireStocked(product); err != nil {
		return LineItem{}, Transaction{}, fmt.Errorf("trade: attach: %w", err)
	}

	now := e.now()
	var eff Effects
	keys := []string{shared.StockLockKey(in.ProductID), shared.TransactionLockKey(string(in.Kind), in.TransactionID)}
	err = e.uow.Run(ctx, string(in.Kind), keys, func(ctx context.Context) error {
		return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetTransactionForUpdate(ctx, in.Kind, in.TransactionID)
			if err != nil {
				return err
			}
			stock, err := tx.GetStockForUpdate(ctx, in.ProductID)
			if err != nil {
				return err
			}
			created, effects, err := CreateLine(in.Kind, current, stock, product, LineInput{
				Quantity:      in.Quantity,
				Wholesale:     in.Wholesale,
				UnitPrice:     in.UnitPrice,
				SellAvailable: in.SellAvailable,
			}, now)
			if err != nil {
				return err
			}
			id, err := tx.InsertLine(ctx, created)
			if err != nil {
				return err
			}
			created.ID = id
			updated, err := persistEffects(ctx, tx, current, effects, in.ActorID, now)
			if err != nil {
				return err
			}
			line, txn, eff = created, updated, effects
			return nil
		})
	})
	if err != nil {
		return LineItem{}, Transaction{}, e.wrap("attach", err)
	}
	e.committed(ctx, []inventory.StockRecord{eff.Stock}, eff.Movements)
	e.record(ctx, in.ActorID, "attach", txn, map[string]any{
		"line_uuid":  line.UUID.String(),
		"product_id": line.ProductID,
		"quantity":   line.Quantity.String(),
		"total":      line.Total.String(),
	})
	return line, txn, nil
}

// Edit re-prices a line by reversing and re-applying it.
func (e *Engine) Edit(ctx context.Context, in EditInput) (line LineItem, txn Transaction, err error) {
	defer func() { e.observe(in.Kind, "edit", err) }()
	if err := requireKind(in.Kind); err != nil {
		return LineItem{}, Transaction{}, err
	}
	if in.Quantity != nil {
		if err := validateLineQuantity(*in.Quantity); err != nil {
			return LineItem{}, Transaction{}, err
		}
	}
	planned, err := e.plannedLine(ctx, in.Kind, in.TransactionID, in.LineID)
	if err != nil {
		return LineItem{}, Transaction{}, e.wrap("edit", err)
	}
	product, err := e.catalog.Product(ctx, planned.ProductID)
	if err != nil {
		return LineItem{}, Transaction{}, fmt.Errorf("trade: edit: %w", err)
	}

	now := e.now()
	var (
		before LineItem
		eff    Effects
	)
	keys := []string{shared.StockLockKey(planned.ProductID), shared.TransactionLockKey(string(in.Kind), in.TransactionID)}
	err = e.uow.Run(ctx, string(in.Kind), keys, func(ctx context.Context) error {
		return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetTransactionForUpdate(ctx, in.Kind, in.TransactionID)
			if err != nil {
				return err
			}
			existing, err := tx.GetLineForUpdate(ctx, in.Kind, in.LineID)
			if err != nil {
				return err
			}
			stock, err := tx.GetStockForUpdate(ctx, existing.ProductID)
			if err != nil {
				return err
			}
			updated, effects, err := UpdateLine(in.Kind, current, existing, stock, product, LineChange{
				Quantity:      in.Quantity,
				Wholesale:     in.Wholesale,
				UnitPrice:     in.UnitPrice,
				SellAvailable: in.SellAvailable,
			}, now)
			if err != nil {
				return err
			}
			if err := tx.UpdateLine(ctx, updated); err != nil {
				return err
			}
			nextTxn, err := persistEffects(ctx, tx, current, effects, in.ActorID, now)
			if err != nil {
				return err
			}
			before, line, txn, eff = existing, updated, nextTxn, effects
			return nil
		})
	})
	if err != nil {
		return LineItem{}, Transaction{}, e.wrap("edit", err)
	}
	e.committed(ctx, []inventory.StockRecord{eff.Stock}, eff.Movements)
	e.record(ctx, in.ActorID, "edit", txn, map[string]any{
		"line_uuid":    line.UUID.String(),
		"product_id":   line.ProductID,
		"quantity_old": before.Quantity.String(),
		"quantity_new": line.Quantity.String(),
		"total_old":    before.Total.String(),
		"total_new":    line.Total.String(),
	})
	return line, txn, nil
}

// Detach removes a line, restoring its stock and subtracting its totals.
func (e *Engine) Detach(ctx context.Context, in DetachInput) (txn Transaction, err error) {
	defer func() { e.observe(in.Kind, "detach", err) }()
	if err := requireKind(in.Kind); err != nil {
		return Transaction{}, err
	}
	planned, err := e.plannedLine(ctx, in.Kind, in.TransactionID, in.LineID)
	if err != nil {
		return Transaction{}, e.wrap("detach", err)
	}

	now := e.now()
	var (
		removed LineItem
		eff     Effects
	)
	keys := []string{shared.StockLockKey(planned.ProductID), shared.TransactionLockKey(string(in.Kind), in.TransactionID)}
	err = e.uow.Run(ctx, string(in.Kind), keys, func(ctx context.Context) error {
		return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetTransactionForUpdate(ctx, in.Kind, in.TransactionID)
			if err != nil {
				return err
			}
			existing, err := tx.GetLineForUpdate(ctx, in.Kind, in.LineID)
			if err != nil {
				return err
			}
			stock, err := tx.GetStockForUpdate(ctx, existing.ProductID)
			if err != nil {
				return err
			}
			effects, err := DeleteLine(in.Kind, current, existing, stock, now)
			if err != nil {
				return err
			}
			if err := tx.DeleteLine(ctx, in.Kind, existing.ID); err != nil {
				return err
			}
			nextTxn, err := persistEffects(ctx, tx, current, effects, in.ActorID, now)
			if err != nil {
				return err
			}
			removed, txn, eff = existing, nextTxn, effects
			return nil
		})
	})
	if err != nil {
		return Transaction{}, e.wrap("detach", err)
	}
	e.committed(ctx, []inventory.StockRecord{eff.Stock}, eff.Movements)
	e.record(ctx, in.ActorID, "detach", txn, map[string]any{
		"line_uuid":  removed.UUID.String(),
		"product_id": removed.ProductID,
		"quantity":   removed.Quantity.String(),
	})
	return txn, nil
}

// Delete detaches every line of an open transaction and removes it, all in one
// unit of work. The actor is taken from ctx.
func (e *Engine) Delete(ctx context.Context, kind Kind, id int64) (err error) {
	defer func() { e.observe(kind, "delete", err) }()
	actorID := shared.ActorFromContext(ctx)
	if err := requireKind(kind); err != nil {
		return err
	}
	attempts := e.uow.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	for attempt := 0; attempt < attempts; attempt++ {
		var (
			deleted   Transaction
			stocks    []inventory.StockRecord
			movements []inventory.Movement
		)
		deleted, stocks, movements, err = e.deleteOnce(ctx, kind, id, actorID)
		if errors.Is(err, errLockSetChanged) {
			continue
		}
		if err != nil {
			return e.wrap("delete", err)
		}
		e.committed(ctx, stocks, movements)
		e.record(ctx, actorID, "delete", deleted, map[string]any{"lines": len(movements)})
		return nil
	}
	return e.wrap("delete", fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, errLockSetChanged))
}

func (e *Engine) deleteOnce(ctx context.Context, kind Kind, id, actorID int64) (Transaction, []inventory.StockRecord, []inventory.Movement, error) {
	planned, err := e.repo.ListLines(ctx, kind, id)
	if err != nil {
		return Transaction{}, nil, nil, err
	}
	locked := map[int64]bool{}
	keys := []string{shared.TransactionLockKey(string(kind), id)}
	for _, l := range planned {
		if !locked[l.ProductID] {
			locked[l.ProductID] = true
			keys = append(keys, shared.StockLockKey(l.ProductID))
		}
	}

	now := e.now()
	var (
		deleted   Transaction
		stocks    []inventory.StockRecord
		movements []inventory.Movement
	)
	err = e.uow.Run(ctx, string(kind), keys, func(ctx context.Context) error {
		return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetTransactionForUpdate(ctx, kind, id)
			if err != nil {
				return err
			}
			if !current.Open() {
				return ErrTransactionClosed
			}
			lines, err := tx.ListLinesForUpdate(ctx, kind, id)
			if err != nil {
				return err
			}
			byProduct := map[int64]inventory.StockRecord{}
			order := []int64{}
			posted := []inventory.Movement{}
			delta := Totals{AmountWithTax: decimal.Zero, TaxAmount: decimal.Zero, Cost: decimal.Zero}
			for _, l := range lines {
				if !locked[l.ProductID] {
					return errLockSetChanged
				}
				stock, ok := byProduct[l.ProductID]
				if !ok {
					stock, err = tx.GetStockForUpdate(ctx, l.ProductID)
					if err != nil {
						return err
					}
					order = append(order, l.ProductID)
				}
				effects, err := DeleteLine(kind, current, l, stock, now)
				if err != nil {
					return err
				}
				byProduct[l.ProductID] = effects.Stock
				for _, mv := range effects.Movements {
					mv.ActorID = actorID
					if err := tx.InsertMovement(ctx, mv); err != nil {
						return err
					}
					posted = append(posted, mv)
				}
				delta = delta.Add(effects.Delta)
				if err := tx.DeleteLine(ctx, kind, l.ID); err != nil {
					return err
				}
			}
			after := make([]inventory.StockRecord, 0, len(order))
			for _, pid := range order {
				if err := tx.UpdateStock(ctx, byProduct[pid]); err != nil {
					return err
				}
				after = append(after, byProduct[pid])
			}
			if err := tx.DeleteTransaction(ctx, kind, id); err != nil {
				return err
			}
			deleted = current.WithTotals(current.Totals().Add(delta))
			stocks, movements = after, posted
			return nil
		})
	})
	return deleted, stocks, movements, err
}

// Finalize approves an open transaction, settles payment and issues the normal
// receipt.
func (e *Engine) Finalize(ctx context.Context, in FinalizeInput) (receipt Receipt, err error) {
	defer func() { e.observe(in.Kind, "finalize", err) }()
	if err := requireKind(in.Kind); err != nil {
		return Receipt{}, err
	}
	if in.PaymentMethod.Label() == "" {
		return Receipt{}, fmt.Errorf("%w: trade: unknown payment method %q", shared.ErrValidation, in.PaymentMethod)
	}
	if in.AmountTendered.IsNegative() || !in.AmountTendered.Equal(in.AmountTendered.Round(2)) {
		return Receipt{}, fmt.Errorf("%w: trade: amount tendered must be >= 0 with at most 2 decimals", shared.ErrValidation)
	}

	now := e.now()
	var (
		txn   Transaction
		lines []LineItem
	)
	keys := []string{shared.TransactionLockKey(string(in.Kind), in.TransactionID)}
	err = e.uow.Run(ctx, string(in.Kind), keys, func(ctx context.Context) error {
		return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetTransactionForUpdate(ctx, in.Kind, in.TransactionID)
			if err != nil {
				return err
			}
			if !current.Open() {
				return ErrTransactionClosed
			}
			items, err := tx.ListLinesForUpdate(ctx, in.Kind, in.TransactionID)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return ErrEmptyTransaction
			}
			if sum := SumLines(items); !sum.Equal(current.Totals()) {
				return fmt.Errorf("trade: transaction %d totals %v do not match lines %v", current.ID, current.Totals(), sum)
			}
			settled, err := settle(current, in.PaymentMethod, in.AmountTendered)
			if err != nil {
				return err
			}
			settled.Status = StatusApproved
			settled.PaidAt = &now
			settled.UpdatedAt = now
			if err := tx.UpdateTransaction(ctx, settled); err != nil {
				return err
			}
			txn, lines = settled, items
			return nil
		})
	})
	if err != nil {
		return Receipt{}, e.wrap("finalize", err)
	}
	e.record(ctx, in.ActorID, "finalize", txn, map[string]any{
		"payment_method":  string(txn.PaymentMethod),
		"amount_tendered": txn.AmountTendered.String(),
		"change":          txn.Change.String(),
	})

	receipt, err = e.buildReceipt(ctx, txn, lines)
	if err != nil {
		return Receipt{}, fmt.Errorf("trade: finalize: build receipt: %w", err)
	}
	if e.receipts != nil {
		if err := e.receipts.Put(ctx, receipt); err != nil {
			e.logger.Warn("receipt cache put failed",
				slog.String("kind", string(txn.Kind)),
				slog.Int64("transaction_id", txn.ID),
				slog.Any("error", err))
		}
	}
	return receipt, nil
}

// settle records payment on txn. Cash based methods must cover the amount due
// and return change; other methods settle the exact amount when nothing is
// tendered.
func settle(txn Transaction, method PaymentMethod, tendered decimal.Decimal) (Transaction, error) {
	due := txn.AmountWithTax
	txn.PaymentMethod = method
	if method.IsCashBased() {
		if tendered.LessThan(due) {
			return Transaction{}, fmt.Errorf("%w: due %s, tendered %s", ErrInsufficientPayment, due.StringFixed(2), tendered.StringFixed(2))
		}
		txn.AmountTendered = tendered
		txn.Change = tendered.Sub(due)
		return txn, nil
	}
	if tendered.IsZero() {
		tendered = due
	}
	txn.AmountTendered = tendered
	txn.Change = decimal.Zero
	return txn, nil
}

// Receipt returns a copy of the receipt of a finalized transaction.
func (e *Engine) Receipt(ctx context.Context, kind Kind, id int64) (Receipt, error) {
	if err := requireKind(kind); err != nil {
		return Receipt{}, err
	}
	txn, err := e.repo.GetTransaction(ctx, kind, id)
	if err != nil {
		return Receipt{}, fmt.Errorf("trade: receipt: %w", err)
	}
	if txn.Status != StatusApproved {
		return Receipt{}, ErrNotFinalized
	}
	build := func(ctx context.Context) (Receipt, error) {
		lines, err := e.repo.ListLines(ctx, kind, id)
		if err != nil {
			return Receipt{}, err
		}
		return e.buildReceipt(ctx, txn, lines)
	}
	var r Receipt
	if e.receipts != nil {
		r, err = e.receipts.GetOrBuild(ctx, kind, id, build)
	} else {
		r, err = build(ctx)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("trade: receipt: %w", err)
	}
	return r.AsCopy(), nil
}

// Get loads one transaction.
func (e *Engine) Get(ctx context.Context, kind Kind, id int64) (Transaction, error) {
	if err := requireKind(kind); err != nil {
		return Transaction{}, err
	}
	txn, err := e.repo.GetTransaction(ctx, kind, id)
	if err != nil {
		return Transaction{}, fmt.Errorf("trade: get: %w", err)
	}
	return txn, nil
}

// Lines lists the lines of a transaction in attach order.
func (e *Engine) Lines(ctx context.Context, kind Kind, id int64) ([]LineItem, error) {
	if _, err := e.Get(ctx, kind, id); err != nil {
		return nil, err
	}
	lines, err := e.repo.ListLines(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("trade: lines: %w", err)
	}
	return lines, nil
}

// List pages transactions, newest first.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]Transaction, shared.Pagination, error) {
	if err := requireKind(filter.Kind); err != nil {
		return nil, shared.Pagination{}, err
	}
	if filter.Status != "" && filter.Status.Label() == "" {
		return nil, shared.Pagination{}, fmt.Errorf("%w: trade: unknown status %q", shared.ErrValidation, filter.Status)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: trade: from after to", shared.ErrValidation)
	}
	filter.Page, filter.PerPage = shared.NormalisePage(filter.Page, filter.PerPage)
	items, total, err := e.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("trade: list: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (e *Engine) plannedLine(ctx context.Context, kind Kind, transactionID, lineID int64) (LineItem, error) {
	if transactionID == 0 || lineID == 0 {
		return LineItem{}, fmt.Errorf("%w: trade: transaction and line required", shared.ErrValidation)
	}
	line, err := e.repo.GetLine(ctx, kind, lineID)
	if err != nil {
		return LineItem{}, err
	}
	if line.TransactionID != transactionID {
		return LineItem{}, ErrLineNotFound
	}
	return line, nil
}

// persistEffects writes the stock, movements and aggregate totals produced by a
// line command and returns the updated transaction.
func persistEffects(ctx context.Context, tx TxRepository, txn Transaction, eff Effects, actorID int64, now time.Time) (Transaction, error) {
	for i := range eff.Movements {
		eff.Movements[i].ActorID = actorID
		if err := tx.InsertMovement(ctx, eff.Movements[i]); err != nil {
			return Transaction{}, err
		}
	}
	if err := tx.UpdateStock(ctx, eff.Stock); err != nil {
		return Transaction{}, err
	}
	next := txn.WithTotals(txn.Totals().Add(eff.Delta))
	next.UpdatedAt = now
	if err := tx.UpdateTransaction(ctx, next); err != nil {
		return Transaction{}, err
	}
	return next, nil
}

func (e *Engine) committed(ctx context.Context, stocks []inventory.StockRecord, movements []inventory.Movement) {
	if e.ledger != nil {
		e.ledger.Committed(ctx, stocks, movements)
	}
}

func (e *Engine) observe(kind Kind, op string, err error) {
	if e.metrics != nil {
		e.metrics.RecordLineItemOp(string(kind), op, Outcome(err))
	}
}

// Outcome classifies err into a metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrValidation):
		return "invalid"
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (e *Engine) wrap(op string, err error) error {
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		e.logger.Warn("trade "+op+" gave up on contention", slog.Any("error", err))
	}
	return fmt.Errorf("trade: %s: %w", op, err)
}

func (e *Engine) record(ctx context.Context, actorID int64, action string, txn Transaction, meta map[string]any) {
	if e.audit == nil {
		return
	}
	if actorID == 0 {
		actorID = shared.ActorFromContext(ctx)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["transaction_id"] = txn.ID
	meta["amount_with_tax"] = txn.AmountWithTax.String()
	err := e.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   string(txn.Kind) + "." + action,
		Entity:   string(txn.Kind),
		EntityID: txn.UUID.String(),
		Meta:     meta,
		At:       e.now(),
	})
	if err != nil {
		e.logger.Warn("audit log failed", slog.String("action", action), slog.Any("error", err))
	}
}
