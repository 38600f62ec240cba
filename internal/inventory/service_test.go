package inventory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/tax"
)

type memoryRepo struct {
	mu        sync.Mutex
	stocks    map[int64]StockRecord
	movements []Movement
	// failInsertMovement is returned by InsertMovement to force a rollback.
	failInsertMovement error
}

type memoryTx struct {
	repo      *memoryRepo
	stocks    map[int64]StockRecord
	movements []Movement
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stocks: make(map[int64]StockRecord)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, stocks: make(map[int64]StockRecord, len(r.stocks))}
	for id, s := range r.stocks {
		tx.stocks[id] = s
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.stocks = tx.stocks
	r.movements = append(r.movements, tx.movements...)
	return nil
}

func (r *memoryRepo) GetStock(ctx context.Context, productID int64) (StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stocks[productID]
	if !ok {
		return StockRecord{}, ErrStockNotFound
	}
	return s, nil
}

func (r *memoryRepo) ListStocks(ctx context.Context, filter StockFilter) ([]StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range filter.ProductIDs {
		want[id] = true
	}
	out := []StockRecord{}
	for id, s := range r.stocks {
		if len(want) == 0 || want[id] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	if filter.Offset >= len(out) {
		return []StockRecord{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := map[MovementType]bool{}
	for _, t := range filter.Types {
		types[t] = true
	}
	out := []Movement{}
	for _, mv := range r.movements {
		if filter.ProductID != 0 && mv.ProductID != filter.ProductID {
			continue
		}
		if len(types) > 0 && !types[mv.Type] {
			continue
		}
		if !filter.From.IsZero() && mv.PostedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && mv.PostedAt.After(filter.To) {
			continue
		}
		out = append(out, mv)
		if len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) ReorderCandidates(ctx context.Context, limit int) ([]StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []StockRecord{}
	for _, s := range r.stocks {
		if s.BelowReorder() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, productID int64) (StockRecord, error) {
	s, ok := tx.stocks[productID]
	if !ok {
		return StockRecord{ProductID: productID}, ErrStockNotFound
	}
	return s, nil
}

func (tx *memoryTx) InsertStock(ctx context.Context, stock StockRecord) error {
	if _, ok := tx.stocks[stock.ProductID]; ok {
		return ErrStockExists
	}
	tx.stocks[stock.ProductID] = stock
	return nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, stock StockRecord) error {
	if _, ok := tx.stocks[stock.ProductID]; !ok {
		return ErrStockNotFound
	}
	tx.stocks[stock.ProductID] = stock
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, mv Movement) error {
	if tx.repo.failInsertMovement != nil {
		return tx.repo.failInsertMovement
	}
	tx.movements = append(tx.movements, mv)
	return nil
}

func (r *memoryRepo) stock(id int64) StockRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stocks[id]
}

func (r *memoryRepo) movementCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.movements)
}

type memoryCatalog map[int64]masterdata.Product

func (c memoryCatalog) Product(ctx context.Context, id int64) (masterdata.Product, error) {
	p, ok := c[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrProductNotFound
	}
	return p, nil
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []LowStockEvent
}

func (a *recordingAlerts) NotifyLowStock(ctx context.Context, evt LowStockEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt)
	return nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordMovement(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[code]++
}

type fixture struct {
	repo    *memoryRepo
	audit   *memoryAudit
	idem    *memoryIdempotency
	alerts  *recordingAlerts
	metrics *countingMetrics
	locker  *shared.LocalLocker
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemoryRepo(),
		audit:   &memoryAudit{},
		idem:    &memoryIdempotency{keys: map[string]bool{}},
		alerts:  &recordingAlerts{},
		metrics: &countingMetrics{counts: map[string]int{}},
		locker:  shared.NewLocalLocker(shared.LockOptions{Tries: 3, RetryBase: time.Millisecond}),
	}
	catalog := memoryCatalog{
		1: {ID: 1, Code: "SUGAR-1KG", Name: "Sugar 1kg", TaxClass: tax.ClassStandard, Type: masterdata.ProductFinished, ActiveForSale: true},
		2: {ID: 2, Code: "FLOUR-2KG", Name: "Flour 2kg", TaxClass: tax.ClassExempt, Type: masterdata.ProductRawMaterial, ActiveForSale: true},
		3: {ID: 3, Code: "DELIVERY", Name: "Delivery", TaxClass: tax.ClassStandard, Type: masterdata.ProductService, ActiveForSale: true},
	}
	uow := shared.UnitOfWork{Locker: f.locker, Attempts: 2, Base: time.Millisecond}
	f.svc = NewService(f.repo, catalog, uow, f.audit, f.idem, ServiceConfig{
		Alerts:  f.alerts,
		Metrics: f.metrics,
		Clock:   func() time.Time { return testTime },
	})
	return f
}

func (f *fixture) provision(t *testing.T, productID int64, opening string) StockRecord {
	t.Helper()
	stock, err := f.svc.Provision(context.Background(), ProvisionInput{
		ProductID:       productID,
		CostPerUnit:     d("7.50"),
		PriceRetail:     d("10.00"),
		PriceWholesale:  d("9.00"),
		ReorderLevel:    d("5"),
		ReorderQuantity: d("50"),
		OpeningQuantity: d(opening),
	})
	require.NoError(t, err)
	return stock
}

func TestProvisionPostsOpeningImport(t *testing.T) {
	f := newFixture(t)
	stock := f.provision(t, 1, "100")
	require.True(t, stock.Quantity.Equal(d("100")))
	require.Equal(t, MovementImport, stock.LastMovementType)

	movements, err := f.svc.ListMovements(context.Background(), MovementFilter{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, MovementImport, movements[0].Type)
	require.True(t, movements[0].QuantityBefore.IsZero())
	require.Equal(t, 1, f.metrics.counts["01"])
	require.Len(t, f.audit.logs, 1)

	_, err = f.svc.Provision(context.Background(), ProvisionInput{ProductID: 1})
	require.ErrorIs(t, err, ErrStockExists)
}

func TestProvisionRejectsServiceAndUnknownProducts(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Provision(context.Background(), ProvisionInput{ProductID: 3})
	require.ErrorIs(t, err, masterdata.ErrNotStocked)
	_, err = f.svc.Provision(context.Background(), ProvisionInput{ProductID: 99})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Provision(context.Background(), ProvisionInput{ProductID: 2, PriceRetail: d("-1")})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestPostMovementInAndOut(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "10")
	ctx := context.Background()

	mv, err := f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementAdjustmentIn, Quantity: d("2.25"), Remark: "count", ActorID: 4})
	require.NoError(t, err)
	require.True(t, mv.QuantityAfter.Equal(d("12.25")))
	require.Equal(t, int64(4), mv.ActorID)

	mv, err = f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementDiscarding, Quantity: d("0.25"), Remark: "broken"})
	require.NoError(t, err)
	require.True(t, mv.QuantityAfter.Equal(d("12")))
	require.Equal(t, "broken", f.repo.stock(1).LastRemark)
	require.True(t, f.repo.stock(1).Quantity.Equal(d("12")))
}

func TestPostMovementOversellLeavesStock(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "3")
	before := f.repo.movementCount()

	_, err := f.svc.PostMovement(context.Background(), MovementInput{ProductID: 1, Type: MovementAdjustmentOut, Quantity: d("4")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, f.repo.stock(1).Quantity.Equal(d("3")))
	require.Equal(t, before, f.repo.movementCount())
}

func TestPostMovementValidation(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "3")
	ctx := context.Background()
	_, err := f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: "21", Quantity: d("1")})
	require.ErrorIs(t, err, ErrUnknownMovementType)
	_, err = f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementImport, Quantity: d("0")})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.PostMovement(ctx, MovementInput{ProductID: 42, Type: MovementImport, Quantity: d("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostMovementRollsBackOnPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "10")
	f.repo.failInsertMovement = errors.New("disk full")

	_, err := f.svc.PostMovement(context.Background(), MovementInput{ProductID: 1, Type: MovementSale, Quantity: d("4"), IdempotencyKey: "k-1"})
	require.Error(t, err)
	require.True(t, f.repo.stock(1).Quantity.Equal(d("10")))
	require.False(t, f.idem.keys["inventory:movement:k-1"], "key released after failure")
}

func TestPostMovementIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "10")
	ctx := context.Background()
	in := MovementInput{ProductID: 1, Type: MovementSale, Quantity: d("1"), IdempotencyKey: "pos-7"}

	_, err := f.svc.PostMovement(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.PostMovement(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.True(t, f.repo.stock(1).Quantity.Equal(d("9")))
}

func TestLowStockAlertAfterOutgoing(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "8")
	ctx := context.Background()

	_, err := f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementSale, Quantity: d("2")})
	require.NoError(t, err)
	require.Empty(t, f.alerts.events)

	_, err = f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementSale, Quantity: d("1")})
	require.NoError(t, err)
	require.Len(t, f.alerts.events, 1)
	evt := f.alerts.events[0]
	require.Equal(t, int64(1), evt.ProductID)
	require.True(t, evt.Quantity.Equal(d("5")))
	require.True(t, evt.ReorderQuantity.Equal(d("50")))

	_, err = f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementReturnIn, Quantity: d("1")})
	require.NoError(t, err)
	require.Len(t, f.alerts.events, 1, "incoming movements raise no alert")

	candidates, err := f.svc.ReorderCandidates(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestConcurrentOutgoingMovementsSerialise(t *testing.T) {
	f := newFixture(t)
	f.svc.uow = shared.UnitOfWork{Locker: shared.NewLocalLocker(shared.LockOptions{Tries: 500, RetryBase: time.Millisecond}), Attempts: 3, Base: time.Millisecond}
	f.provision(t, 1, "30")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementSale, Quantity: d("1")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	succeeded, short := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, shared.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 30, succeeded)
	require.Equal(t, 10, short)
	require.True(t, f.repo.stock(1).Quantity.IsZero())
}

func TestPostMovementLockContention(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "5")
	ctx := context.Background()
	err := f.locker.WithLocks(ctx, []string{shared.StockLockKey(1)}, func(ctx context.Context) error {
		_, err := f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementSale, Quantity: d("1")})
		return err
	})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.True(t, f.repo.stock(1).Quantity.Equal(d("5")))
}

func TestUpdatePricingKeepsQuantity(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "12")
	retail := d("11.00")
	level := d("2")
	stock, err := f.svc.UpdatePricing(context.Background(), PricingInput{ProductID: 1, PriceRetail: &retail, ReorderLevel: &level})
	require.NoError(t, err)
	require.True(t, stock.PriceRetail.Equal(retail))
	require.True(t, stock.PriceWholesale.Equal(d("9.00")))
	require.True(t, stock.Quantity.Equal(d("12")))

	negative := d("-0.01")
	_, err = f.svc.UpdatePricing(context.Background(), PricingInput{ProductID: 1, CostPerUnit: &negative})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestListMovementsFilters(t *testing.T) {
	f := newFixture(t)
	f.provision(t, 1, "10")
	f.provision(t, 2, "4")
	ctx := context.Background()
	_, err := f.svc.PostMovement(ctx, MovementInput{ProductID: 1, Type: MovementSale, Quantity: d("1")})
	require.NoError(t, err)

	sales, err := f.svc.ListMovements(ctx, MovementFilter{Types: []MovementType{MovementSale}})
	require.NoError(t, err)
	require.Len(t, sales, 1)

	all, err := f.svc.ListMovements(ctx, MovementFilter{From: testTime.Add(-time.Hour), To: testTime})
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = f.svc.ListMovements(ctx, MovementFilter{From: testTime, To: testTime.Add(-time.Second)})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.ListMovements(ctx, MovementFilter{Types: []MovementType{"77"}})
	require.ErrorIs(t, err, ErrUnknownMovementType)

	stocks, err := f.svc.ListStocks(ctx, StockFilter{})
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	require.Equal(t, int64(1), stocks[0].ProductID)
	require.Equal(t, int64(2), stocks[1].ProductID)

	reorder, err := f.svc.ReorderCandidates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, reorder, 1)
	require.Equal(t, int64(2), reorder[0].ProductID)
	require.True(t, reorder[0].Quantity.Equal(decimal.NewFromInt(4)))
}
