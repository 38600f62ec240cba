package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/masterdata"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const (
	defaultListLimit     = 100
	maxStockListLimit    = 500
	maxMovementListLimit = 1000
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, productID int64) (StockRecord, error)
	ListStocks(ctx context.Context, filter StockFilter) ([]StockRecord, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ReorderCandidates(ctx context.Context, limit int) ([]StockRecord, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims client supplied request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CatalogPort looks up catalog products.
type CatalogPort interface {
	Product(ctx context.Context, id int64) (masterdata.Product, error)
}

// MetricsPort counts committed movements.
type MetricsPort interface {
	RecordMovement(code string)
}

// Service coordinates stock operations that are not caused by line items.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	uow         shared.UnitOfWork
	audit       AuditPort
	idempotency IdempotencyPort
	alerts      AlertPort
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Alerts  AlertPort
	Metrics MetricsPort
	Logger  *slog.Logger
	Clock   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalog CatalogPort, uow shared.UnitOfWork, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:        repo,
		catalog:     catalog,
		uow:         uow,
		audit:       audit,
		idempotency: idem,
		alerts:      cfg.Alerts,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         clock,
	}
}

func validatePrice(name string, v decimal.Decimal) error {
	if v.IsNegative() {
		return fmt.Errorf("%w: %s %s", ErrInvalidPrice, name, v)
	}
	return nil
}

// Provision creates the stock record of a catalog product. A positive opening
// quantity is posted as an Import movement in the same transaction.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (StockRecord, error) {
	if input.ProductID == 0 {
		return StockRecord{}, fmt.Errorf("%w: inventory: product required", shared.ErrValidation)
	}
	for name, v := range map[string]decimal.Decimal{
		"cost_per_unit":   input.CostPerUnit,
		"price_retail":    input.PriceRetail,
		"price_wholesale": input.PriceWholesale,
	} {
		if err := validatePrice(name, v); err != nil {
			return StockRecord{}, err
		}
	}
	if err := ValidateQuantity(input.ReorderLevel); err != nil {
		return StockRecord{}, err
	}
	if err := ValidateQuantity(input.ReorderQuantity); err != nil {
		return StockRecord{}, err
	}
	if err := ValidateQuantity(input.OpeningQuantity); err != nil {
		return StockRecord{}, err
	}
	if s.catalog != nil {
		product, err := s.catalog.Product(ctx, input.ProductID)
		if err != nil {
			return StockRecord{}, fmt.Errorf("inventory: provision: %w", err)
		}
		if err := masterdata.RequireStocked(product); err != nil {
			return StockRecord{}, fmt.Errorf("inventory: provision: %w", err)
		}
	}

	now := s.now()
	var (
		created StockRecord
		opening *Movement
	)
	err := s.uow.Run(ctx, "stock", []string{shared.StockLockKey(input.ProductID)}, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.GetStockForUpdate(ctx, input.ProductID)
			if err == nil {
				return fmt.Errorf("%w: product %d", ErrStockExists, input.ProductID)
			}
			if !errors.Is(err, ErrStockNotFound) {
				return err
			}
			stock := StockRecord{
				ProductID:       input.ProductID,
				Quantity:        decimal.Zero,
				CostPerUnit:     input.CostPerUnit,
				PriceRetail:     input.PriceRetail,
				PriceWholesale:  input.PriceWholesale,
				ReorderLevel:    input.ReorderLevel,
				ReorderQuantity: input.ReorderQuantity,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.InsertStock(ctx, stock); err != nil {
				return err
			}
			opening = nil
			if input.OpeningQuantity.IsPositive() {
				next, mv, err := Apply(stock, MovementImport, input.OpeningQuantity, "opening stock", now)
				if err != nil {
					return err
				}
				mv.ActorID = input.ActorID
				if err := tx.UpdateStock(ctx, next); err != nil {
					return err
				}
				if err := tx.InsertMovement(ctx, mv); err != nil {
					return err
				}
				stock = next
				opening = &mv
			}
			created = stock
			return nil
		})
	})
	if err != nil {
		return StockRecord{}, fmt.Errorf("inventory: provision: %w", err)
	}
	if opening != nil {
		s.recordMovement(opening.Type)
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "inventory:provision",
		Entity:   "stock",
		EntityID: fmt.Sprint(input.ProductID),
		Meta: map[string]any{
			"opening_quantity": input.OpeningQuantity.String(),
			"price_retail":     input.PriceRetail.String(),
		},
	})
	return created, nil
}

// PostMovement applies a manual movement of any type under the product lock.
func (s *Service) PostMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if input.ProductID == 0 {
		return Movement{}, fmt.Errorf("%w: inventory: product required", shared.ErrValidation)
	}
	if _, err := ParseMovementType(string(input.Type)); err != nil {
		return Movement{}, err
	}
	if err := ValidateQuantity(input.Quantity); err != nil {
		return Movement{}, err
	}
	if !input.Quantity.IsPositive() {
		return Movement{}, fmt.Errorf("%w: manual movement must be positive", ErrInvalidQuantity)
	}

	key := ""
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key = "inventory:movement:" + input.IdempotencyKey
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, fmt.Errorf("inventory: post movement: %w", err)
		}
	}

	now := s.now()
	var (
		posted Movement
		after  StockRecord
	)
	err := s.uow.Run(ctx, "stock", []string{shared.StockLockKey(input.ProductID)}, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			stock, err := tx.GetStockForUpdate(ctx, input.ProductID)
			if err != nil {
				return err
			}
			next, mv, err := Apply(stock, input.Type, input.Quantity, input.Remark, now)
			if err != nil {
				return err
			}
			mv.ActorID = input.ActorID
			mv.RefKind = "manual"
			if err := tx.UpdateStock(ctx, next); err != nil {
				return err
			}
			if err := tx.InsertMovement(ctx, mv); err != nil {
				return err
			}
			posted, after = mv, next
			return nil
		})
	})
	if err != nil {
		if key != "" {
			if delErr := s.idempotency.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return Movement{}, fmt.Errorf("inventory: post movement: %w", err)
	}

	s.Committed(ctx, []StockRecord{after}, []Movement{posted})
	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   fmt.Sprintf("inventory:movement:%s", input.Type),
		Entity:   "stock",
		EntityID: fmt.Sprint(input.ProductID),
		Meta: map[string]any{
			"movement_id":     posted.ID.String(),
			"quantity":        posted.Quantity.String(),
			"quantity_before": posted.QuantityBefore.String(),
			"quantity_after":  posted.QuantityAfter.String(),
			"remark":          input.Remark,
		},
	})
	return posted, nil
}

// UpdatePricing changes prices and reorder thresholds. Quantity is left untouched.
func (s *Service) UpdatePricing(ctx context.Context, input PricingInput) (StockRecord, error) {
	if input.ProductID == 0 {
		return StockRecord{}, fmt.Errorf("%w: inventory: product required", shared.ErrValidation)
	}
	prices := map[string]*decimal.Decimal{
		"cost_per_unit":   input.CostPerUnit,
		"price_retail":    input.PriceRetail,
		"price_wholesale": input.PriceWholesale,
	}
	for name, v := range prices {
		if v != nil {
			if err := validatePrice(name, *v); err != nil {
				return StockRecord{}, err
			}
		}
	}
	for _, v := range []*decimal.Decimal{input.ReorderLevel, input.ReorderQuantity} {
		if v != nil {
			if err := ValidateQuantity(*v); err != nil {
				return StockRecord{}, err
			}
		}
	}

	now := s.now()
	var updated StockRecord
	err := s.uow.Run(ctx, "stock", []string{shared.StockLockKey(input.ProductID)}, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			stock, err := tx.GetStockForUpdate(ctx, input.ProductID)
			if err != nil {
				return err
			}
			if input.CostPerUnit != nil {
				stock.CostPerUnit = *input.CostPerUnit
			}
			if input.PriceRetail != nil {
				stock.PriceRetail = *input.PriceRetail
			}
			if input.PriceWholesale != nil {
				stock.PriceWholesale = *input.PriceWholesale
			}
			if input.ReorderLevel != nil {
				stock.ReorderLevel = *input.ReorderLevel
			}
			if input.ReorderQuantity != nil {
				stock.ReorderQuantity = *input.ReorderQuantity
			}
			stock.UpdatedAt = now
			if err := tx.UpdateStock(ctx, stock); err != nil {
				return err
			}
			updated = stock
			return nil
		})
	})
	if err != nil {
		return StockRecord{}, fmt.Errorf("inventory: update pricing: %w", err)
	}
	meta := map[string]any{}
	for name, v := range prices {
		if v != nil {
			meta[name] = v.String()
		}
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "inventory:pricing",
		Entity:   "stock",
		EntityID: fmt.Sprint(input.ProductID),
		Meta:     meta,
	})
	return updated, nil
}

// GetStock returns the stock record of a product.
func (s *Service) GetStock(ctx context.Context, productID int64) (StockRecord, error) {
	if productID == 0 {
		return StockRecord{}, fmt.Errorf("%w: inventory: product required", shared.ErrValidation)
	}
	return s.repo.GetStock(ctx, productID)
}

// ListStocks lists stock records for reporting.
func (s *Service) ListStocks(ctx context.Context, filter StockFilter) ([]StockRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxStockListLimit {
		filter.Limit = maxStockListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListStocks(ctx, filter)
}

// ListMovements returns the movement stream for reports.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, fmt.Errorf("%w: inventory: from must not be after to", shared.ErrValidation)
	}
	for _, t := range filter.Types {
		if _, err := ParseMovementType(string(t)); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxMovementListLimit {
		filter.Limit = maxMovementListLimit
	}
	return s.repo.ListMovements(ctx, filter)
}

// ReorderCandidates lists stocks at or below their reorder level.
func (s *Service) ReorderCandidates(ctx context.Context, limit int) ([]StockRecord, error) {
	if limit <= 0 || limit > maxStockListLimit {
		limit = defaultListLimit
	}
	return s.repo.ReorderCandidates(ctx, limit)
}

// Committed runs the post-commit side effects of applied movements: metrics and
// low stock alerts. stocks holds the state after the movements.
func (s *Service) Committed(ctx context.Context, stocks []StockRecord, movements []Movement) {
	if s == nil {
		return
	}
	outgoing := make(map[int64]MovementType, len(movements))
	for _, mv := range movements {
		s.recordMovement(mv.Type)
		if mv.Type.Direction() == DirectionOut {
			outgoing[mv.ProductID] = mv.Type
		}
	}
	if s.alerts == nil {
		return
	}
	for _, stock := range stocks {
		mt, ok := outgoing[stock.ProductID]
		if !ok || !stock.BelowReorder() {
			continue
		}
		evt := LowStockEventFor(stock, mt, s.now())
		if err := s.alerts.NotifyLowStock(ctx, evt); err != nil {
			s.logger.Warn("low stock alert failed",
				slog.Int64("product_id", stock.ProductID),
				slog.Any("error", err))
		}
	}
}

func (s *Service) recordMovement(mt MovementType) {
	if s.metrics != nil {
		s.metrics.RecordMovement(string(mt))
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit log failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}
