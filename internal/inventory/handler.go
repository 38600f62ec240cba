package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stocks", func(r chi.Router) {
		r.Post("/", h.provision)
		r.Get("/", h.listStocks)
		r.Get("/reorder", h.reorder)
		r.Route("/{productID}", func(r chi.Router) {
			r.Get("/", h.getStock)
			r.Put("/pricing", h.updatePricing)
			r.Post("/movements", h.postMovement)
			r.Get("/movements", h.productMovements)
		})
	})
	r.Get("/movements", h.listMovements)
}

type stockResponse struct {
	ProductID            int64           `json:"product_id"`
	Quantity             decimal.Decimal `json:"quantity"`
	CostPerUnit          decimal.Decimal `json:"cost_per_unit"`
	PriceRetail          decimal.Decimal `json:"price_retail"`
	PriceWholesale       decimal.Decimal `json:"price_wholesale"`
	ReorderLevel         decimal.Decimal `json:"reorder_level"`
	ReorderQuantity      decimal.Decimal `json:"reorder_quantity"`
	LastMovementType     string          `json:"last_movement_type,omitempty"`
	LastMovementQuantity decimal.Decimal `json:"last_movement_quantity"`
	LastRemark           string          `json:"last_remark,omitempty"`
	BelowReorder         bool            `json:"below_reorder"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func toStockResponse(s StockRecord) stockResponse {
	return stockResponse{
		ProductID:            s.ProductID,
		Quantity:             s.Quantity,
		CostPerUnit:          s.CostPerUnit,
		PriceRetail:          s.PriceRetail,
		PriceWholesale:       s.PriceWholesale,
		ReorderLevel:         s.ReorderLevel,
		ReorderQuantity:      s.ReorderQuantity,
		LastMovementType:     string(s.LastMovementType),
		LastMovementQuantity: s.LastMovementQuantity,
		LastRemark:           s.LastRemark,
		BelowReorder:         s.BelowReorder(),
		UpdatedAt:            s.UpdatedAt,
	}
}

type movementResponse struct {
	ID             string          `json:"id"`
	ProductID      int64           `json:"product_id"`
	Type           string          `json:"type"`
	Label          string          `json:"label"`
	Direction      string          `json:"direction"`
	Quantity       decimal.Decimal `json:"quantity"`
	Delta          decimal.Decimal `json:"delta"`
	QuantityBefore decimal.Decimal `json:"quantity_before"`
	QuantityAfter  decimal.Decimal `json:"quantity_after"`
	Remark         string          `json:"remark,omitempty"`
	RefKind        string          `json:"ref_kind,omitempty"`
	RefID          string          `json:"ref_id,omitempty"`
	ActorID        int64           `json:"actor_id,omitempty"`
	PostedAt       time.Time       `json:"posted_at"`
}

func toMovementResponse(mv Movement) movementResponse {
	return movementResponse{
		ID:             mv.ID.String(),
		ProductID:      mv.ProductID,
		Type:           string(mv.Type),
		Label:          mv.Type.Label(),
		Direction:      mv.Type.Direction().String(),
		Quantity:       mv.Quantity,
		Delta:          mv.Delta,
		QuantityBefore: mv.QuantityBefore,
		QuantityAfter:  mv.QuantityAfter,
		Remark:         mv.Remark,
		RefKind:        mv.RefKind,
		RefID:          mv.RefID,
		ActorID:        mv.ActorID,
		PostedAt:       mv.PostedAt,
	}
}

type provisionRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	CostPerUnit     decimal.Decimal `json:"cost_per_unit"`
	PriceRetail     decimal.Decimal `json:"price_retail"`
	PriceWholesale  decimal.Decimal `json:"price_wholesale"`
	ReorderLevel    decimal.Decimal `json:"reorder_level"`
	ReorderQuantity decimal.Decimal `json:"reorder_quantity"`
	OpeningQuantity decimal.Decimal `json:"opening_quantity"`
}

type pricingRequest struct {
	CostPerUnit     *decimal.Decimal `json:"cost_per_unit"`
	PriceRetail     *decimal.Decimal `json:"price_retail"`
	PriceWholesale  *decimal.Decimal `json:"price_wholesale"`
	ReorderLevel    *decimal.Decimal `json:"reorder_level"`
	ReorderQuantity *decimal.Decimal `json:"reorder_quantity"`
}

type movementRequest struct {
	Type     string          `json:"type" validate:"required,len=2,numeric"`
	Quantity decimal.Decimal `json:"quantity"`
	Remark   string          `json:"remark" validate:"max=500"`
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.Provision(r.Context(), ProvisionInput{
		ProductID:       req.ProductID,
		CostPerUnit:     req.CostPerUnit,
		PriceRetail:     req.PriceRetail,
		PriceWholesale:  req.PriceWholesale,
		ReorderLevel:    req.ReorderLevel,
		ReorderQuantity: req.ReorderQuantity,
		OpeningQuantity: req.OpeningQuantity,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "provision stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toStockResponse(stock))
}

func (h *Handler) listStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StockFilter{}
	for _, raw := range q["product_id"] {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				httpx.RespondError(w, fmt.Errorf("%w: invalid product_id %q", shared.ErrValidation, part))
				return
			}
			filter.ProductIDs = append(filter.ProductIDs, id)
		}
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stocks, err := h.service.ListStocks(r.Context(), filter)
	if err != nil {
		h.fail(w, "list stocks", err)
		return
	}
	out := make([]stockResponse, 0, len(stocks))
	for _, s := range stocks {
		out = append(out, toStockResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stocks, err := h.service.ReorderCandidates(r.Context(), limit)
	if err != nil {
		h.fail(w, "reorder candidates", err)
		return
	}
	out := make([]stockResponse, 0, len(stocks))
	for _, s := range stocks {
		out = append(out, toStockResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.GetStock(r.Context(), productID)
	if err != nil {
		h.fail(w, "get stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *Handler) updatePricing(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req pricingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.UpdatePricing(r.Context(), PricingInput{
		ProductID:       productID,
		CostPerUnit:     req.CostPerUnit,
		PriceRetail:     req.PriceRetail,
		PriceWholesale:  req.PriceWholesale,
		ReorderLevel:    req.ReorderLevel,
		ReorderQuantity: req.ReorderQuantity,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "update pricing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	mv, err := h.service.PostMovement(r.Context(), MovementInput{
		ProductID:      productID,
		Type:           MovementType(req.Type),
		Quantity:       req.Quantity,
		Remark:         req.Remark,
		ActorID:        shared.ActorFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, "post movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(mv))
}

func (h *Handler) productMovements(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.movements(w, r, productID)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	var productID int64
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: invalid product_id", shared.ErrValidation))
			return
		}
		productID = id
	}
	h.movements(w, r, productID)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request, productID int64) {
	q := r.URL.Query()
	filter := MovementFilter{ProductID: productID}
	for _, code := range q["type"] {
		filter.Types = append(filter.Types, MovementType(code))
	}
	var err error
	if filter.From, err = DateParam(q.Get("from"), false); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = DateParam(q.Get("to"), true); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, mv := range movements {
		out = append(out, toMovementResponse(mv))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("inventory "+op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return id, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid integer %q", shared.ErrValidation, raw)
	}
	return n, nil
}

// DateParam parses an RFC 3339 timestamp or a 2006-01-02 date. A bare date used
// as an upper bound extends to the end of that day.
func DateParam(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", shared.ErrValidation, raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
