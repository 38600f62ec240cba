package trade

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for sales and purchases.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

// NewHandler constructs trade handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers /sales and /purchases.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, kind := range []Kind{KindSale, KindPurchase} {
		kind := kind
		r.Route("/"+string(kind)+"s", func(r chi.Router) {
			r.Post("/", h.open(kind))
			r.Get("/", h.list(kind))
			r.Get("/report", h.report(kind))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.get(kind))
				r.Delete("/", h.delete(kind))
				r.Get("/lines", h.lines(kind))
				r.Post("/lines", h.attach(kind))
				r.Patch("/lines/{lineID}", h.edit(kind))
				r.Delete("/lines/{lineID}", h.detach(kind))
				r.Post("/finalize", h.finalize(kind))
				r.Get("/receipt", h.receipt(kind))
				if kind == KindSale {
					r.Post("/change-breakdown", h.changeBreakdown(kind))
				}
			})
		})
	}
}

type transactionResponse struct {
	ID             int64           `json:"id"`
	UUID           string          `json:"uuid"`
	Kind           string          `json:"kind"`
	Status         string          `json:"status"`
	StatusLabel    string          `json:"status_label"`
	ReceiptType    string          `json:"receipt_type"`
	AmountWithTax  decimal.Decimal `json:"amount_with_tax"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	BusinessID     int64           `json:"business_id"`
	CounterpartyID int64           `json:"counterparty_id,omitempty"`
	EmployeeID     int64           `json:"employee_id"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	PaymentLabel   string          `json:"payment_label,omitempty"`
	AmountTendered decimal.Decimal `json:"amount_tendered"`
	Change         decimal.Decimal `json:"change"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toTransactionResponse(t Transaction) transactionResponse {
	return transactionResponse{
		ID:             t.ID,
		UUID:           t.UUID.String(),
		Kind:           string(t.Kind),
		Status:         string(t.Status),
		StatusLabel:    t.Status.Label(),
		ReceiptType:    string(t.ReceiptType),
		AmountWithTax:  t.AmountWithTax,
		TaxAmount:      t.TaxAmount,
		TotalCost:      t.TotalCost,
		BusinessID:     t.BusinessID,
		CounterpartyID: t.CounterpartyID,
		EmployeeID:     t.EmployeeID,
		PaymentMethod:  string(t.PaymentMethod),
		PaymentLabel:   t.PaymentMethod.Label(),
		AmountTendered: t.AmountTendered,
		Change:         t.Change,
		PaidAt:         t.PaidAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

type lineResponse struct {
	ID            int64           `json:"id"`
	UUID          string          `json:"uuid"`
	TransactionID int64           `json:"transaction_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ExtendedPrice decimal.Decimal `json:"extended_price"`
	TaxClass      string          `json:"tax_class"`
	TaxLabel      string          `json:"tax_label"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Wholesale     bool            `json:"wholesale"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toLineResponse(l LineItem) lineResponse {
	return lineResponse{
		ID:            l.ID,
		UUID:          l.UUID.String(),
		TransactionID: l.TransactionID,
		ProductID:     l.ProductID,
		Quantity:      l.Quantity,
		UnitPrice:     l.UnitPrice,
		ExtendedPrice: l.ExtendedPrice,
		TaxClass:      string(l.TaxClass),
		TaxLabel:      l.TaxClass.Label(),
		TaxAmount:     l.TaxAmount,
		Total:         l.Total,
		UnitCost:      l.UnitCost,
		Wholesale:     l.Wholesale,
		UpdatedAt:     l.UpdatedAt,
	}
}

type lineWithTransaction struct {
	Line        lineResponse        `json:"line"`
	Transaction transactionResponse `json:"transaction"`
}

type openRequest struct {
	BusinessID     int64  `json:"business_id" validate:"gte=0"`
	CounterpartyID int64  `json:"counterparty_id" validate:"gte=0"`
	EmployeeID     int64  `json:"employee_id" validate:"gte=0"`
	ReceiptType    string `json:"receipt_type" validate:"omitempty,oneof=S C"`
}

type attachRequest struct {
	ProductID     int64            `json:"product_id" validate:"required,gt=0"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Wholesale     bool             `json:"wholesale"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	SellAvailable bool             `json:"sell_available"`
}

type editRequest struct {
	Quantity      *decimal.Decimal `json:"quantity"`
	Wholesale     *bool            `json:"wholesale"`
	UnitPrice     *decimal.Decimal `json:"unit_price"`
	SellAvailable bool             `json:"sell_available"`
}

type finalizeRequest struct {
	PaymentMethod  string          `json:"payment_method" validate:"required,len=2,numeric"`
	AmountTendered decimal.Decimal `json:"amount_tendered"`
}

type breakdownRequest struct {
	Denominations []decimal.Decimal `json:"denominations"`
}

type listResponse struct {
	Items []transactionResponse `json:"items"`
	shared.Pagination
}

func (h *Handler) open(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req openRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		employeeID := req.EmployeeID
		if employeeID == 0 {
			employeeID = shared.ActorFromContext(r.Context())
		}
		txn, err := h.engine.Open(r.Context(), OpenInput{
			Kind:           kind,
			BusinessID:     req.BusinessID,
			CounterpartyID: req.CounterpartyID,
			EmployeeID:     employeeID,
			ReceiptType:    ReceiptType(req.ReceiptType),
		})
		if err != nil {
			h.fail(w, "open", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toTransactionResponse(txn))
	}
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{Kind: kind, Status: Status(q.Get("status"))}
		var err error
		if filter.From, err = inventory.DateParam(q.Get("from"), false); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if filter.To, err = inventory.DateParam(q.Get("to"), true); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if filter.Page, err = intParam(q.Get("page")); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if filter.PerPage, err = intParam(q.Get("per_page")); err != nil {
			httpx.RespondError(w, err)
			return
		}
		items, page, err := h.engine.List(r.Context(), filter)
		if err != nil {
			h.fail(w, "list", err)
			return
		}
		out := listResponse{Items: make([]transactionResponse, 0, len(items)), Pagination: page}
		for _, t := range items {
			out.Items = append(out.Items, toTransactionResponse(t))
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) report(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, err := inventory.DateParam(q.Get("from"), false)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		to, err := inventory.DateParam(q.Get("to"), true)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		report, err := h.engine.Report(r.Context(), kind, from, to)
		if err != nil {
			h.fail(w, "report", err)
			return
		}
		httpx.JSON(w, http.StatusOK, report)
	}
}

func (h *Handler) get(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		txn, err := h.engine.Get(r.Context(), kind, id)
		if err != nil {
			h.fail(w, "get", err)
			return
		}
		httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
	}
}

func (h *Handler) delete(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := h.engine.Delete(r.Context(), kind, id); err != nil {
			h.fail(w, "delete", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) lines(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		lines, err := h.engine.Lines(r.Context(), kind, id)
		if err != nil {
			h.fail(w, "lines", err)
			return
		}
		out := make([]lineResponse, 0, len(lines))
		for _, l := range lines {
			out = append(out, toLineResponse(l))
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) attach(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req attachRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		line, txn, err := h.engine.Attach(r.Context(), AttachInput{
			Kind:          kind,
			TransactionID: id,
			ProductID:     req.ProductID,
			Quantity:      req.Quantity,
			Wholesale:     req.Wholesale,
			UnitPrice:     req.UnitPrice,
			SellAvailable: req.SellAvailable,
			ActorID:       shared.ActorFromContext(r.Context()),
		})
		if err != nil {
			h.fail(w, "attach", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, lineWithTransaction{Line: toLineResponse(line), Transaction: toTransactionResponse(txn)})
	}
}

func (h *Handler) edit(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		lineID, err := pathID(r, "lineID")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req editRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		line, txn, err := h.engine.Edit(r.Context(), EditInput{
			Kind:          kind,
			TransactionID: id,
			LineID:        lineID,
			Quantity:      req.Quantity,
			Wholesale:     req.Wholesale,
			UnitPrice:     req.UnitPrice,
			SellAvailable: req.SellAvailable,
			ActorID:       shared.ActorFromContext(r.Context()),
		})
		if err != nil {
			h.fail(w, "edit", err)
			return
		}
		httpx.JSON(w, http.StatusOK, lineWithTransaction{Line: toLineResponse(line), Transaction: toTransactionResponse(txn)})
	}
}

func (h *Handler) detach(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		lineID, err := pathID(r, "lineID")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		txn, err := h.engine.Detach(r.Context(), DetachInput{
			Kind:          kind,
			TransactionID: id,
			LineID:        lineID,
			ActorID:       shared.ActorFromContext(r.Context()),
		})
		if err != nil {
			h.fail(w, "detach", err)
			return
		}
		httpx.JSON(w, http.StatusOK, toTransactionResponse(txn))
	}
}

func (h *Handler) finalize(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req finalizeRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		method, err := ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		receipt, err := h.engine.Finalize(r.Context(), FinalizeInput{
			Kind:           kind,
			TransactionID:  id,
			PaymentMethod:  method,
			AmountTendered: req.AmountTendered,
			ActorID:        shared.ActorFromContext(r.Context()),
		})
		if err != nil {
			h.fail(w, "finalize", err)
			return
		}
		httpx.JSON(w, http.StatusOK, receipt)
	}
}

func (h *Handler) receipt(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		receipt, err := h.engine.Receipt(r.Context(), kind, id)
		if err != nil {
			h.fail(w, "receipt", err)
			return
		}
		if strings.Contains(r.Header.Get("Accept"), "text/plain") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(receipt.Text()))
			return
		}
		httpx.JSON(w, http.StatusOK, receipt)
	}
}

func (h *Handler) changeBreakdown(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var req breakdownRequest
		if r.ContentLength != 0 {
			if err := httpx.DecodeJSON(r, &req); err != nil {
				httpx.RespondError(w, err)
				return
			}
		}
		out, err := h.engine.ChangeBreakdown(r.Context(), kind, id, req.Denominations)
		if err != nil {
			h.fail(w, "change breakdown", err)
			return
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error("trade "+op+" failed", slog.Any("error", err))
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
