package report

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/trade"
)

// ReceiptSource loads issued receipts.
type ReceiptSource interface {
	Receipt(ctx context.Context, kind trade.Kind, id int64) (trade.Receipt, error)
}

// Handler manages report endpoints.
type Handler struct {
	client   *Client
	receipts ReceiptSource
	logger   *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, receipts ReceiptSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, receipts: receipts, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/receipts/{kind}/{id}", h.receipt)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// receipt serves a printable receipt. format=html skips the PDF conversion.
func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	kind, err := trade.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid id", shared.ErrValidation))
		return
	}
	receipt, err := h.receipts.Receipt(r.Context(), kind, id)
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("load receipt", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := ReceiptHTML(receipt)
		if err != nil {
			h.logger.Error("render receipt html", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(html)
		return
	}

	pdf, err := ReceiptPDF(r.Context(), h.client, receipt)
	if err != nil {
		h.logger.Error("render receipt pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s-%d.pdf", kind, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
