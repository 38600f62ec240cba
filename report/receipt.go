package report

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/trade"
)

//go:embed templates/*.html
var templates embed.FS

var receiptTemplate = template.Must(template.New("receipt.html").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"percent": func(rate decimal.Decimal) string {
		return rate.Mul(decimal.NewFromInt(100)).String() + "%"
	},
}).ParseFS(templates, "templates/receipt.html"))

type receiptView struct {
	trade.Receipt
	PartyRole string
}

// ReceiptHTML renders a receipt as a printable HTML page.
func ReceiptHTML(r trade.Receipt) ([]byte, error) {
	view := receiptView{Receipt: r, PartyRole: "Customer"}
	if r.Kind == trade.KindPurchase {
		view.PartyRole = "Supplier"
	}
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("report: render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

// PDFRenderer converts HTML into PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html []byte) ([]byte, error)
}

// ReceiptPDF renders r through the PDF renderer.
func ReceiptPDF(ctx context.Context, renderer PDFRenderer, r trade.Receipt) ([]byte, error) {
	html, err := ReceiptHTML(r)
	if err != nil {
		return nil, err
	}
	pdf, err := renderer.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("report: receipt pdf: %w", err)
	}
	return pdf, nil
}
