package masterdata

import "github.com/odyssey-erp/odyssey-pos/internal/tax"

// taxClassOf accepts either the stored code or a receipt label. Unknown values
// are kept verbatim so RequireStocked can reject them.
func taxClassOf(raw string) tax.Class {
	if c, err := tax.ParseClass(raw); err == nil {
		return c
	}
	if c, err := tax.ParseLabel(raw); err == nil {
		return c
	}
	return tax.Class(raw)
}
