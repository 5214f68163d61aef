package pipeline

import (
	"fmt"

	"sellout/internal"
)

// MapEntries projects cleaned rows onto the canonical schema and attaches
// the upload id. Identifier resolution against a master catalog is a
// collaborator concern: when the source supplies no EAN or SKU the fields
// stay empty.
func MapEntries(rows []internal.CleanedRow, uploadID string) []internal.CanonicalEntry {
	out := make([]internal.CanonicalEntry, 0, len(rows))
	for _, row := range rows {
		qty := 0
		if row.Quantity != nil {
			qty = int(*row.Quantity)
		}
		out = append(out, internal.CanonicalEntry{
			UploadID:       uploadID,
			Reseller:       row.Reseller,
			ProductEAN:     row.EAN,
			FunctionalName: row.SKU,
			Month:          row.Month,
			Year:           row.Year,
			Quantity:       qty,
			SalesLC:        row.SalesLC,
			Currency:       row.Currency,
		})
	}
	return out
}

// GateResult is the quality gate outcome: accepted entries plus the count
// of rows it excluded.
type GateResult struct {
	Accepted []internal.CanonicalEntry
	Rejected int
	Reasons  []internal.Transform
}

// Gate enforces the canonical invariants: required fields present, month in
// 1..12, year at least 2000. Row-level failures are excluded and counted,
// never raised.
func Gate(entries []internal.CanonicalEntry) GateResult {
	res := GateResult{}
	for i, e := range entries {
		if reason := validateEntry(e); reason != "" {
			res.Rejected++
			res.Reasons = append(res.Reasons, internal.Transform{
				RowIndex: i,
				Column:   "row",
				Original: reason,
				Cleaned:  "",
				Kind:     "gate_reject",
			})
			continue
		}
		res.Accepted = append(res.Accepted, e)
	}
	return res
}

func validateEntry(e internal.CanonicalEntry) string {
	if e.Reseller == "" {
		return "missing reseller"
	}
	if e.Currency == "" {
		return "missing currency"
	}
	if e.Month < 1 || e.Month > 12 {
		return fmt.Sprintf("month %d out of range", e.Month)
	}
	if e.Year < 2000 {
		return fmt.Sprintf("year %d out of range", e.Year)
	}
	if e.SalesLC == "" {
		return "missing local-currency amount"
	}
	return ""
}
