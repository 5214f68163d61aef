package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"sellout/internal"
)

// ErrNotWireSafe marks a value that would crash a generic encoder at write
// time. The historical failure mode was exactly that: a native date slipped
// through all the cleaning, then the batch write blew up with an opaque
// serialization error. Conversion is therefore a total, pre-write step.
var ErrNotWireSafe = errors.New("value is not wire-safe")

// EntryRecord is a CanonicalEntry reduced to primitives. Every field is a
// string or number; nothing the storage collaborator receives can carry a
// native date or object type.
type EntryRecord struct {
	UploadID       string   `json:"upload_id"`
	Reseller       string   `json:"reseller"`
	ProductEAN     string   `json:"product_ean"`
	FunctionalName string   `json:"functional_name"`
	Month          int      `json:"month"`
	Year           int      `json:"year"`
	Quantity       int      `json:"quantity"`
	SalesLC        string   `json:"sales_lc"`
	SalesEUR       *float64 `json:"sales_eur"`
	Currency       string   `json:"currency"`
}

// TransformRecord is one audit-log line, wire-converted.
type TransformRecord struct {
	RowIndex int    `json:"row_index"`
	Column   string `json:"column_name"`
	Original string `json:"original_value"`
	Cleaned  string `json:"cleaned_value"`
	Kind     string `json:"transform"`
}

// Batch is everything one successful run hands to the storage collaborator,
// submitted exactly once.
type Batch struct {
	UploadID   string
	Entries    []EntryRecord
	Transforms []TransformRecord
}

// BuildBatch converts accepted entries and audit records to wire-safe form.
// It re-checks the gate invariants so a defective record is rejected here,
// as a named error, rather than surfacing as a write-time failure.
func BuildBatch(uploadID string, entries []internal.CanonicalEntry, transforms []internal.Transform) (Batch, error) {
	b := Batch{UploadID: uploadID}

	for i, e := range entries {
		if reason := validateEntry(e); reason != "" {
			return Batch{}, fmt.Errorf("%w: entry %d: %s", ErrNotWireSafe, i, reason)
		}
		b.Entries = append(b.Entries, EntryRecord{
			UploadID:       uploadID,
			Reseller:       e.Reseller,
			ProductEAN:     e.ProductEAN,
			FunctionalName: e.FunctionalName,
			Month:          e.Month,
			Year:           e.Year,
			Quantity:       e.Quantity,
			SalesLC:        e.SalesLC,
			SalesEUR:       e.SalesEUR,
			Currency:       e.Currency,
		})
	}

	for _, tr := range transforms {
		original, err := WireValue(tr.Original)
		if err != nil {
			return Batch{}, fmt.Errorf("transform row %d column %s: %w", tr.RowIndex, tr.Column, err)
		}
		cleaned, err := WireValue(tr.Cleaned)
		if err != nil {
			return Batch{}, fmt.Errorf("transform row %d column %s: %w", tr.RowIndex, tr.Column, err)
		}
		b.Transforms = append(b.Transforms, TransformRecord{
			RowIndex: tr.RowIndex,
			Column:   tr.Column,
			Original: original,
			Cleaned:  cleaned,
			Kind:     tr.Kind,
		})
	}

	return b, nil
}

// WireValue renders any stage value as a plain string. Native dates become
// ISO-8601 strings; anything without a defined primitive form is an error,
// never passed through for the encoder to choke on.
func WireValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), nil
	case time.Time:
		return t.UTC().Format("2006-01-02"), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrNotWireSafe, v)
	}
}
