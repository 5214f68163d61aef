package pipeline

import (
	"errors"
	"fmt"
	"strconv"

	"sellout/internal"
	"sellout/internal/profile"
	"sellout/internal/util"
)

// ErrNoRecognizedColumns is the structural failure: a sheet where the
// profile maps to nothing at all. Whole-file, unlike per-row drops.
var ErrNoRecognizedColumns = errors.New("no recognized columns")

// CleanResult carries the surviving rows plus everything the audit trail
// and the run summary need.
type CleanResult struct {
	Rows       []internal.CleanedRow
	Transforms []internal.Transform
	Processed  int
	Skipped    int
}

// Clean maps, coerces and filters a flat table. Order matters: columns
// first, dates second, numerics third, filters last, then the fixed
// reseller/currency stamp. Row-level failures are dropped and counted;
// a failed file-level date derivation aborts the file.
func Clean(table *Table, p profile.SourceProfile, filename string) (*CleanResult, error) {
	cols, err := resolveColumns(table, p)
	if err != nil {
		return nil, err
	}

	fileMonth, fileYear := 0, 0
	switch p.DateStrategy {
	case profile.DateFromColumns:
		// month/year cells win; a filename token is only consulted when the
		// sheet has no date columns at all
		_, hasMonth := cols["month"]
		_, hasYear := cols["year"]
		if !hasMonth || !hasYear {
			if m, y, derr := parseMonthToken(filename); derr == nil {
				fileMonth, fileYear = m, y
			} else if !p.Fallback {
				return nil, fmt.Errorf("%w: %s has no date columns and no filename token", ErrDateDerivation, p.ID)
			}
		}
	case profile.DateFromPivotColumns:
		// dates come off the pivoted labels in the normalizer
	default:
		fileMonth, fileYear, err = DeriveFileDate(p.DateStrategy, filename)
		if err != nil {
			return nil, err
		}
	}

	res := &CleanResult{}
	for i, cells := range table.Rows {
		res.Processed++
		row, ok := cleanRow(i, cells, cols, p, fileMonth, fileYear, res)
		if !ok {
			res.Skipped++
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func cleanRow(index int, cells []string, cols map[string]int, p profile.SourceProfile, fileMonth, fileYear int, res *CleanResult) (internal.CleanedRow, bool) {
	row := internal.CleanedRow{
		Index:    index,
		Reseller: p.Reseller,
		Currency: p.Currency,
		Month:    fileMonth,
		Year:     fileYear,
	}

	cell := func(field string) string {
		idx, ok := cols[field]
		if !ok || idx < 0 {
			return ""
		}
		return cellAt(cells, idx)
	}

	if raw := cell("ean"); raw != "" {
		row.EAN = util.NormalizeEAN(raw)
		if row.EAN != raw {
			res.record(index, "ean", raw, row.EAN, "normalize_ean")
		}
	}
	if raw := cell("sku"); raw != "" {
		row.SKU = raw
	}
	if row.SKU == "" {
		if raw := cell("product"); raw != "" {
			row.SKU = raw
		}
	}

	fromColumns := false
	if raw := cell("month"); raw != "" {
		if m, err := strconv.Atoi(raw); err == nil {
			row.Month = m
			fromColumns = true
		}
	}
	if raw := cell("year"); raw != "" {
		if y, err := strconv.Atoi(raw); err == nil {
			row.Year = y
		}
	}
	if !fromColumns && row.Month != 0 {
		res.record(index, "month", "", fmt.Sprintf("%02d-%04d", row.Month, row.Year), "date_from_filename")
	}

	rawAmount := cell("amount")
	if rawAmount != "" {
		row.SalesLC = util.CleanAmountText(rawAmount)
		if row.SalesLC != rawAmount {
			res.record(index, "amount", rawAmount, row.SalesLC, "normalize_amount")
		}
		if parsed, ok := util.ParseAmount(rawAmount); ok {
			row.Amount = internal.FloatPtr(parsed)
		}
	}

	rawQty := cell("quantity")
	if rawQty != "" {
		if qty, err := util.ParseQuantity(rawQty); err == nil {
			row.Quantity = internal.FloatPtr(float64(qty))
			if rawQty != strconv.Itoa(qty) {
				res.record(index, "quantity", rawQty, strconv.Itoa(qty), "coerce_quantity")
			}
		} else {
			res.record(index, "quantity", rawQty, "", "drop_unparsable_quantity")
		}
	}

	return row, survives(row, p.Filters)
}

// survives applies the row filters: blank quantity never survives, zero
// quantity only with a non-zero amount where the source allows it, negative
// quantities always (returns).
func survives(row internal.CleanedRow, f profile.RowFilters) bool {
	if row.Quantity == nil {
		return false
	}
	q := *row.Quantity
	if q < 0 {
		return true
	}
	if q == 0 {
		return f.AllowZeroQtyWithAmount && row.Amount != nil && *row.Amount != 0
	}
	return true
}

func resolveColumns(table *Table, p profile.SourceProfile) (map[string]int, error) {
	cols := map[string]int{}

	if len(p.ColumnMap) > 0 {
		for i, h := range table.Headers {
			key := util.NormalizeKey(h)
			if field, ok := p.ColumnMap[key]; ok {
				if _, taken := cols[field]; !taken {
					cols[field] = i
				}
			}
		}
	} else {
		for pos, field := range p.ColumnPositions {
			cols[field] = pos
		}
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: profile %s matched none of %v", ErrNoRecognizedColumns, p.ID, table.Headers)
	}
	return cols, nil
}

func (r *CleanResult) record(rowIndex int, column string, original, cleaned any, kind string) {
	r.Transforms = append(r.Transforms, internal.Transform{
		RowIndex: rowIndex,
		Column:   column,
		Original: original,
		Cleaned:  cleaned,
		Kind:     kind,
	})
}
