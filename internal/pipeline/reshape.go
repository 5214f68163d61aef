package pipeline

import (
	"fmt"
	"strconv"

	"sellout/internal"
	"sellout/internal/profile"
	"sellout/internal/util"
)

// Unpivot reshapes a wide table into long form: every month-labeled column
// becomes its own output row carrying that column's (month, year). A
// section header row, a lone label in the key column, flips which metric
// the cells beneath feed: "value"/"amount" blocks feed the sales amount,
// "units"/"quantity" blocks feed the quantity, never both from one cell.
func Unpivot(table *Table, p profile.SourceProfile, filename string) (*CleanResult, error) {
	if p.Pivot == nil {
		return nil, fmt.Errorf("profile %s is not a pivot source", p.ID)
	}

	keyIdx := table.HeaderIndex(p.Pivot.KeyColumn)
	if keyIdx < 0 {
		keyIdx = 0
	}

	type monthCol struct {
		idx   int
		month int
		year  int
	}
	var months []monthCol
	for i, h := range table.Headers {
		if i == keyIdx {
			continue
		}
		if m, y, ok := parsePivotMonth(h); ok {
			months = append(months, monthCol{idx: i, month: m, year: y})
		}
	}
	if len(months) == 0 {
		return nil, fmt.Errorf("%w: no month-labeled columns in %v", ErrNoRecognizedColumns, table.Headers)
	}

	res := &CleanResult{}
	metric := p.Pivot.DefaultMetric
	outIndex := 0
	for _, cells := range table.Rows {
		key := cellAt(cells, keyIdx)
		if s, ok := sectionMetric(key, cells, keyIdx); ok {
			metric = s
			continue
		}
		if key == "" {
			continue
		}

		for _, mc := range months {
			res.Processed++
			raw := cellAt(cells, mc.idx)
			if raw == "" {
				// empty cell means no data for that month, not zero
				res.Skipped++
				continue
			}
			value, ok := util.ParseAmount(raw)
			if !ok {
				res.Skipped++
				res.record(outIndex, string(metric), raw, "", "drop_unparsable_"+string(metric))
				continue
			}

			row := internal.CleanedRow{
				Index:    outIndex,
				SKU:      key,
				Month:    mc.month,
				Year:     mc.year,
				Reseller: p.Reseller,
				Currency: p.Currency,
			}
			switch metric {
			case profile.MetricQuantity:
				qty, err := util.ParseQuantity(raw)
				if err != nil {
					res.Skipped++
					res.record(outIndex, "quantity", raw, "", "drop_unparsable_quantity")
					continue
				}
				row.Quantity = internal.FloatPtr(float64(qty))
				row.SalesLC = "0"
			case profile.MetricAmount:
				row.Amount = internal.FloatPtr(value)
				row.SalesLC = util.CleanAmountText(raw)
				row.Quantity = internal.FloatPtr(0)
			}
			res.record(outIndex, string(metric), raw, row.SalesLC, "unpivot_"+string(metric))

			if !survives(row, p.Filters) {
				res.Skipped++
				continue
			}
			outIndex++
			res.Rows = append(res.Rows, row)
		}
	}
	return res, nil
}

// sectionMetric recognizes a section header row: only the key cell is
// populated and it names a metric.
func sectionMetric(key string, cells []string, keyIdx int) (profile.PivotMetric, bool) {
	if key == "" {
		return "", false
	}
	for i, c := range cells {
		if i != keyIdx && c != "" {
			return "", false
		}
	}
	k := util.NormalizeKey(key)
	switch k {
	case "value", "amount", "sales", "sales value", "wartosc", "wartość":
		return profile.MetricAmount, true
	case "units", "quantity", "qty", "ilosc", "ilość":
		return profile.MetricQuantity, true
	}
	return "", false
}

// ReconcilePairs applies the bottom-of-pair rule: rows are grouped by their
// natural key; in a group of exactly two the later row wins and the earlier
// one is a stale snapshot. Groups of any other size pass through unchanged
// and are flagged as an anomaly for investigation; there is no safe
// tie-break to invent for them.
func ReconcilePairs(rows []internal.CleanedRow, p profile.SourceProfile) ([]internal.CleanedRow, []internal.Transform, int) {
	if p.Dedup != profile.DedupBottomOfPair {
		return rows, nil, 0
	}

	groups := map[string][]int{}
	order := []string{}
	for i, row := range rows {
		key := pairKey(row)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	drop := map[int]bool{}
	var transforms []internal.Transform
	anomalies := 0
	for _, key := range order {
		idxs := groups[key]
		switch len(idxs) {
		case 1:
			// unpaired singleton passes through
		case 2:
			top, bottom := idxs[0], idxs[1]
			drop[top] = true
			transforms = append(transforms, internal.Transform{
				RowIndex: rows[bottom].Index,
				Column:   "row",
				Original: fmt.Sprintf("pair rows %d,%d", rows[top].Index, rows[bottom].Index),
				Cleaned:  strconv.Itoa(rows[bottom].Index),
				Kind:     "bottom_of_pair",
			})
		default:
			anomalies++
			transforms = append(transforms, internal.Transform{
				RowIndex: rows[idxs[0]].Index,
				Column:   "row",
				Original: key,
				Cleaned:  fmt.Sprintf("group size %d", len(idxs)),
				Kind:     "pair_anomaly",
			})
		}
	}

	out := make([]internal.CleanedRow, 0, len(rows))
	for i, row := range rows {
		if drop[i] {
			continue
		}
		out = append(out, row)
	}
	return out, transforms, anomalies
}

func pairKey(row internal.CleanedRow) string {
	id := row.EAN
	if id == "" {
		id = util.NormalizeKey(row.SKU)
	}
	return fmt.Sprintf("%s|%02d|%04d", id, row.Month, row.Year)
}
