package profile

// Catalog returns the registered source profiles in detection order, most
// specific first. The slice is rebuilt per call so callers can never mutate
// the registry under a concurrent reader.
func Catalog() []SourceProfile {
	return []SourceProfile{
		{
			ID:               "boxnox",
			Reseller:         "Boxnox",
			Currency:         "EUR",
			FilenamePatterns: []string{"boxnox"},
			SheetNamePatterns: []string{
				"boxnox",
			},
			ColumnMap: map[string]string{
				"ean":    "ean",
				"qty":    "quantity",
				"amount": "amount",
				"month":  "month",
				"year":   "year",
				"sku":    "sku",
			},
			DateStrategy: DateFromColumns,
			Dedup:        DedupNone,
		},
		{
			ID:               "skins_sa",
			Reseller:         "Skins SA",
			Currency:         "ZAR",
			FilenamePatterns: []string{"skins sa", "skins_sa", "bibbi sa"},
			SheetNamePatterns: []string{
				"sa sales",
			},
			SheetNameContains: "sales",
			ColumnMap: map[string]string{
				"eancode":       "ean",
				"salesquantity": "quantity",
				"salesamount":   "amount",
				"stylecode":     "sku",
			},
			DateStrategy: DateFromReportPeriod,
			Filters:      RowFilters{AllowZeroQtyWithAmount: true},
			Dedup:        DedupBottomOfPair,
		},
		{
			ID:               "skins_nl",
			Reseller:         "Skins NL",
			Currency:         "EUR",
			FilenamePatterns: []string{"bibbiparfu", "reportperiod"},
			SheetNamePatterns: []string{
				"reportdata",
			},
			ColumnMap: map[string]string{
				"eancode":       "ean",
				"salesquantity": "quantity",
				"salesamount":   "amount",
			},
			DateStrategy: DateFromReportPeriod,
			Filters:      RowFilters{AllowZeroQtyWithAmount: true},
			Dedup:        DedupNone,
		},
		{
			ID:               "galilu",
			Reseller:         "Galilu",
			Currency:         "PLN",
			FilenamePatterns: []string{"galilu"},
			SheetNamePatterns: []string{
				"bibbi sprzedaz",
			},
			HeaderRow: 1,
			ColumnMap: map[string]string{
				"produkt": "product",
			},
			DateStrategy: DateFromPivotColumns,
			Filters:      RowFilters{AllowZeroQtyWithAmount: true},
			Dedup:        DedupNone,
			Pivot: &PivotShape{
				KeyColumn:     "produkt",
				DefaultMetric: MetricAmount,
			},
		},
		{
			ID:               "cdlc",
			Reseller:         "CDLC",
			Currency:         "EUR",
			FilenamePatterns: []string{"cdlc", "creme de la creme", "sell thru by door"},
			SheetNamePatterns: []string{
				"sell thru",
			},
			HeaderRow: 2,
			ColumnMap: map[string]string{
				"barcode":  "ean",
				"style":    "sku",
				"units":    "quantity",
				"value":    "amount",
			},
			DateStrategy: DateFromWeeklyFilename,
			Dedup:        DedupNone,
		},
		{
			ID:               "liberty",
			Reseller:         "Liberty",
			Currency:         "GBP",
			FilenamePatterns: []string{"liberty"},
			SheetNamePatterns: []string{
				"liberty sales",
			},
			SheetNameContains: "sales",
			HeaderRow:         3,
			TwoRowHeader:      true,
			ColumnPositions: map[int]string{
				1: "ean",
				2: "sku",
				5: "quantity",
				6: "amount",
			},
			DateStrategy: DateFromMonthToken,
			Dedup:        DedupNone,
		},
		{
			ID:               "aromateque",
			Reseller:         "Aromateque",
			Currency:         "UAH",
			FilenamePatterns: []string{"aromateque"},
			SheetNamePatterns: []string{
				"tdsheet",
			},
			SheetNameContains: "tdsheet",
			ColumnMap: map[string]string{
				"barcode":  "ean",
				"article":  "sku",
				"quantity": "quantity",
				"sum":      "amount",
			},
			DateStrategy: DateFromMonthToken,
			Dedup:        DedupNone,
		},
	}
}

// FallbackProfile is the best-guess flat profile used when detection finds
// no match. Header row zero, common column aliases, dates expected in
// columns; the run proceeds but is flagged low-confidence.
func FallbackProfile() SourceProfile {
	return SourceProfile{
		ID:       "generic",
		Reseller: "Unknown",
		Currency: "EUR",
		ColumnMap: map[string]string{
			"ean":           "ean",
			"eancode":       "ean",
			"barcode":       "ean",
			"qty":           "quantity",
			"quantity":      "quantity",
			"salesquantity": "quantity",
			"units":         "quantity",
			"amount":        "amount",
			"salesamount":   "amount",
			"value":         "amount",
			"sales":         "amount",
			"month":         "month",
			"year":          "year",
			"sku":           "sku",
			"article":       "sku",
			"product":       "product",
		},
		DateStrategy: DateFromColumns,
		Dedup:        DedupNone,
		Fallback:     true,
	}
}
