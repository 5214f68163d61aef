package profile

// DateStrategy tells the cleaner where an upload's month/year comes from
// when the sheet itself has no usable date columns.
type DateStrategy string

const (
	// DateFromColumns reads month/year from mapped columns; profiles may
	// declare a filename fallback for sheets that omit them.
	DateFromColumns DateStrategy = "columns"
	// DateFromReportPeriod parses a "ReportPeriodMM-YYYY" token from the
	// filename.
	DateFromReportPeriod DateStrategy = "report_period"
	// DateFromMonthToken parses a three-letter month plus year from the
	// filename, e.g. "APR2025" or "apr 2025".
	DateFromMonthToken DateStrategy = "month_token"
	// DateFromWeeklyFilename parses a DD.MM.YYYY file date, subtracts one
	// week and truncates to the month the report actually covers.
	DateFromWeeklyFilename DateStrategy = "weekly_minus_week"
	// DateFromPivotColumns takes month/year from the pivoted column labels;
	// only meaningful for wide layouts.
	DateFromPivotColumns DateStrategy = "pivot_columns"
)

type DedupRule string

const (
	DedupNone DedupRule = "none"
	// DedupBottomOfPair keeps the later of two rows sharing a natural key;
	// the earlier one is a stale snapshot.
	DedupBottomOfPair DedupRule = "bottom_of_pair"
)

type PivotMetric string

const (
	MetricQuantity PivotMetric = "quantity"
	MetricAmount   PivotMetric = "amount"
)

// PivotShape describes a wide layout with one column per month.
type PivotShape struct {
	// KeyColumn is the header of the product identifier column.
	KeyColumn string
	// DefaultMetric is what unpivoted cells feed when the sheet carries no
	// section headers.
	DefaultMetric PivotMetric
}

// RowFilters are the per-source survival predicates. Blank quantities are
// always dropped and negative quantities always kept, so only the
// zero-quantity case is configurable.
type RowFilters struct {
	// AllowZeroQtyWithAmount keeps zero-quantity rows whose amount is
	// non-zero (returns and adjustment lines).
	AllowZeroQtyWithAmount bool
}

// SourceProfile is the full parsing rule set for one reseller format.
// Profiles are value objects: immutable, registered once, looked up by the
// sniffer. New sources are new catalog entries, not new code paths.
type SourceProfile struct {
	ID       string
	Reseller string
	Currency string

	FilenamePatterns  []string
	SheetNamePatterns []string

	// SheetNameContains selects the sheet to load; empty means first sheet
	// with any rows.
	SheetNameContains string
	// HeaderRow is the zero-based row the header starts on.
	HeaderRow int
	// TwoRowHeader merges HeaderRow with the row below it, carrying spanned
	// labels across blank cells.
	TwoRowHeader bool

	// ColumnMap maps normalized source headers to canonical fields
	// (ean, quantity, amount, month, year, sku, product).
	ColumnMap map[string]string
	// ColumnPositions maps zero-based column indexes to canonical fields for
	// sources with fixed layouts and unreliable headers. Takes effect only
	// when ColumnMap is empty.
	ColumnPositions map[int]string

	DateStrategy DateStrategy
	Filters      RowFilters
	Dedup        DedupRule
	Pivot        *PivotShape

	// Fallback marks the generic profile returned when nothing matched.
	Fallback bool
}

func (p SourceProfile) IsPivot() bool { return p.Pivot != nil }
