package internal

type UploadStatus string

const (
	StatusProcessing UploadStatus = "PROCESSING"
	StatusCompleted  UploadStatus = "COMPLETED"
	StatusFailed     UploadStatus = "FAILED"
)

// Upload is one file submitted for processing. The ID comes from the host;
// bytes plus filename are everything the pipeline gets to work with.
type Upload struct {
	ID       string
	Filename string
	Data     []byte
}

// CleanedRow is a sheet row after column mapping, coercion and the
// source-specific rules. Quantity stays a pointer until the quality gate:
// nil means the cell was blank or unparsable, which is not the same as zero.
type CleanedRow struct {
	Index    int
	EAN      string
	SKU      string
	Month    int
	Year     int
	Quantity *float64
	SalesLC  string
	Amount   *float64
	Reseller string
	Currency string
}

// CanonicalEntry is the durable unit every source format converges to.
// Append-only once persisted; corrections arrive as new uploads.
type CanonicalEntry struct {
	UploadID       string
	Reseller       string
	ProductEAN     string
	FunctionalName string
	Month          int
	Year           int
	Quantity       int
	SalesLC        string
	SalesEUR       *float64
	Currency       string
}

// Transform is one field-level change recorded while cleaning. Original and
// Cleaned hold whatever the stage saw; both are wire-converted before they
// reach storage.
type Transform struct {
	RowIndex int
	Column   string
	Original any
	Cleaned  any
	Kind     string
}

type ProcessingSummary struct {
	UploadID      string
	Source        string
	LowConfidence bool
	RowsProcessed int
	RowsCleaned   int
	RowsSkipped   int
	Transforms    int
	Anomalies     int
	Error         string
}

type UploadRow struct {
	ID            string
	Filename      string
	Source        string
	Status        string
	RowsProcessed int
	RowsCleaned   int
	RowsSkipped   int
	LowConfidence bool
	Error         *string
	CreatedAt     string
	UpdatedAt     string
}

type ReportMail struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }
