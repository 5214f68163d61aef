package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"sellout/internal"
	"sellout/internal/pipeline"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS uploads (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  source TEXT,
  status TEXT NOT NULL DEFAULT 'PROCESSING',
  rowsProcessed INTEGER NOT NULL DEFAULT 0,
  rowsCleaned INTEGER NOT NULL DEFAULT 0,
  rowsSkipped INTEGER NOT NULL DEFAULT 0,
  lowConfidence INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sellout_entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uploadId TEXT NOT NULL,
  reseller TEXT NOT NULL,
  productEan TEXT,
  functionalName TEXT,
  month INTEGER NOT NULL CHECK(month BETWEEN 1 AND 12),
  year INTEGER NOT NULL CHECK(year >= 2000),
  quantity INTEGER NOT NULL,
  salesLc TEXT NOT NULL,
  salesEur REAL,
  currency TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(uploadId) REFERENCES uploads(id)
);
CREATE INDEX IF NOT EXISTS idx_entries_upload ON sellout_entries(uploadId);
CREATE INDEX IF NOT EXISTS idx_entries_period ON sellout_entries(year, month);

CREATE TABLE IF NOT EXISTS transform_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uploadId TEXT NOT NULL,
  rowIndex INTEGER NOT NULL,
  columnName TEXT NOT NULL,
  originalValue TEXT,
  cleanedValue TEXT,
  transform TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(uploadId) REFERENCES uploads(id)
);
CREATE INDEX IF NOT EXISTS idx_logs_upload ON transform_logs(uploadId, rowIndex);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  uploadId TEXT,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(uploadId) REFERENCES uploads(id)
);

CREATE TABLE IF NOT EXISTS fx_rates (
  currency TEXT NOT NULL,
  month INTEGER NOT NULL,
  year INTEGER NOT NULL,
  rate REAL NOT NULL,
  fetchedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(currency, year, month)
);

CREATE TABLE IF NOT EXISTS report_mails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) StartUpload(uploadID, filename string) error {
	_, err := d.conn.Exec(`
INSERT INTO uploads (id, filename, status)
VALUES (?, ?, 'PROCESSING')
ON CONFLICT(id) DO UPDATE SET
  filename=excluded.filename,
  status='PROCESSING',
  error=NULL,
  updatedAt=CURRENT_TIMESTAMP
`, uploadID, filename)
	return err
}

func (d *DB) FinishUpload(summary internal.ProcessingSummary, status internal.UploadStatus) error {
	var errText *string
	if summary.Error != "" {
		errText = internal.StringPtr(summary.Error)
	}
	_, err := d.conn.Exec(`
UPDATE uploads SET
  source=?, status=?, rowsProcessed=?, rowsCleaned=?, rowsSkipped=?,
  lowConfidence=?, error=?, updatedAt=CURRENT_TIMESTAMP
WHERE id=?
`, summary.Source, string(status), summary.RowsProcessed, summary.RowsCleaned, summary.RowsSkipped,
		boolToInt(summary.LowConfidence), errText, summary.UploadID)
	return err
}

// SubmitBatch writes one validated batch in a single transaction. Re-running
// an upload id replaces its previous batch; a partial write can never be
// left behind as a silently truncated success.
func (d *DB) SubmitBatch(ctx context.Context, batch pipeline.Batch) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sellout_entries WHERE uploadId=?`, batch.UploadID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transform_logs WHERE uploadId=?`, batch.UploadID); err != nil {
		return err
	}

	entryStmt, err := tx.PrepareContext(ctx, `
INSERT INTO sellout_entries (uploadId, reseller, productEan, functionalName, month, year, quantity, salesLc, salesEur, currency)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer entryStmt.Close()

	for _, e := range batch.Entries {
		if _, err := entryStmt.ExecContext(ctx,
			e.UploadID, e.Reseller, e.ProductEAN, e.FunctionalName,
			e.Month, e.Year, e.Quantity, e.SalesLC, e.SalesEUR, e.Currency,
		); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}

	logStmt, err := tx.PrepareContext(ctx, `
INSERT INTO transform_logs (uploadId, rowIndex, columnName, originalValue, cleanedValue, transform)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer logStmt.Close()

	for _, tr := range batch.Transforms {
		if _, err := logStmt.ExecContext(ctx,
			batch.UploadID, tr.RowIndex, tr.Column, tr.Original, tr.Cleaned, tr.Kind,
		); err != nil {
			return fmt.Errorf("insert transform log: %w", err)
		}
	}

	return tx.Commit()
}

func (d *DB) InsertRun(traceID, uploadID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, uploadId, timingsJson, countsJson)
VALUES (?, ?, ?, ?)
`, traceID, uploadID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) GetUpload(uploadID string) (*internal.UploadRow, error) {
	var row internal.UploadRow
	var lowConfidence int
	err := d.conn.QueryRow(`
SELECT id, filename, COALESCE(source, ''), status, rowsProcessed, rowsCleaned, rowsSkipped, lowConfidence, error, createdAt, updatedAt
FROM uploads WHERE id=?
`, uploadID).Scan(
		&row.ID, &row.Filename, &row.Source, &row.Status,
		&row.RowsProcessed, &row.RowsCleaned, &row.RowsSkipped,
		&lowConfidence, &row.Error, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.LowConfidence = lowConfidence != 0
	return &row, nil
}

func (d *DB) GetEntries(uploadID string) ([]pipeline.EntryRecord, error) {
	rows, err := d.conn.Query(`
SELECT uploadId, reseller, COALESCE(productEan, ''), COALESCE(functionalName, ''), month, year, quantity, salesLc, salesEur, currency
FROM sellout_entries WHERE uploadId=? ORDER BY id
`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.EntryRecord
	for rows.Next() {
		var e pipeline.EntryRecord
		if err := rows.Scan(
			&e.UploadID, &e.Reseller, &e.ProductEAN, &e.FunctionalName,
			&e.Month, &e.Year, &e.Quantity, &e.SalesLC, &e.SalesEUR, &e.Currency,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) GetTransformLogs(uploadID string) ([]pipeline.TransformRecord, error) {
	rows, err := d.conn.Query(`
SELECT rowIndex, columnName, COALESCE(originalValue, ''), COALESCE(cleanedValue, ''), transform
FROM transform_logs WHERE uploadId=? ORDER BY id
`, uploadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.TransformRecord
	for rows.Next() {
		var tr pipeline.TransformRecord
		if err := rows.Scan(&tr.RowIndex, &tr.Column, &tr.Original, &tr.Cleaned, &tr.Kind); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (d *DB) GetRate(currency string, month, year int) (float64, bool, error) {
	var rate float64
	err := d.conn.QueryRow(`SELECT rate FROM fx_rates WHERE currency=? AND year=? AND month=?`, currency, year, month).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rate, true, nil
}

func (d *DB) UpsertRate(currency string, month, year int, rate float64) error {
	_, err := d.conn.Exec(`
INSERT INTO fx_rates (currency, month, year, rate, fetchedAt)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(currency, year, month) DO UPDATE SET rate=excluded.rate, fetchedAt=CURRENT_TIMESTAMP
`, currency, month, year, rate)
	return err
}

func (d *DB) UpsertMail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.ReportMail, error) {
	_, err := d.conn.Exec(`
INSERT INTO report_mails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.ReportMail{}, err
	}

	row, err := d.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.ReportMail{}, err
	}
	if row == nil {
		return internal.ReportMail{}, errors.New("failed to upsert mail")
	}
	return *row, nil
}

func (d *DB) GetMailByProviderMessageID(provider, messageID string) (*internal.ReportMail, error) {
	var row internal.ReportMail
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, COALESCE(subject, ''), COALESCE(sender, ''), COALESCE(receivedAt, ''), hash, status, rawRef
FROM report_mails WHERE provider=? AND messageId=?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListMailsByStatus(status string, limit int) ([]internal.ReportMail, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, COALESCE(subject, ''), COALESCE(sender, ''), COALESCE(receivedAt, ''), hash, status, rawRef
FROM report_mails WHERE status=? ORDER BY id LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ReportMail
	for rows.Next() {
		var row internal.ReportMail
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMailStatus(id int, status string) error {
	_, err := d.conn.Exec(`UPDATE report_mails SET status=?, updatedAt=CURRENT_TIMESTAMP WHERE id=?`, status, id)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
