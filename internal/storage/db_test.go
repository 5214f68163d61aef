package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"sellout/internal"
	"sellout/internal/pipeline"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sellout.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestEndToEnd(t *testing.T) {
	db := openTestDB(t)
	svc := pipeline.NewProcessingService(db)

	upload := internal.Upload{
		ID:       "u1",
		Filename: "BOXNOX - BIBBI Monthly Sales Report APR2025.xlsx",
		Data: mkXLSX(t, [][]any{
			{"EAN", "QTY", "AMOUNT", "MONTH", "YEAR", "SKU"},
			{"7350154320008", 1, "202,48", 1, 2024, "BBSC100"},
			{"7350154320008.0", 2, "€ 50", 1, 2024, "BBSC100"},
		}),
	}

	summary, err := svc.ProcessFile(context.Background(), upload)
	if err != nil {
		t.Fatal(err)
	}
	if summary.RowsCleaned != 2 {
		t.Fatalf("summary: %+v", summary)
	}

	row, err := db.GetUpload("u1")
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.Status != string(internal.StatusCompleted) || row.Source != "boxnox" {
		t.Fatalf("upload row: %+v", row)
	}

	entries, err := db.GetEntries("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries=%d", len(entries))
	}
	if entries[1].ProductEAN != "7350154320008" || entries[1].SalesLC != "50" {
		t.Fatalf("second entry: %+v", entries[1])
	}

	logs, err := db.GetTransformLogs("u1")
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[string]bool{}
	for _, l := range logs {
		kinds[l.Kind] = true
	}
	if !kinds["normalize_ean"] || !kinds["normalize_amount"] {
		t.Fatalf("audit kinds: %v", kinds)
	}
}

func TestSubmitBatchReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.StartUpload("u1", "file.xlsx"); err != nil {
		t.Fatal(err)
	}

	entry := pipeline.EntryRecord{
		UploadID: "u1", Reseller: "Boxnox", ProductEAN: "7350154320008",
		Month: 1, Year: 2024, Quantity: 1, SalesLC: "10", Currency: "EUR",
	}
	batch := pipeline.Batch{UploadID: "u1", Entries: []pipeline.EntryRecord{entry, entry}}
	if err := db.SubmitBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	batch.Entries = batch.Entries[:1]
	if err := db.SubmitBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	entries, err := db.GetEntries("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("resubmission must replace, entries=%d", len(entries))
	}
}

func TestSubmitBatchRejectsBadMonth(t *testing.T) {
	db := openTestDB(t)
	if err := db.StartUpload("u1", "file.xlsx"); err != nil {
		t.Fatal(err)
	}

	batch := pipeline.Batch{UploadID: "u1", Entries: []pipeline.EntryRecord{{
		UploadID: "u1", Reseller: "Boxnox", Month: 13, Year: 2024, Quantity: 1, SalesLC: "10", Currency: "EUR",
	}}}
	if err := db.SubmitBatch(context.Background(), batch); err == nil {
		t.Fatal("schema must reject out-of-range months")
	}

	entries, err := db.GetEntries("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatal("failed batch must leave nothing behind")
	}
}

func TestRateRoundTrip(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.GetRate("PLN", 2, 2025)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	if err := db.UpsertRate("PLN", 2, 2025, 4.31); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertRate("PLN", 2, 2025, 4.28); err != nil {
		t.Fatal(err)
	}

	rate, ok, err := db.GetRate("PLN", 2, 2025)
	if err != nil || !ok || rate != 4.28 {
		t.Fatalf("rate=%v ok=%v err=%v", rate, ok, err)
	}
}

func TestMailLifecycle(t *testing.T) {
	db := openTestDB(t)

	mail, err := db.UpsertMail("gmail", "msg-1", "Sales APR2025", "reports@boxnox.es", "2025-05-02", "abc", "/tmp/raw.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	// same provider/message id must not duplicate
	again, err := db.UpsertMail("gmail", "msg-1", "Sales APR2025 (resent)", "reports@boxnox.es", "2025-05-02", "abc", "/tmp/raw.eml", "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != mail.ID || again.Subject != "Sales APR2025 (resent)" {
		t.Fatalf("upsert: %+v vs %+v", mail, again)
	}

	pending, err := db.ListMailsByStatus("fetched", 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending=%v err=%v", pending, err)
	}

	if err := db.UpdateMailStatus(mail.ID, "processed"); err != nil {
		t.Fatal(err)
	}
	pending, err = db.ListMailsByStatus("fetched", 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending=%v err=%v", pending, err)
	}
}
