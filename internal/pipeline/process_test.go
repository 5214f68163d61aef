package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"sellout/internal"
)

type fakeStore struct {
	mu         sync.Mutex
	started    []string
	finished   map[string]internal.UploadStatus
	batches    map[string]Batch
	runs       int
	failSubmit error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		finished: map[string]internal.UploadStatus{},
		batches:  map[string]Batch{},
	}
}

func (f *fakeStore) StartUpload(uploadID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, uploadID)
	return nil
}

func (f *fakeStore) FinishUpload(summary internal.ProcessingSummary, status internal.UploadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[summary.UploadID] = status
	return nil
}

func (f *fakeStore) SubmitBatch(ctx context.Context, batch Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit != nil {
		return f.failSubmit
	}
	// replaces any previous batch for the same upload
	f.batches[batch.UploadID] = batch
	return nil
}

func (f *fakeStore) InsertRun(traceID, uploadID string, timings map[string]float64, counts map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return nil
}

type failingSteps struct{ calls int }

func (f *failingSteps) Step(uploadID, stage, detail string) error {
	f.calls++
	return errors.New("telemetry down")
}

func boxnoxUpload(id string) internal.Upload {
	return internal.Upload{
		ID:       id,
		Filename: "BOXNOX - BIBBI Monthly Sales Report APR2025.xlsx",
		Data: mkXLSX("Sheet1", [][]any{
			{"EAN", "QTY", "AMOUNT", "MONTH", "YEAR", "SKU"},
			{"7350154320008", 1, "202,48", 1, 2024, "BBSC100"},
			{"7350154320015", "", "99,00", 1, 2024, "BBSC200"},
		}),
	}
}

func TestProcessFileCompletes(t *testing.T) {
	store := newFakeStore()
	svc := NewProcessingService(store)

	summary, err := svc.ProcessFile(context.Background(), boxnoxUpload("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Source != "boxnox" || summary.LowConfidence {
		t.Fatalf("summary: %+v", summary)
	}
	if summary.RowsProcessed != 2 || summary.RowsCleaned != 1 || summary.RowsSkipped != 1 {
		t.Fatalf("counts: %+v", summary)
	}
	if store.finished["u1"] != internal.StatusCompleted {
		t.Fatalf("status=%s", store.finished["u1"])
	}

	batch, ok := store.batches["u1"]
	if !ok || len(batch.Entries) != 1 {
		t.Fatalf("batch: %+v", batch)
	}
	e := batch.Entries[0]
	if e.ProductEAN != "7350154320008" || e.Month != 1 || e.Year != 2024 || e.SalesLC != "202,48" {
		t.Fatalf("entry: %+v", e)
	}
	if store.runs != 1 {
		t.Fatalf("runs=%d", store.runs)
	}
}

func TestProcessFileUnreadable(t *testing.T) {
	store := newFakeStore()
	svc := NewProcessingService(store)

	_, err := svc.ProcessFile(context.Background(), internal.Upload{
		ID:       "u2",
		Filename: "whatever.xlsx",
		Data:     []byte("not a spreadsheet"),
	})
	if !errors.Is(err, ErrUnreadableFile) {
		t.Fatalf("err=%v", err)
	}
	if store.finished["u2"] != internal.StatusFailed {
		t.Fatalf("status=%s", store.finished["u2"])
	}
	if len(store.batches) != 0 {
		t.Fatal("nothing may be persisted for a failed file")
	}
}

func TestProcessFileDateFailure(t *testing.T) {
	store := newFakeStore()
	svc := NewProcessingService(store)

	upload := internal.Upload{
		ID:       "u3",
		Filename: "bibbiparfu latest.xlsx", // no period token
		Data: mkXLSX("Sheet1", [][]any{
			{"EANCode", "SalesQuantity", "SalesAmount"},
			{"7350154459", 2, "€ 116"},
		}),
	}
	_, err := svc.ProcessFile(context.Background(), upload)
	if !errors.Is(err, ErrDateDerivation) {
		t.Fatalf("err=%v", err)
	}
	if store.finished["u3"] != internal.StatusFailed || len(store.batches) != 0 {
		t.Fatalf("store: %+v", store)
	}
}

func TestProcessFileSubmitFailure(t *testing.T) {
	store := newFakeStore()
	store.failSubmit = errors.New("disk full")
	svc := NewProcessingService(store)

	summary, err := svc.ProcessFile(context.Background(), boxnoxUpload("u4"))
	if err == nil {
		t.Fatal("expected error")
	}
	if store.finished["u4"] != internal.StatusFailed {
		t.Fatalf("status=%s", store.finished["u4"])
	}
	if summary.Error == "" {
		t.Fatal("summary must carry the failure")
	}
}

func TestProcessFileStepLoggerFailureSwallowed(t *testing.T) {
	store := newFakeStore()
	steps := &failingSteps{}
	svc := NewProcessingService(store, WithStepLogger(steps))

	_, err := svc.ProcessFile(context.Background(), boxnoxUpload("u5"))
	if err != nil {
		t.Fatal(err)
	}
	if store.finished["u5"] != internal.StatusCompleted {
		t.Fatalf("status=%s", store.finished["u5"])
	}
	if steps.calls == 0 {
		t.Fatal("step logger was never invoked")
	}
}

func TestProcessFileResubmitReplaces(t *testing.T) {
	store := newFakeStore()
	svc := NewProcessingService(store)

	if _, err := svc.ProcessFile(context.Background(), boxnoxUpload("u6")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ProcessFile(context.Background(), boxnoxUpload("u6")); err != nil {
		t.Fatal(err)
	}
	if len(store.batches["u6"].Entries) != 1 {
		t.Fatalf("resubmission must not double the entries: %+v", store.batches["u6"])
	}
}

func TestProcessBatch(t *testing.T) {
	store := newFakeStore()
	svc := NewProcessingService(store)

	uploads := []internal.Upload{
		boxnoxUpload("b1"),
		{ID: "b2", Filename: "bad.xlsx", Data: []byte("junk")},
		boxnoxUpload("b3"),
	}
	summaries := svc.ProcessBatch(context.Background(), uploads, 2)
	if len(summaries) != 3 {
		t.Fatalf("summaries=%d", len(summaries))
	}
	if summaries[0].UploadID != "b1" || summaries[2].UploadID != "b3" {
		t.Fatalf("order: %+v", summaries)
	}
	if summaries[1].Error == "" {
		t.Fatal("failed upload must carry its error")
	}
	if store.finished["b1"] != internal.StatusCompleted || store.finished["b2"] != internal.StatusFailed {
		t.Fatalf("statuses: %+v", store.finished)
	}
}

type fixedRates struct{ rate float64 }

func (f fixedRates) RateToEUR(ctx context.Context, currency string, month, year int) (float64, bool, error) {
	if f.rate == 0 {
		return 0, false, nil
	}
	return f.rate, true, nil
}

func TestFillEUR(t *testing.T) {
	svc := NewProcessingService(newFakeStore(), WithRateProvider(fixedRates{rate: 4.3}))

	entries := []internal.CanonicalEntry{
		{SalesLC: "430", Currency: "PLN"},
		{SalesLC: "100", Currency: "EUR"},
		{SalesLC: "n/a", Currency: "PLN"},
	}
	svc.fillEUR(context.Background(), entries)

	if entries[0].SalesEUR == nil || *entries[0].SalesEUR != 100 {
		t.Fatalf("pln: %+v", entries[0].SalesEUR)
	}
	if entries[1].SalesEUR == nil || *entries[1].SalesEUR != 100 {
		t.Fatalf("eur passthrough: %+v", entries[1].SalesEUR)
	}
	if entries[2].SalesEUR != nil {
		t.Fatalf("unparsable amount must stay empty: %+v", entries[2].SalesEUR)
	}
}

func TestFillEURNoRateKnown(t *testing.T) {
	svc := NewProcessingService(newFakeStore(), WithRateProvider(fixedRates{}))

	entries := []internal.CanonicalEntry{{SalesLC: "430", Currency: "UAH"}}
	svc.fillEUR(context.Background(), entries)
	if entries[0].SalesEUR != nil {
		t.Fatal("missing rate must leave the field empty")
	}
}
