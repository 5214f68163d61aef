package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"sellout/internal"
	"sellout/internal/profile"
	"sellout/internal/util"
)

// Store is the storage collaborator contract. A successful run submits one
// fully validated batch exactly once; the write discipline behind that is
// the collaborator's own business.
type Store interface {
	StartUpload(uploadID, filename string) error
	FinishUpload(summary internal.ProcessingSummary, status internal.UploadStatus) error
	SubmitBatch(ctx context.Context, batch Batch) error
	InsertRun(traceID, uploadID string, timings map[string]float64, counts map[string]int) error
}

// StepLogger is the optional observability collaborator, invoked after each
// stage. Its failures are swallowed: telemetry never aborts the pipeline.
type StepLogger interface {
	Step(uploadID, stage string, detail string) error
}

type nopStepLogger struct{}

func (nopStepLogger) Step(string, string, string) error { return nil }

// RateProvider fills the optional EUR amount. External concern: the core
// only defines the dual-field storage contract.
type RateProvider interface {
	// RateToEUR returns how many units of currency one euro bought in the
	// given month. ok=false means no rate known; that is not an error.
	RateToEUR(ctx context.Context, currency string, month, year int) (rate float64, ok bool, err error)
}

type ProcessingService struct {
	store       Store
	steps       StepLogger
	rates       RateProvider
	loadTimeout time.Duration
}

type Option func(*ProcessingService)

func WithStepLogger(l StepLogger) Option {
	return func(s *ProcessingService) {
		if l != nil {
			s.steps = l
		}
	}
}

func WithRateProvider(r RateProvider) Option {
	return func(s *ProcessingService) { s.rates = r }
}

func WithLoadTimeout(d time.Duration) Option {
	return func(s *ProcessingService) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

func NewProcessingService(store Store, opts ...Option) *ProcessingService {
	s := &ProcessingService{
		store:       store,
		steps:       nopStepLogger{},
		loadTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessFile runs one upload through every stage. Hard failures abort and
// FAIL only this file; row-level problems accumulate into the summary. No
// entries are persisted unless the whole batch validated.
func (s *ProcessingService) ProcessFile(ctx context.Context, upload internal.Upload) (internal.ProcessingSummary, error) {
	start := time.Now()
	summary := internal.ProcessingSummary{UploadID: upload.ID}
	timings := map[string]float64{}

	if err := s.store.StartUpload(upload.ID, upload.Filename); err != nil {
		return summary, err
	}

	fail := func(err error) (internal.ProcessingSummary, error) {
		summary.Error = err.Error()
		_ = s.store.FinishUpload(summary, internal.StatusFailed)
		return summary, err
	}

	sheets, err := SheetNames(upload.Data)
	if err != nil {
		return fail(err)
	}

	detected := Detect(upload.Filename, sheets)
	summary.Source = detected.Profile.ID
	summary.LowConfidence = !detected.Confident
	s.logStep(upload.ID, "detect", detected.Profile.ID+" "+detected.Reason)

	table, err := s.loadBounded(ctx, upload.Data, detected.Profile)
	if err != nil {
		return fail(err)
	}
	timings["loadMs"] = msSince(start)
	s.logStep(upload.ID, "load", fmt.Sprintf("sheet=%s rows=%d", table.Sheet, len(table.Rows)))

	var cleaned *CleanResult
	if detected.Profile.IsPivot() {
		cleaned, err = Unpivot(table, detected.Profile, upload.Filename)
	} else {
		cleaned, err = Clean(table, detected.Profile, upload.Filename)
	}
	if err != nil {
		return fail(err)
	}
	summary.RowsProcessed = cleaned.Processed
	summary.RowsSkipped = cleaned.Skipped
	s.logStep(upload.ID, "clean", fmt.Sprintf("rows=%d skipped=%d", len(cleaned.Rows), cleaned.Skipped))

	rows, pairTransforms, anomalies := ReconcilePairs(cleaned.Rows, detected.Profile)
	summary.Anomalies = anomalies
	transforms := append(cleaned.Transforms, pairTransforms...)
	s.logStep(upload.ID, "normalize", fmt.Sprintf("rows=%d anomalies=%d", len(rows), anomalies))

	entries := MapEntries(rows, upload.ID)
	if s.rates != nil {
		s.fillEUR(ctx, entries)
	}

	gate := Gate(entries)
	summary.RowsSkipped += gate.Rejected
	summary.RowsCleaned = len(gate.Accepted)
	transforms = append(transforms, gate.Reasons...)
	summary.Transforms = len(transforms)
	s.logStep(upload.ID, "gate", fmt.Sprintf("accepted=%d rejected=%d", len(gate.Accepted), gate.Rejected))

	batch, err := BuildBatch(upload.ID, gate.Accepted, transforms)
	if err != nil {
		return fail(err)
	}
	writeStart := time.Now()
	if err := s.store.SubmitBatch(ctx, batch); err != nil {
		return fail(fmt.Errorf("submit batch: %w", err))
	}
	timings["writeMs"] = msSince(writeStart)
	timings["totalMs"] = msSince(start)
	s.logStep(upload.ID, "persist", fmt.Sprintf("entries=%d transforms=%d", len(batch.Entries), len(batch.Transforms)))

	if err := s.store.FinishUpload(summary, internal.StatusCompleted); err != nil {
		return summary, err
	}
	_ = s.store.InsertRun(traceID(), upload.ID, timings, map[string]int{
		"processed": summary.RowsProcessed,
		"cleaned":   summary.RowsCleaned,
		"skipped":   summary.RowsSkipped,
		"anomalies": summary.Anomalies,
	})
	return summary, nil
}

// ProcessBatch runs independent uploads with bounded parallelism. Stages
// within one file stay strictly sequential; only whole files run in
// parallel, sharing nothing but the read-only profile catalog.
func (s *ProcessingService) ProcessBatch(ctx context.Context, uploads []internal.Upload, parallelism int) []internal.ProcessingSummary {
	if parallelism < 1 {
		parallelism = 1
	}

	summaries := make([]internal.ProcessingSummary, len(uploads))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	for i, upload := range uploads {
		wg.Add(1)
		go func(i int, upload internal.Upload) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			summary, err := s.ProcessFile(ctx, upload)
			if err != nil && summary.Error == "" {
				summary.Error = err.Error()
			}
			summaries[i] = summary
		}(i, upload)
	}
	wg.Wait()
	return summaries
}

// loadBounded abandons uploads whose load stage exceeds the bound; an
// abandoned file fails before anything of it can be persisted.
func (s *ProcessingService) loadBounded(ctx context.Context, blob []byte, p profile.SourceProfile) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	type loaded struct {
		table *Table
		err   error
	}
	ch := make(chan loaded, 1)
	go func() {
		table, err := LoadTable(blob, p)
		ch <- loaded{table: table, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: load stage timed out", ErrUnreadableFile)
	case res := <-ch:
		return res.table, res.err
	}
}

func (s *ProcessingService) fillEUR(ctx context.Context, entries []internal.CanonicalEntry) {
	for i := range entries {
		e := &entries[i]
		amount, ok := util.ParseAmount(e.SalesLC)
		if !ok {
			continue
		}
		if e.Currency == "EUR" {
			e.SalesEUR = internal.FloatPtr(amount)
			continue
		}
		rate, ok, err := s.rates.RateToEUR(ctx, e.Currency, e.Month, e.Year)
		if err != nil || !ok || rate == 0 {
			continue
		}
		e.SalesEUR = internal.FloatPtr(math.Round(amount/rate*100) / 100)
	}
}

func (s *ProcessingService) logStep(uploadID, stage, detail string) {
	defer func() { _ = recover() }()
	if err := s.steps.Step(uploadID, stage, detail); err != nil {
		fmt.Printf("step logger error upload=%s stage=%s: %v\n", uploadID, stage, err)
	}
}

// Detect wraps the profile sniffer so hosts depend on one package.
func Detect(filename string, sheetNames []string) profile.DetectResult {
	return profile.Detect(filename, sheetNames)
}

func traceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}
