package listener

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"sellout/internal"
	"sellout/internal/config"
	"sellout/internal/connectors"
	gmailconnector "sellout/internal/connectors/gmail"
	imapconnector "sellout/internal/connectors/imap"
	"sellout/internal/pipeline"
	"sellout/internal/storage"
)

// Service polls a report mailbox and drives the ingestion pipeline: one
// spreadsheet attachment becomes one upload.
type Service struct {
	db        *storage.DB
	cfg       config.Config
	processor *pipeline.ProcessingService
}

func NewService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService) *Service {
	return &Service{db: db, cfg: cfg, processor: processor}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			fmt.Printf("listener cycle error: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.MailListenerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.makeConnector(provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector)
	fetchResult, err := fetchService.FetchAndStore(s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	processed, err := s.ProcessPending(ctx, s.cfg.MailListenerBatch, provider)
	if err != nil {
		return err
	}

	fmt.Printf("listener cycle done provider=%s fetched=%d stored=%d uploads=%d\n",
		provider, fetchResult.Fetched, fetchResult.Stored, processed)
	return nil
}

// ProcessPending runs every spreadsheet attachment of the fetched mail
// through the pipeline. A failing upload marks its file FAILED but never
// stops the rest of the batch.
func (s *Service) ProcessPending(ctx context.Context, limit int, provider string) (int, error) {
	pending, err := s.db.ListMailsByStatus("fetched", limit)
	if err != nil {
		return 0, err
	}

	uploads := 0
	for _, mail := range pending {
		if provider != "" && mail.Provider != provider {
			continue
		}
		n, err := s.ProcessMail(ctx, mail)
		if err != nil {
			_ = s.db.UpdateMailStatus(mail.ID, "error")
			fmt.Printf("mail %d: %v\n", mail.ID, err)
			continue
		}
		uploads += n
	}
	return uploads, nil
}

func (s *Service) ProcessMail(ctx context.Context, mail internal.ReportMail) (int, error) {
	raw, err := os.ReadFile(mail.RawRef)
	if err != nil {
		return 0, err
	}

	attachments, subject, err := connectors.ExtractSpreadsheets(raw)
	if err != nil {
		return 0, err
	}
	if len(attachments) == 0 {
		_ = s.db.UpdateMailStatus(mail.ID, "skipped")
		return 0, nil
	}

	processed := 0
	for _, att := range attachments {
		upload := internal.Upload{
			ID:       uuid.NewString(),
			Filename: att.Filename,
			Data:     att.Data,
		}
		summary, err := s.processor.ProcessFile(ctx, upload)
		if err != nil {
			fmt.Printf("upload %s (%s, mail %q): %v\n", upload.ID, att.Filename, subject, err)
			continue
		}
		fmt.Printf("upload %s source=%s cleaned=%d skipped=%d\n",
			upload.ID, summary.Source, summary.RowsCleaned, summary.RowsSkipped)
		processed++
	}

	_ = s.db.UpdateMailStatus(mail.ID, "processed")
	return processed, nil
}

func (s *Service) makeConnector(provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
