package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"sellout/internal"
	"sellout/internal/config"
	"sellout/internal/connectors"
	gmailconnector "sellout/internal/connectors/gmail"
	imapconnector "sellout/internal/connectors/imap"
	"sellout/internal/fx"
	"sellout/internal/listener"
	"sellout/internal/pipeline"
	"sellout/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	processor := newProcessor(db, cfg)
	cmd := os.Args[1]
	switch cmd {
	case "ingest":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "spreadsheet path")
		uploadID := fs.String("upload-id", "", "override generated upload id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		blob, err := os.ReadFile(*file)
		must(err)
		id := *uploadID
		if id == "" {
			id = uuid.NewString()
		}
		summary, err := processor.ProcessFile(context.Background(), internal.Upload{
			ID:       id,
			Filename: filepath.Base(*file),
			Data:     blob,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload %s FAILED: %v\n", id, err)
			os.Exit(1)
		}
		printSummary(summary)
	case "ingest:dir":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", "", "directory of spreadsheets")
		parallel := fs.Int("parallel", cfg.IngestParallelism, "files in flight")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*dir) == "" {
			must(fmt.Errorf("--dir is required"))
		}
		uploads, err := collectUploads(*dir)
		must(err)
		if len(uploads) == 0 {
			must(fmt.Errorf("no spreadsheets in %s", *dir))
		}
		summaries := processor.ProcessBatch(context.Background(), uploads, *parallel)
		failed := 0
		for _, summary := range summaries {
			printSummary(summary)
			if summary.Error != "" {
				failed++
			}
		}
		fmt.Printf("ingested %d files, %d failed\n", len(summaries), failed)
	case "uploads:status":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		uploadID := fs.String("upload-id", "", "upload id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*uploadID) == "" {
			must(fmt.Errorf("--upload-id is required"))
		}
		row, err := db.GetUpload(*uploadID)
		must(err)
		if row == nil {
			must(fmt.Errorf("unknown upload: %s", *uploadID))
		}
		errText := ""
		if row.Error != nil {
			errText = " error=" + *row.Error
		}
		fmt.Printf("upload %s status=%s source=%s processed=%d cleaned=%d skipped=%d lowConfidence=%v%s\n",
			row.ID, row.Status, row.Source, row.RowsProcessed, row.RowsCleaned, row.RowsSkipped, row.LowConfidence, errText)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		uploadID := fs.String("upload-id", "", "upload id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*uploadID) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--upload-id and --out are required"))
		}
		entries, err := db.GetEntries(*uploadID)
		must(err)
		if len(entries) == 0 {
			must(fmt.Errorf("no entries for upload %s", *uploadID))
		}
		must(pipeline.ExportEntriesToXLSX(entries, *out))
		fmt.Printf("exported %d entries to %s\n", len(entries), *out)
	case "fx:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		currency := fs.String("currency", "", "ISO currency code")
		months := fs.Int("months", 12, "trailing months to fetch")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*currency) == "" {
			must(fmt.Errorf("--currency is required"))
		}
		svc := fx.NewService(db, fx.NewClient(cfg))
		now := time.Now().UTC()
		fetched, err := svc.Sync(context.Background(), strings.ToUpper(*currency), fx.TrailingMonths(int(now.Month()), now.Year(), *months))
		must(err)
		fmt.Printf("fx sync done currency=%s fetched=%d\n", strings.ToUpper(*currency), fetched)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		svc := listener.NewService(db, cfg, processor)
		uploads, err := svc.ProcessPending(context.Background(), *batch, *provider)
		must(err)
		fmt.Printf("processed pending mail, uploads=%d\n", uploads)
	case "mail:listen":
		svc := listener.NewService(db, cfg, processor)
		must(svc.Run(context.Background()))
	default:
		usage()
		os.Exit(1)
	}
}

func newProcessor(db *storage.DB, cfg config.Config) *pipeline.ProcessingService {
	rates := fx.NewService(db, fx.NewClient(cfg))
	return pipeline.NewProcessingService(db,
		pipeline.WithRateProvider(rates),
		pipeline.WithLoadTimeout(time.Duration(cfg.LoadTimeoutMs)*time.Millisecond),
	)
}

func collectUploads(dir string) ([]internal.Upload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var uploads []internal.Upload
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".xlsx") && !strings.HasSuffix(lower, ".xls") && !strings.HasSuffix(lower, ".xlsm") {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, internal.Upload{ID: uuid.NewString(), Filename: name, Data: blob})
	}
	return uploads, nil
}

func printSummary(s internal.ProcessingSummary) {
	if s.Error != "" {
		fmt.Printf("upload %s FAILED source=%s: %s\n", s.UploadID, s.Source, s.Error)
		return
	}
	fmt.Printf("upload %s COMPLETED source=%s processed=%d cleaned=%d skipped=%d anomalies=%d lowConfidence=%v\n",
		s.UploadID, s.Source, s.RowsProcessed, s.RowsCleaned, s.RowsSkipped, s.Anomalies, s.LowConfidence)
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(provider) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println(`sellout <command> [flags]

commands:
  ingest          --file <path> [--upload-id <id>]
  ingest:dir      --dir <path> [--parallel N]
  uploads:status  --upload-id <id>
  export:xlsx     --upload-id <id> --out <path>
  fx:sync         --currency <ISO> [--months N]
  mail:fetch      [--provider gmail|imap] [--label INBOX] [--max N]
  mail:process    [--provider gmail|imap] [--batch N]
  mail:listen`)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
