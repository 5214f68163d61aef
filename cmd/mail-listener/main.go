package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sellout/internal/config"
	"sellout/internal/fx"
	"sellout/internal/listener"
	"sellout/internal/pipeline"
	"sellout/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	processor := pipeline.NewProcessingService(db,
		pipeline.WithRateProvider(fx.NewService(db, fx.NewClient(cfg))),
		pipeline.WithLoadTimeout(time.Duration(cfg.LoadTimeoutMs)*time.Millisecond),
	)

	svc := listener.NewService(db, cfg, processor)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
