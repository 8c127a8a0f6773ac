// Package main runs the catalog crawler as a long-lived service: the read API
// plus a crawl loop that re-syncs the listing and visits new pending items.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/steam-catalog-crawler/internal/app"
	"github.com/JakeFAU/steam-catalog-crawler/internal/config"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, *cfgPath)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalogd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return fmt.Errorf("application init failed: %w", err)
	}
	defer a.Close()
	logger := a.Logger()

	settings := cfg.CrawlerSettings()
	engine, err := a.NewEngine(settings)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.ServeAPI(gctx)
	})
	g.Go(func() error {
		logger.Info("crawl loop started", zap.Duration("idle_poll", settings.IdlePoll))
		return engine.Serve(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
