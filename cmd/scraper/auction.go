package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
	"github.com/aluiziolira/go-scrape-estates/scraper"
)

func newAuctionCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auction",
		Short: "Crawl finalized judicial auction listings for one province and city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuction(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Listing entry URL")
	flags.StringVar(&cfg.Province, "province", cfg.Province, "Province code (see the locations command)")
	flags.StringVar(&cfg.City, "city", cfg.City, "City code within the province")
	flags.IntVar(&cfg.StartPage, "start-page", cfg.StartPage, "Listing page to start from")
	flags.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum listing pages to crawl")
	flags.StringVar(&cfg.Cutoff, "cutoff", cfg.Cutoff, `Stop after the first record ending before this time ("2006-01-02 15:04:05")`)
	flags.BoolVar(&cfg.Resume, "resume", cfg.Resume, "Resume from the checkpoint or the legacy error-save file")
	flags.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file name (.xlsx, .csv or .jsonl)")
	flags.StringVar(&cfg.CheckpointFile, "checkpoint", cfg.CheckpointFile, "Checkpoint file name")
	flags.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run Chrome headless (logging in needs a visible browser)")
	flags.StringVar(&cfg.DebugAddress, "debug-address", cfg.DebugAddress, "Attach to a running Chrome at host:port instead of launching one")
	flags.BoolVar(&cfg.Stealth, "stealth", cfg.Stealth, "Apply anti-detection scripts to every page")
	flags.DurationVar(&cfg.LoginTimeout, "login-timeout", cfg.LoginTimeout, "How long to wait for a manual login")
	flags.DurationVar(&cfg.ElementTimeout, "element-timeout", cfg.ElementTimeout, "Bounded wait for page elements")
	flags.IntVar(&cfg.BidHistoryMaxPages, "bid-pages", cfg.BidHistoryMaxPages, "Maximum bidding-history pages per item")
	return cmd
}

func runAuction(ctx context.Context, cfg *config.Config) error {
	// Rejected before Chrome is launched.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current item")
	}()

	metrics := scraper.NewMetrics("jd")
	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics.Registry)
	defer stopMetricsServer(metricsServer)

	driver, err := browser.NewRodDriver(browser.RodOptions{
		DebugAddress:    cfg.DebugAddress,
		Headless:        cfg.Headless,
		UserAgent:       cfg.UserAgent,
		ActionTimeout:   cfg.ElementTimeout,
		PageLoadTimeout: cfg.PageLoadTimeout,
		Stealth:         cfg.Stealth,
	})
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	store := pipeline.NewFileStore(pipeline.StoreOptions{
		UserAgent:       cfg.UserAgent,
		DownloadTimeout: cfg.DownloadTimeout,
		DownloadRetries: 2,
		Logger:          slog.Default(),
	})
	runner, err := scraper.NewRunner(cfg, scraper.Deps{
		Driver:      driver,
		Store:       store,
		Checkpoints: pipeline.NewCheckpointStore(cfg.CheckpointPath()),
		LegacyMarker: func() (string, error) {
			return pipeline.ImportLegacy(cfg.ResumeSourcePath(), cfg.OutputSheet, cfg.LegacyKeyColumn)
		},
		Logger:  slog.Default(),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx)
	if result != nil {
		printAuctionSummary(result)
	}
	if err != nil {
		var locErr *scraper.ErrLocationSelect
		if errors.As(err, &locErr) {
			return fmt.Errorf("location could not be selected, check --province/--city: %w", err)
		}
		return err
	}
	return nil
}

func printAuctionSummary(result *models.CrawlResult) {
	separator := "--------------------------------------------------"
	duration := result.EndTime.Sub(result.StartTime)
	fmt.Println("\n" + separator)
	fmt.Println("Auction crawl complete")
	fmt.Printf("  Run:           %s\n", result.RunID)
	fmt.Printf("  Pages:         %v\n", result.PagesVisited)
	fmt.Printf("  Records:       %d\n", len(result.Records))
	fmt.Printf("  Extracted:     %d\n", result.Extracted)
	fmt.Printf("  Skipped:       %d\n", result.Skipped)
	fmt.Printf("  Failed:        %d\n", result.Failed)
	if result.Stop.Stopped() {
		fmt.Printf("  Stopped:       %s (page %d, item %d)\n", result.Stop.Reason, result.Stop.Page, result.Stop.Item)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Second))
	if result.Output != "" {
		fmt.Printf("  Output file:   %s\n", result.Output)
	}
	if result.ErrorOutput != "" {
		fmt.Printf("  Error save:    %s\n", result.ErrorOutput)
	}
	fmt.Println(separator)
}
