package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/lianjia"
)

func newDealsCmd(cfg *config.Config) *cobra.Command {
	lj := &cfg.Lianjia
	cmd := &cobra.Command{
		Use:   "deals [district...]",
		Short: "Crawl closed second-hand housing deals, one output per district",
		Long: "Crawl closed second-hand housing deals district by district. " +
			"Without arguments every district is crawled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				lj.Districts = args
			}
			if cmd.Flags().Changed("output-dir") {
				lj.OutputDir = cfg.OutputDir
			}
			return runDeals(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&lj.BaseURL, "base-url", lj.BaseURL, "Closed-deal listing root")
	flags.IntVar(&lj.MaxPages, "pages", lj.MaxPages, "Maximum listing pages per area")
	flags.StringVar(&lj.MinDate, "min-date", lj.MinDate, "Keep deals closed after this date (YYYY-MM-DD)")
	flags.IntVar(&lj.Parallelism, "parallel", lj.Parallelism, "Number of concurrent requests")
	flags.DurationVar(&lj.Delay, "delay", lj.Delay, "Delay between requests")
	flags.DurationVar(&lj.RandomDelay, "random-delay", lj.RandomDelay, "Random jitter added to the delay")
	flags.IntVar(&lj.MaxRetries, "max-retries", lj.MaxRetries, "Maximum retry attempts per URL")
	flags.DurationVar(&lj.RetryBackoff, "retry-backoff", lj.RetryBackoff, "Initial retry backoff")
	flags.DurationVar(&lj.RetryBackoffMax, "retry-backoff-max", lj.RetryBackoffMax, "Maximum retry backoff")
	flags.StringSliceVar(&lj.OutputFormats, "format", lj.OutputFormats, "Output formats: xlsx, csv, jsonl")
	return cmd
}

func runDeals(ctx context.Context, cfg *config.Config) error {
	lj := cfg.Lianjia
	for i, f := range lj.OutputFormats {
		lj.OutputFormats[i] = strings.ToLower(strings.TrimSpace(f))
	}

	crawler, err := lianjia.NewCrawler(lj, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, crawler.Metrics.Registry)
	defer stopMetricsServer(metricsServer)

	slog.Info("starting deal crawl",
		slog.String("base_url", lj.BaseURL),
		slog.Any("districts", lj.SelectedDistricts()),
		slog.Int("pages", lj.MaxPages),
		slog.String("min_date", lj.MinDate),
	)
	startTime := time.Now()
	results, err := crawler.Run(ctx)
	printDealsSummary(results, time.Since(startTime))
	return err
}

func printDealsSummary(results []*lianjia.Result, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Deal crawl complete")

	var written, requests, errs int
	for _, r := range results {
		written += r.Written
		requests += r.RequestCount
		errs += r.ErrorCount
		fmt.Printf("  %-10s pages=%d kept=%d dropped=%d written=%d retries=%d failed=%d\n",
			r.District, r.PageCount, r.Kept, r.Dropped, r.Written, r.RetryCount, len(r.FailedURLs))
		if len(r.ErrorsByType) > 0 {
			fmt.Printf("  %-10s error types: %v\n", "", r.ErrorsByType)
		}
		for _, out := range r.Outputs {
			fmt.Printf("  %-10s -> %s\n", "", out)
		}
	}

	successRate := 0.0
	if requests > 0 {
		successRate = float64(requests-errs) / float64(requests) * 100
	}
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(written) / duration.Seconds()
	}
	fmt.Printf("  Total written: %d\n", written)
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Println(separator)
}
