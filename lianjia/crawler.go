// Package lianjia crawls the closed-deal listings of the lianjia second-hand
// housing site. Listing pages are server-rendered, so colly fetches them
// directly; rows go through a pipeline into one output per district.
package lianjia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
	"github.com/aluiziolira/go-scrape-estates/scraper"
)

// Sink receives the rows kept for a district.
type Sink interface {
	Process(records ...models.Record) error
}

// Result summarises one district crawl.
type Result struct {
	District     string
	StartTime    time.Time
	EndTime      time.Time
	Areas        int
	RequestCount int
	PageCount    int
	Kept         int
	Dropped      int
	Written      int
	ErrorCount   int
	RetryCount   int
	FailedURLs   []string
	ErrorsByType map[string]int
	Outputs      []string
}

// Crawler wraps the colly collector shared by every district crawl.
type Crawler struct {
	cfg       config.LianjiaConfig
	collector *colly.Collector
	minDate   time.Time
	logger    *slog.Logger
	Metrics   *scraper.Metrics
}

// NewCrawler builds a crawler configured from cfg.
func NewCrawler(cfg config.LianjiaConfig, logger *slog.Logger) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	minDate, err := cfg.MinDateTime()
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Crawler{
		cfg:       cfg,
		collector: collector,
		minDate:   minDate,
		logger:    logger,
		Metrics:   scraper.NewMetrics("lianjia"),
	}, nil
}

// Run crawls every selected district in turn, each into its own output
// files. Cancelling ctx stops scheduling requests; rows already fetched are
// still written.
func (c *Crawler) Run(ctx context.Context) ([]*Result, error) {
	var results []*Result
	for _, district := range c.cfg.SelectedDistricts() {
		if ctx.Err() != nil {
			break
		}
		res, err := c.runDistrict(ctx, district)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, fmt.Errorf("district %s: %w", district, err)
		}
	}
	return results, nil
}

func (c *Crawler) runDistrict(ctx context.Context, district string) (*Result, error) {
	paths := c.cfg.OutputPaths(district)
	writer, err := pipeline.NewMultiWriter(pipeline.DefaultSheet, paths...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			c.logger.Error("close writer", slog.String("district", district), slog.Any("error", err))
		}
	}()

	// Accepted rows are written even after cancellation.
	p, err := pipeline.NewPipeline(context.WithoutCancel(ctx), writer, pipeline.Options{
		BufferSize:    c.cfg.BufferSize,
		BatchSize:     c.cfg.FlushSize,
		DedupeMaxSize: c.cfg.DedupeMaxSize,
		KeyField:      ColName,
		DedupeKey:     DealKey,
		Logger:        c.logger.With(slog.String("district", district)),
	})
	if err != nil {
		return nil, err
	}
	p.Start(c.cfg.Parallelism)

	res, crawlErr := c.CrawlDistrict(ctx, district, p)
	if err := p.Close(); err != nil {
		return res, fmt.Errorf("pipeline shutdown: %w", err)
	}
	if written, ok := p.GetMetrics()["written_records"].(int64); ok {
		res.Written = int(written)
	}
	res.Outputs = paths
	c.logger.Info("district saved",
		slog.String("district", district),
		slog.Int("kept", res.Kept),
		slog.Int("written", res.Written),
		slog.Int("dropped", res.Dropped),
		slog.Any("outputs", paths),
	)
	return res, crawlErr
}

// districtRun is the state of one district crawl.
type districtRun struct {
	c         *Crawler
	ctx       context.Context
	district  string
	collector *colly.Collector
	retry     *retryManager
	sink      Sink
	logger    *slog.Logger

	requestCount int64
	pageCount    int64
	errorCount   int64
	kept         int64
	dropped      int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// CrawlDistrict walks every area of district and hands kept rows to sink.
func (c *Crawler) CrawlDistrict(ctx context.Context, district string, sink Sink) (*Result, error) {
	areas, ok := config.DistrictAreas(district)
	if !ok {
		return nil, fmt.Errorf("unknown district %q", district)
	}
	logger := c.logger.With(slog.String("district", district))
	run := &districtRun{
		c:            c,
		ctx:          ctx,
		district:     district,
		collector:    c.collector.Clone(),
		retry:        newRetryManager(c.cfg.MaxRetries, c.cfg.RetryBackoff, c.cfg.RetryBackoffMax, c.Metrics, logger),
		sink:         sink,
		logger:       logger,
		errorsByType: make(map[string]int),
	}
	run.configureHandlers()

	res := &Result{District: district, StartTime: time.Now()}
	logger.Info("crawling district", slog.Int("areas", len(areas)))
	for _, area := range areas {
		if ctx.Err() != nil {
			break
		}
		slug, ok := config.AreaSlugs[area]
		if !ok {
			logger.Warn("no url slug for area", slog.String("area", area))
			continue
		}
		res.Areas++
		if err := run.visit(area, slug, 1); err != nil {
			logger.Warn("visit area", slog.String("area", area), slog.Any("error", err))
		}
	}

	for {
		run.collector.Wait()
		if !run.retry.Drain(ctx) {
			break
		}
	}
	run.retry.Stop()

	res.EndTime = time.Now()
	res.RequestCount = int(atomic.LoadInt64(&run.requestCount))
	res.PageCount = int(atomic.LoadInt64(&run.pageCount))
	res.ErrorCount = int(atomic.LoadInt64(&run.errorCount))
	res.Kept = int(atomic.LoadInt64(&run.kept))
	res.Dropped = int(atomic.LoadInt64(&run.dropped))
	res.RetryCount = run.retry.TotalRetries()
	res.FailedURLs = run.snapshotFailedURLs()
	res.ErrorsByType = run.snapshotErrors()
	return res, nil
}

// AreaURL is the listing page of an area: <base>/<slug>/ or <base>/<slug>/pgN/.
func AreaURL(base, slug string, page int) string {
	u := strings.TrimSuffix(base, "/") + "/" + slug + "/"
	if page > 1 {
		u += "pg" + strconv.Itoa(page) + "/"
	}
	return u
}

func (r *districtRun) visit(area, slug string, page int) error {
	rctx := colly.NewContext()
	rctx.Put("area", area)
	rctx.Put("slug", slug)
	rctx.Put("page", strconv.Itoa(page))
	return r.collector.Request(http.MethodGet, AreaURL(r.c.cfg.BaseURL, slug, page), nil, rctx, nil)
}

func (r *districtRun) configureHandlers() {
	r.collector.OnRequest(func(req *colly.Request) {
		req.Ctx.Put("start", time.Now())
		current := atomic.AddInt64(&r.requestCount, 1)
		r.c.Metrics.IncRequest("listing")
		if current%50 == 0 {
			r.logger.Debug("request progress",
				slog.Int64("requests", current),
				slog.Int64("pages", atomic.LoadInt64(&r.pageCount)),
				slog.String("url", req.URL.String()),
			)
		}
	})

	r.collector.OnResponse(func(resp *colly.Response) {
		if resp.StatusCode >= http.StatusBadRequest {
			r.logger.Error("non-200 response",
				slog.Int("status", resp.StatusCode),
				slog.String("url", resp.Request.URL.String()),
			)
		}
		if start, ok := resp.Request.Ctx.GetAny("start").(time.Time); ok {
			r.c.Metrics.ObserveDuration(time.Since(start))
		}
	})

	r.collector.OnError(func(resp *colly.Response, err error) {
		atomic.AddInt64(&r.errorCount, 1)
		statusCode := 0
		var req *colly.Request
		if resp != nil {
			statusCode = resp.StatusCode
			req = resp.Request
		}
		category := scraper.ErrorType(scraper.ClassifyHTTP(err, statusCode))

		r.mu.Lock()
		r.errorsByType[category]++
		r.mu.Unlock()

		u := ""
		if req != nil && req.URL != nil {
			u = req.URL.String()
		}
		r.logger.Error("request error",
			slog.String("url", u),
			slog.String("category", category),
			slog.Any("error", err),
		)
		r.c.Metrics.IncError(category)

		if !r.retry.Schedule(r.ctx, req) {
			r.mu.Lock()
			r.failedURLs = append(r.failedURLs, u)
			r.mu.Unlock()
		}
	})

	r.collector.OnHTML(rowSelector, func(e *colly.HTMLElement) {
		deal := ExtractDeal(browser.FromSelection(e.DOM, e.Request.URL), r.district)
		if deal.Record.Text(ColName) == "" {
			return
		}
		if !deal.Keep(r.c.minDate) {
			atomic.AddInt64(&r.dropped, 1)
			r.c.Metrics.IncItems(scraper.OutcomeFiltered)
			return
		}
		atomic.AddInt64(&r.kept, 1)
		r.c.Metrics.IncItems(scraper.OutcomeExtracted)
		if err := r.sink.Process(deal.Record); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
			r.logger.Error("pipeline process error", slog.Any("error", err))
		}
	})

	r.collector.OnHTML(pagerSelector, func(e *colly.HTMLElement) {
		if e.Request.Ctx.Get("page") != "1" {
			return
		}
		area, slug := e.Request.Ctx.Get("area"), e.Request.Ctx.Get("slug")
		total := MaxPage(e.DOM)
		last := min(total, r.c.cfg.MaxPages)
		r.logger.Info("area pages",
			slog.String("area", area),
			slog.Int("pages", total),
			slog.Int("crawling", max(last, 1)),
		)
		for page := 2; page <= last; page++ {
			if r.ctx.Err() != nil {
				return
			}
			if err := r.visit(area, slug, page); err != nil {
				r.logger.Warn("visit page", slog.String("area", area), slog.Int("page", page), slog.Any("error", err))
			}
		}
	})

	r.collector.OnScraped(func(*colly.Response) {
		atomic.AddInt64(&r.pageCount, 1)
		r.c.Metrics.IncPages()
	})
}

func (r *districtRun) snapshotFailedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.failedURLs))
	copy(out, r.failedURLs)
	return out
}

func (r *districtRun) snapshotErrors() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.errorsByType))
	for k, v := range r.errorsByType {
		out[k] = v
	}
	return out
}
