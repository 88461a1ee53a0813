package lianjia

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-estates/scraper"
)

// drainPoll is how often Drain checks for outstanding retries.
var drainPoll = 20 * time.Millisecond

// retryManager re-issues failed listing requests with exponential backoff.
type retryManager struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
	metrics    *scraper.Metrics
	logger     *slog.Logger

	mu           sync.Mutex
	attempts     map[string]int
	timers       map[string]*time.Timer
	totalRetries int
	stopped      bool
}

func newRetryManager(maxRetries int, base, max time.Duration, metrics *scraper.Metrics, logger *slog.Logger) *retryManager {
	return &retryManager{
		maxRetries: maxRetries,
		base:       base,
		max:        max,
		metrics:    metrics,
		logger:     logger,
		attempts:   make(map[string]int),
		timers:     make(map[string]*time.Timer),
	}
}

// Schedule arranges another attempt of req. It returns false once the
// request has used up its retries or the manager is stopped.
func (rm *retryManager) Schedule(ctx context.Context, req *colly.Request) bool {
	if rm.maxRetries == 0 || req == nil || req.URL == nil || ctx.Err() != nil {
		return false
	}
	url := req.URL.String()

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stopped {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.maxRetries {
		return false
	}
	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries("listing")

	if timer, ok := rm.timers[url]; ok {
		timer.Stop()
	}
	rm.timers[url] = time.AfterFunc(rm.backoff(attempt), func() {
		rm.fire(ctx, url, req)
	})
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := rm.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if rm.max > 0 && delay > rm.max {
		delay = rm.max
	}
	return delay
}

// fire re-issues req. The timer entry is removed only after the request is
// queued, so Drain never sees a gap between the two.
func (rm *retryManager) fire(ctx context.Context, url string, req *colly.Request) {
	defer func() {
		rm.mu.Lock()
		delete(rm.timers, url)
		rm.mu.Unlock()
	}()

	rm.mu.Lock()
	stopped := rm.stopped
	rm.mu.Unlock()
	if stopped || ctx.Err() != nil {
		return
	}
	if err := req.Retry(); err != nil {
		rm.logger.Debug("retry visit failed", slog.String("url", url), slog.Any("error", err))
	}
}

// Drain waits for every scheduled retry to be issued. It reports whether any
// were outstanding; cancelling ctx stops the manager instead.
func (rm *retryManager) Drain(ctx context.Context) bool {
	if rm.pending() == 0 {
		return false
	}
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for rm.pending() > 0 {
		select {
		case <-ctx.Done():
			rm.Stop()
			return false
		case <-ticker.C:
		}
	}
	return true
}

func (rm *retryManager) pending() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.timers)
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}
	rm.stopped = true
	for url, timer := range rm.timers {
		timer.Stop()
		delete(rm.timers, url)
	}
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}
