package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-estates/browser"
)

// Paginator moves the listing pager forward one confirmed step at a time.
type Paginator struct {
	driver      browser.Driver
	throttle    *Throttle
	maxFailures int
	logger      *slog.Logger
	metrics     *Metrics
}

// NewPaginator builds a paginator that gives up after maxFailures consecutive
// unconfirmed clicks.
func NewPaginator(driver browser.Driver, throttle *Throttle, maxFailures int, logger *slog.Logger, metrics *Metrics) *Paginator {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		driver:      driver,
		throttle:    throttle,
		maxFailures: maxFailures,
		logger:      logger,
		metrics:     metrics,
	}
}

// CurrentPage reads the pager's current-page indicator.
func (p *Paginator) CurrentPage() (int, error) {
	el, err := p.driver.FindOne(pagerCurrent)
	if err != nil {
		return 0, err
	}
	text, err := el.Text()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("page indicator %q: %w", text, err)
	}
	return n, nil
}

// AdvanceTo clicks next until target is displayed, ctx is done, or
// maxFailures consecutive clicks fail to move the indicator by exactly one.
// It returns the last confirmed page; callers compare it with target.
func (p *Paginator) AdvanceTo(ctx context.Context, current, target int) int {
	failures := 0
	for current < target && failures < p.maxFailures {
		if ctx.Err() != nil {
			break
		}

		before, err := p.step(ctx)
		if err == nil {
			var after int
			after, err = p.CurrentPage()
			if err == nil && after == before+1 {
				current = after
				failures = 0
				p.logger.Debug("page advanced", slog.Int("page", current))
				continue
			}
			if err == nil {
				err = fmt.Errorf("indicator shows %d after next from %d", after, before)
			}
		}

		failures++
		p.metrics.IncRetries("pagination")
		p.logger.Warn("page advance not confirmed",
			slog.Int("page", current),
			slog.Int("target", target),
			slog.Int("failures", failures),
			slog.Any("error", err),
		)
		if failures < p.maxFailures {
			_ = p.throttle.Backoff(ctx)
		}
	}
	return current
}

// step clicks next once and lets the page settle. It returns the indicator
// read before the click.
func (p *Paginator) step(ctx context.Context) (int, error) {
	before, err := p.CurrentPage()
	if err != nil {
		return 0, err
	}
	next, err := p.driver.FindOne(pagerNext)
	if err != nil {
		return before, err
	}
	if err := next.ScrollIntoView(); err != nil {
		p.logger.Debug("scroll to next", slog.Any("error", err))
	}
	if err := next.Hover(); err != nil {
		p.logger.Debug("hover next", slog.Any("error", err))
	}
	if err := next.Click(); err != nil {
		return before, err
	}
	p.metrics.IncRequest("page")
	_ = p.throttle.Settle(ctx)
	return before, nil
}

// EnsurePage brings the listing to target, starting from whatever page is
// displayed. A listing without a pager counts as page 1.
func (p *Paginator) EnsurePage(ctx context.Context, target int) (int, error) {
	current, err := p.CurrentPage()
	if err != nil {
		if target <= 1 {
			return 1, nil
		}
		return 0, fmt.Errorf("read current page: %w", err)
	}
	if current >= target {
		return current, nil
	}
	return p.AdvanceTo(ctx, current, target), nil
}
