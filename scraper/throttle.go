package scraper

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-scrape-estates/config"
)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Range is a closed interval of pause lengths.
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) pick(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int64N(int64(r.Max-r.Min)+1))
}

// Throttle spaces out browser actions with narrow random pauses. It is used
// from the single crawl goroutine only.
type Throttle struct {
	ItemDelay  Range
	BatchPause Range
	BatchSize  int
	PageSettle Range
	RetryDelay Range

	sleep Sleeper
	rng   *rand.Rand
}

// NewThrottle builds a throttle from cfg. A nil sleep waits on real timers.
func NewThrottle(cfg *config.Config, sleep Sleeper) *Throttle {
	if sleep == nil {
		sleep = sleepContext
	}
	return &Throttle{
		ItemDelay:  Range{cfg.ItemDelayMin, cfg.ItemDelayMax},
		BatchPause: Range{cfg.BatchPauseMin, cfg.BatchPauseMax},
		BatchSize:  cfg.BatchSize,
		PageSettle: Range{cfg.PageSettleMin, cfg.PageSettleMax},
		RetryDelay: Range{cfg.RetryDelayMin, cfg.RetryDelayMax},
		sleep:      sleep,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// Pause sleeps for a random length within r.
func (t *Throttle) Pause(ctx context.Context, r Range) error {
	return t.sleep(ctx, r.pick(t.rng))
}

// BeforeItem paces the n-th visited item of a page (0-based): nothing before
// the first, a short delay before the others, plus a longer pause after every
// BatchSize items.
func (t *Throttle) BeforeItem(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}
	if err := t.Pause(ctx, t.ItemDelay); err != nil {
		return err
	}
	if t.BatchSize > 0 && n%t.BatchSize == 0 {
		return t.Pause(ctx, t.BatchPause)
	}
	return nil
}

// Settle waits for the page to settle after a navigation or click.
func (t *Throttle) Settle(ctx context.Context) error {
	return t.Pause(ctx, t.PageSettle)
}

// Backoff waits between retry attempts.
func (t *Throttle) Backoff(ctx context.Context) error {
	return t.Pause(ctx, t.RetryDelay)
}
