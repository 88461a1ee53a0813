package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/parser"
)

// Visitor extracts one detail page.
type Visitor interface {
	Visit(ctx context.Context, url, title string) (*Detail, error)
}

// PageResult is what one listing page produced.
type PageResult struct {
	Page      int
	Records   []models.Record
	Extracted int
	Skipped   int
	Failed    int
	// LastKey is the key of the last item considered on the page and
	// LastItem its index; both are unset when every item was resume-skipped.
	LastKey  string
	LastItem int
	// Errors counts item failures by error type.
	Errors map[string]int
	Stop   models.StopCondition
}

// Walker processes the items of listing pages. It carries the resume marker
// across pages, so one Walker serves one run.
type Walker struct {
	driver    browser.Driver
	visitor   Visitor
	throttle  *Throttle
	cutoff    time.Time
	hasCutoff bool
	resumeKey string
	logger    *slog.Logger
	metrics   *Metrics
}

// NewWalker builds a walker. A zero cutoff disables the cutoff check.
func NewWalker(driver browser.Driver, visitor Visitor, throttle *Throttle, cutoff time.Time, logger *slog.Logger, metrics *Metrics) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		driver:    driver,
		visitor:   visitor,
		throttle:  throttle,
		cutoff:    cutoff,
		hasCutoff: !cutoff.IsZero(),
		logger:    logger,
		metrics:   metrics,
	}
}

// ResumeAfter makes the walker skip every item up to and including the one
// whose key is key.
func (w *Walker) ResumeAfter(key string) {
	w.resumeKey = key
}

// Resuming reports whether the resume marker is still being searched for.
func (w *Walker) Resuming() bool {
	return w.resumeKey != ""
}

// ProcessPage walks the items of the displayed listing page. Per-item failures
// are counted, not returned; an error means the page itself could not be read.
// Cancelling ctx stops the walk between items; an item already being
// extracted runs to completion. A panic outside an item returns the records
// extracted so far with an ErrUnexpected error.
func (w *Walker) ProcessPage(ctx context.Context, page int) (res PageResult, err error) {
	res = PageResult{Page: page, LastItem: -1}
	log := w.logger.With(slog.Int("page", page))
	defer func() {
		if r := recover(); r != nil {
			log.Error("listing page panicked",
				slog.Any("panic", r),
				slog.Int("extracted", len(res.Records)),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: page %d: %v", ErrUnexpected, page, r)
		}
	}()

	items, err := w.driver.FindAll(listItems)
	if err != nil && !errors.Is(err, browser.ErrNotFound) {
		return res, fmt.Errorf("read listing page %d: %w", page, err)
	}
	if len(items) == 0 {
		res.Stop = models.StopCondition{Reason: models.StopNoItems, Page: page}
		log.Info("no items on page")
		return res, nil
	}
	w.metrics.IncPages()

	visited := 0
	for i, item := range items {
		if ctx.Err() != nil {
			res.Stop = models.StopCondition{Reason: models.StopUserAbort, Page: page, Item: i}
			break
		}
		ilog := log.With(slog.Int("item", i))

		card, _ := parser.Extract(item, cardTable)
		title := card.Text(ColName)
		key := parser.AssetKey(title)

		if w.resumeKey != "" {
			res.Skipped++
			w.metrics.IncItems(OutcomeSkipped)
			if key == w.resumeKey || title == w.resumeKey {
				ilog.Info("resume point found", slog.String("key", key))
				w.resumeKey = ""
				res.LastKey, res.LastItem = key, i
			}
			continue
		}
		if key != "" {
			res.LastKey, res.LastItem = key, i
		}

		status := card.Text(ColStatus)
		if !parser.IsFinalized(status) {
			res.Skipped++
			w.metrics.IncItems(OutcomeFiltered)
			ilog.Debug("skip unfinished item", slog.String("status", status))
			continue
		}

		if err := w.throttle.BeforeItem(ctx, visited); err != nil {
			res.Stop = models.StopCondition{Reason: models.StopUserAbort, Page: page, Item: i}
			break
		}
		visited++

		rec, err := w.processItem(context.WithoutCancel(ctx), card)
		if err != nil {
			kind := ErrorType(err)
			res.Failed++
			if res.Errors == nil {
				res.Errors = make(map[string]int)
			}
			res.Errors[kind]++
			w.metrics.IncItems(OutcomeFailed)
			w.metrics.IncError(kind)
			ilog.Warn("item failed", slog.String("title", title), slog.Any("error", err))
			continue
		}
		res.Records = append(res.Records, rec)
		res.Extracted++
		w.metrics.IncItems(OutcomeExtracted)
		ilog.Info("item extracted", slog.String("name", rec.Text(ColName)))

		if w.pastCutoff(rec, ilog) {
			res.Stop = models.StopCondition{
				Reason: models.StopCutoff,
				Page:   page,
				Item:   i,
				Detail: rec.Text(ColEndTime),
			}
			break
		}
	}
	return res, nil
}

func (w *Walker) processItem(ctx context.Context, card models.Record) (rec models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnexpected, r)
		}
	}()

	link := card.Text(ColLink)
	if link == "" {
		return models.Record{}, ErrNotFound{Err: errors.New("listing card has no link")}
	}
	detail, err := w.visitor.Visit(ctx, link, card.Text(ColName))
	if err != nil {
		return models.Record{}, err
	}
	rec = assemble(detail.Record, card)
	if err := parser.ValidateRecord(rec, ColName); err != nil {
		return models.Record{}, ErrNotFound{Err: fmt.Errorf("detail %s: %w", link, err)}
	}
	return rec, nil
}

func (w *Walker) pastCutoff(rec models.Record, log *slog.Logger) bool {
	if !w.hasCutoff {
		return false
	}
	raw := rec.Text(ColEndTime)
	end, err := parser.ParseTimestamp(raw)
	if err != nil {
		log.Warn("end time unreadable, cutoff not applied", slog.String("end_time", raw))
		return false
	}
	if end.Before(w.cutoff) {
		log.Info("cutoff reached",
			slog.Time("end_time", end),
			slog.Time("cutoff", w.cutoff),
		)
		return true
	}
	return false
}
