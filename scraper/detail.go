package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/parser"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
)

// Store is the persistence the crawler writes through. Appends to the same
// destination accumulate.
type Store interface {
	AppendRecords(ctx context.Context, records []models.Record, dest pipeline.Destination) error
	EnsureFolder(path string) (string, error)
	DownloadBinary(ctx context.Context, url, dest string) error
}

// Phase is a step of a detail-page visit.
type Phase uint8

const (
	PhaseOpen Phase = iota
	PhaseWait
	PhaseDismissPopup
	PhaseExtractCore
	PhaseExtractAux
	PhaseClose
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open_context"
	case PhaseWait:
		return "wait_loaded"
	case PhaseDismissPopup:
		return "dismiss_popup"
	case PhaseExtractCore:
		return "extract_core"
	case PhaseExtractAux:
		return "extract_aux"
	case PhaseClose:
		return "close_context"
	default:
		return "unknown"
	}
}

// Detail is the outcome of one detail-page visit.
type Detail struct {
	Record  models.Record
	Terms   Terms
	Missing []string
	Aux     []AuxResult
}

// DetailOptions configures a DetailVisitor.
type DetailOptions struct {
	ElementTimeout     time.Duration
	PopupRetries       int
	PopupWait          time.Duration
	ArtifactsDir       string
	BidHistoryMaxPages int
	// SkipAux disables the side extractions.
	SkipAux bool
}

// DetailVisitor extracts one detail page in its own browsing context.
type DetailVisitor struct {
	driver   browser.Driver
	store    Store
	throttle *Throttle
	opts     DetailOptions
	tasks    []AuxTask
	logger   *slog.Logger
	metrics  *Metrics
}

// NewDetailVisitor builds a visitor running the default side extractions.
func NewDetailVisitor(driver browser.Driver, store Store, throttle *Throttle, opts DetailOptions, logger *slog.Logger, metrics *Metrics) *DetailVisitor {
	if opts.PopupRetries <= 0 {
		opts.PopupRetries = 3
	}
	if opts.PopupWait <= 0 {
		opts.PopupWait = 2 * time.Second
	}
	if opts.BidHistoryMaxPages <= 0 {
		opts.BidHistoryMaxPages = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailVisitor{
		driver:   driver,
		store:    store,
		throttle: throttle,
		opts:     opts,
		tasks:    DefaultAuxTasks(),
		logger:   logger,
		metrics:  metrics,
	}
}

// Visit opens url in a new context, extracts it and closes the context. The
// parent context is active again on every return path, panics included.
// title is the listing card title and decides the variant.
func (v *DetailVisitor) Visit(ctx context.Context, url, title string) (detail *Detail, err error) {
	parent := v.driver.ActiveContext()
	phase := PhaseOpen
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			detail = nil
			err = &ErrDetailUnavailable{URL: url, Phase: phase, Err: fmt.Errorf("%w: %v", ErrUnexpected, r)}
		}
		if cerr := v.release(parent); cerr != nil {
			v.logger.Warn("restore parent context", slog.String("url", url), slog.Any("error", cerr))
			if err == nil {
				detail = nil
				err = &ErrDetailUnavailable{URL: url, Phase: PhaseClose, Err: cerr}
			}
		}
		v.metrics.ObserveDuration(time.Since(start))
	}()

	v.metrics.IncRequest("detail")
	if _, err := v.driver.OpenContext(ctx, url); err != nil {
		return nil, &ErrDetailUnavailable{URL: url, Phase: phase, Err: classifyBrowser(err)}
	}

	phase = PhaseWait
	if _, err := browser.WaitFor(ctx, v.driver, detailRoot, v.opts.ElementTimeout); err != nil {
		return nil, &ErrDetailUnavailable{URL: url, Phase: phase, Err: ErrTimeout{Err: err}}
	}

	phase = PhaseDismissPopup
	v.dismissPopup(ctx, url)

	phase = PhaseExtractCore
	core, missing := parser.Extract(v.driver, detailTable)
	if title == "" {
		title = core.Text(ColName)
	}
	terms, termsMissing := extractTerms(v.driver, VariantOf(title))
	missing = append(missing, termsMissing...)
	if len(missing) > 0 {
		v.logger.Debug("detail fields not found",
			slog.String("url", url),
			slog.Any("fields", missing),
		)
	}

	detail = &Detail{
		Record:  models.NewBuilder(core.Len() + 3).Merge(core).Merge(terms.Record()).Build(),
		Terms:   terms,
		Missing: missing,
	}

	phase = PhaseExtractAux
	if !v.opts.SkipAux {
		key := parser.AssetKey(core.Text(ColName))
		if key == "" {
			key = parser.AssetKey(title)
		}
		detail.Aux = v.runAux(ctx, key)
	}
	return detail, nil
}

// release closes whatever context the visit left active and refocuses parent.
func (v *DetailVisitor) release(parent browser.Handle) error {
	if v.driver.ActiveContext() != parent {
		if err := v.driver.CloseContext(); err != nil {
			v.logger.Debug("close detail context", slog.Any("error", err))
		}
	}
	return v.driver.SwitchContext(parent)
}

type popupStrategy struct {
	name  string
	apply func(d browser.Driver) error
}

var popupStrategies = []popupStrategy{
	{name: "confirm", apply: func(d browser.Driver) error { return clickFirst(d, popupConfirm...) }},
	{name: "close", apply: func(d browser.Driver) error { return clickFirst(d, popupClose) }},
	{name: "escape", apply: func(d browser.Driver) error { return d.PressEscape() }},
}

// dismissPopup tries increasingly blunt ways of removing the notice overlay.
// Failing to dismiss it is logged and ignored.
func (v *DetailVisitor) dismissPopup(ctx context.Context, url string) bool {
	for attempt := 0; attempt < v.opts.PopupRetries; attempt++ {
		if _, err := v.driver.FindOne(popupOverlay); err != nil {
			return true
		}
		strategy := popupStrategies[min(attempt, len(popupStrategies)-1)]
		if err := strategy.apply(v.driver); err != nil {
			v.logger.Debug("popup strategy failed",
				slog.String("strategy", strategy.name),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err),
			)
		}
		if browser.WaitGone(ctx, v.driver, popupOverlay, v.opts.PopupWait) {
			return true
		}
		v.metrics.IncRetries("popup")
	}
	v.logger.Warn("popup not dismissed, extracting anyway",
		slog.String("url", url),
		slog.Int("attempts", v.opts.PopupRetries),
	)
	return false
}

func clickFirst(scope browser.Scope, locs ...browser.Locator) error {
	var last error = browser.ErrNotFound
	for _, loc := range locs {
		el, err := scope.FindOne(loc)
		if err != nil {
			last = err
			continue
		}
		if err := el.Click(); err != nil {
			last = err
			continue
		}
		return nil
	}
	return last
}

func (v *DetailVisitor) artifactFolder(key string) string {
	return filepath.Join(v.opts.ArtifactsDir, pipeline.SafeName(key))
}
