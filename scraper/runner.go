// Package scraper drives the auction listing site: location selection,
// pagination, listing walks, detail-page extraction and the run lifecycle
// with checkpoints and safety-net saves.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
)

// Checkpointer persists the crawl cursor.
type Checkpointer interface {
	Load() (pipeline.Checkpoint, error)
	Save(cp pipeline.Checkpoint) error
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Driver browser.Driver
	Store  Store
	// Checkpoints is optional; without it runs neither resume from nor write
	// checkpoints.
	Checkpoints Checkpointer
	// LegacyMarker, when set, supplies a resume key if there is no checkpoint.
	LegacyMarker func() (string, error)
	Sleep        Sleeper
	Logger       *slog.Logger
	Metrics      *Metrics
	Now          func() time.Time
}

// Runner executes one crawl: open the listing, select the location, locate
// the resume point, walk pages, save.
type Runner struct {
	cfg         *config.Config
	runID       string
	driver      browser.Driver
	store       Store
	checkpoints Checkpointer
	legacy      func() (string, error)
	throttle    *Throttle
	paginator   *Paginator
	walker      *Walker
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time
}

// NewRunner validates cfg and wires the crawl components. Invalid
// configuration is rejected here, before any browser interaction.
func NewRunner(cfg *config.Config, deps Deps) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Driver == nil {
		return nil, errors.New("runner needs a browser driver")
	}
	if deps.Store == nil {
		return nil, errors.New("runner needs a store")
	}
	cutoff, _, err := cfg.CutoffTime()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("run_id", runID))
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	throttle := NewThrottle(cfg, deps.Sleep)
	visitor := NewDetailVisitor(deps.Driver, deps.Store, throttle, DetailOptions{
		ElementTimeout:     cfg.ElementTimeout,
		PopupRetries:       cfg.PopupRetries,
		ArtifactsDir:       cfg.ArtifactsPath(),
		BidHistoryMaxPages: cfg.BidHistoryMaxPages,
	}, logger, deps.Metrics)

	return &Runner{
		cfg:         cfg,
		runID:       runID,
		driver:      deps.Driver,
		store:       deps.Store,
		checkpoints: deps.Checkpoints,
		legacy:      deps.LegacyMarker,
		throttle:    throttle,
		paginator:   NewPaginator(deps.Driver, throttle, cfg.MaxPaginationFailures, logger, deps.Metrics),
		walker:      NewWalker(deps.Driver, visitor, throttle, cutoff, logger, deps.Metrics),
		logger:      logger,
		metrics:     deps.Metrics,
		now:         now,
	}, nil
}

// RunID identifies this run in logs and checkpoints.
func (r *Runner) RunID() string {
	return r.runID
}

// Run crawls until a stop condition fires. Each finished page is appended to
// the output before its checkpoint is stored. If the page loop fails, every
// record of the run, including those of the interrupted page, goes to a
// timestamped error destination and the error is returned. Cancelling ctx
// finishes the current item, then stops and saves.
func (r *Runner) Run(ctx context.Context) (*models.CrawlResult, error) {
	res := &models.CrawlResult{
		RunID:        r.runID,
		StartTime:    r.now(),
		ErrorsByType: make(map[string]int),
	}
	defer func() { res.EndTime = r.now() }()

	r.logger.Info("starting crawl",
		slog.String("province", r.cfg.Province),
		slog.String("city", r.cfg.City),
		slog.Int("start_page", r.cfg.StartPage),
		slog.Int("max_pages", r.cfg.MaxPages),
	)

	if err := r.openListing(ctx); err != nil {
		r.recordError(res, err)
		return res, fmt.Errorf("open listing: %w", err)
	}
	if err := r.selectLocation(ctx); err != nil {
		r.recordError(res, err)
		return res, err
	}

	start := r.resumePoint()
	if err := r.guardedLoop(ctx, res, start); err != nil {
		r.recordError(res, err)
		r.logger.Error("crawl failed", slog.Any("error", err), slog.Int("records", len(res.Records)))
		r.safetySave(ctx, res)
		return res, err
	}
	if r.walker.Resuming() {
		r.logger.Warn("resume point never found; no items were processed")
	}

	if err := r.terminalSave(ctx, res); err != nil {
		r.recordError(res, err)
		r.safetySave(ctx, res)
		return res, err
	}
	r.logger.Info("crawl finished",
		slog.String("stop", res.Stop.Reason.String()),
		slog.Int("records", len(res.Records)),
	)
	return res, nil
}

func (r *Runner) guardedLoop(ctx context.Context, res *models.CrawlResult, start models.Cursor) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("page loop panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrUnexpected, rec)
		}
	}()
	return r.pageLoop(ctx, res, start)
}

func (r *Runner) pageLoop(ctx context.Context, res *models.CrawlResult, start models.Cursor) error {
	if start.LastKey != "" {
		r.walker.ResumeAfter(start.LastKey)
		r.logger.Info("resuming", slog.Int("page", start.Page), slog.String("after", start.LastKey))
	}

	page, err := r.paginator.EnsurePage(ctx, start.Page)
	if err != nil || page != start.Page {
		res.Stop = models.StopCondition{
			Reason: models.StopPaginationStall,
			Page:   page,
			Detail: fmt.Sprintf("could not reach start page %d", start.Page),
		}
		r.logger.Warn("start page not reached", slog.Int("page", page), slog.Int("target", start.Page), slog.Any("error", err))
		return nil
	}

	for {
		if ctx.Err() != nil {
			res.Stop = models.StopCondition{Reason: models.StopUserAbort, Page: page}
			return nil
		}

		pr, err := r.walker.ProcessPage(ctx, page)
		res.PagesVisited = append(res.PagesVisited, page)
		res.Records = append(res.Records, pr.Records...)
		res.Extracted += pr.Extracted
		res.Skipped += pr.Skipped
		res.Failed += pr.Failed
		for kind, n := range pr.Errors {
			res.ErrorsByType[kind] += n
		}
		if err != nil {
			return err
		}
		// Records reach the output before the checkpoint moves past them.
		if err := r.flush(ctx, res); err != nil {
			return err
		}
		r.saveCheckpoint(page, pr)
		r.logger.Info("page done",
			slog.Int("page", page),
			slog.Int("extracted", pr.Extracted),
			slog.Int("skipped", pr.Skipped),
			slog.Int("failed", pr.Failed),
			slog.Int("total", len(res.Records)),
		)

		if pr.Stop.Stopped() {
			res.Stop = pr.Stop
			return nil
		}
		if page >= r.cfg.MaxPages {
			res.Stop = models.StopCondition{Reason: models.StopMaxPages, Page: page}
			return nil
		}

		next := r.paginator.AdvanceTo(ctx, page, page+1)
		if next != page+1 {
			reason := models.StopPaginationStall
			if ctx.Err() != nil {
				reason = models.StopUserAbort
			}
			res.Stop = models.StopCondition{Reason: reason, Page: page}
			return nil
		}
		page = next
	}
}

// resumePoint picks where the crawl starts: the checkpoint, else the legacy
// marker, else StartPage.
func (r *Runner) resumePoint() models.Cursor {
	fresh := models.Cursor{Page: r.cfg.StartPage}
	if !r.cfg.Resume {
		return fresh
	}

	if r.checkpoints != nil {
		cp, err := r.checkpoints.Load()
		switch {
		case err == nil && (cp.Province != r.cfg.Province || cp.City != r.cfg.City):
			r.logger.Warn("checkpoint belongs to another location, ignored",
				slog.String("province", cp.Province),
				slog.String("city", cp.City),
			)
		case err == nil:
			cursor := cp.Cursor()
			if cursor.Page < 1 {
				cursor.Page = r.cfg.StartPage
			}
			return cursor
		case !errors.Is(err, pipeline.ErrNoCheckpoint):
			r.logger.Warn("checkpoint unreadable", slog.Any("error", err))
		}
	}

	if r.legacy != nil {
		key, err := r.legacy()
		switch {
		case err == nil:
			fresh.LastKey = key
			return fresh
		case !errors.Is(err, pipeline.ErrNoCheckpoint):
			r.logger.Warn("legacy resume marker unreadable", slog.Any("error", err))
		}
	}
	r.logger.Info("no resume point, starting fresh")
	return fresh
}

func (r *Runner) saveCheckpoint(page int, pr PageResult) {
	if r.checkpoints == nil || pr.LastKey == "" {
		return
	}
	cp := pipeline.Checkpoint{
		RunID:     r.runID,
		Province:  r.cfg.Province,
		City:      r.cfg.City,
		Page:      page,
		ItemIndex: pr.LastItem,
		LastKey:   pr.LastKey,
		UpdatedAt: r.now().UTC(),
	}
	if err := r.checkpoints.Save(cp); err != nil {
		r.metrics.IncError("persistence")
		r.logger.Warn("save checkpoint", slog.Int("page", page), slog.Any("error", err))
	}
}

// flush appends the records not yet written to the output.
func (r *Runner) flush(ctx context.Context, res *models.CrawlResult) error {
	pending := res.Records[res.Saved:]
	if len(pending) == 0 {
		return nil
	}
	dest := r.outputDest()
	if err := r.store.AppendRecords(context.WithoutCancel(ctx), pending, dest); err != nil {
		return &ErrPersistence{Dest: dest.String(), Err: err}
	}
	res.Saved = len(res.Records)
	res.Output = dest.File
	r.logger.Debug("records flushed", slog.String("output", dest.String()), slog.Int("records", len(pending)))
	return nil
}

func (r *Runner) outputDest() pipeline.Destination {
	return pipeline.Destination{File: r.cfg.OutputPath(), Sheet: r.cfg.OutputSheet}
}

// terminalSave writes whatever the page flushes have not.
func (r *Runner) terminalSave(ctx context.Context, res *models.CrawlResult) error {
	dest := r.outputDest()
	res.Output = dest.File
	if len(res.Records) == 0 {
		r.logger.Info("no records to save", slog.String("output", dest.String()))
	}
	if err := r.flush(ctx, res); err != nil {
		return err
	}
	r.logger.Info("records saved", slog.String("output", dest.String()), slog.Int("records", res.Saved))
	return nil
}

// safetySave writes everything accumulated to a destination distinct from
// the normal output. Its own failure is logged only.
func (r *Runner) safetySave(ctx context.Context, res *models.CrawlResult) {
	dest := pipeline.Destination{File: r.cfg.ErrorOutputPath(r.now()), Sheet: r.cfg.OutputSheet}
	if len(res.Records) == 0 {
		r.logger.Warn("safety-net save skipped: no records")
		return
	}
	if err := r.store.AppendRecords(context.WithoutCancel(ctx), res.Records, dest); err != nil {
		r.metrics.IncError("persistence")
		r.logger.Error("safety-net save failed", slog.String("output", dest.String()), slog.Any("error", err))
		return
	}
	res.ErrorOutput = dest.File
	r.logger.Warn("records saved to error output",
		slog.String("output", dest.String()),
		slog.Int("records", len(res.Records)),
	)
}

func (r *Runner) recordError(res *models.CrawlResult, err error) {
	kind := ErrorType(err)
	res.ErrorsByType[kind]++
	r.metrics.IncError(kind)
}
