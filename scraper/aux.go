package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/parser"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
)

// Side artifact file names inside a record's folder.
const (
	SurveyFile     = "拍卖标的物调查情况表（房产）.xlsx"
	NoticesFile    = "竞买公告和竞买须知.xlsx"
	BidHistoryFile = "出价记录.xlsx"
	PurchasersFile = "优先购买权人.xlsx"
	artifactSheet  = "Sheet1"
)

const mainFloor = "//*[@id='pmMainFloor']/ul"

var (
	attachmentItems = browser.XPath(mainFloor + "/li[1]/div[1]/div/div/div[1]/ul/li")
	attachmentLink  = browser.XPath(".//*[@id='openAttachmentTag']")
	imageLinks      = browser.XPath(mainFloor + "/li[1]/div[2]/a")
	surveyBlock     = browser.XPath(mainFloor + "/li[1]/div[2]/div")
	noticeBlock     = browser.XPath(mainFloor + "/li[2]/div[2]")
	rulesBlock      = browser.XPath(mainFloor + "/li[3]/div")

	bidFloor      = browser.XPath("//*[contains(@class,'floor') and contains(@class,'floor-bid')]")
	bidRows       = browser.XPath(".//tbody/tr")
	bidCells      = browser.XPath("./td")
	bidPagerNext  = browser.CSS(".index_ui_pager__x0-LU .index_ui_pager_next__Rqo9l")
	purchaserList = browser.CSS(".purchaserList")
)

const bidNextDisabled = "index_disabled__bPJgO"

// Bid history columns.
const (
	ColBidStatus = "状态"
	ColBidPrice  = "价格"
	ColBidder    = "竞拍人"
	ColBidTime   = "时间"
)

// AuxEnv is what a side extraction works with: the detail page and the folder
// keyed by the record's primary name.
type AuxEnv struct {
	Driver   browser.Driver
	Store    Store
	Throttle *Throttle
	Folder   string
	Key      string
	MaxPages int
	Logger   *slog.Logger
}

// AuxTask is one best-effort side extraction.
type AuxTask struct {
	Name string
	Run  func(ctx context.Context, env AuxEnv) error
}

// AuxResult is the outcome of one AuxTask.
type AuxResult struct {
	Task string
	Err  error
}

// DefaultAuxTasks returns the side extractions run for every detail page.
func DefaultAuxTasks() []AuxTask {
	return []AuxTask{
		{Name: "attachments", Run: downloadAttachments},
		{Name: "survey", Run: saveSurvey},
		{Name: "notices", Run: saveNotices},
		{Name: "bidding_history", Run: saveBidHistory},
		{Name: "priority_purchasers", Run: savePurchasers},
	}
}

// runAux runs every task behind its own failure boundary.
func (v *DetailVisitor) runAux(ctx context.Context, key string) []AuxResult {
	if key == "" {
		v.logger.Warn("skip side extraction: record has no name")
		return nil
	}
	folder, err := v.store.EnsureFolder(v.artifactFolder(key))
	if err != nil {
		v.logger.Warn("create artifact folder", slog.String("key", key), slog.Any("error", err))
		v.metrics.IncError("persistence")
		return nil
	}

	env := AuxEnv{
		Driver:   v.driver,
		Store:    v.store,
		Throttle: v.throttle,
		Folder:   folder,
		Key:      key,
		MaxPages: v.opts.BidHistoryMaxPages,
		Logger:   v.logger.With(slog.String("key", key)),
	}
	results := make([]AuxResult, 0, len(v.tasks))
	for _, task := range v.tasks {
		err := runAuxTask(ctx, task, env)
		results = append(results, AuxResult{Task: task.Name, Err: err})
		if err != nil {
			v.metrics.IncAux(task.Name, OutcomeFailed)
			env.Logger.Warn("side extraction failed", slog.String("task", task.Name), slog.Any("error", err))
			continue
		}
		v.metrics.IncAux(task.Name, OutcomeExtracted)
	}
	return results
}

func runAuxTask(ctx context.Context, task AuxTask, env AuxEnv) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrUnexpected, task.Name, r)
		}
	}()
	return task.Run(ctx, env)
}

func destination(folder, file string) pipeline.Destination {
	return pipeline.Destination{File: filepath.Join(folder, file), Sheet: artifactSheet}
}

func downloadAttachments(ctx context.Context, env AuxEnv) error {
	var errs []error
	downloaded := 0

	items, _ := env.Driver.FindAll(attachmentItems)
	for _, item := range items {
		link, err := item.FindOne(attachmentLink)
		if err != nil {
			continue
		}
		href, err := link.Attribute("href")
		if err != nil || href == "" {
			continue
		}
		name, _ := link.Text()
		name = strings.TrimSpace(name)
		if name == "" {
			name = path.Base(href)
		}
		if err := env.Store.DownloadBinary(ctx, href, filepath.Join(env.Folder, pipeline.SafeName(name))); err != nil {
			errs = append(errs, fmt.Errorf("attachment %s: %w", name, err))
			continue
		}
		downloaded++
	}

	images, _ := env.Driver.FindAll(imageLinks)
	for i, img := range images {
		href, err := img.Attribute("href")
		if err != nil || href == "" {
			continue
		}
		name := strconv.Itoa(i) + ".jpg"
		if err := env.Store.DownloadBinary(ctx, href, filepath.Join(env.Folder, name)); err != nil {
			errs = append(errs, fmt.Errorf("image %s: %w", name, err))
			continue
		}
		downloaded++
	}

	if len(items) == 0 && len(images) == 0 {
		return fmt.Errorf("no attachments or images: %w", browser.ErrNotFound)
	}
	env.Logger.Debug("attachments saved", slog.Int("files", downloaded))
	return errors.Join(errs...)
}

// saveTable parses the first HTML table under loc and appends its rows.
func saveTable(ctx context.Context, env AuxEnv, loc browser.Locator, file string) error {
	el, err := env.Driver.FindOne(loc)
	if err != nil {
		return err
	}
	raw, err := el.HTML()
	if err != nil {
		return err
	}
	header, rows, err := parser.ParseTable(raw)
	if err != nil {
		return err
	}
	return env.Store.AppendRecords(ctx, parser.TableRecords(header, rows), destination(env.Folder, file))
}

func saveSurvey(ctx context.Context, env AuxEnv) error {
	return saveTable(ctx, env, surveyBlock, SurveyFile)
}

func savePurchasers(ctx context.Context, env AuxEnv) error {
	return saveTable(ctx, env, purchaserList, PurchasersFile)
}

func saveNotices(ctx context.Context, env AuxEnv) error {
	notice := blockText(env.Driver, noticeBlock)
	rules := blockText(env.Driver, rulesBlock)
	if notice == "" && rules == "" {
		return fmt.Errorf("notice and instructions: %w", browser.ErrNotFound)
	}
	rec := models.NewBuilder(2).
		SetString("Bidding Notice", notice).
		SetString("Instructions for Bidding", rules).
		Build()
	return env.Store.AppendRecords(ctx, []models.Record{rec}, destination(env.Folder, NoticesFile))
}

func blockText(scope browser.Scope, loc browser.Locator) string {
	el, err := scope.FindOne(loc)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

// saveBidHistory walks the bid pager until its next control is disabled or
// absent, or MaxPages pages have been read.
func saveBidHistory(ctx context.Context, env AuxEnv) error {
	floor, err := env.Driver.FindOne(bidFloor)
	if err != nil {
		return err
	}

	var records []models.Record
	for page := 1; ; page++ {
		records = append(records, readBidRows(floor)...)

		next, err := floor.FindOne(bidPagerNext)
		if err != nil {
			break
		}
		if class, _ := next.Attribute("class"); strings.Contains(class, bidNextDisabled) {
			break
		}
		if page >= env.MaxPages {
			env.Logger.Warn("bidding history page bound reached, remaining pages skipped",
				slog.Int("pages", page),
				slog.Int("rows", len(records)),
			)
			break
		}
		if err := next.Click(); err != nil {
			return fmt.Errorf("bid history page %d: %w", page+1, err)
		}
		if env.Throttle != nil {
			if err := env.Throttle.Settle(ctx); err != nil {
				return err
			}
		}
	}

	if len(records) == 0 {
		env.Logger.Debug("no bidding history rows")
		return nil
	}
	return env.Store.AppendRecords(ctx, records, destination(env.Folder, BidHistoryFile))
}

func readBidRows(floor browser.Element) []models.Record {
	rows, err := floor.FindAll(bidRows)
	if err != nil {
		return nil
	}
	out := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		cells, err := row.FindAll(bidCells)
		if err != nil || len(cells) < 4 {
			continue
		}
		text := make([]string, 4)
		for i := range text {
			text[i], _ = cells[i].Text()
			text[i] = strings.TrimSpace(text[i])
		}
		out = append(out, models.NewBuilder(4).
			SetString(ColBidStatus, text[0]).
			Set(ColBidPrice, parser.ToNumber(text[2])).
			SetString(ColBidder, text[1]).
			SetString(ColBidTime, text[3]).
			Build())
	}
	return out
}
