package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/pipeline"
)

// node is a scripted element. Children are keyed by locator value, so XPath
// and CSS locators resolve without a DOM.
type node struct {
	text     string
	html     string
	attrs    map[string]string
	children map[string][]*node
	onClick  func() error
	onFind   func(loc browser.Locator)
}

func el(text string) *node {
	return &node{text: text, attrs: map[string]string{}, children: map[string][]*node{}}
}

func (n *node) with(loc browser.Locator, kids ...*node) *node {
	n.children[loc.Value] = append(n.children[loc.Value], kids...)
	return n
}

func (n *node) attr(name, value string) *node {
	n.attrs[name] = value
	return n
}

func (n *node) FindOne(loc browser.Locator) (browser.Element, error) {
	if n.onFind != nil {
		n.onFind(loc)
	}
	kids := n.children[loc.Value]
	if len(kids) == 0 {
		return nil, fmt.Errorf("%s: %w", loc, browser.ErrNotFound)
	}
	return kids[0], nil
}

func (n *node) FindAll(loc browser.Locator) ([]browser.Element, error) {
	if n.onFind != nil {
		n.onFind(loc)
	}
	kids := n.children[loc.Value]
	out := make([]browser.Element, len(kids))
	for i, k := range kids {
		out[i] = k
	}
	return out, nil
}

func (n *node) Text() (string, error) { return n.text, nil }

func (n *node) Attribute(name string) (string, error) {
	v, ok := n.attrs[name]
	if !ok {
		return "", fmt.Errorf("attribute %q: %w", name, browser.ErrNotFound)
	}
	return v, nil
}

func (n *node) HTML() (string, error) {
	if n.html == "" {
		return "", browser.ErrUnsupported
	}
	return n.html, nil
}

func (n *node) Click() error {
	if n.onClick != nil {
		return n.onClick()
	}
	return nil
}

func (n *node) Hover() error          { return nil }
func (n *node) ScrollIntoView() error { return nil }

// cardLocator returns the first locator of a card field.
func cardLocator(col string) browser.Locator {
	for _, f := range cardTable {
		if f.Name == col {
			return f.Strategies[0].Locator
		}
	}
	panic("no card field " + col)
}

type listing struct {
	title  string
	status string
	end    string
}

func finalized(title, end string) listing {
	return listing{title: title, status: "已结束", end: end}
}

const mainHandle browser.Handle = "main"

// fakeSite is a scripted auction site behind the browser.Driver interface.
type fakeSite struct {
	mu sync.Mutex

	pages   [][]listing
	page    int
	advance bool
	clicks  int

	url     string
	tabs    map[browser.Handle]string
	active  browser.Handle
	opened  []string
	nextTab int

	// popup shows the notice overlay on detail pages until it is closed.
	popup bool
	// confirmWorks makes the confirm button dismiss the overlay.
	confirmWorks bool
	// stickyPopup makes every dismissal attempt fail.
	stickyPopup bool
	noPicker    bool

	panicOnDetail string
	// staleCard makes the card with this title panic when read.
	staleCard string
	// provinceLabel and cityLabel are what the pickers display; they
	// default to 广东 and 深圳.
	provinceLabel string
	cityLabel     string
	// onPick runs when a location option is clicked.
	onPick     func(label string)
	failPage   int
	loginPolls int
	// onOpen runs when a detail context is opened.
	onOpen func(url string)
}

func newFakeSite(pages ...[]listing) *fakeSite {
	return &fakeSite{
		pages:   pages,
		page:    1,
		advance: true,
		url:     "about:blank",
		tabs:    map[browser.Handle]string{},
		active:  mainHandle,
	}
}

func detailURL(title string) string {
	return "https://paimai.example/item/" + title
}

func (s *fakeSite) root() *node {
	if s.active == mainHandle {
		return s.listingRoot()
	}
	return s.detailRoot(s.tabs[s.active])
}

func (s *fakeSite) listingRoot() *node {
	root := el("")
	if s.failPage != 0 && s.page == s.failPage {
		root.onFind = func(loc browser.Locator) {
			if loc == listItems {
				panic("renderer crashed")
			}
		}
	}
	if s.page >= 1 && s.page <= len(s.pages) {
		for _, it := range s.pages[s.page-1] {
			card := el("").
				with(cardLocator(ColName), el(it.title)).
				with(cardLocator(ColStatus), el(it.status)).
				with(cardLocator(ColLink), el("").attr("href", detailURL(it.title))).
				with(cardLocator(ColCurrentPrice), el("1,250,000"))
			if it.title == s.staleCard {
				card.onFind = func(browser.Locator) { panic("stale card") }
			}
			root.with(listItems, card)
		}
	}
	root.with(pagerCurrent, el(strconv.Itoa(s.page)))
	next := el("下一页")
	next.onClick = func() error {
		s.clicks++
		if s.advance && s.page < len(s.pages) {
			s.page++
		}
		return nil
	}
	root.with(pagerNext, next)

	if s.noPicker {
		return root
	}
	root.with(provincePicker, el(orDefault(s.provinceLabel, "广东")))
	root.with(cityPicker, el(orDefault(s.cityLabel, "深圳")))
	for _, loc := range config.Provinces {
		root.with(browser.XPath(loc.Selector), s.option(loc.Label))
	}
	for _, loc := range config.Cities {
		root.with(browser.XPath(loc.Selector), s.option(loc.Label))
	}
	return root
}

func (s *fakeSite) option(label string) *node {
	opt := el(label)
	opt.onClick = func() error {
		if s.onPick != nil {
			s.onPick(label)
		}
		return nil
	}
	return opt
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *fakeSite) find(title string) (listing, bool) {
	for _, page := range s.pages {
		for _, it := range page {
			if it.title == title {
				return it, true
			}
		}
	}
	return listing{}, false
}

func (s *fakeSite) detailRoot(url string) *node {
	title := strings.TrimPrefix(url, detailURL(""))
	it, ok := s.find(title)
	root := el("")
	if !ok {
		return root
	}
	if title == s.panicOnDetail {
		root.onFind = func(loc browser.Locator) {
			if loc == detailInfo {
				panic("stale element")
			}
		}
	}
	root.with(detailRoot, el(it.title))
	root.with(detailInfo, el(fmt.Sprintf("结束时间 %s 12人围观 3人报名 7人关注提醒", it.end)))
	root.with(detailResult, el("已成交"))
	root.with(detailFinal, el("1,300,000"))
	root.with(detailTerms, el("起拍价：￥1,000,000\n加价幅度：￥5,000\n保证金：￥100,000\n竞价周期：1天\n延时周期：5分钟/次\n变卖价：￥900,000\n变卖周期：60天"))

	if s.popup {
		root.with(popupOverlay, el(""))
		closeBtn := el("×")
		closeBtn.onClick = func() error {
			if !s.stickyPopup {
				s.popup = false
			}
			return nil
		}
		root.with(popupClose, closeBtn)
		if s.confirmWorks {
			confirm := el("我已知晓并同意")
			confirm.onClick = func() error { s.popup = false; return nil }
			root.with(popupConfirm[0], confirm)
		}
	}
	return root
}

func (s *fakeSite) FindOne(loc browser.Locator) (browser.Element, error) {
	s.mu.Lock()
	root := s.root()
	s.mu.Unlock()
	return root.FindOne(loc)
}

func (s *fakeSite) FindAll(loc browser.Locator) ([]browser.Element, error) {
	s.mu.Lock()
	root := s.root()
	s.mu.Unlock()
	return root.FindAll(loc)
}

func (s *fakeSite) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	return nil
}

func (s *fakeSite) CurrentURL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loginPolls > 0 {
		s.loginPolls--
		return "https://passport.jd.com/new/login.aspx", nil
	}
	if s.active != mainHandle {
		return s.tabs[s.active], nil
	}
	return s.url, nil
}

func (s *fakeSite) OpenContext(_ context.Context, url string) (browser.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTab++
	h := browser.Handle("tab-" + strconv.Itoa(s.nextTab))
	s.tabs[h] = url
	s.active = h
	s.opened = append(s.opened, url)
	if s.onOpen != nil {
		s.onOpen(url)
	}
	if strings.Contains(url, "unreachable") {
		return h, errors.New("net::ERR_CONNECTION_RESET")
	}
	return h, nil
}

func (s *fakeSite) SwitchContext(h browser.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[h]; !ok && h != mainHandle {
		return fmt.Errorf("context %s: %w", h, browser.ErrNotFound)
	}
	s.active = h
	return nil
}

func (s *fakeSite) CloseContext() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == mainHandle {
		return errors.New("refusing to close the main context")
	}
	delete(s.tabs, s.active)
	s.active = ""
	return nil
}

func (s *fakeSite) ActiveContext() browser.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeSite) PressEscape() error { return nil }
func (s *fakeSite) Close() error       { return nil }

func (s *fakeSite) openedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opened)
}

// memStore records appends per destination file.
type memStore struct {
	mu        sync.Mutex
	appends   map[string][]models.Record
	folders   []string
	downloads map[string]string
	failFile  string
}

func newMemStore() *memStore {
	return &memStore{appends: map[string][]models.Record{}, downloads: map[string]string{}}
}

func (m *memStore) AppendRecords(_ context.Context, records []models.Record, dest pipeline.Destination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFile != "" && dest.File == m.failFile {
		return errors.New("disk full")
	}
	if len(records) == 0 {
		return nil
	}
	m.appends[dest.File] = append(m.appends[dest.File], records...)
	return nil
}

func (m *memStore) EnsureFolder(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders = append(m.folders, path)
	return path, nil
}

func (m *memStore) DownloadBinary(_ context.Context, url, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[dest] = url
	return nil
}

func (m *memStore) records(file string) []models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Record(nil), m.appends[file]...)
}

func (m *memStore) filesWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for f := range m.appends {
		if strings.HasPrefix(f, prefix) {
			out = append(out, f)
		}
	}
	return out
}

// memCheckpoints keeps checkpoints in memory.
type memCheckpoints struct {
	saved []pipeline.Checkpoint
	load  *pipeline.Checkpoint
}

func (m *memCheckpoints) Load() (pipeline.Checkpoint, error) {
	if m.load == nil {
		return pipeline.Checkpoint{}, pipeline.ErrNoCheckpoint
	}
	return *m.load, nil
}

func (m *memCheckpoints) Save(cp pipeline.Checkpoint) error {
	m.saved = append(m.saved, cp)
	return nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.OutputDir = "out"
	cfg.ElementTimeout = 20 * time.Millisecond
	cfg.LoginTimeout = time.Second
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testThrottle() *Throttle {
	return NewThrottle(testConfig(), noSleep)
}
