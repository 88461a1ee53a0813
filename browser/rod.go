package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodOptions configures the Chrome session.
type RodOptions struct {
	// DebugAddress attaches to a running Chrome (host:port of
	// --remote-debugging-port) instead of launching one, so a session that
	// was logged in by hand can be reused.
	DebugAddress    string
	Headless        bool
	UserAgent       string
	ActionTimeout   time.Duration
	PageLoadTimeout time.Duration
	Stealth         bool
}

// RodDriver drives Chrome through the DevTools protocol. Every browsing
// context is a tab.
type RodDriver struct {
	opts     RodOptions
	browser  *rod.Browser
	launcher *launcher.Launcher

	pages  map[Handle]*rod.Page
	active Handle
}

// NewRodDriver launches (or attaches to) Chrome and opens the primary context.
func NewRodDriver(opts RodOptions) (*RodDriver, error) {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	if opts.PageLoadTimeout <= 0 {
		opts.PageLoadTimeout = 30 * time.Second
	}

	d := &RodDriver{opts: opts, pages: make(map[Handle]*rod.Page)}

	var controlURL string
	if opts.DebugAddress != "" {
		u, err := launcher.ResolveURL(opts.DebugAddress)
		if err != nil {
			return nil, fmt.Errorf("resolve debug address %q: %w", opts.DebugAddress, err)
		}
		controlURL = u
	} else {
		l := launcher.New().
			Headless(opts.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-popup-blocking").
			Set("disable-notifications").
			Set("disable-infobars").
			Set("no-sandbox").
			Set("disable-dev-shm-usage")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		d.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		d.killLauncher()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	d.browser = b

	page, err := d.newPage()
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	h := Handle(page.TargetID)
	d.pages[h] = page
	d.active = h
	return d, nil
}

func (d *RodDriver) newPage() (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if d.opts.Stealth {
		page, err = stealth.Page(d.browser)
	} else {
		page, err = d.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if d.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.opts.UserAgent}); err != nil {
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	return page, nil
}

func (d *RodDriver) page() (*rod.Page, error) {
	p, ok := d.pages[d.active]
	if !ok {
		return nil, fmt.Errorf("no active context: %w", ErrNotFound)
	}
	return p, nil
}

// Navigate loads url in the active context and waits for the load event.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	p, err := d.page()
	if err != nil {
		return err
	}
	p = p.Context(ctx).Timeout(d.opts.PageLoadTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, convertRodError(err))
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, convertRodError(err))
	}
	return nil
}

func (d *RodDriver) CurrentURL() (string, error) {
	p, err := d.page()
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", convertRodError(err))
	}
	return info.URL, nil
}

func (d *RodDriver) FindOne(loc Locator) (Element, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}
	p = p.Sleeper(rod.NotFoundSleeper)
	var el *rod.Element
	if loc.By == ByXPath {
		el, err = p.ElementX(loc.Value)
	} else {
		el, err = p.Element(loc.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, convertRodError(err))
	}
	return &rodElement{el: el, timeout: d.opts.ActionTimeout}, nil
}

func (d *RodDriver) FindAll(loc Locator) ([]Element, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}
	var els rod.Elements
	if loc.By == ByXPath {
		els, err = p.ElementsX(loc.Value)
	} else {
		els, err = p.Elements(loc.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, convertRodError(err))
	}
	return wrapElements(els, d.opts.ActionTimeout), nil
}

func (d *RodDriver) OpenContext(ctx context.Context, url string) (Handle, error) {
	page, err := d.newPage()
	if err != nil {
		return "", err
	}
	h := Handle(page.TargetID)
	d.pages[h] = page
	if err := d.SwitchContext(h); err != nil {
		return h, err
	}
	if err := d.Navigate(ctx, url); err != nil {
		return h, err
	}
	return h, nil
}

func (d *RodDriver) SwitchContext(h Handle) error {
	p, ok := d.pages[h]
	if !ok {
		return fmt.Errorf("context %s: %w", h, ErrNotFound)
	}
	if _, err := p.Activate(); err != nil {
		return fmt.Errorf("activate context %s: %w", h, convertRodError(err))
	}
	d.active = h
	return nil
}

func (d *RodDriver) CloseContext() error {
	p, err := d.page()
	if err != nil {
		return err
	}
	delete(d.pages, d.active)
	d.active = ""
	if err := p.Close(); err != nil {
		return fmt.Errorf("close context: %w", convertRodError(err))
	}
	return nil
}

func (d *RodDriver) ActiveContext() Handle {
	return d.active
}

func (d *RodDriver) PressEscape() error {
	p, err := d.page()
	if err != nil {
		return err
	}
	return p.Keyboard.Press(input.Escape)
}

// Close disconnects from Chrome, killing it when this driver launched it.
func (d *RodDriver) Close() error {
	var err error
	if d.browser != nil {
		if d.launcher != nil {
			err = d.browser.Close()
		} else {
			// attached sessions belong to the operator; only drop our tabs
			for h, p := range d.pages {
				_ = p.Close()
				delete(d.pages, h)
			}
		}
	}
	d.killLauncher()
	return err
}

func (d *RodDriver) killLauncher() {
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher = nil
	}
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func wrapElements(els rod.Elements, timeout time.Duration) []Element {
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el, timeout: timeout}
	}
	return out
}

func (r *rodElement) FindOne(loc Locator) (Element, error) {
	scoped := r.el.Sleeper(rod.NotFoundSleeper)
	var (
		el  *rod.Element
		err error
	)
	if loc.By == ByXPath {
		el, err = scoped.ElementX(loc.Value)
	} else {
		el, err = scoped.Element(loc.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, convertRodError(err))
	}
	return &rodElement{el: el, timeout: r.timeout}, nil
}

func (r *rodElement) FindAll(loc Locator) ([]Element, error) {
	var (
		els rod.Elements
		err error
	)
	if loc.By == ByXPath {
		els, err = r.el.ElementsX(loc.Value)
	} else {
		els, err = r.el.Elements(loc.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, convertRodError(err))
	}
	return wrapElements(els, r.timeout), nil
}

func (r *rodElement) Text() (string, error) {
	text, err := r.el.Timeout(r.timeout).Text()
	return text, convertRodError(err)
}

func (r *rodElement) Attribute(name string) (string, error) {
	if name == "href" || name == "src" {
		// the DOM property is already resolved against the document URL
		prop, err := r.el.Property(name)
		if err == nil && !prop.Nil() && prop.Str() != "" {
			return prop.Str(), nil
		}
	}
	val, err := r.el.Attribute(name)
	if err != nil {
		return "", convertRodError(err)
	}
	if val == nil {
		return "", fmt.Errorf("attribute %q: %w", name, ErrNotFound)
	}
	return *val, nil
}

func (r *rodElement) HTML() (string, error) {
	out, err := r.el.HTML()
	return out, convertRodError(err)
}

func (r *rodElement) Click() error {
	return convertRodError(r.el.Timeout(r.timeout).Click(proto.InputMouseButtonLeft, 1))
}

func (r *rodElement) Hover() error {
	return convertRodError(r.el.Timeout(r.timeout).Hover())
}

func (r *rodElement) ScrollIntoView() error {
	return convertRodError(r.el.Timeout(r.timeout).ScrollIntoView())
}

func convertRodError(err error) error {
	if err == nil {
		return nil
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	}
	return err
}
