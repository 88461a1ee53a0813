package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/parser"
)

var errNotConfirmed = errors.New("selection not confirmed")

// loginMarkers are URL fragments of the site's login wall.
var loginMarkers = []string{"passport.jd.com", "login", "signin"}

func isLoginURL(u string) bool {
	u = strings.ToLower(u)
	for _, m := range loginMarkers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}

// openListing loads the listing and, when the site asks for a login, waits
// for the operator to log in in the browser window.
func (r *Runner) openListing(ctx context.Context) error {
	r.metrics.IncRequest("listing")
	if err := r.driver.Navigate(ctx, r.cfg.BaseURL); err != nil {
		return classifyBrowser(err)
	}
	current, err := r.driver.CurrentURL()
	if err != nil || !isLoginURL(current) {
		return nil
	}

	r.logger.Warn("login required: log in through the browser window",
		slog.Duration("timeout", r.cfg.LoginTimeout),
	)
	ok := browser.WaitUntil(ctx, r.cfg.LoginTimeout, func() bool {
		u, err := r.driver.CurrentURL()
		return err == nil && !isLoginURL(u)
	})
	if !ok {
		return ErrLoginRequired
	}
	r.logger.Info("login detected")
	if err := r.driver.Navigate(ctx, r.cfg.BaseURL); err != nil {
		return classifyBrowser(err)
	}
	return nil
}

// selectLocation sets the province and, when configured, the city.
func (r *Runner) selectLocation(ctx context.Context) error {
	province := config.Provinces[r.cfg.Province]
	if err := r.selectOne(ctx, "province", provincePicker, province); err != nil {
		return err
	}
	if r.cfg.City == "" {
		return nil
	}
	return r.selectOne(ctx, "city", cityPicker, config.Cities[r.cfg.City])
}

func (r *Runner) selectOne(ctx context.Context, level string, picker browser.Locator, loc config.Location) error {
	attempts := r.cfg.LocationRetries
	log := r.logger.With(slog.String("level", level), slog.String("code", loc.Code))

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := r.firstCard()
		last = r.trySelect(ctx, picker, loc)
		if last == nil {
			if r.locationConfirmed(ctx, picker, loc, before) {
				log.Info("location selected", slog.String("label", loc.Label), slog.Int("attempt", attempt))
				return nil
			}
			last = errNotConfirmed
		}
		r.metrics.IncRetries("location")
		log.Warn("location selection failed", slog.Int("attempt", attempt), slog.Any("error", last))
		if attempt < attempts {
			_ = r.throttle.Backoff(ctx)
		}
	}
	return &ErrLocationSelect{Level: level, Code: loc.Code, Attempts: attempts, Err: last}
}

func (r *Runner) trySelect(ctx context.Context, picker browser.Locator, loc config.Location) error {
	el, err := browser.WaitFor(ctx, r.driver, picker, r.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if err := el.Click(); err != nil {
		return err
	}
	option, err := browser.WaitFor(ctx, r.driver, browser.XPath(loc.Selector), r.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if err := option.ScrollIntoView(); err != nil {
		r.logger.Debug("scroll to location option", slog.Any("error", err))
	}
	if err := option.Click(); err != nil {
		return err
	}
	return r.throttle.Settle(ctx)
}

// urlMentions reports whether a query parameter of u carries the location's
// code or label.
func urlMentions(u string, loc config.Location) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	for _, values := range parsed.Query() {
		for _, v := range values {
			if v == loc.Code || v == loc.Label {
				return true
			}
		}
	}
	return false
}

// firstCard identifies the first listing card by link and title. It is
// empty when no card is rendered.
func (r *Runner) firstCard() string {
	items, err := r.driver.FindAll(listItems)
	if err != nil || len(items) == 0 {
		return ""
	}
	card, _ := parser.Extract(items[0], cardTable)
	return card.Text(ColLink) + "|" + card.Text(ColName)
}

// locationConfirmed accepts any one signal: the code in the URL, the label in
// the picker, or a listing whose first card differs from before.
func (r *Runner) locationConfirmed(ctx context.Context, picker browser.Locator, loc config.Location, before string) bool {
	return browser.WaitUntil(ctx, r.cfg.ElementTimeout, func() bool {
		if u, err := r.driver.CurrentURL(); err == nil && urlMentions(u, loc) {
			return true
		}
		if el, err := r.driver.FindOne(picker); err == nil {
			if text, err := el.Text(); err == nil && strings.Contains(text, loc.Label) {
				return true
			}
		}
		after := r.firstCard()
		return after != "" && after != before
	})
}
