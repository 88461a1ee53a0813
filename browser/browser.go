// Package browser defines the browser capability the crawler drives and its
// implementations: a go-rod driver for live pages and a goquery-backed,
// read-only view over static HTML.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a locator resolves to nothing.
	ErrNotFound = errors.New("browser: element not found")
	// ErrUnsupported is returned by implementations that cannot perform an action.
	ErrUnsupported = errors.New("browser: unsupported operation")
)

// By selects the locator language.
type By uint8

const (
	ByCSS By = iota
	ByXPath
)

// Locator addresses elements on a page or within an element.
type Locator struct {
	By    By
	Value string
}

// CSS builds a CSS selector locator.
func CSS(selector string) Locator {
	return Locator{By: ByCSS, Value: selector}
}

// XPath builds an XPath locator.
func XPath(expr string) Locator {
	return Locator{By: ByXPath, Value: expr}
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Value == ""
}

func (l Locator) String() string {
	if l.By == ByXPath {
		return "xpath:" + l.Value
	}
	return "css:" + l.Value
}

// Scope is anything elements can be looked up in: a page or an element.
type Scope interface {
	FindOne(loc Locator) (Element, error)
	FindAll(loc Locator) ([]Element, error)
}

// Element is a handle to a rendered element.
type Element interface {
	Scope
	Text() (string, error)
	// Attribute returns ErrNotFound when the attribute is absent. href and src
	// resolve to absolute URLs.
	Attribute(name string) (string, error)
	HTML() (string, error)
	Click() error
	Hover() error
	ScrollIntoView() error
}

// Handle identifies a browsing context (a tab).
type Handle string

// Driver is a browser session with one active browsing context at a time.
// Lookups on the driver run against the active context.
type Driver interface {
	Scope
	Navigate(ctx context.Context, url string) error
	CurrentURL() (string, error)
	// OpenContext opens url in a new isolated context and focuses it.
	OpenContext(ctx context.Context, url string) (Handle, error)
	SwitchContext(h Handle) error
	// CloseContext closes the active context. Focus must be restored with
	// SwitchContext afterwards.
	CloseContext() error
	ActiveContext() Handle
	PressEscape() error
	Close() error
}
