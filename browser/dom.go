package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// domElement is a read-only Element over a parsed HTML tree. Only CSS
// locators are supported; interactions return ErrUnsupported.
type domElement struct {
	sel  *goquery.Selection
	base *url.URL
}

// ParseHTML parses a document or fragment. baseURL, when not empty, is used to
// resolve href and src attributes.
func ParseHTML(raw, baseURL string) (Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var base *url.URL
	if baseURL != "" {
		base, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
	}
	return FromSelection(doc.Selection, base), nil
}

// FromSelection wraps an existing goquery selection, e.g. colly's e.DOM.
func FromSelection(sel *goquery.Selection, base *url.URL) Element {
	return &domElement{sel: sel, base: base}
}

func (d *domElement) FindOne(loc Locator) (Element, error) {
	if loc.By != ByCSS {
		return nil, fmt.Errorf("%s: %w", loc, ErrUnsupported)
	}
	found := d.sel.Find(loc.Value).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	return &domElement{sel: found, base: d.base}, nil
}

func (d *domElement) FindAll(loc Locator) ([]Element, error) {
	if loc.By != ByCSS {
		return nil, fmt.Errorf("%s: %w", loc, ErrUnsupported)
	}
	found := d.sel.Find(loc.Value)
	out := make([]Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &domElement{sel: s, base: d.base})
	})
	return out, nil
}

func (d *domElement) Text() (string, error) {
	return InnerText(d.sel), nil
}

func (d *domElement) Attribute(name string) (string, error) {
	val, ok := d.sel.Attr(name)
	if !ok {
		return "", fmt.Errorf("attribute %q: %w", name, ErrNotFound)
	}
	if (name == "href" || name == "src") && d.base != nil {
		if ref, err := url.Parse(val); err == nil {
			return d.base.ResolveReference(ref).String(), nil
		}
	}
	return val, nil
}

func (d *domElement) HTML() (string, error) {
	return goquery.OuterHtml(d.sel)
}

func (d *domElement) Click() error          { return ErrUnsupported }
func (d *domElement) Hover() error          { return ErrUnsupported }
func (d *domElement) ScrollIntoView() error { return ErrUnsupported }

// InnerText joins the trimmed, non-empty text nodes of sel with newlines,
// skipping script and style content.
func InnerText(sel *goquery.Selection) string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}
