// Package parser extracts structured records from rendered pages and
// normalises the values found there.
package parser

import (
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
)

// PostFunc turns the matched text into a field value.
type PostFunc func(raw string) models.Value

// Strategy is one way of finding a field: a locator, an optional attribute to
// read instead of the text, an optional pattern, and an optional
// post-processing step.
type Strategy struct {
	Locator browser.Locator
	Attr    string
	Pattern *regexp.Regexp
	Post    PostFunc
}

// Text reads the text of the first element matched by loc.
func Text(loc browser.Locator) Strategy {
	return Strategy{Locator: loc}
}

// Attr reads an attribute of the first element matched by loc.
func Attr(loc browser.Locator, name string) Strategy {
	return Strategy{Locator: loc, Attr: name}
}

// Match requires pattern to match; the first capture group (or the whole
// match) becomes the value.
func (s Strategy) Match(pattern string) Strategy {
	s.Pattern = regexp.MustCompile(pattern)
	return s
}

// Then sets the post-processing step.
func (s Strategy) Then(post PostFunc) Strategy {
	s.Post = post
	return s
}

// FieldSpec lists the strategies for one field, in priority order.
type FieldSpec struct {
	Name       string
	Strategies []Strategy
}

// Field builds a FieldSpec.
func Field(name string, strategies ...Strategy) FieldSpec {
	return FieldSpec{Name: name, Strategies: strategies}
}

// Table is an ordered locator table; its order is the output column order.
type Table []FieldSpec

// Columns returns the field names in order.
func (t Table) Columns() []string {
	out := make([]string, len(t))
	for i, f := range t {
		out[i] = f.Name
	}
	return out
}

// Extract builds a record from scope. Each field takes the value of its first
// successful strategy; a field with no successful strategy is "" and is
// reported in missing. Extract never fails as a whole.
func Extract(scope browser.Scope, table Table) (models.Record, []string) {
	b := models.NewBuilder(len(table))
	var missing []string
	for _, spec := range table {
		v, ok := spec.Resolve(scope)
		if !ok {
			missing = append(missing, spec.Name)
		}
		b.Set(spec.Name, v)
	}
	return b.Build(), missing
}

// Resolve tries the strategies in order and stops at the first success.
func (f FieldSpec) Resolve(scope browser.Scope) (models.Value, bool) {
	for _, s := range f.Strategies {
		if v, ok := s.apply(scope); ok {
			return v, true
		}
	}
	return models.String(""), false
}

func (s Strategy) apply(scope browser.Scope) (models.Value, bool) {
	el, err := scope.FindOne(s.Locator)
	if err != nil {
		return models.Value{}, false
	}

	var raw string
	if s.Attr != "" {
		raw, err = el.Attribute(s.Attr)
	} else {
		raw, err = el.Text()
	}
	if err != nil {
		return models.Value{}, false
	}

	if s.Pattern != nil {
		m := s.Pattern.FindStringSubmatch(raw)
		if m == nil {
			return models.Value{}, false
		}
		raw = m[0]
		if len(m) > 1 {
			raw = m[1]
		}
	}

	post := s.Post
	if post == nil {
		post = Trimmed
	}
	v := post(strings.TrimSpace(raw))
	if v.IsEmpty() {
		return models.Value{}, false
	}
	return v, true
}
