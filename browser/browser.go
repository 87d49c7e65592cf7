// Package browser defines the browser-control surface the scraper drives and
// the drivers that implement it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Find when no element matches the locator.
	ErrNotFound = errors.New("browser: element not found")
	// ErrWaitTimeout is returned when a barrier condition does not hold in time.
	ErrWaitTimeout = errors.New("browser: wait timed out")
	// ErrNotInteractive is returned by read-only drivers on click or typing.
	ErrNotInteractive = errors.New("browser: driver is not interactive")
	// ErrUnsupportedScript is returned by drivers that cannot run arbitrary scripts.
	ErrUnsupportedScript = errors.New("browser: unsupported script")
)

// KeyEnter confirms an input when passed to SendKeys.
const KeyEnter = "\ue007"

// ScriptNextSiblingText reads the trimmed text of the node right after an
// element. Only the sibling is read, never the element subtree.
const ScriptNextSiblingText = `el => { const n = el.nextSibling; return n ? n.textContent.trim() : ""; }`

// Strategy selects how a Locator value is interpreted.
type Strategy int

const (
	ByID Strategy = iota
	ByClass
	ByXPath
	ByTag
	ByCSS
)

var strategyNames = map[Strategy]string{
	ByID:    "id",
	ByClass: "class",
	ByXPath: "xpath",
	ByTag:   "tag",
	ByCSS:   "css",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Locator identifies elements on a page.
type Locator struct {
	By    Strategy
	Value string
}

func ID(v string) Locator    { return Locator{By: ByID, Value: v} }
func Class(v string) Locator { return Locator{By: ByClass, Value: v} }
func XPath(v string) Locator { return Locator{By: ByXPath, Value: v} }
func Tag(v string) Locator   { return Locator{By: ByTag, Value: v} }
func CSS(v string) Locator   { return Locator{By: ByCSS, Value: v} }

func (l Locator) String() string {
	return l.By.String() + "=" + l.Value
}

// ParseLocator parses the "strategy=value" form used in configuration, e.g.
// "id=ComboBox1-input" or "xpath=//tbody".
func ParseLocator(s string) (Locator, error) {
	prefix, value, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return Locator{}, fmt.Errorf("locator %q: missing strategy prefix", s)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Locator{}, fmt.Errorf("locator %q: empty value", s)
	}
	for strategy, name := range strategyNames {
		if strings.EqualFold(strings.TrimSpace(prefix), name) {
			return Locator{By: strategy, Value: value}, nil
		}
	}
	return Locator{}, fmt.Errorf("locator %q: unknown strategy %q", s, prefix)
}

// Finder locates elements, either page-wide or below an element.
type Finder interface {
	// Find returns the first match or ErrNotFound.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll returns every match in document order; no match is not an error.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
}

// Element is a handle to a DOM element.
type Element interface {
	Finder

	Click(ctx context.Context) error
	// SendKeys types keys into the element; KeyEnter confirms.
	SendKeys(ctx context.Context, keys string) error
	Text(ctx context.Context) (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
	// Clickable reports whether the element is visible and enabled.
	Clickable(ctx context.Context) (bool, error)
	// Evaluate runs an inline script receiving the element as its argument.
	Evaluate(ctx context.Context, script string) (any, error)
}

// Browser is a single browser session showing one page at a time.
type Browser interface {
	Finder

	Navigate(ctx context.Context, url string) error
	Close() error
}
