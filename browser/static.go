package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Interactor receives the clicks and key presses issued against a
// StaticBrowser. Without one the static driver is read-only.
type Interactor interface {
	Click(ctx context.Context, sel *goquery.Selection) error
	SendKeys(ctx context.Context, sel *goquery.Selection, keys string) error
}

// StaticOption configures a StaticBrowser.
type StaticOption func(*StaticBrowser)

// WithInteractor routes clicks and typing to i.
func WithInteractor(i Interactor) StaticOption {
	return func(b *StaticBrowser) {
		b.interactor = i
	}
}

// StaticBrowser serves a parsed HTML document through the Browser interface.
// It runs no JavaScript; ScriptNextSiblingText is evaluated natively.
type StaticBrowser struct {
	source     Source
	interactor Interactor
	doc        *goquery.Document
	url        string
}

// NewStatic builds a static driver that loads pages from source.
func NewStatic(source Source, opts ...StaticOption) *StaticBrowser {
	b := &StaticBrowser{source: source}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Navigate loads url from the source and replaces the current document.
func (b *StaticBrowser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.source == nil {
		return fmt.Errorf("navigate %s: no page source configured", url)
	}
	body, err := b.source.Load(ctx, url)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := b.SetHTML(bytes.NewReader(body)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	b.url = url
	return nil
}

// SetHTML replaces the current document. Elements obtained earlier keep
// pointing at the previous document.
func (b *StaticBrowser) SetHTML(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}
	b.doc = doc
	return nil
}

// URL returns the last navigated URL.
func (b *StaticBrowser) URL() string {
	return b.url
}

func (b *StaticBrowser) Find(ctx context.Context, loc Locator) (Element, error) {
	return findFirst(ctx, b.FindAll, loc)
}

func (b *StaticBrowser) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	if b.doc == nil {
		return nil, fmt.Errorf("%w: no page loaded", ErrNotFound)
	}
	return b.query(ctx, b.doc.Selection, loc)
}

func (b *StaticBrowser) Close() error {
	b.doc = nil
	return nil
}

func (b *StaticBrowser) query(ctx context.Context, sel *goquery.Selection, loc Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var nodes []*html.Node
	switch loc.By {
	case ByXPath:
		for _, n := range sel.Nodes {
			found, err := htmlquery.QueryAll(n, loc.Value)
			if err != nil {
				return nil, fmt.Errorf("xpath %q: %w", loc.Value, err)
			}
			nodes = append(nodes, found...)
		}
	case ByID:
		nodes = sel.Find(`[id="` + loc.Value + `"]`).Nodes
	case ByClass:
		nodes = sel.Find("." + strings.Join(strings.Fields(loc.Value), ".")).Nodes
	case ByTag, ByCSS:
		nodes = sel.Find(loc.Value).Nodes
	default:
		return nil, fmt.Errorf("unsupported locator %s", loc)
	}

	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		out = append(out, &staticElement{browser: b, node: n})
	}
	return out, nil
}

func findFirst(ctx context.Context, findAll func(context.Context, Locator) ([]Element, error), loc Locator) (Element, error) {
	all, err := findAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return all[0], nil
}

type staticElement struct {
	browser *StaticBrowser
	node    *html.Node
}

func (e *staticElement) selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

func (e *staticElement) Find(ctx context.Context, loc Locator) (Element, error) {
	return findFirst(ctx, e.FindAll, loc)
}

func (e *staticElement) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	return e.browser.query(ctx, e.selection(), loc)
}

func (e *staticElement) Click(ctx context.Context) error {
	if e.browser.interactor == nil {
		return ErrNotInteractive
	}
	return e.browser.interactor.Click(ctx, e.selection())
}

func (e *staticElement) SendKeys(ctx context.Context, keys string) error {
	if e.browser.interactor == nil {
		return ErrNotInteractive
	}
	return e.browser.interactor.SendKeys(ctx, e.selection(), keys)
}

func (e *staticElement) Text(ctx context.Context) (string, error) {
	return nodeText(e.node), nil
}

func (e *staticElement) Attribute(ctx context.Context, name string) (string, error) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, nil
		}
	}
	return "", nil
}

func (e *staticElement) Clickable(ctx context.Context) (bool, error) {
	if hasAttr(e.node, "disabled") {
		return false, nil
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && isHidden(n) {
			return false, nil
		}
	}
	return true, nil
}

func (e *staticElement) Evaluate(ctx context.Context, script string) (any, error) {
	switch script {
	case ScriptNextSiblingText:
		return strings.TrimSpace(nodeText(e.node.NextSibling)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScript, script)
	}
}

// nodeText mirrors DOM textContent.
func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func isHidden(n *html.Node) bool {
	if hasAttr(n, "hidden") {
		return true
	}
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		style := strings.ToLower(strings.Join(strings.Fields(a.Val), ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}
