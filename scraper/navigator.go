package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-registry/browser"
	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/parser"
)

// Timeouts are the bounds applied to barrier waits.
type Timeouts struct {
	// Control bounds waits on small widgets, such as a dropdown option
	// becoming clickable.
	Control time.Duration
	// Element bounds waits for an element to be present.
	Element time.Duration
	// PageLoad bounds whole-page transitions.
	PageLoad time.Duration
	Poll     time.Duration
	// Settle is slept after the page size changes; the portal exposes no
	// signal for that transition.
	Settle time.Duration
}

// TimeoutsFromConfig maps the min/avg/max wait tiers onto Timeouts.
func TimeoutsFromConfig(cfg *config.Config) Timeouts {
	return Timeouts{
		Control:  cfg.MinWait,
		Element:  cfg.AvgWait,
		PageLoad: cfg.MaxWait,
		Poll:     cfg.PollInterval,
		Settle:   cfg.PageSizeSettle,
	}
}

const (
	tierControl  = "control"
	tierElement  = "element"
	tierPageLoad = "page_load"
)

// Navigator positions the browser on registry pages and tracks which page
// is showing. Every action waits for the page to confirm it before the
// position is updated.
type Navigator struct {
	browser  browser.Browser
	loc      config.Locators
	timeouts Timeouts
	metrics  *Metrics

	current  int
	lastPage int
	lastSeen bool
}

// NewNavigator returns a Navigator positioned on page 1.
func NewNavigator(b browser.Browser, loc config.Locators, timeouts Timeouts, metrics *Metrics) *Navigator {
	return &Navigator{
		browser:  b,
		loc:      loc,
		timeouts: timeouts,
		metrics:  metrics,
		current:  1,
	}
}

// CurrentPage returns the page the navigator last confirmed.
func (n *Navigator) CurrentPage() int {
	return n.current
}

// Open loads the portal and waits for the page size control to appear.
func (n *Navigator) Open(ctx context.Context, url string) error {
	n.metrics.IncNavigation("open")
	if err := n.browser.Navigate(ctx, url); err != nil {
		return fmt.Errorf("open portal: %w", err)
	}
	if _, err := n.wait(ctx, n.timeouts.PageLoad, tierPageLoad, browser.Present(n.loc.PageSizeControl)); err != nil {
		return err
	}
	n.setCurrent(1)
	return nil
}

// SetPageSize opens the page size combo box and picks option. The portal
// goes back to page 1 afterwards.
func (n *Navigator) SetPageSize(ctx context.Context, option browser.Locator) error {
	control, err := n.wait(ctx, n.timeouts.Element, tierElement, browser.Present(n.loc.PageSizeControl))
	if err != nil {
		return err
	}
	if err := control.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", n.loc.PageSizeControl, err)
	}

	item, err := n.wait(ctx, n.timeouts.Control, tierControl, browser.Clickable(option))
	if err != nil {
		return err
	}
	if err := item.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", option, err)
	}
	n.metrics.IncNavigation("page_size")

	if err := sleep(ctx, n.timeouts.Settle); err != nil {
		return err
	}
	n.setCurrent(1)
	slog.Debug("page size set", slog.String("option", option.String()))
	return nil
}

// JumpToPage types page into the page index input and waits until the
// portal reports it. Jumping to the current page does nothing.
func (n *Navigator) JumpToPage(ctx context.Context, page int) error {
	if page < 1 {
		return fmt.Errorf("jump to page %d: pages start at 1", page)
	}
	if page == n.current {
		return nil
	}

	input, err := n.wait(ctx, n.timeouts.Element, tierElement, browser.Present(n.loc.PageInput))
	if err != nil {
		return err
	}
	if err := input.SendKeys(ctx, strconv.Itoa(page)+browser.KeyEnter); err != nil {
		return fmt.Errorf("type page %d: %w", page, err)
	}
	n.metrics.IncNavigation("jump")

	if err := n.awaitPage(ctx, page); err != nil {
		return err
	}
	n.setCurrent(page)
	slog.Debug("jumped to page", slog.Int("page", page))
	return nil
}

// LastPage reads the page count from the footer once and caches it for the
// life of the navigator.
func (n *Navigator) LastPage(ctx context.Context) (int, error) {
	if n.lastSeen {
		return n.lastPage, nil
	}

	footer, err := n.wait(ctx, n.timeouts.Element, tierElement, browser.Present(n.loc.LastPage))
	if err != nil {
		return 0, err
	}
	text, err := footer.Text(ctx)
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	last, err := strconv.Atoi(parser.NormalizeCount(text))
	if err != nil {
		return 0, ErrMarkup{Err: fmt.Errorf("page count %q: %w", text, err)}
	}
	if last < 0 {
		return 0, ErrMarkup{Err: fmt.Errorf("page count %q is negative", text)}
	}

	n.lastPage = last
	n.lastSeen = true
	n.metrics.SetPages(n.current, last)
	return last, nil
}

// Advance moves to the next page. On the last page it only moves the
// position past the end, which ends the scraping loop.
func (n *Navigator) Advance(ctx context.Context) error {
	last, err := n.LastPage(ctx)
	if err != nil {
		return err
	}
	if n.current >= last {
		n.setCurrent(n.current + 1)
		return nil
	}

	next, err := n.wait(ctx, n.timeouts.Element, tierElement, browser.Present(n.loc.NextPage))
	if err != nil {
		return err
	}
	if err := next.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", n.loc.NextPage, err)
	}
	n.metrics.IncNavigation("next")

	if err := n.awaitPage(ctx, n.current+1); err != nil {
		return err
	}
	n.setCurrent(n.current + 1)
	return nil
}

// awaitPage blocks until the page index input shows page as its placeholder.
func (n *Navigator) awaitPage(ctx context.Context, page int) error {
	cond := browser.AttributeEquals(n.loc.PageInput, "placeholder", strconv.Itoa(page))
	_, err := n.wait(ctx, n.timeouts.PageLoad, tierPageLoad, cond)
	return err
}

func (n *Navigator) wait(ctx context.Context, timeout time.Duration, tier string, cond browser.Condition) (browser.Element, error) {
	return waitFor(ctx, n.browser, n.timeouts.Poll, timeout, tier, cond, n.metrics)
}

func (n *Navigator) setCurrent(page int) {
	n.current = page
	n.metrics.SetPages(page, n.lastPage)
}

func waitFor(ctx context.Context, f browser.Finder, poll, timeout time.Duration, tier string, cond browser.Condition, metrics *Metrics) (browser.Element, error) {
	start := time.Now()
	el, err := browser.Waiter{Finder: f, Poll: poll}.Until(ctx, timeout, cond)
	metrics.ObserveWait(tier, time.Since(start))
	if err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return nil, ErrTimeout{Element: cond.Name, Err: err}
		}
		return nil, err
	}
	return el, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
