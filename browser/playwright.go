package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightOptions configures the live browser session.
type PlaywrightOptions struct {
	// Name is chromium, firefox or webkit.
	Name string
	// Channel selects a branded build, e.g. "msedge" or "chrome".
	Channel           string
	Headless          bool
	SlowMo            time.Duration
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	UserAgent         string
	// Install downloads the driver and browser binaries before launching.
	Install bool
}

// PlaywrightBrowser drives a real browser page through playwright-go.
type PlaywrightBrowser struct {
	pw      driver
	browser playwright.Browser
	page    playwright.Page
	opts    PlaywrightOptions
}

// NewPlaywright starts playwright and opens a single page.
func NewPlaywright(opts PlaywrightOptions) (*PlaywrightBrowser, error) {
	if opts.Name == "" {
		opts.Name = "chromium"
	}

	runOpts := &playwright.RunOptions{Browsers: []string{opts.Name}}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch opts.Name {
	case "chromium":
		browserType = pw.Chromium
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		pw.Stop()
		return nil, fmt.Errorf("unsupported browser %q", opts.Name)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}

	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	pageOpts := playwright.BrowserNewPageOptions{}
	if opts.UserAgent != "" {
		pageOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	page, err := browser.NewPage(pageOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("create page: %w", err)
	}

	return &PlaywrightBrowser{
		pw:      pw,
		browser: browser,
		page:    page,
		opts:    opts,
	}, nil
}

func (b *PlaywrightBrowser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}
	if b.opts.NavigationTimeout > 0 {
		gotoOpts.Timeout = playwright.Float(float64(b.opts.NavigationTimeout.Milliseconds()))
	}
	if _, err := b.page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (b *PlaywrightBrowser) Find(ctx context.Context, loc Locator) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handle, err := b.page.QuerySelector(playwrightSelector(loc))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return &playwrightElement{handle: handle, opts: b.opts}, nil
}

func (b *PlaywrightBrowser) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := b.page.QuerySelectorAll(playwrightSelector(loc))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	return wrapHandles(handles, b.opts), nil
}

// driver is the part of *playwright.Playwright needed after launch.
type driver interface {
	Stop() error
}

// Close shuts the browser and the playwright driver down.
func (b *PlaywrightBrowser) Close() error {
	var errs []error
	if err := b.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	if err := b.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

func playwrightSelector(loc Locator) string {
	switch loc.By {
	case ByID:
		return "id=" + loc.Value
	case ByClass:
		return "css=." + strings.Join(strings.Fields(loc.Value), ".")
	case ByXPath:
		return "xpath=" + loc.Value
	default:
		return "css=" + loc.Value
	}
}

func wrapHandles(handles []playwright.ElementHandle, opts PlaywrightOptions) []Element {
	out := make([]Element, 0, len(handles))
	for _, h := range handles {
		out = append(out, &playwrightElement{handle: h, opts: opts})
	}
	return out
}

type playwrightElement struct {
	handle playwright.ElementHandle
	opts   PlaywrightOptions
}

func (e *playwrightElement) Find(ctx context.Context, loc Locator) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handle, err := e.handle.QuerySelector(playwrightSelector(loc))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return &playwrightElement{handle: handle, opts: e.opts}, nil
}

func (e *playwrightElement) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := e.handle.QuerySelectorAll(playwrightSelector(loc))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}
	return wrapHandles(handles, e.opts), nil
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clickOpts := playwright.ElementHandleClickOptions{}
	if e.opts.ActionTimeout > 0 {
		clickOpts.Timeout = playwright.Float(float64(e.opts.ActionTimeout.Milliseconds()))
	}
	return e.handle.Click(clickOpts)
}

// SendKeys types text segments and presses Enter for every KeyEnter.
func (e *playwrightElement) SendKeys(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segments := strings.Split(keys, KeyEnter)
	for i, segment := range segments {
		if segment != "" {
			if err := e.handle.Type(segment); err != nil {
				return fmt.Errorf("type: %w", err)
			}
		}
		if i < len(segments)-1 {
			if err := e.handle.Press("Enter"); err != nil {
				return fmt.Errorf("press enter: %w", err)
			}
		}
	}
	return nil
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.handle.InnerText()
}

func (e *playwrightElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.handle.GetAttribute(name)
}

func (e *playwrightElement) Clickable(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	visible, err := e.handle.IsVisible()
	if err != nil || !visible {
		return false, err
	}
	return e.handle.IsEnabled()
}

func (e *playwrightElement) Evaluate(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.handle.Evaluate(script)
}
