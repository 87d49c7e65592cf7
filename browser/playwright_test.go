package browser

import (
	"errors"
	"testing"

	"github.com/playwright-community/playwright-go"
)

type closingBrowser struct {
	playwright.Browser
	err error
}

func (b *closingBrowser) Close(...playwright.BrowserCloseOptions) error {
	return b.err
}

type stoppingDriver struct {
	err     error
	stopped bool
}

func (d *stoppingDriver) Stop() error {
	d.stopped = true
	return d.err
}

func TestPlaywrightCloseJoinsErrors(t *testing.T) {
	errBrowser := errors.New("browser gone")
	errDriver := errors.New("driver gone")

	d := &stoppingDriver{err: errDriver}
	b := &PlaywrightBrowser{browser: &closingBrowser{err: errBrowser}, pw: d}

	err := b.Close()
	if !errors.Is(err, errBrowser) || !errors.Is(err, errDriver) {
		t.Fatalf("expected both errors to be wrapped, got %v", err)
	}
	if !d.stopped {
		t.Fatalf("driver should be stopped even when the browser fails to close")
	}

	ok := &PlaywrightBrowser{browser: &closingBrowser{}, pw: &stoppingDriver{}}
	if err := ok.Close(); err != nil {
		t.Fatalf("clean close should return nil, got %v", err)
	}
}
