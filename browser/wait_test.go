package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func staticFromHTML(t *testing.T, markup string) *StaticBrowser {
	t.Helper()
	b := NewStatic(nil)
	if err := b.SetHTML(strings.NewReader(markup)); err != nil {
		t.Fatalf("set html: %v", err)
	}
	return b
}

// eventualFinder reports ErrNotFound until it has been asked misses times.
type eventualFinder struct {
	target Finder
	misses int
	calls  int
}

func (f *eventualFinder) Find(ctx context.Context, loc Locator) (Element, error) {
	f.calls++
	if f.calls <= f.misses {
		return nil, ErrNotFound
	}
	return f.target.Find(ctx, loc)
}

func (f *eventualFinder) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	el, err := f.Find(ctx, loc)
	if err != nil {
		return nil, err
	}
	return []Element{el}, nil
}

func TestWaiterPresentEventually(t *testing.T) {
	b := staticFromHTML(t, `<html><body><span class="eec-page-count">12</span></body></html>`)
	finder := &eventualFinder{target: b, misses: 3}
	w := Waiter{Finder: finder, Poll: time.Millisecond}

	el, err := w.Until(context.Background(), time.Second, Present(Class("eec-page-count")))
	if err != nil {
		t.Fatalf("until: %v", err)
	}
	text, _ := el.Text(context.Background())
	if text != "12" {
		t.Fatalf("text=%q, want 12", text)
	}
	if finder.calls != 4 {
		t.Fatalf("calls=%d, want 4", finder.calls)
	}
}

func TestWaiterTimeout(t *testing.T) {
	b := staticFromHTML(t, `<html><body></body></html>`)
	w := Waiter{Finder: b, Poll: 5 * time.Millisecond}

	start := time.Now()
	_, err := w.Until(context.Background(), 30*time.Millisecond, Present(ID("missing")))
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "id=missing") {
		t.Fatalf("error should name the locator: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("returned after %v, before the timeout", elapsed)
	}
}

func TestWaiterClickable(t *testing.T) {
	b := staticFromHTML(t, `<html><body>
<ul style="display: none"><li id="hidden-option">100</li></ul>
<ul><li id="option">100</li><li id="disabled" disabled>5</li></ul>
</body></html>`)
	w := Waiter{Finder: b, Poll: time.Millisecond}
	ctx := context.Background()

	if _, err := w.Until(ctx, time.Second, Clickable(ID("option"))); err != nil {
		t.Fatalf("visible option: %v", err)
	}
	if _, err := w.Until(ctx, 10*time.Millisecond, Clickable(ID("hidden-option"))); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("hidden option: expected timeout, got %v", err)
	}
	if _, err := w.Until(ctx, 10*time.Millisecond, Clickable(ID("disabled"))); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("disabled option: expected timeout, got %v", err)
	}
}

func TestWaiterAttributeEquals(t *testing.T) {
	b := staticFromHTML(t, `<html><body><input class="ecc-page-number-input" placeholder=" 3 "/></body></html>`)
	w := Waiter{Finder: b, Poll: time.Millisecond}
	ctx := context.Background()

	if _, err := w.Until(ctx, time.Second, AttributeEquals(Class("ecc-page-number-input"), "placeholder", "3")); err != nil {
		t.Fatalf("matching placeholder: %v", err)
	}
	_, err := w.Until(ctx, 10*time.Millisecond, AttributeEquals(Class("ecc-page-number-input"), "placeholder", "13"))
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected timeout for a different page, got %v", err)
	}
}

func TestWaiterContextCanceled(t *testing.T) {
	b := staticFromHTML(t, `<html><body></body></html>`)
	w := Waiter{Finder: b, Poll: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Until(ctx, time.Second, Present(ID("x"))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
