package browser

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
)

const registryRow = `<html><body><table><tbody>
<tr>
  <td><div><span class="i-country i-country--ru"></span> 5 mg <span class="i-country i-country--kz"></span>10 mg</div></td>
  <td>  Аспирин  </td>
</tr>
<tr><td><div>  Tablet  </div></td></tr>
</tbody></table></body></html>`

func TestParseLocator(t *testing.T) {
	tests := []struct {
		input   string
		want    Locator
		wantErr bool
	}{
		{input: "id=ComboBox1-input", want: ID("ComboBox1-input")},
		{input: "class=eec-page-count", want: Class("eec-page-count")},
		{input: "xpath=//tbody", want: XPath("//tbody")},
		{input: "xpath=//div[@id='a']", want: XPath("//div[@id='a']")},
		{input: "tag=tr", want: Tag("tr")},
		{input: " CSS = table > tbody ", want: CSS("table > tbody")},
		{input: "tbody", wantErr: true},
		{input: "name=q", wantErr: true},
		{input: "id=", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLocator(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLocator(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ParseLocator(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStaticBrowserLocators(t *testing.T) {
	b := staticFromHTML(t, registryRow)
	ctx := context.Background()

	tbody, err := b.Find(ctx, XPath("//tbody"))
	if err != nil {
		t.Fatalf("find tbody: %v", err)
	}
	rows, err := tbody.FindAll(ctx, Tag("tr"))
	if err != nil {
		t.Fatalf("find rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}

	cells, err := rows[0].FindAll(ctx, Tag("td"))
	if err != nil || len(cells) != 2 {
		t.Fatalf("cells=%d err=%v, want 2", len(cells), err)
	}
	div, err := cells[0].Find(ctx, XPath(".//div"))
	if err != nil {
		t.Fatalf("relative xpath: %v", err)
	}
	spans, err := div.FindAll(ctx, Tag("span"))
	if err != nil || len(spans) != 2 {
		t.Fatalf("spans=%d err=%v, want 2", len(spans), err)
	}

	class, _ := spans[1].Attribute(ctx, "class")
	if class != "i-country i-country--kz" {
		t.Fatalf("class=%q", class)
	}
	if missing, _ := spans[1].Attribute(ctx, "data-x"); missing != "" {
		t.Fatalf("missing attribute=%q, want empty", missing)
	}

	if _, err := b.Find(ctx, Class("nope")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStaticBrowserNextSiblingText(t *testing.T) {
	b := staticFromHTML(t, registryRow)
	ctx := context.Background()

	spans, err := b.FindAll(ctx, CSS("td span"))
	if err != nil || len(spans) != 2 {
		t.Fatalf("spans=%d err=%v", len(spans), err)
	}

	want := []string{"5 mg", "10 mg"}
	for i, span := range spans {
		got, err := span.Evaluate(ctx, ScriptNextSiblingText)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got != want[i] {
			t.Fatalf("sibling %d = %q, want %q", i, got, want[i])
		}
	}

	if _, err := spans[0].Evaluate(ctx, "() => document.title"); !errors.Is(err, ErrUnsupportedScript) {
		t.Fatalf("expected ErrUnsupportedScript, got %v", err)
	}
}

func TestStaticBrowserReadOnly(t *testing.T) {
	b := staticFromHTML(t, registryRow)
	ctx := context.Background()

	el, err := b.Find(ctx, Tag("td"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := el.Click(ctx); !errors.Is(err, ErrNotInteractive) {
		t.Fatalf("click: expected ErrNotInteractive, got %v", err)
	}
	if err := el.SendKeys(ctx, "1"+KeyEnter); !errors.Is(err, ErrNotInteractive) {
		t.Fatalf("send keys: expected ErrNotInteractive, got %v", err)
	}
}

func TestStaticBrowserNavigateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(registryRow), 0o644); err != nil {
		t.Fatalf("write page: %v", err)
	}

	b := NewStatic(SourceFor(path, "", 0))
	if err := b.Navigate(context.Background(), "file://"+path); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	rows, err := b.FindAll(context.Background(), Tag("tr"))
	if err != nil || len(rows) != 2 {
		t.Fatalf("rows=%d err=%v, want 2", len(rows), err)
	}
}

func TestCollySourceLoad(t *testing.T) {
	transport := httpmock.NewMockTransport()
	resp := httpmock.NewStringResponse(200, registryRow)
	resp.Header.Set("Content-Type", "text/html")
	transport.RegisterResponder("GET", "http://registry.test/page", httpmock.ResponderFromResponse(resp))

	b := NewStatic(CollySource{Transport: transport})
	if err := b.Navigate(context.Background(), "http://registry.test/page"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if b.URL() != "http://registry.test/page" {
		t.Fatalf("url=%q", b.URL())
	}
	cell, err := b.Find(context.Background(), XPath("//tr[2]/td"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	text, _ := cell.Text(context.Background())
	if strings.TrimSpace(text) != "Tablet" {
		t.Fatalf("text=%q, want Tablet", text)
	}
}

func TestCollySourceErrorStatus(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://registry.test/missing", httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := CollySource{Transport: transport}.Load(context.Background(), "http://registry.test/missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
}

func TestSourceFor(t *testing.T) {
	if _, ok := SourceFor("https://portal.test/x", "", 0).(CollySource); !ok {
		t.Fatalf("https location should use CollySource")
	}
	if _, ok := SourceFor("saved/page.html", "", 0).(FileSource); !ok {
		t.Fatalf("path should use FileSource")
	}
}
