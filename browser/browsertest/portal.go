// Package browsertest provides an in-memory registry portal for tests. It
// renders the same markup contract as the live site and reacts to the
// page-size combo box, the page-number input and the next arrow.
package browsertest

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-registry/browser"
)

// Default markup identifiers, matching the live portal.
const (
	PageSizeControlID = "ComboBox1-input"
	PageSizeOptionID  = "ComboBox1-list4"
	PageInputClass    = "ecc-page-number-input"
	LastPageClass     = "eec-page-count"
	NextPageClass     = "arrow-right"
)

// Marker is a country marker inside the first cell.
type Marker struct {
	Code string
	Text string
}

// Cell is a table cell. Markers, when present, replace Text in the first
// cell's content div.
type Cell struct {
	Text    string
	Markers []Marker
	// NoDiv renders the text directly inside the td.
	NoDiv bool
}

// Row is a table row.
type Row []Cell

// Portal is a fake paginated registry served through a StaticBrowser.
type Portal struct {
	*browser.StaticBrowser

	pages     [][]Row
	current   int
	comboOpen bool
	typed     string

	// PageCountText overrides the footer text when non-empty.
	PageCountText string
	// OptionHidden keeps the page-size option invisible forever.
	OptionHidden bool
	// StickyPlaceholder stops the page input placeholder from following
	// navigation, so page barriers never resolve.
	StickyPlaceholder bool

	Navigations  int
	ComboClicks  int
	OptionClicks int
	NextClicks   int
	Jumps        int
	Visited      []int
}

// NewPortal builds a portal showing pages, one slice of rows per page.
func NewPortal(pages [][]Row) *Portal {
	p := &Portal{pages: pages, current: 1}
	p.StaticBrowser = browser.NewStatic(p, browser.WithInteractor(p))
	return p
}

// Load implements browser.Source.
func (p *Portal) Load(ctx context.Context, url string) ([]byte, error) {
	p.Navigations++
	p.current = 1
	p.comboOpen = false
	p.typed = ""
	p.Visited = append(p.Visited, p.current)
	return []byte(p.Render()), nil
}

// CurrentPage returns the page the portal is showing.
func (p *Portal) CurrentPage() int {
	return p.current
}

// Click implements browser.Interactor.
func (p *Portal) Click(ctx context.Context, sel *goquery.Selection) error {
	switch {
	case sel.AttrOr("id", "") == PageSizeControlID:
		p.ComboClicks++
		p.comboOpen = true
	case sel.AttrOr("id", "") == PageSizeOptionID:
		if !p.comboOpen || p.OptionHidden {
			return fmt.Errorf("option %s is not visible", PageSizeOptionID)
		}
		p.OptionClicks++
		p.comboOpen = false
		p.show(1)
	case sel.HasClass(NextPageClass):
		if p.current >= len(p.pages) {
			return fmt.Errorf("next clicked on last page %d", p.current)
		}
		p.NextClicks++
		p.show(p.current + 1)
	default:
		return fmt.Errorf("element is not clickable in the portal")
	}
	return p.Refresh()
}

// SendKeys implements browser.Interactor.
func (p *Portal) SendKeys(ctx context.Context, sel *goquery.Selection, keys string) error {
	if !sel.HasClass(PageInputClass) {
		return fmt.Errorf("keys sent to a non-input element")
	}
	for _, r := range keys {
		if string(r) != browser.KeyEnter {
			p.typed += string(r)
			continue
		}
		typed := p.typed
		p.typed = ""
		n, err := strconv.Atoi(typed)
		if err != nil || n < 1 || n > len(p.pages) {
			return fmt.Errorf("invalid page %q", typed)
		}
		p.Jumps++
		p.show(n)
	}
	return p.Refresh()
}

func (p *Portal) show(page int) {
	p.current = page
	p.Visited = append(p.Visited, page)
}

// Refresh re-renders the current state into the browser document.
func (p *Portal) Refresh() error {
	return p.SetHTML(strings.NewReader(p.Render()))
}

// Render returns the markup for the current state.
func (p *Portal) Render() string {
	var b strings.Builder
	b.WriteString("<html><body>")

	fmt.Fprintf(&b, `<div class="combo"><input id="%s" value="10"/>`, PageSizeControlID)
	style := ""
	if !p.comboOpen || p.OptionHidden {
		style = ` style="display: none"`
	}
	fmt.Fprintf(&b, `<ul%s><li id="ComboBox1-list1">10</li><li id="%s">100</li></ul></div>`, style, PageSizeOptionID)

	b.WriteString(`<table><thead><tr><th>Страны</th><th>Наименование</th></tr></thead><tbody>`)
	if p.current >= 1 && p.current <= len(p.pages) {
		for _, row := range p.pages[p.current-1] {
			b.WriteString("<tr>")
			for _, cell := range row {
				writeCell(&b, cell)
			}
			b.WriteString("</tr>")
		}
	}
	b.WriteString("</tbody></table>")

	placeholder := p.current
	if p.StickyPlaceholder {
		placeholder = 1
	}
	fmt.Fprintf(&b, `<div class="pager"><input class="%s" placeholder="%d"/>`, PageInputClass, placeholder)
	footer := p.PageCountText
	if footer == "" {
		footer = strconv.Itoa(len(p.pages))
	}
	fmt.Fprintf(&b, `<span class="%s"> %s </span>`, LastPageClass, html.EscapeString(footer))
	fmt.Fprintf(&b, `<a class="%s">›</a></div>`, NextPageClass)

	b.WriteString("</body></html>")
	return b.String()
}

func writeCell(b *strings.Builder, cell Cell) {
	b.WriteString("<td>")
	if !cell.NoDiv {
		b.WriteString("<div>")
	}
	if len(cell.Markers) == 0 {
		b.WriteString(html.EscapeString(cell.Text))
	}
	for _, m := range cell.Markers {
		fmt.Fprintf(b, `<span class="i-country i-country--%s"></span>%s`, html.EscapeString(m.Code), html.EscapeString(m.Text))
	}
	if !cell.NoDiv {
		b.WriteString("</div>")
	}
	b.WriteString("</td>")
}

// Pages builds count pages of perPage rows each. Every row has a marker cell
// followed by extra plain cells named after their position.
func Pages(count, perPage, extra int) [][]Row {
	pages := make([][]Row, 0, count)
	for page := 1; page <= count; page++ {
		rows := make([]Row, 0, perPage)
		for i := 1; i <= perPage; i++ {
			row := Row{{Markers: []Marker{{Code: "ru", Text: fmt.Sprintf("p%d-r%d", page, i)}}}}
			for c := 1; c <= extra; c++ {
				row = append(row, Cell{Text: fmt.Sprintf(" p%d-r%d-c%d ", page, i, c)})
			}
			rows = append(rows, row)
		}
		pages = append(pages, rows)
	}
	return pages
}
