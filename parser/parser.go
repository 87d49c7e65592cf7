// Package parser holds the text rules applied to registry table cells.
package parser

import (
	"strings"
)

// CountryMap maps marker codes (e.g. "ru") to display names.
type CountryMap map[string]string

// Name returns the display name for code, falling back to the code itself.
func (m CountryMap) Name(code string) string {
	if name, ok := m[code]; ok {
		return name
	}
	return code
}

// Marker is a country marker span together with the text node that follows it.
type Marker struct {
	Code string
	Text string
}

// CountryCode extracts the code from a marker class attribute such as
// "i-country i-country--kz". The code is the first token after the last "--".
func CountryCode(class string) string {
	if idx := strings.LastIndex(class, "--"); idx >= 0 {
		class = class[idx+2:]
	}
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// FormatMarkers renders markers as "name - text" pairs joined by ", ".
func FormatMarkers(markers []Marker, countries CountryMap) string {
	parts := make([]string, 0, len(markers))
	for _, m := range markers {
		parts = append(parts, countries.Name(m.Code)+" - "+m.Text)
	}
	return strings.Join(parts, ", ")
}

// CleanText trims surrounding whitespace. unicode.IsSpace covers U+00A0, which
// the portal uses for padding.
func CleanText(text string) string {
	return strings.TrimSpace(text)
}

// NormalizeCount strips every kind of whitespace from a numeric footer value
// so that "1 234" and " 57\n" both parse.
func NormalizeCount(text string) string {
	return strings.Join(strings.Fields(text), "")
}
