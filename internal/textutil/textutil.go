// Package textutil normalizes the free text that arrives from feeds and
// spreadsheets before it is summarized or rendered.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Ellipsis is appended to truncated text.
const Ellipsis = "..."

// CollapseSpace trims s and folds every run of whitespace into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Blank reports whether a cell is missing. Spreadsheet exports write "nan"
// for empty numeric-typed cells.
func Blank(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || strings.EqualFold(t, "nan") || strings.EqualFold(t, "none") || strings.EqualFold(t, "null")
}

// OrDefault returns the collapsed value, or def when the value is Blank.
func OrDefault(s, def string) string {
	if Blank(s) {
		return def
	}
	return CollapseSpace(s)
}

// HTMLToText strips markup and collapses whitespace. Input that is not HTML
// comes back collapsed.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return CollapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CollapseSpace(s)
	}
	return CollapseSpace(doc.Text())
}

// Truncate shortens s to at most limit runes, cutting on a word boundary when
// one exists in the last fifth of the window, and appends Ellipsis.
func Truncate(s string, limit int) string {
	s = CollapseSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if idx := strings.LastIndex(cut, " "); idx > 0 && utf8.RuneCountInString(cut[:idx]) >= limit*4/5 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,.;:") + Ellipsis
}
