// Package todos scans source lines for outstanding marker comments.
//
// Scanning is line-based, not syntax-aware: a marker inside a string literal
// is a known false positive and accepted as a scope limitation.
package todos

import (
	"regexp"
	"strings"

	"devmind/internal/lang"
)

// Markers recognized after a comment token.
var markers = []string{"TODO", "FIXME", "XXX", "HACK"}

// Item is one marker comment found in a file.
type Item struct {
	LineNumber int    `json:"lineNumber"`
	Marker     string `json:"marker"`
	Text       string `json:"text"`
}

// markerPattern matches "MARKER: text" or "MARKER text" case-insensitively.
var markerPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(markers, "|") + `)\b:?\s*(.*)`)

// Scan returns all marker comments in source for the given language, in line
// order. Languages without a comment-token table yield no items.
func Scan(source []byte, l lang.Language) []Item {
	tokens := lang.CommentTokens(l)
	if len(tokens) == 0 {
		return nil
	}

	var items []Item
	lines := strings.Split(string(source), "\n")
	for i, line := range lines {
		item, ok := scanLine(line, tokens)
		if !ok {
			continue
		}
		item.LineNumber = i + 1
		items = append(items, item)
	}
	return items
}

// scanLine looks for a marker keyword following a comment token.
func scanLine(line string, tokens []string) (Item, bool) {
	for _, token := range tokens {
		idx := strings.Index(line, token)
		if idx < 0 {
			continue
		}

		comment := line[idx+len(token):]
		loc := markerPattern.FindStringSubmatchIndex(comment)
		if loc == nil {
			continue
		}

		// The marker must lead the comment, not sit in prose halfway through
		if strings.TrimLeft(comment[:loc[2]], " \t*") != "" {
			continue
		}

		return Item{
			Marker: strings.ToUpper(comment[loc[2]:loc[3]]),
			Text:   strings.TrimSpace(comment[loc[4]:loc[5]]),
		}, true
	}
	return Item{}, false
}
