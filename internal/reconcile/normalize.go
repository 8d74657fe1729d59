// Package reconcile merges birthday messages gathered from several sources
// into one deduplicated, filtered and chronologically ordered collection.
//
// Every stage is a pure function over in-memory slices. Fetching sources and
// writing the result back to the blob store is the caller's job.
package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Normalize returns the comparison form of a sender or body: HTML entities
// decoded, zero-width characters and whitespace runs collapsed to one space,
// trimmed and lowercased. The input is never modified.
//
// Entities are decoded up to three times to undo double encoding, so text a
// visitor typed as "&lt;3" compares equal to "<3" and to "&amp;lt;3". The
// result is only a comparison key; stored text keeps its original form.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// Exports sometimes double-encode (&amp;nbsp;), so unescape until stable.
	decoded := s
	for i := 0; i < 3; i++ {
		next := html.UnescapeString(decoded)
		if next == decoded {
			break
		}
		decoded = next
	}

	var b strings.Builder
	b.Grow(len(decoded))
	pendingSpace := false
	for _, r := range decoded {
		if isBlank(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func isBlank(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u00A0':
		return true
	}
	return unicode.IsSpace(r)
}
