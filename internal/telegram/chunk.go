package telegram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// headroom reserves space in each chunk for the part prefix.
const chunkHeadroom = len("(Part 99/99)\n")

// SplitMessage splits text into chunks no longer than limit, preferring to
// break on newlines, then sentence ends, then spaces. Multi-part output is
// numbered "(Part i/n)" so the reader can tell nothing was dropped.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	budget := limit - chunkHeadroom
	if budget < 1 {
		budget = limit
	}

	var parts []string
	rest := text
	for len(rest) > budget {
		cut := findCut(rest, budget)
		parts = append(parts, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		parts = append(parts, rest)
	}

	if len(parts) == 1 {
		return parts
	}
	for i := range parts {
		parts[i] = fmt.Sprintf("(Part %d/%d)\n%s", i+1, len(parts), parts[i])
	}
	return parts
}

// findCut picks the best break position within the first budget bytes.
func findCut(s string, budget int) int {
	window := s[:budget]
	if i := strings.LastIndex(window, "\n"); i > 0 {
		return i
	}
	if i := strings.LastIndex(window, ". "); i > 0 {
		return i + 1
	}
	if i := strings.LastIndex(window, " "); i > 0 {
		return i
	}
	// No break character at all: hard cut, backed off so a multi-byte rune
	// is never split across chunks.
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return budget
	}
	return cut
}
