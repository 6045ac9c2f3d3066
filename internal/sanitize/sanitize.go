// Package sanitize cleans identifiers and free text that arrive from catalogs,
// requests and tool calls before they are stored, looked up or rendered into
// markdown for agents.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxIdentifierLength is the maximum length of a cell-line or drug identifier.
const MaxIdentifierLength = 64

// MaxTextLength is the maximum length of a rendered free-text field.
const MaxTextLength = 200

// Pre-compiled regular expressions for performance.
var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reWhitespace matches runs of whitespace, including newlines.
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Identifier normalizes a cell-line name or drug class. It trims surrounding
// whitespace, keeps only [a-zA-Z0-9-_.+] and truncates to MaxIdentifierLength.
// Case is preserved; lookups are case-insensitive elsewhere.
func Identifier(input string) string {
	if input == "" {
		return ""
	}

	s := strings.TrimSpace(stripControlChars(input))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '+' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	if len(s) > MaxIdentifierLength {
		s = s[:MaxIdentifierLength]
	}
	return s
}

// IsIdentifier reports whether s is already a clean identifier.
func IsIdentifier(s string) bool {
	return s != "" && Identifier(s) == s
}

// MarkdownCell makes free text safe to place in a markdown table cell:
// control characters and tags are stripped, whitespace is collapsed to single
// spaces and pipes are escaped.
func MarkdownCell(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > MaxTextLength {
		s = s[:MaxTextLength] + "..."
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

// stripControlChars removes ASCII control characters (0x00-0x1F) from the string,
// except for newline (0x0A) and tab (0x09) which are preserved.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
