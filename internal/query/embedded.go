package query

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

// Embedded is a query literal found inside a host source file.
type Embedded struct {
	Text   string
	Origin Origin
}

var (
	taggedTemplate = regexp.MustCompile("\\bgql\\s*`([^`]*)`")
	interpolation  = regexp.MustCompile(`\$\{[^}]*\}`)
)

// ExtractEmbedded finds gql tagged template literals in JavaScript or
// TypeScript source. Template interpolations are blanked out with spaces so
// columns inside the literal stay aligned with the host text.
func ExtractEmbedded(content string) []Embedded {
	matches := taggedTemplate.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	host := NewLineIndex(content)
	result := make([]Embedded, 0, len(matches))
	for _, m := range matches {
		start, end := m[2], m[3]
		body := content[start:end]
		body = interpolation.ReplaceAllStringFunc(body, blank)

		pos := host.Position(start)
		result = append(result, Embedded{
			Text:   body,
			Origin: Origin{Line: pos.Line, Character: pos.Character},
		})
	}
	return result
}

// blank replaces s with spaces of the same UTF-16 width, keeping line
// breaks, so columns after it still match the host text
func blank(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		b.WriteString(strings.Repeat(" ", utf16.RuneLen(r)))
	}
	return b.String()
}

// IsEmbeddingHost reports whether documents at uri carry queries inside
// template literals rather than being query documents themselves.
func IsEmbeddingHost(uri string) bool {
	for _, ext := range []string{".js", ".ts", ".jsx", ".tsx", ".mjs"} {
		if strings.HasSuffix(uri, ext) {
			return true
		}
	}
	return false
}
