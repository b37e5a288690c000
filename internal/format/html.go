// ABOUTME: Markdown to HTML rendering for platforms with HTML message bodies.

package format

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// HTML renders markdown to HTML for platforms whose formatted message
// body is HTML (Matrix). On render failure the plain text is returned;
// receivers fall back to the unformatted body anyway.
func HTML(markdown string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return markdown
	}
	return buf.String()
}
