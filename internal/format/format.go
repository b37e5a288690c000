// ABOUTME: Outbound response formatting: cleanup, platform-specific markup, length limits.
// ABOUTME: Slack gets mrkdwn, Matrix gets rendered HTML, Teams keeps plain markdown.

package format

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// boldRe matches **bold** spans. Slack mrkdwn uses single asterisks.
var boldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// headingRe matches ATX headings at line start.
var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.*)$`)

// linkRe matches [text](url) markdown links.
var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// Clean normalizes a final response before sending: trims surrounding
// whitespace and collapses runs of three or more blank lines.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// Mrkdwn converts common markdown to Slack's mrkdwn dialect: bold
// becomes *text*, headings become bold lines, links become <url|text>.
// Fenced code blocks pass through untouched.
func Mrkdwn(s string) string {
	var out strings.Builder
	for i, segment := range splitFences(s) {
		if i%2 == 1 {
			// Odd segments are fenced code, including the fences.
			out.WriteString(segment)
			continue
		}
		converted := boldRe.ReplaceAllString(segment, "*$1*")
		converted = headingRe.ReplaceAllString(converted, "*$1*")
		converted = linkRe.ReplaceAllString(converted, "<$2|$1>")
		out.WriteString(converted)
	}
	return out.String()
}

// Truncate limits s to max runes, appending a notice when content was
// cut. The cut point never lands inside a code fence: an unclosed fence
// in the kept prefix is closed before the notice so the message still
// renders.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	kept := string(runes[:max])

	// Prefer cutting at a line boundary near the limit.
	if idx := strings.LastIndexByte(kept, '\n'); idx > len(kept)/2 {
		kept = kept[:idx]
	}

	if strings.Count(kept, "```")%2 == 1 {
		kept += "\n```"
	}
	return kept + "\n\n_…response truncated_"
}

// splitFences splits s around ``` fenced blocks. Even indexes are prose,
// odd indexes are fenced code (fences included).
func splitFences(s string) []string {
	var segments []string
	for {
		open := strings.Index(s, "```")
		if open < 0 {
			segments = append(segments, s)
			return segments
		}
		closing := strings.Index(s[open+3:], "```")
		if closing < 0 {
			segments = append(segments, s)
			return segments
		}
		end := open + 3 + closing + 3
		segments = append(segments, s[:open], s[open:end])
		s = s[end:]
	}
}
