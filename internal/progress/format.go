// ABOUTME: Concise rendering of tool arguments and truncation helpers.
// ABOUTME: Budgets: 3 args, 50-char values, 100-char errors and thinking previews.

package progress

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxArgsShown   = 3
	maxValueLen    = 50
	maxErrorLen    = 100
	maxThinkingLen = 100
)

// formatArgs renders tool arguments as "key=value, ..." showing at most
// maxArgsShown pairs with an explicit "+N more" suffix. Nested structures
// are never expanded — lists and maps render as counts.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, maxArgsShown+1)
	for i, key := range keys {
		if i >= maxArgsShown {
			parts = append(parts, fmt.Sprintf("+%d more", len(keys)-maxArgsShown))
			break
		}
		parts = append(parts, key+"="+formatValue(args[key]))
	}
	return strings.Join(parts, ", ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if len([]rune(val)) > maxValueLen {
			return fmt.Sprintf("%q", string([]rune(val)[:maxValueLen-3])+"...")
		}
		return fmt.Sprintf("%q", val)
	case []any:
		return fmt.Sprintf("[%d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{%d keys}", len(val))
	case nil:
		return "null"
	default:
		return truncate(fmt.Sprint(val), maxValueLen)
	}
}

// toolLine renders a one-line tool description: marker `name`(args).
func toolLine(marker, name string, args map[string]any) string {
	argStr := formatArgs(args)
	return fmt.Sprintf("%s `%s`(%s)", marker, name, argStr)
}

// truncate shortens s to at most maxLen runes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// oneLine collapses newlines so previews stay on a single line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
