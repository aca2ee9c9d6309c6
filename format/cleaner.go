package format

import (
	"regexp"
	"strings"
)

// Cleaner strips meta-commentary and vendor annotations from raw agent
// text. Implementations must be idempotent: cleaning already-clean text
// returns it unchanged.
type Cleaner interface {
	Clean(text string) string
}

// citationPattern matches vendor citation markers such as 【4:0†report.pdf】.
var citationPattern = regexp.MustCompile(`【\d+:\d+†[^】]*】`)

// metaPrefixes open lines of collaboration chatter rather than content.
var metaPrefixes = []string{
	"According to",
	"Building on what",
	"As the",
}

// contentMarkers identify a line that starts the real payload.
var contentMarkers = []string{
	"Subject:",
	"Dear",
	"Here",
	"The email",
}

// HeuristicCleaner removes collaboration chatter line by line: citation
// markers, meta-commentary prefixes, self-referential filler, and any
// preamble before the first substantive line.
type HeuristicCleaner struct{}

func (HeuristicCleaner) Clean(text string) (out string) {
	// Cleaning is best-effort; broken input comes back untouched.
	defer func() {
		if recover() != nil {
			out = text
		}
	}()

	stripped := citationPattern.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(stripped, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if hasMetaPrefix(trimmed) {
			continue
		}
		if strings.Contains(trimmed, "my unique value") {
			continue
		}
		if strings.Contains(trimmed, "I must") && !strings.Contains(trimmed, "inform") {
			continue
		}
		kept = append(kept, line)
	}

	// Drop everything before the first substantive line. When no line
	// qualifies, keep them all so repeated cleaning is a no-op.
	for i, line := range kept {
		if isContentLine(line) {
			kept = kept[i:]
			break
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func hasMetaPrefix(line string) bool {
	for _, prefix := range metaPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// isContentLine reports whether a line looks like payload rather than
// preamble: it carries a known content marker or is long enough to be
// substantive.
func isContentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, marker := range contentMarkers {
		if strings.Contains(trimmed, marker) {
			return true
		}
	}
	return len([]rune(trimmed)) > 50
}
