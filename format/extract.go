package format

import (
	"regexp"
	"strings"
)

// sentenceSplit breaks text at sentence boundaries without being a full
// tokenizer: a period followed by a space or newline, or !/? followed by a
// newline.
var sentenceSplit = regexp.MustCompile(`\. |\.\n|!\n|\?\n`)

// keyMarkers flag a sentence as carrying concrete, actionable detail.
var keyMarkers = []string{"@", "found", "located", "confirmed", "email"}

// ExtractKeyInformation pulls the single most informative sentence out of
// an agent response: the first sentence carrying a key marker, else the
// first substantive one (over 30 characters), else nothing.
func ExtractKeyInformation(text string) string {
	sentences := sentenceSplit.Split(text, -1)

	for _, s := range sentences {
		lower := strings.ToLower(s)
		for _, marker := range keyMarkers {
			if strings.Contains(lower, marker) {
				return finishSentence(s)
			}
		}
	}

	for _, s := range sentences {
		if len([]rune(strings.TrimSpace(s))) > 30 {
			return finishSentence(s)
		}
	}
	return ""
}

// finishSentence trims the fragment and restores the terminal period the
// splitter consumed.
func finishSentence(s string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(s), ".!?")
	if trimmed == "" {
		return ""
	}
	return trimmed + "."
}
