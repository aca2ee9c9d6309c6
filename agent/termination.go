package agent

import "strings"

// terminationToken is the prefix an agent emits to leave a conversation.
const terminationToken = "TERMINATED"

// IsTerminationSignal reports whether an agent reply is a voluntary exit
// from the conversation: the trimmed text starts with the termination
// token, compared case-insensitively. The token appearing later in the
// text does not count.
func IsTerminationSignal(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(terminationToken) {
		return false
	}
	return strings.EqualFold(trimmed[:len(terminationToken)], terminationToken)
}
