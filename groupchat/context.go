package groupchat

import (
	"fmt"
	"strings"

	"github.com/parleylabs/parley/types"
)

// buildContext renders the collaboration context for one sequential agent
// turn. The original user message is always present. Once the agent has
// spoken at least once, the latest response from every other participant is
// included as collaboration guidance so that later rounds build on each
// other instead of restating round one.
func buildContext(transcript []types.Message, agentName, originalMessage string) string {
	var b strings.Builder
	b.WriteString("Original user message: ")
	b.WriteString(originalMessage)

	hasSpoken := false
	latest := make(map[string]types.Message)
	var order []string
	for _, msg := range transcript {
		if msg.IsUser() {
			continue
		}
		if msg.AgentName == agentName {
			hasSpoken = true
			continue
		}
		if _, seen := latest[msg.AgentName]; !seen {
			order = append(order, msg.AgentName)
		}
		latest[msg.AgentName] = msg
	}

	if !hasSpoken || len(latest) == 0 {
		return b.String()
	}

	b.WriteString("\n\nLatest responses from the other participants:\n")
	for _, name := range order {
		fmt.Fprintf(&b, "- %s: %s\n", name, latest[name].Content)
	}
	b.WriteString("\nBuild upon these responses with your own expertise. Do not repeat what has already been said.")
	return b.String()
}
