// Package format condenses group-chat transcripts into one user-facing
// answer. The formatter picks a strategy from the shape of the conversation
// and the user's question, then cleans the chosen content of collaboration
// chatter.
package format

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

// Strategy names the way a transcript is condensed.
type Strategy string

const (
	// StrategySingleAgent returns the lone contributor's latest response.
	StrategySingleAgent Strategy = "single_agent"

	// StrategySynthesis merges responses into one answer, preferring
	// actionable specialist results.
	StrategySynthesis Strategy = "synthesis"

	// StrategyStructured renders a markdown primary answer plus an
	// additional-information section from the other contributors.
	StrategyStructured Strategy = "structured"

	// StrategyDefault is the fallback: the last response, cleaned.
	StrategyDefault Strategy = "default"
)

// noResponseContent is returned when every agent terminated or nothing was
// produced at all.
const noResponseContent = "I'm sorry, I wasn't able to produce a response to your request. Please try rephrasing it or selecting different agents."

// queryKeywords mark a user question as a concrete lookup, which makes
// synthesis preferable over a structured layout.
var queryKeywords = []string{
	"what", "who", "when", "where", "how",
	"find", "search", "lookup", "tell me",
	"email", "contact", "information",
}

// actionableMarkers flag a response as a completed specialist action.
var actionableMarkers = []string{"has been sent", "email sent", "found", "located"}

// specialistMarkers identify agents whose answers should win synthesis.
var specialistMarkers = []string{
	"lookup", "search", "finder", "specialist", "people", "knowledge", "mail", "contact",
}

// maxComplementaryLen caps the complementary detail appended during
// synthesis.
const maxComplementaryLen = 200

// structuredThreshold is the primary-answer length above which the
// structured strategy adds an additional-information section.
const structuredThreshold = 100

// Formatter condenses TurnResults. Safe for concurrent use.
type Formatter struct {
	cleaner Cleaner
	logger  *zap.Logger
}

// NewFormatter creates a formatter with the heuristic cleaner.
func NewFormatter(logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{
		cleaner: HeuristicCleaner{},
		logger:  logger.With(zap.String("component", "formatter")),
	}
}

// WithCleaner replaces the cleaning policy.
func (f *Formatter) WithCleaner(c Cleaner) *Formatter {
	f.cleaner = c
	return f
}

// Format condenses a run's transcript into one response. User messages and
// terminated messages never contribute content. Format never fails: any
// strategy panic degrades to the default strategy.
func (f *Formatter) Format(result *types.TurnResult, userQuery string) *types.FormattedResponse {
	contributions := contributingMessages(result.Messages)
	if len(contributions) == 0 {
		return &types.FormattedResponse{
			Content:   noResponseContent,
			Format:    types.FormatText,
			SessionID: result.SessionID,
		}
	}

	strategy := f.SelectStrategy(contributions, userQuery)
	resp := f.apply(strategy, contributions, result)
	resp.SessionID = result.SessionID
	return resp
}

// SelectStrategy picks how the transcript should be condensed.
func (f *Formatter) SelectStrategy(contributions []types.Message, userQuery string) Strategy {
	distinct := distinctAgents(contributions)
	switch {
	case len(distinct) == 1:
		return StrategySingleAgent
	case isQueryLike(userQuery):
		return StrategySynthesis
	case len(distinct) > 2 || len(contributions) > 3:
		return StrategyStructured
	default:
		return StrategySynthesis
	}
}

// apply dispatches to the strategy implementation, degrading to the
// default strategy if it panics.
func (f *Formatter) apply(strategy Strategy, contributions []types.Message, result *types.TurnResult) (resp *types.FormattedResponse) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("format strategy failed, falling back to default",
				zap.String("strategy", string(strategy)),
				zap.Any("panic", r),
			)
			resp = f.formatDefault(contributions)
		}
	}()

	switch strategy {
	case StrategySingleAgent:
		return f.formatSingleAgent(contributions)
	case StrategySynthesis:
		return f.formatSynthesis(contributions)
	case StrategyStructured:
		return f.formatStructured(contributions)
	default:
		return f.formatDefault(contributions)
	}
}

func (f *Formatter) formatSingleAgent(contributions []types.Message) *types.FormattedResponse {
	last := contributions[len(contributions)-1]
	return &types.FormattedResponse{
		Content: f.cleaner.Clean(last.Content),
		Format:  types.FormatText,
		Metadata: types.ResponseMetadata{
			AgentCount:         1,
			ResponseCount:      len(contributions),
			PrimaryAgent:       last.AgentName,
			ContributingAgents: []string{last.AgentName},
		},
	}
}

// formatSynthesis merges the contributions into one answer. A completed
// specialist action wins; one short complementary detail from a later
// contributor may be appended. Otherwise the most recent response stands
// for the conversation.
func (f *Formatter) formatSynthesis(contributions []types.Message) *types.FormattedResponse {
	distinct := distinctAgents(contributions)
	last := contributions[len(contributions)-1]

	primary := last
	actionable := false
	for i := len(contributions) - 1; i >= 0; i-- {
		msg := contributions[i]
		if isSpecialist(msg.AgentName) && hasActionableContent(msg.Content) {
			primary = msg
			actionable = true
			break
		}
	}

	content := f.cleaner.Clean(primary.Content)
	if actionable {
		if detail := f.complementaryDetail(contributions, primary); detail != "" {
			content = content + "\n\n" + detail
		}
	}
	if content == "" {
		content = f.cleaner.Clean(last.Content)
	}

	return &types.FormattedResponse{
		Content: content,
		Format:  types.FormatText,
		Metadata: types.ResponseMetadata{
			AgentCount:         len(distinct),
			ResponseCount:      len(contributions),
			PrimaryAgent:       primary.AgentName,
			ContributingAgents: distinct,
		},
	}
}

// complementaryDetail finds at most one short key detail from an agent
// other than the primary author, produced at or after the primary turn.
func (f *Formatter) complementaryDetail(contributions []types.Message, primary types.Message) string {
	for _, msg := range contributions {
		if msg.AgentName == primary.AgentName || msg.Turn < primary.Turn {
			continue
		}
		detail := ExtractKeyInformation(msg.Content)
		if detail != "" && len([]rune(detail)) < maxComplementaryLen {
			return detail
		}
	}
	return ""
}

// formatStructured renders a markdown answer: the final response as the
// primary body and, when it is substantial, an "Additional Information"
// section with one extracted point per other contributor.
func (f *Formatter) formatStructured(contributions []types.Message) *types.FormattedResponse {
	distinct := distinctAgents(contributions)
	final := contributions[len(contributions)-1]
	primary := f.cleaner.Clean(final.Content)

	var content string
	if len([]rune(primary)) > structuredThreshold {
		var bullets []string
		for _, msg := range latestPerAgent(contributions) {
			if msg.AgentName == final.AgentName {
				continue
			}
			if point := ExtractKeyInformation(msg.Content); point != "" {
				bullets = append(bullets, fmt.Sprintf("- **%s**: %s", msg.AgentName, point))
			}
		}
		if len(bullets) > 0 {
			content = primary + "\n\n## Additional Information\n\n" + strings.Join(bullets, "\n")
		} else {
			content = primary
		}
	} else {
		var paragraphs []string
		for _, msg := range latestPerAgent(contributions) {
			if cleaned := f.cleaner.Clean(msg.Content); cleaned != "" {
				paragraphs = append(paragraphs, cleaned)
			}
		}
		content = strings.Join(paragraphs, "\n\n")
	}

	return &types.FormattedResponse{
		Content: content,
		Format:  types.FormatMarkdown,
		Metadata: types.ResponseMetadata{
			AgentCount:         len(distinct),
			ResponseCount:      len(contributions),
			PrimaryAgent:       final.AgentName,
			ContributingAgents: distinct,
		},
	}
}

// formatDefault is the strategy of last resort and also the panic fallback,
// so it must not trust the cleaner.
func (f *Formatter) formatDefault(contributions []types.Message) *types.FormattedResponse {
	last := contributions[len(contributions)-1]
	return &types.FormattedResponse{
		Content: f.safeClean(last.Content),
		Format:  types.FormatText,
		Metadata: types.ResponseMetadata{
			AgentCount:         len(distinctAgents(contributions)),
			ResponseCount:      len(contributions),
			PrimaryAgent:       last.AgentName,
			ContributingAgents: distinctAgents(contributions),
		},
	}
}

// safeClean cleans text, returning it untouched if the cleaner panics.
func (f *Formatter) safeClean(text string) (out string) {
	defer func() {
		if recover() != nil {
			out = text
		}
	}()
	return f.cleaner.Clean(text)
}

// contributingMessages filters a transcript down to the messages that may
// contribute content: agent-authored and not terminated.
func contributingMessages(messages []types.Message) []types.Message {
	var out []types.Message
	for _, msg := range messages {
		if msg.IsUser() || msg.IsTerminated {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// distinctAgents returns contributor names in first-contribution order.
func distinctAgents(contributions []types.Message) []string {
	seen := make(map[string]struct{}, len(contributions))
	var names []string
	for _, msg := range contributions {
		if _, ok := seen[msg.AgentName]; ok {
			continue
		}
		seen[msg.AgentName] = struct{}{}
		names = append(names, msg.AgentName)
	}
	return names
}

// latestPerAgent returns each contributor's most recent message, ordered by
// that message's position in the conversation.
func latestPerAgent(contributions []types.Message) []types.Message {
	latest := make(map[string]int, len(contributions))
	for i, msg := range contributions {
		latest[msg.AgentName] = i
	}

	var out []types.Message
	for i, msg := range contributions {
		if latest[msg.AgentName] == i {
			out = append(out, msg)
		}
	}
	return out
}

func isQueryLike(userQuery string) bool {
	lower := strings.ToLower(userQuery)
	for _, kw := range queryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isSpecialist(agentName string) bool {
	lower := strings.ToLower(agentName)
	for _, marker := range specialistMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func hasActionableContent(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range actionableMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
