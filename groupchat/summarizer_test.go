package groupchat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/types"
)

func TestTemplateSummarizer_EmptyAndSeedOnly(t *testing.T) {
	t.Parallel()

	s := NewTemplateSummarizer(zap.NewNop())
	ctx := context.Background()

	out, err := s.Summarize(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, summaryNoConversation, out)

	out, err = s.Summarize(ctx, []types.Message{types.NewUserMessage("hello")})
	require.NoError(t, err)
	assert.Equal(t, summaryNoConversation, out)
}

func TestTemplateSummarizer_NoAgentResponses(t *testing.T) {
	t.Parallel()

	s := NewTemplateSummarizer(nil)
	out, err := s.Summarize(context.Background(), []types.Message{
		types.NewUserMessage("first"),
		types.NewUserMessage("second"),
	})
	require.NoError(t, err)
	assert.Equal(t, summaryNoAgents, out)
}

func TestTemplateSummarizer_DigestContents(t *testing.T) {
	t.Parallel()

	transcript := []types.Message{
		types.NewUserMessage("who owns the billing system?"),
		types.NewAgentMessage("lookup", "scripted", "Billing is owned by the payments team.", 1),
		types.NewAgentMessage("historian", "scripted", "It moved from platform to payments in 2023.", 2),
		types.NewAgentMessage("lookup", "scripted", "Their lead is Dana Reyes.", 3),
	}

	s := NewTemplateSummarizer(zap.NewNop())
	out, err := s.Summarize(context.Background(), transcript)
	require.NoError(t, err)

	// the user's question verbatim and every contributing agent by name
	assert.Contains(t, out, "who owns the billing system?")
	assert.Contains(t, out, "lookup")
	assert.Contains(t, out, "historian")

	// latest response per agent, not the first
	assert.Contains(t, out, "Dana Reyes")
	assert.NotContains(t, out, "Billing is owned")
	assert.Contains(t, out, "2 agents contributed 3 responses")
}

func TestTemplateSummarizer_Deterministic(t *testing.T) {
	t.Parallel()

	transcript := []types.Message{
		types.NewUserMessage("summarize me"),
		types.NewAgentMessage("a", "scripted", "answer one", 1),
		types.NewAgentMessage("b", "scripted", "answer two", 2),
	}

	s := NewTemplateSummarizer(zap.NewNop())
	first, err := s.Summarize(context.Background(), transcript)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := s.Summarize(context.Background(), transcript)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTemplateSummarizer_TruncatesLongResponses(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	transcript := []types.Message{
		types.NewUserMessage("long one"),
		types.NewAgentMessage("verbose", "scripted", long, 1),
	}

	s := NewTemplateSummarizer(zap.NewNop())
	out, err := s.Summarize(context.Background(), transcript)
	require.NoError(t, err)

	assert.Contains(t, out, strings.Repeat("x", summaryMaxExcerpt)+"...")
	assert.NotContains(t, out, strings.Repeat("x", summaryMaxExcerpt+1))
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "exactly10!", excerpt("exactly10!", 10))
	assert.Equal(t, "abcde...", excerpt("abcdefgh", 5))
	// rune-safe on multibyte input
	assert.Equal(t, "日本語...", excerpt("日本語テキスト", 3))
}
