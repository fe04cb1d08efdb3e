package orchestrator

import (
	"fmt"
	"strings"

	"context"

	"github.com/zoe-ai/zoe-core/internal/llm"
	"github.com/zoe-ai/zoe-core/internal/memory"
)

const synthesisSystemPrompt = `You are Zoe, a personal assistant. Combine the expert results below into one
natural reply to the user's message. Do not mention experts, tasks, or internal
tooling by name.`

// Synthesize produces the final assistant-facing message from completed task
// outcomes, the original message, and relevant memory snippets. Failed tasks
// are summarized as a bulleted note rather than silently dropped, so the
// caller's text reflects partial failures (spec §4.5 step 5).
func Synthesize(ctx context.Context, provider llm.Provider, originalMessage string, outcomes []TaskOutcome, memories []memory.SearchHit, finalStyle string) (string, error) {
	var bullets strings.Builder
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(&bullets, "- (%s) failed: %v\n", o.Task.Expert, o.Err)
		case !o.Result.Success:
			fmt.Fprintf(&bullets, "- (%s) could not complete: %s\n", o.Task.Expert, o.Task.Goal)
		default:
			fmt.Fprintf(&bullets, "- (%s) %s\n", o.Task.Expert, o.Result.Content)
		}
	}

	var memSnippets strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&memSnippets, "- %s\n", m.Fact.Text)
	}

	userContent := fmt.Sprintf(
		"User message: %s\n\nExpert results:\n%s\nRelevant memory:\n%s\nDesired style: %s",
		originalMessage, bullets.String(), memSnippets.String(), finalStyle,
	)

	if provider == nil {
		return strings.TrimSpace(bullets.String()), nil
	}

	text, err := llm.CollectComplete(ctx, provider, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: userContent},
		},
	})
	if err != nil || strings.TrimSpace(text) == "" {
		// Degrade to the raw bullet list rather than fail the whole turn or
		// return an empty reply.
		return strings.TrimSpace(bullets.String()), nil
	}
	return text, nil
}

// StreamSynthesize is the streaming counterpart of Synthesize: it forwards
// the model's tokens to h as they arrive. The chat pipeline does not call it;
// it takes the orchestrator's final message and emits it as one
// message_delta.
func StreamSynthesize(ctx context.Context, provider llm.Provider, originalMessage string, outcomes []TaskOutcome, memories []memory.SearchHit, finalStyle string, h llm.StreamHandler) error {
	var bullets strings.Builder
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(&bullets, "- (%s) failed: %v\n", o.Task.Expert, o.Err)
		case !o.Result.Success:
			fmt.Fprintf(&bullets, "- (%s) could not complete: %s\n", o.Task.Expert, o.Task.Goal)
		default:
			fmt.Fprintf(&bullets, "- (%s) %s\n", o.Task.Expert, o.Result.Content)
		}
	}
	var memSnippets strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&memSnippets, "- %s\n", m.Fact.Text)
	}
	userContent := fmt.Sprintf(
		"User message: %s\n\nExpert results:\n%s\nRelevant memory:\n%s\nDesired style: %s",
		originalMessage, bullets.String(), memSnippets.String(), finalStyle,
	)
	return provider.Stream(ctx, llm.CompleteRequest{
		Messages: []llm.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: userContent},
		},
		Stream: true,
	}, h)
}
