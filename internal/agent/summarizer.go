// internal/agent/summarizer.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

const summarizerPrompt = `You compress the oldest part of an agent's working memory. Summarize the
conversation below in a few sentences. Keep facts the agent will still need:
what was tried, what worked, what failed, URLs, file names and values found.
Reply with the summary text only.`

// NewLLMSummarizer returns a memory.Summarizer backed by the fast model tier.
func NewLLMSummarizer(client schemas.LLMClient) memory.Summarizer {
	return func(ctx context.Context, evicted []memory.Message) (string, error) {
		var b strings.Builder
		for _, m := range evicted {
			b.WriteString(m.String())
			b.WriteByte('\n')
		}
		summary, err := client.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: summarizerPrompt,
			UserPrompt:   b.String(),
			Tier:         schemas.TierFast,
			Options:      schemas.GenerationOptions{Temperature: 0},
		})
		if err != nil {
			return "", fmt.Errorf("summary generation failed: %w", err)
		}
		return strings.TrimSpace(summary), nil
	}
}
