package chat

import (
	"context"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
)

// Title generation constants.
const (
	titleGenerationTimeout = 5 * time.Second
	titleInputMaxRunes     = 500

	// titleFallbackRunes is the truncation length of the deterministic
	// fallback title.
	titleFallbackRunes = 50
)

const titlePrompt = `Generate a short title for a chat session based on the learner's first message.

Rules:
- Under 6 words.
- Capitalized like a headline.
- No surrounding quotes, no trailing punctuation.
- Drop filler phrases ("can you tell me", "I want to know").

Message: %s

Title:`

// GenerateTitle produces a short session title from the first question.
// On any failure it falls back to FallbackTitle; it never returns empty.
func (a *Agent) GenerateTitle(ctx context.Context, question string) string {
	callCtx, cancel := context.WithTimeout(ctx, titleGenerationTimeout)
	defer cancel()

	input := question
	if runes := []rune(input); len(runes) > titleInputMaxRunes {
		input = string(runes[:titleInputMaxRunes])
	}

	resp, err := a.generateWithRetry(callCtx,
		ai.WithModelName(a.modelName),
		ai.WithPrompt(titlePrompt, input),
	)
	if err != nil {
		a.logger.Debug("title generation failed, using fallback", "error", err)
		return FallbackTitle(question)
	}

	title := strings.TrimSpace(resp.Text())
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if title == "" {
		return FallbackTitle(question)
	}
	return title
}

// FallbackTitle is the deterministic title fallback: the first 50 runes of
// the question followed by an ellipsis marker. Exact by contract so it can
// be tested independently of any completion call.
func FallbackTitle(question string) string {
	runes := []rune(question)
	if len(runes) > titleFallbackRunes {
		runes = runes[:titleFallbackRunes]
	}
	return string(runes) + "..."
}
