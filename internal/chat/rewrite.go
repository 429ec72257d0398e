package chat

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/lingora/lingora/internal/session"
)

// rewritePrompt instructs the model to produce one standalone question.
// The intent/scope-preservation wording is load-bearing: the rewriter must
// not narrow or broaden the question beyond what the learner asked.
const rewritePrompt = `Rewrite the learner's latest message as a single self-contained question that can be understood without the conversation.

Rules:
- Preserve the original question's intent and scope exactly.
- Do not narrow or broaden the scope unless the learner explicitly did.
- Resolve pronouns and references ("it", "that tense", "the second one") using the conversation.
- Keep the learner's language.
- Return ONLY the rewritten question, nothing else.

Conversation:
%s

Latest message: %s

Standalone question:`

// contextualize rewrites a turn into a standalone query using the last K
// history pairs.
//
// With empty history (or K=0) the input is returned unchanged, byte for
// byte, without any completion call. Any rewriting failure falls back to
// the original text; a turn is never failed because rewriting failed.
func (a *Agent) contextualize(ctx context.Context, question string, turns []session.Turn) string {
	if len(turns) == 0 || a.rewritePairs == 0 {
		return question
	}

	recent := turns
	if keep := 2 * a.rewritePairs; len(recent) > keep {
		recent = recent[len(recent)-keep:]
	}

	callCtx, cancel := context.WithTimeout(ctx, rewriteTimeout)
	defer cancel()

	resp, err := a.generateWithRetry(callCtx,
		ai.WithModelName(a.modelName),
		ai.WithPrompt(rewritePrompt, transcript(recent), question),
	)
	if err != nil {
		a.logger.Warn("query rewrite failed, using original question", "error", err)
		return question
	}

	rewritten := strings.TrimSpace(resp.Text())
	rewritten = strings.Trim(rewritten, `"'`)
	if rewritten == "" {
		return question
	}
	return rewritten
}

// transcript renders turns as a plain conversation block for prompts.
func transcript(turns []session.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == session.RoleAssistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
