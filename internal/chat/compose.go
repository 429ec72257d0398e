package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/lingora/lingora/internal/knowledge"
	"github.com/lingora/lingora/internal/session"
)

// personaPrompt carries the style constraints for every user-facing
// answer. The constraints are enforced through the instruction, not by
// post-processing the output.
const personaPrompt = `You are Lingora, a warm and knowledgeable English tutor.

Answer rules (important):
- Answer in the learner's own language.
- NEVER apologize for missing information. If the reference material does not cover something, answer fluently from your own expert knowledge instead.
- NEVER mention tools, searches, books, collections, or any internal source by name.
- NEVER cite page numbers, chapters, or document locations.
- When reference material is available, explain it thoroughly with examples.`

// chitchatPrompt extends the persona for turns that need no grounding.
const chitchatPrompt = personaPrompt + `

The learner is making small talk. Reply warmly and briefly, and invite
them to ask about English when it feels natural. Do not lecture.`

// bestEffortNote is appended to the grounded instruction when the loop was
// forced to terminate before the model chose to answer.
const bestEffortNote = `

Answer NOW with the material gathered so far. Do not request anything further; fill any gaps from your own knowledge.`

// errNoOutput signals a completion that produced no usable text. Callers
// substitute the apology and treat the turn as failed, so it is never
// written to session memory.
var errNoOutput = errors.New("model produced no output")

// composeChitchat produces a conversational reply from history and persona
// alone.
func (a *Agent) composeChitchat(ctx context.Context, question string, turns []session.Turn) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()

	msgs := historyMessages(turns)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(question)))

	resp, err := a.generateWithRetry(callCtx,
		ai.WithModelName(a.modelName),
		ai.WithSystem(chitchatPrompt),
		ai.WithMessages(msgs...),
	)
	if err != nil {
		return "", err
	}

	answer := payloadFromMessage(resp.Message).Normalize()
	if strings.TrimSpace(answer) == "" {
		return "", errNoOutput
	}
	return answer, nil
}

// composeGrounded produces the final answer from retrieved passages in a
// single completion. Used by single-shot mode and by the loop's forced
// best-effort termination.
func (a *Agent) composeGrounded(ctx context.Context, query string, turns []session.Turn, passages []knowledge.Passage, bestEffort bool) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()

	system := personaPrompt
	if bestEffort {
		system += bestEffortNote
	}

	var b strings.Builder
	b.WriteString("Reference material:\n")
	for _, p := range passages {
		b.WriteString(p.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)

	msgs := historyMessages(turns)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(b.String())))

	resp, err := a.generateWithRetry(callCtx,
		ai.WithModelName(a.modelName),
		ai.WithSystem(system),
		ai.WithMessages(msgs...),
	)
	if err != nil {
		return "", err
	}

	answer := payloadFromMessage(resp.Message).Normalize()
	if strings.TrimSpace(answer) == "" {
		return "", errNoOutput
	}
	return answer, nil
}
