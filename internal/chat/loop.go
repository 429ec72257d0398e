package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/lingora/lingora/internal/knowledge"
	"github.com/lingora/lingora/internal/session"
	"github.com/lingora/lingora/internal/tools"
)

// ToolCall is one executed retrieval within a turn. The ordered trace is
// bounded by the tool budget and never persisted across requests.
type ToolCall struct {
	Tool     string
	Query    string
	Passages []knowledge.Passage
}

// decisionPrompt builds the system instruction for the decision step. The
// preferred tool comes from the domain router; web search is described as
// the fallback, never the first choice.
func decisionPrompt(domain knowledge.Domain) string {
	return personaPrompt + fmt.Sprintf(`

You can call three retrieval tools before answering:
- %s for grammar, tenses, and sentence structure
- %s for vocabulary, definitions, idioms, and phrases
- %s ONLY for things the reference material would not cover (general knowledge, recent slang)

For this question, start with %s.
Call at most one tool at a time. When you have enough material, answer the learner directly instead of calling more tools.`,
		tools.LookupGrammarName, tools.LookupVocabName, tools.SearchWebName,
		tools.ToolForDomain(domain))
}

// correctiveMessage is the single in-turn re-ask used when a decision
// output is neither a usable answer nor a valid tool invocation.
const correctiveMessage = `Your last reply was neither an answer nor a valid tool call. ` +
	`Either call exactly one of the available tools with a "query" argument, or answer the learner's question directly.`

// runLoop is the bounded decide/act cycle for learning turns.
//
// Each decision step must either produce final answer text or request one
// valid tool invocation. Valid invocations are executed by the loop itself
// (tool auto-execution is disabled), appended to the trace, and fed back.
// An unparseable decision gets exactly one corrective re-ask within the
// turn. Exhausting the tool budget, or a second unparseable decision,
// forces a best-effort composition from whatever the trace holds.
//
// Termination: every iteration returns, consumes the single corrective, or
// consumes tool budget, so a decision step that always requests a tool is
// asked at most maxToolCalls+1 times.
func (a *Agent) runLoop(ctx context.Context, query string, domain knowledge.Domain, turns []session.Turn) (string, []ToolCall, error) {
	system := decisionPrompt(domain)
	msgs := historyMessages(turns)
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(query)))

	var trace []ToolCall
	correctiveUsed := false
	decisions := 0

	for {
		decisions++
		resp, err := a.decide(ctx, system, msgs)
		if err != nil {
			return "", trace, fmt.Errorf("decision step %d: %w", decisions, err)
		}

		reqs := resp.ToolRequests()
		if len(reqs) == 0 {
			answer := payloadFromMessage(resp.Message).Normalize()
			if strings.TrimSpace(answer) != "" {
				a.logger.Debug("loop finished with answer",
					"decisions", decisions, "tool_calls", len(trace))
				return answer, trace, nil
			}
			// Neither answer nor tool request.
			if !correctiveUsed {
				correctiveUsed = true
				msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(correctiveMessage)))
				continue
			}
			a.logger.Warn("decision output unparseable after corrective re-ask",
				"decisions", decisions)
			break
		}

		req := reqs[0]
		if len(reqs) > 1 {
			a.logger.Warn("decision requested multiple tools, using the first",
				"count", len(reqs), "tool", req.Name)
		}

		src, known := a.sources[req.Name]
		toolQuery := toolQueryArg(req.Input)
		if !known || toolQuery == "" {
			a.logger.Warn("invalid tool invocation",
				"tool", req.Name, "query", truncate(toolQuery, 100))
			if !correctiveUsed {
				correctiveUsed = true
				msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(correctiveMessage)))
				continue
			}
			break
		}

		if len(trace) >= a.maxToolCalls {
			a.logger.Warn("tool budget exhausted, forcing termination",
				"max_tool_calls", a.maxToolCalls)
			break
		}

		passages, err := src.Retrieve(ctx, toolQuery, a.curatedTopK)
		if err != nil {
			return "", trace, fmt.Errorf("retrieving via %s: %w", req.Name, err)
		}

		trace = append(trace, ToolCall{Tool: req.Name, Query: toolQuery, Passages: passages})
		msgs = append(msgs, resp.Message, toolResponseMessage(req, passages))
	}

	// Forced termination: compose best-effort from the accumulated trace.
	answer, err := a.composeGrounded(ctx, query, turns, tracePassages(trace, domain), true)
	if err != nil {
		return "", trace, fmt.Errorf("best-effort composition: %w", err)
	}
	return answer, trace, nil
}

// decide runs one decision step with tool auto-execution disabled, so the
// loop validates and executes every invocation itself.
func (a *Agent) decide(ctx context.Context, system string, msgs []*ai.Message) (*ai.ModelResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, decideTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(system),
		ai.WithMessages(msgs...),
		ai.WithReturnToolRequests(true),
	}
	if len(a.toolRefs) > 0 {
		opts = append(opts, ai.WithTools(a.toolRefs...))
	}
	return a.generateWithRetry(callCtx, opts...)
}

// toolQueryArg extracts the "query" argument from a tool request input.
func toolQueryArg(input any) string {
	m, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	q, _ := m["query"].(string)
	return strings.TrimSpace(q)
}

// toolResponseMessage feeds executed retrieval results back to the model.
func toolResponseMessage(req *ai.ToolRequest, passages []knowledge.Passage) *ai.Message {
	part := ai.NewToolResponsePart(&ai.ToolResponse{
		Name:   req.Name,
		Ref:    req.Ref,
		Output: tools.RenderPassages(passages),
	})
	return &ai.Message{Role: ai.RoleTool, Content: []*ai.Part{part}}
}

// tracePassages flattens the trace for best-effort composition. An empty
// trace yields the routed collection's sentinel so the composer still has
// a reference block to work from.
func tracePassages(trace []ToolCall, domain knowledge.Domain) []knowledge.Passage {
	var passages []knowledge.Passage
	for _, call := range trace {
		passages = append(passages, call.Passages...)
	}
	if len(passages) == 0 {
		passages = []knowledge.Passage{knowledge.SentinelPassage(knowledge.Route(domain))}
	}
	return passages
}
