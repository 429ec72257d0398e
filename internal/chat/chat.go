// Package chat implements the conversational retrieval orchestrator.
//
// Each turn flows through: intent classification (chitchat vs learning,
// with a grammar/vocab sub-label) → query contextualization against recent
// history → a bounded tool-calling loop over the curated collections and
// web search → persona-constrained composition. Session memory is read and
// written around the turn under a per-session lock.
//
// Every external call degrades locally: classification failures default to
// the learning path, rewrite failures fall back to the original question,
// retrieval failures yield a sentinel passage, and only a final composition
// failure surfaces the fixed apology string to the user.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/lingora/lingora/internal/knowledge"
	"github.com/lingora/lingora/internal/session"
	"github.com/lingora/lingora/internal/tools"
)

// ApologyMessage is the fixed user-visible answer when the decision loop
// or final composition fails outright.
const ApologyMessage = "Sorry, the system hit a snag while thinking this one through. Could you try asking again?"

// CallerHistoryCap is the maximum number of caller-supplied history
// entries used when a request carries its own history.
const CallerHistoryCap = 6

// Per-call timeout bounds. A timed-out classify/rewrite call follows the
// same fallback as a failed one; a timed-out decision yields the apology.
const (
	classifyTimeout = 10 * time.Second
	rewriteTimeout  = 10 * time.Second
	decideTimeout   = 60 * time.Second
	composeTimeout  = 30 * time.Second
)

// Sentinel errors for orchestrator operations.
var (
	// ErrEmptyQuestion indicates the request carried no question text.
	ErrEmptyQuestion = errors.New("empty question")
)

// generateFunc abstracts the completion call so the orchestration can be
// driven by scripted responses in tests.
type generateFunc func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)

// HistoryMessage is one caller-supplied history entry.
type HistoryMessage struct {
	Sender  string // "user" or "assistant"
	Content string
}

// Request is one answer request.
type Request struct {
	Question       string
	DomainOverride string // "grammar", "vocab", or empty
	SessionID      string

	// History, when provided, replaces server-side memory verbatim (capped
	// to the most recent CallerHistoryCap entries) and the session store is
	// neither read nor written for this call. HistoryProvided distinguishes
	// an explicit empty history from an absent one.
	History         []HistoryMessage
	HistoryProvided bool
}

// Result is the outcome of one answered turn.
type Result struct {
	Answer         string
	Chitchat       bool
	Domain         knowledge.Domain
	RewrittenQuery string // empty for chitchat turns
	Trace          []ToolCall
}

// Config contains all required parameters for the orchestrator.
type Config struct {
	Genkit   *genkit.Genkit
	Sessions *session.Store
	Logger   *slog.Logger

	// Retrieval sources, keyed to the registered tool names by the loop.
	Grammar knowledge.Source
	Vocab   knowledge.Source
	Web     knowledge.Source

	// ToolRefs are the pre-registered retrieval tools advertised to the
	// decision step.
	ToolRefs []ai.ToolRef

	ModelName   string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Temperature float32

	MaxToolCalls   int  // decision loop tool budget (default 5)
	RewritePairs   int  // history pairs shown to the rewriter (default 2)
	CuratedTopK    int  // per curated retrieval during tool use (default 4)
	SingleShotTopK int  // retrieval depth in single-shot mode (default 10)
	SingleShot     bool // skip the loop: one routed retrieval, then compose

	RetryConfig RetryConfig   // zero value uses defaults
	RateLimiter *rate.Limiter // nil uses default limiter
}

// validate checks required parameters.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Grammar == nil || cfg.Vocab == nil || cfg.Web == nil {
		return errors.New("grammar, vocab, and web sources are required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Agent orchestrates one conversational turn at a time. It is stateless
// apart from the injected session store and safe for concurrent use.
type Agent struct {
	generate generateFunc

	sessions *session.Store
	sources  map[string]knowledge.Source
	toolRefs []ai.ToolRef
	logger   *slog.Logger

	modelName   string
	temperature float32

	maxToolCalls   int
	rewritePairs   int
	curatedTopK    int
	singleShotTopK int
	singleShot     bool

	retryConfig RetryConfig
	limiter     *rate.Limiter
}

// New creates an orchestrator Agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxToolCalls := cfg.MaxToolCalls
	if maxToolCalls <= 0 {
		maxToolCalls = 5
	}
	rewritePairs := cfg.RewritePairs
	if rewritePairs < 0 {
		rewritePairs = 2
	}
	curatedTopK := cfg.CuratedTopK
	if curatedTopK <= 0 {
		curatedTopK = 4
	}
	singleShotTopK := cfg.SingleShotTopK
	if singleShotTopK <= 0 {
		singleShotTopK = 10
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	g := cfg.Genkit
	a := &Agent{
		generate: func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
			return genkit.Generate(ctx, g, opts...)
		},
		sessions: cfg.Sessions,
		sources: map[string]knowledge.Source{
			tools.LookupGrammarName: cfg.Grammar,
			tools.LookupVocabName:   cfg.Vocab,
			tools.SearchWebName:     cfg.Web,
		},
		toolRefs:       cfg.ToolRefs,
		logger:         cfg.Logger,
		modelName:      cfg.ModelName,
		temperature:    cfg.Temperature,
		maxToolCalls:   maxToolCalls,
		rewritePairs:   rewritePairs,
		curatedTopK:    curatedTopK,
		singleShotTopK: singleShotTopK,
		singleShot:     cfg.SingleShot,
		retryConfig:    retryConfig,
		limiter:        limiter,
	}

	a.logger.Info("chat agent initialized",
		"model", a.modelName,
		"max_tool_calls", a.maxToolCalls,
		"single_shot", a.singleShot,
	)
	return a, nil
}

// Answer handles one turn end to end. It only returns an error for invalid
// input or context cancellation; every external failure degrades to a
// best-effort answer or the fixed apology string.
func (a *Agent) Answer(ctx context.Context, req Request) (*Result, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	// Resolve history. Caller-supplied history bypasses server memory
	// entirely; otherwise the whole read/answer/append sequence runs under
	// the per-session lock so concurrent turns cannot interleave.
	var turns []session.Turn
	useMemory := !req.HistoryProvided
	if useMemory {
		release := a.sessions.Acquire(req.SessionID)
		defer release()
		turns = a.sessions.History(req.SessionID)
	} else {
		turns = callerTurns(req.History)
	}

	cls := a.classify(ctx, question, req.DomainOverride)

	// completed is false when the turn degraded to the apology; failed
	// turns are returned to the caller but never written to memory.
	completed := true

	result := &Result{Chitchat: cls.Chitchat, Domain: cls.Domain}
	if cls.Chitchat {
		result.Answer, completed = a.chitchatAnswer(ctx, question, turns)
	} else {
		query := a.contextualize(ctx, question, turns)
		result.RewrittenQuery = query

		if a.singleShot {
			result.Answer, completed = a.singleShotAnswer(ctx, query, cls.Domain, turns)
		} else {
			answer, trace, err := a.runLoop(ctx, query, cls.Domain, turns)
			result.Trace = trace
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				a.logger.Error("decision loop failed", "session_id", req.SessionID, "error", err)
				answer = ApologyMessage
				completed = false
			}
			result.Answer = answer
		}
	}

	if useMemory && completed {
		a.sessions.Append(req.SessionID, question, result.Answer)
	}
	return result, nil
}

// chitchatAnswer composes a conversational reply from history and persona
// alone. Composition failure yields the apology.
func (a *Agent) chitchatAnswer(ctx context.Context, question string, turns []session.Turn) (string, bool) {
	answer, err := a.composeChitchat(ctx, question, turns)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("chitchat composition failed", "error", err)
		}
		return ApologyMessage, false
	}
	return answer, true
}

// singleShotAnswer is the non-agentic path: one routed retrieval at full
// depth, then a single grounded composition.
func (a *Agent) singleShotAnswer(ctx context.Context, query string, domain knowledge.Domain, turns []session.Turn) (string, bool) {
	src := a.sources[tools.ToolForDomain(domain)]
	passages, err := src.Retrieve(ctx, query, a.singleShotTopK)
	if err != nil {
		// Retrieval only errors on context cancellation; degrade to the
		// sentinel so composition can still run on model knowledge.
		passages = []knowledge.Passage{knowledge.SentinelPassage(knowledge.Route(domain))}
	}

	answer, err := a.composeGrounded(ctx, query, turns, passages, false)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("single-shot composition failed", "error", err)
		}
		return ApologyMessage, false
	}
	return answer, true
}

// callerTurns converts caller-supplied history into turns, keeping only
// the most recent CallerHistoryCap entries.
func callerTurns(history []HistoryMessage) []session.Turn {
	if len(history) > CallerHistoryCap {
		history = history[len(history)-CallerHistoryCap:]
	}
	turns := make([]session.Turn, 0, len(history))
	for _, m := range history {
		role := session.RoleUser
		if m.Sender == session.RoleAssistant || m.Sender == "ai" || m.Sender == "bot" {
			role = session.RoleAssistant
		}
		turns = append(turns, session.Turn{Role: role, Text: m.Content})
	}
	return turns
}

// historyMessages converts stored turns into model messages.
func historyMessages(turns []session.Turn) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(turns))
	for _, t := range turns {
		if t.Role == session.RoleAssistant {
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(t.Text)))
		} else {
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(t.Text)))
		}
	}
	return msgs
}

// truncate shortens s to at most n bytes for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
