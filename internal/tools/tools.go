// Package tools registers the retrieval tools the decision loop may invoke.
//
// Three tools are advertised to the model: the two curated collection
// lookups and a general web search fallback. Tool names are the single
// source of truth here; the loop validates model-requested names against
// them before executing any retrieval.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/lingora/lingora/internal/knowledge"
)

// Tool names registered with Genkit.
const (
	// LookupGrammarName searches the curated grammar collection.
	LookupGrammarName = "lookup_grammar_book"

	// LookupVocabName searches the curated vocabulary collection.
	LookupVocabName = "lookup_vocab_book"

	// SearchWebName searches the open web as a fallback.
	SearchWebName = "search_web"
)

// Names returns all registered tool names.
func Names() []string {
	return []string{LookupGrammarName, LookupVocabName, SearchWebName}
}

// SearchInput is the argument schema shared by all retrieval tools.
type SearchInput struct {
	Query string `json:"query" jsonschema_description:"A standalone search query in the learner's language"`
}

// Registry holds the registered tools and their backing sources.
type Registry struct {
	refs    []ai.ToolRef
	sources map[string]knowledge.Source
}

// Config contains the dependencies for tool registration.
type Config struct {
	Genkit  *genkit.Genkit
	Grammar knowledge.Source
	Vocab   knowledge.Source
	Web     knowledge.Source
	TopK    int // passed to curated sources on direct tool execution
	Logger  *slog.Logger
}

// Register defines the retrieval tools with Genkit and returns a Registry
// the loop uses to dispatch validated tool requests.
func Register(cfg Config) (*Registry, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.Grammar == nil || cfg.Vocab == nil || cfg.Web == nil {
		return nil, fmt.Errorf("grammar, vocab, and web sources are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		sources: map[string]knowledge.Source{
			LookupGrammarName: cfg.Grammar,
			LookupVocabName:   cfg.Vocab,
			SearchWebName:     cfg.Web,
		},
	}

	defs := []struct {
		name        string
		description string
	}{
		{
			LookupGrammarName,
			"Look up English grammar knowledge: sentence structure, tenses, and " +
				"grammar rules from the curated reference material.",
		},
		{
			LookupVocabName,
			"Look up vocabulary, word definitions, idioms, and phrases from the " +
				"curated reference material.",
		},
		{
			SearchWebName,
			"Search the web for information not covered by the reference material: " +
				"general knowledge, cultural context, or recent slang.",
		},
	}

	for _, d := range defs {
		name := d.name
		tool := genkit.DefineTool(cfg.Genkit, name, d.description,
			func(ctx *ai.ToolContext, input SearchInput) (string, error) {
				return r.execute(ctx, name, input, cfg.TopK, logger)
			})
		r.refs = append(r.refs, tool)
	}

	return r, nil
}

// execute runs a retrieval and renders the passages for the model.
func (r *Registry) execute(ctx context.Context, name string, input SearchInput, topK int, logger *slog.Logger) (string, error) {
	src, ok := r.sources[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	logger.Debug("tool invoked", "tool", name, "query", input.Query)

	passages, err := src.Retrieve(ctx, input.Query, topK)
	if err != nil {
		return "", fmt.Errorf("retrieving for %s: %w", name, err)
	}
	return RenderPassages(passages), nil
}

// Refs returns the tool references for ai.WithTools.
func (r *Registry) Refs() []ai.ToolRef {
	return r.refs
}

// Source returns the knowledge source behind a tool name.
func (r *Registry) Source(name string) (knowledge.Source, bool) {
	src, ok := r.sources[name]
	return src, ok
}

// ToolForDomain maps a learning domain to its preferred curated lookup
// tool, mirroring the collection router.
func ToolForDomain(d knowledge.Domain) string {
	if d == knowledge.DomainVocab {
		return LookupVocabName
	}
	return LookupGrammarName
}

// RenderPassages joins passage texts into the block handed back to the
// model as a tool result.
func RenderPassages(passages []knowledge.Passage) string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		if p.Text == "" {
			continue
		}
		texts = append(texts, p.Text)
	}
	if len(texts) == 0 {
		return knowledge.NoInformationFound
	}
	return strings.Join(texts, "\n\n")
}
