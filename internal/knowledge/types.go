// Package knowledge provides the retrieval side of the orchestrator: the
// curated passage collections backed by PostgreSQL + pgvector, the web
// search fallback, and the deterministic domain-to-collection router.
package knowledge

import "context"

// Domain is the learning domain assigned to a turn.
type Domain string

// Recognized learning domains.
const (
	DomainGrammar     Domain = "grammar"
	DomainVocab       Domain = "vocab"
	DomainUnspecified Domain = "unspecified"
)

// ParseDomain maps a caller-supplied override string to a Domain.
// Unrecognized values (including empty) map to DomainUnspecified.
func ParseDomain(s string) Domain {
	switch s {
	case string(DomainGrammar):
		return DomainGrammar
	case string(DomainVocab):
		return DomainVocab
	default:
		return DomainUnspecified
	}
}

// Collection names for the curated knowledge sources.
const (
	CollectionGrammar = "grammar_collection"
	CollectionVocab   = "vocab_collection"
)

// WebSourceID identifies passages produced by web search.
const WebSourceID = "web"

// Passage is one retrieved reference snippet. Ordering within a retrieval
// result is relevance-ranked by the upstream source and preserved as
// returned.
type Passage struct {
	SourceID string
	Text     string
}

// Source is a single retrieval capability. Retrieve must not fail on
// "no results": implementations return the sentinel passage instead so
// composition can proceed on the model's own knowledge.
type Source interface {
	Retrieve(ctx context.Context, query string, k int) ([]Passage, error)
}

// NoInformationFound is the sentinel text returned when a source has
// nothing useful. It instructs the answering model to fall back to its
// own expertise without apologizing.
const NoInformationFound = "The reference material does not cover this in detail. " +
	"Use your own expert knowledge to give the learner a full explanation."

// SentinelPassage builds the "no information found" passage for a source.
func SentinelPassage(sourceID string) Passage {
	return Passage{SourceID: sourceID, Text: NoInformationFound}
}

// Route maps a learning domain to its curated collection. The web source
// is deliberately not a routing destination; it is offered to the tool
// loop as an always-available fallback instead.
func Route(d Domain) string {
	if d == DomainVocab {
		return CollectionVocab
	}
	return CollectionGrammar
}
