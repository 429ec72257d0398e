package chat

import (
	"context"
	"strings"
	"unicode"

	"github.com/firebase/genkit/go/ai"

	"github.com/lingora/lingora/internal/knowledge"
)

// ClassificationResult tags one turn. Ephemeral, consumed within a request.
type ClassificationResult struct {
	Chitchat bool
	Domain   knowledge.Domain
}

// classifyPrompt is a closed-label instruction. The mixed-utterance
// tie-break (greeting plus substantive question resolves to learning) is
// enforced by the wording, and again by the caller defaulting unrecognized
// output to learning.
const classifyPrompt = `Classify the learner message below into exactly one label.

Labels:
- chitchat: pure social talk with no language question (greetings, thanks, small talk)
- learning: any message containing a question about language, grammar, vocabulary, or usage

If the message mixes a greeting with a substantive question, it is learning.
Respond with exactly one word: chitchat or learning.

Message: %s

Label:`

// vocabWords is the fixed single-word vocabulary-indicating term set for
// the domain heuristic, in English and Vietnamese. Matched against whole
// words, so "mean" does not fire on "demeanor" or "meanwhile".
var vocabWords = map[string]bool{
	// English
	"mean":        true,
	"means":       true,
	"meaning":     true,
	"vocabulary":  true,
	"definition":  true,
	"define":      true,
	"defines":     true,
	"idiom":       true,
	"idioms":      true,
	"synonym":     true,
	"synonyms":    true,
	"antonym":     true,
	"antonyms":    true,
	"translate":   true,
	"translation": true,
	"phrase":      true,
	"phrases":     true,
	// Vietnamese
	"dịch": true,
}

// vocabPhrases are the multi-word terms, matched by case-insensitive
// substring presence.
var vocabPhrases = []string{
	"what is the word",
	"nghĩa là",
	"có nghĩa",
	"từ vựng",
	"định nghĩa",
	"thành ngữ",
	"từ đồng nghĩa",
}

// classify resolves the chitchat/learning decision and the learning domain
// for one turn.
//
// A recognized explicit override short-circuits everything: the turn is
// learning with that domain, and no completion call is made. Otherwise the
// closed-label completion decides chitchat vs learning; any failure or
// unrecognized label defaults to learning, never chitchat. The domain
// sub-label always comes from the deterministic keyword heuristic, which
// runs on the failure path too.
func (a *Agent) classify(ctx context.Context, question, override string) ClassificationResult {
	if d := knowledge.ParseDomain(override); d != knowledge.DomainUnspecified {
		return ClassificationResult{Chitchat: false, Domain: d}
	}

	domain := domainHeuristic(question)

	callCtx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	resp, err := a.generateWithRetry(callCtx,
		ai.WithModelName(a.modelName),
		ai.WithPrompt(classifyPrompt, question),
	)
	if err != nil {
		a.logger.Warn("classification failed, defaulting to learning", "error", err)
		return ClassificationResult{Chitchat: false, Domain: domain}
	}

	switch parseLabel(resp.Text()) {
	case "chitchat":
		return ClassificationResult{Chitchat: true, Domain: knowledge.DomainUnspecified}
	case "learning":
		return ClassificationResult{Chitchat: false, Domain: domain}
	default:
		a.logger.Warn("unrecognized classification label, defaulting to learning",
			"label", truncate(resp.Text(), 50))
		return ClassificationResult{Chitchat: false, Domain: domain}
	}
}

// parseLabel normalizes a one-word classification response.
func parseLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, `."'`+"`")
	return s
}

// domainHeuristic resolves the learning domain from the question text.
// Presence of any vocabulary-indicating term selects vocab; otherwise the
// domain defaults to grammar. Deterministic and independent of any
// completion call.
func domainHeuristic(question string) knowledge.Domain {
	lower := strings.ToLower(question)
	for _, w := range strings.FieldsFunc(lower, notWordRune) {
		if vocabWords[w] {
			return knowledge.DomainVocab
		}
	}
	for _, phrase := range vocabPhrases {
		if strings.Contains(lower, phrase) {
			return knowledge.DomainVocab
		}
	}
	return knowledge.DomainGrammar
}

// notWordRune splits question text into words for the domain heuristic.
func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
