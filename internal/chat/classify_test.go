package chat

import (
	"context"
	"testing"

	"github.com/lingora/lingora/internal/knowledge"
	"github.com/lingora/lingora/internal/session"
)

func TestClassify_OverrideShortCircuits(t *testing.T) {
	t.Parallel()

	sc := &script{}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

	tests := []struct {
		override string
		want     knowledge.Domain
	}{
		{"grammar", knowledge.DomainGrammar},
		{"vocab", knowledge.DomainVocab},
	}

	for _, tt := range tests {
		got := a.classify(context.Background(), "hello, how are you?", tt.override)
		if got.Chitchat {
			t.Errorf("classify(override=%q) Chitchat = true, want false", tt.override)
		}
		if got.Domain != tt.want {
			t.Errorf("classify(override=%q) Domain = %q, want %q", tt.override, got.Domain, tt.want)
		}
	}
	if sc.callCount() != 0 {
		t.Errorf("generate calls = %d, want 0 for recognized overrides", sc.callCount())
	}
}

func TestClassify_UnknownOverrideIgnored(t *testing.T) {
	t.Parallel()

	sc := &script{steps: []scriptStep{textStep("chitchat")}}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

	got := a.classify(context.Background(), "hello!", "pronunciation")
	if !got.Chitchat {
		t.Error("unrecognized override should fall through to classification")
	}
	if sc.callCount() != 1 {
		t.Errorf("generate calls = %d, want 1", sc.callCount())
	}
}

func TestClassify_Labels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		response     string
		wantChitchat bool
	}{
		{"chitchat", "chitchat", true},
		{"chitchat with punctuation", "Chitchat.", true},
		{"learning", "learning", false},
		{"quoted learning", `"learning"`, false},
		{"unrecognized defaults to learning", "maybe chitchat?", false},
		{"empty defaults to learning", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc := &script{steps: []scriptStep{textStep(tt.response)}}
			a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

			got := a.classify(context.Background(), "what is the past tense of go?", "")
			if got.Chitchat != tt.wantChitchat {
				t.Errorf("classify() with response %q: Chitchat = %v, want %v",
					tt.response, got.Chitchat, tt.wantChitchat)
			}
		})
	}
}

func TestClassify_FailureDefaultsToLearning(t *testing.T) {
	t.Parallel()

	sc := &script{steps: []scriptStep{errStep("model unreachable")}}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

	got := a.classify(context.Background(), "What does 'serendipity' mean?", "")
	if got.Chitchat {
		t.Error("classification failure must default to learning, not chitchat")
	}
	// The keyword heuristic still runs on the failure path.
	if got.Domain != knowledge.DomainVocab {
		t.Errorf("Domain = %q, want vocab from heuristic", got.Domain)
	}
}

func TestDomainHeuristic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		question string
		want     knowledge.Domain
	}{
		{"What does 'break the ice' mean?", knowledge.DomainVocab},
		{"Give me a DEFINITION of irony", knowledge.DomainVocab},
		{"Is there a synonym for happy?", knowledge.DomainVocab},
		{"what is the word for a baby dog?", knowledge.DomainVocab},
		{"What's the meaning of 'serendipity'?", knowledge.DomainVocab},
		{"'nghĩa là' gì trong câu này?", knowledge.DomainVocab},
		{"dịch giúp mình câu này", knowledge.DomainVocab},
		{"How do I use the past perfect?", knowledge.DomainGrammar},
		{"When should I use 'a' vs 'an'?", knowledge.DomainGrammar},
		// Whole-word matching: embedded "mean" must not select vocab.
		{"Is 'demeanor' used as a subject here?", knowledge.DomainGrammar},
		{"Can I start a sentence with meanwhile?", knowledge.DomainGrammar},
		{"", knowledge.DomainGrammar},
	}

	for _, tt := range tests {
		if got := domainHeuristic(tt.question); got != tt.want {
			t.Errorf("domainHeuristic(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}

func TestParseLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"chitchat", "chitchat"},
		{"  Learning \n", "learning"},
		{`"chitchat"`, "chitchat"},
		{"LEARNING.", "learning"},
		{"`learning`", "learning"},
	}

	for _, tt := range tests {
		if got := parseLabel(tt.in); got != tt.want {
			t.Errorf("parseLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContextualize_IdentityWithoutHistory(t *testing.T) {
	t.Parallel()

	sc := &script{}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

	question := "  How does 'it' work in this sentence? "
	if got := a.contextualize(context.Background(), question, nil); got != question {
		t.Errorf("contextualize() = %q, want input unchanged", got)
	}
	if sc.callCount() != 0 {
		t.Errorf("generate calls = %d, want 0 without history", sc.callCount())
	}
}

func TestContextualize_IdentityWithZeroPairs(t *testing.T) {
	t.Parallel()

	sc := &script{}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})
	a.rewritePairs = 0

	turns := []session.Turn{{Role: session.RoleUser, Text: "earlier question"}}
	if got := a.contextualize(context.Background(), "and that one?", turns); got != "and that one?" {
		t.Errorf("contextualize() = %q, want input unchanged", got)
	}
	if sc.callCount() != 0 {
		t.Errorf("generate calls = %d, want 0 with zero rewrite pairs", sc.callCount())
	}
}

func TestContextualize_RewritesWithHistory(t *testing.T) {
	t.Parallel()

	sc := &script{steps: []scriptStep{
		textStep(`"What is the past tense of the verb 'go'?"`),
	}}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

	turns := []session.Turn{
		{Role: session.RoleUser, Text: "Tell me about the verb 'go'."},
		{Role: session.RoleAssistant, Text: "'Go' is an irregular verb."},
	}
	got := a.contextualize(context.Background(), "what about its past tense?", turns)
	if got != "What is the past tense of the verb 'go'?" {
		t.Errorf("contextualize() = %q, want unquoted rewrite", got)
	}
}

func TestContextualize_FallsBackOnFailure(t *testing.T) {
	t.Parallel()

	turns := []session.Turn{{Role: session.RoleUser, Text: "previous"}}

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		sc := &script{steps: []scriptStep{errStep("rewrite failed")}}
		a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})
		if got := a.contextualize(context.Background(), "original", turns); got != "original" {
			t.Errorf("contextualize() = %q, want original on failure", got)
		}
	})

	t.Run("empty rewrite", func(t *testing.T) {
		t.Parallel()
		sc := &script{steps: []scriptStep{textStep(`""`)}}
		a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})
		if got := a.contextualize(context.Background(), "original", turns); got != "original" {
			t.Errorf("contextualize() = %q, want original on empty rewrite", got)
		}
	})
}

func TestTranscript(t *testing.T) {
	t.Parallel()

	turns := []session.Turn{
		{Role: session.RoleUser, Text: "hi"},
		{Role: session.RoleAssistant, Text: "hello"},
		{Role: session.RoleUser, Text: "what is a verb?"},
	}
	want := "User: hi\nAssistant: hello\nUser: what is a verb?"
	if got := transcript(turns); got != want {
		t.Errorf("transcript() = %q, want %q", got, want)
	}
}
