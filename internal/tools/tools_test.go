package tools

import (
	"testing"

	"github.com/lingora/lingora/internal/knowledge"
)

func TestToolForDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		domain knowledge.Domain
		want   string
	}{
		{knowledge.DomainVocab, LookupVocabName},
		{knowledge.DomainGrammar, LookupGrammarName},
		{knowledge.DomainUnspecified, LookupGrammarName},
	}

	for _, tt := range tests {
		if got := ToolForDomain(tt.domain); got != tt.want {
			t.Errorf("ToolForDomain(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}

func TestRenderPassages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		passages []knowledge.Passage
		want     string
	}{
		{
			name: "joins with blank lines",
			passages: []knowledge.Passage{
				{SourceID: "a", Text: "first"},
				{SourceID: "b", Text: "second"},
			},
			want: "first\n\nsecond",
		},
		{
			name:     "skips empty texts",
			passages: []knowledge.Passage{{Text: ""}, {Text: "kept"}},
			want:     "kept",
		},
		{
			name:     "nil yields sentinel",
			passages: nil,
			want:     knowledge.NoInformationFound,
		},
		{
			name:     "all-empty yields sentinel",
			passages: []knowledge.Passage{{Text: ""}},
			want:     knowledge.NoInformationFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := RenderPassages(tt.passages); got != tt.want {
				t.Errorf("RenderPassages() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()

	if _, err := Register(Config{}); err == nil {
		t.Error("Register() with nil genkit expected error")
	}
}

func TestNames(t *testing.T) {
	t.Parallel()

	names := Names()
	if len(names) != 3 {
		t.Fatalf("Names() len = %d, want 3", len(names))
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{LookupGrammarName, LookupVocabName, SearchWebName} {
		if !seen[want] {
			t.Errorf("Names() missing %q", want)
		}
	}
}
