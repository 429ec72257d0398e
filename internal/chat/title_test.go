package chat

import (
	"context"
	"strings"
	"testing"
)

func TestFallbackTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"short question keeps everything", "What is a verb?", "What is a verb?..."},
		{"empty question", "", "..."},
		{
			"long question truncates to fifty runes",
			strings.Repeat("a", 80),
			strings.Repeat("a", 50) + "...",
		},
		{
			"exactly fifty runes untruncated",
			strings.Repeat("b", 50),
			strings.Repeat("b", 50) + "...",
		},
		{
			"counts runes not bytes",
			strings.Repeat("ữ", 60),
			strings.Repeat("ữ", 50) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FallbackTitle(tt.question); got != tt.want {
				t.Errorf("FallbackTitle(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestGenerateTitle(t *testing.T) {
	t.Parallel()

	t.Run("uses model output", func(t *testing.T) {
		t.Parallel()
		sc := &script{steps: []scriptStep{textStep(`  "Present Perfect Basics"  `)}}
		a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

		got := a.GenerateTitle(context.Background(), "How do I use the present perfect?")
		if got != "Present Perfect Basics" {
			t.Errorf("GenerateTitle() = %q, want trimmed model title", got)
		}
	})

	t.Run("falls back on error", func(t *testing.T) {
		t.Parallel()
		sc := &script{steps: []scriptStep{errStep("model unreachable")}}
		a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

		question := "How do I use the present perfect?"
		if got := a.GenerateTitle(context.Background(), question); got != FallbackTitle(question) {
			t.Errorf("GenerateTitle() = %q, want fallback", got)
		}
	})

	t.Run("falls back on empty output", func(t *testing.T) {
		t.Parallel()
		sc := &script{steps: []scriptStep{textStep(`""`)}}
		a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})

		question := "short one"
		if got := a.GenerateTitle(context.Background(), question); got != FallbackTitle(question) {
			t.Errorf("GenerateTitle() = %q, want fallback", got)
		}
	})
}
