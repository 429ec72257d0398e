package chat

import (
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// PayloadKind tags the shape of a final answer payload.
type PayloadKind int

// Recognized payload shapes.
const (
	// PlainText is a single string answer.
	PlainText PayloadKind = iota

	// FragmentList is a sequence of fragments: strings and/or records
	// carrying a "text" field.
	FragmentList

	// Unknown is any other structure; normalization falls back to a
	// string conversion of the whole payload.
	Unknown
)

// AnswerPayload is the tagged variant for a final answer before
// normalization. The decision step's output shape is not trusted;
// Normalize guarantees the composer always receives plain text.
type AnswerPayload struct {
	Kind      PayloadKind
	Text      string // PlainText
	Fragments []any  // FragmentList
	Raw       any    // Unknown
}

// PayloadFrom classifies an arbitrary payload value.
func PayloadFrom(v any) AnswerPayload {
	switch p := v.(type) {
	case string:
		return AnswerPayload{Kind: PlainText, Text: p}
	case []any:
		return AnswerPayload{Kind: FragmentList, Fragments: p}
	default:
		return AnswerPayload{Kind: Unknown, Raw: v}
	}
}

// Normalize renders the payload as plain text: strings pass through,
// fragment lists concatenate string fragments and the "text" field of
// record fragments (other fragment shapes are dropped), and a wholly
// unrecognized payload is string-converted.
func (p AnswerPayload) Normalize() string {
	switch p.Kind {
	case PlainText:
		return p.Text
	case FragmentList:
		var b strings.Builder
		for _, frag := range p.Fragments {
			switch f := frag.(type) {
			case string:
				b.WriteString(f)
			case map[string]any:
				if text, ok := f["text"].(string); ok {
					b.WriteString(text)
				}
			}
		}
		return b.String()
	default:
		if p.Raw == nil {
			return ""
		}
		return fmt.Sprintf("%v", p.Raw)
	}
}

// payloadFromMessage builds the answer payload from a final model message.
// One text part maps to PlainText, several parts to FragmentList, and a
// message with no text content to Unknown.
func payloadFromMessage(msg *ai.Message) AnswerPayload {
	if msg == nil {
		return PayloadFrom(nil)
	}
	var texts []any
	for _, part := range msg.Content {
		if part.IsText() && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	switch len(texts) {
	case 0:
		return PayloadFrom(nil)
	case 1:
		return PayloadFrom(texts[0])
	default:
		return PayloadFrom(texts)
	}
}
