package vertex

import (
	"encoding/json"
	"testing"
)

func TestParseCandidate_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		text string
	}{
		{"plain string", `"raw"`, "raw"},
		{"empty string is still a match", `""`, ""},
		{"content.parts", `{"content":{"parts":[{"text":"hi"}]}}`, "hi"},
		{"content string", `{"content":"inline"}`, "inline"},
		{"top-level text", `{"text":"flat"}`, "flat"},
		{"top-level parts", `{"parts":[{"text":"partial"}]}`, "partial"},
		{"empty object", `{}`, ""},
		{"nested list", `[[{"text":"deep"}]]`, ""},
		{"null content falls through to text", `{"content":null,"text":"flat"}`, "flat"},
		{"empty parts falls through", `{"content":{"parts":[]},"text":"flat"}`, "flat"},
		{"unrelated fields", `{"foo":1,"bar":{"baz":true}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ParseCandidate(json.RawMessage(tt.raw))
			if got := c.Text(); got != tt.text {
				t.Errorf("Text() = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestParseCandidate_Precedence(t *testing.T) {
	// When several layouts are present at once the nested content.parts form
	// wins, then content-as-string, then text, then parts.
	raw := json.RawMessage(`{
		"content": {"parts": [{"text": "nested"}]},
		"text": "flat",
		"parts": [{"text": "partial"}]
	}`)
	if got := ParseCandidate(raw).Text(); got != "nested" {
		t.Errorf("Text() = %q, want %q", got, "nested")
	}

	raw = json.RawMessage(`{"content":"inline","text":"flat"}`)
	if got := ParseCandidate(raw).Text(); got != "inline" {
		t.Errorf("Text() = %q, want %q", got, "inline")
	}

	raw = json.RawMessage(`{"text":"flat","parts":[{"text":"partial"}]}`)
	if got := ParseCandidate(raw).Text(); got != "flat" {
		t.Errorf("Text() = %q, want %q", got, "flat")
	}
}

func TestParseCandidate_FinishReason(t *testing.T) {
	raw := json.RawMessage(`{"finishReason":"MAX_TOKENS","content":{"parts":[{"text":"cut"}]}}`)
	c := ParseCandidate(raw)
	if c.FinishReason != "MAX_TOKENS" {
		t.Errorf("FinishReason = %q, want MAX_TOKENS", c.FinishReason)
	}
	if c.Text() != "cut" {
		t.Errorf("Text() = %q, want %q", c.Text(), "cut")
	}

	// A bare string candidate carries no finish reason.
	if c := ParseCandidate(json.RawMessage(`"raw"`)); c.FinishReason != "" {
		t.Errorf("FinishReason = %q, want empty", c.FinishReason)
	}
}

func TestParseCandidate_NeverPanics(t *testing.T) {
	inputs := []string{
		`null`, `42`, `true`, `[]`, `[1,2]`,
		`{"content":42}`, `{"content":{"parts":"nope"}}`,
		`{"parts":[{"text":42}]}`,
	}
	for _, in := range inputs {
		c := ParseCandidate(json.RawMessage(in))
		if c.Text() != "" {
			t.Errorf("ParseCandidate(%s).Text() = %q, want empty", in, c.Text())
		}
	}
}
