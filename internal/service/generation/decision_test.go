package generation

import (
	"errors"
	"testing"
)

func TestParseDecision_EditShape(t *testing.T) {
	raw := `{"edits": [{"description": "color", "old_string": "#FF0000", "new_string": "#0000FF"}], "summary": "swap color"}`

	decision, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if decision.Kind != DecisionEdit {
		t.Errorf("expected kind %q, got %q", DecisionEdit, decision.Kind)
	}
	if len(decision.Edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(decision.Edits))
	}
	if decision.Edits[0].OldString != "#FF0000" {
		t.Errorf("unexpected old string: %q", decision.Edits[0].OldString)
	}
	if decision.Summary != "swap color" {
		t.Errorf("unexpected summary: %q", decision.Summary)
	}
}

func TestParseDecision_FullShape(t *testing.T) {
	raw := `{"code": "export const A = 1;", "summary": "rewrite"}`

	decision, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}

	if decision.Kind != DecisionFull {
		t.Errorf("expected kind %q, got %q", DecisionFull, decision.Kind)
	}
	if decision.Code != "export const A = 1;" {
		t.Errorf("unexpected code: %q", decision.Code)
	}
}

func TestParseDecision_Inconsistent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "both populated",
			raw:  `{"edits": [{"description": "d", "old_string": "a", "new_string": "b"}], "code": "x", "summary": ""}`,
		},
		{
			name: "neither populated",
			raw:  `{"edits": [], "code": "", "summary": "nothing"}`,
		},
		{
			name: "empty old string",
			raw:  `{"edits": [{"description": "d", "old_string": "", "new_string": "b"}]}`,
		},
		{
			name: "no JSON at all",
			raw:  `I could not produce a decision.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecision(tt.raw)
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}

func TestParseDecision_IgnoresSurroundingProse(t *testing.T) {
	raw := "Here is the change:\n```json\n{\"code\": \"const x = 1;\", \"summary\": \"s\"}\n```\nDone."

	decision, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision failed: %v", err)
	}
	if decision.Kind != DecisionFull {
		t.Errorf("expected kind %q, got %q", DecisionFull, decision.Kind)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced", in: "```tsx\nconst a = 1;\n```", want: "const a = 1;"},
		{name: "unfenced", in: "const a = 1;", want: "const a = 1;"},
		{name: "fence without close", in: "```tsx\nconst a = 1;", want: "```tsx\nconst a = 1;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
