package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cadence/internal/service/patch"
)

// ErrInvalidResponse means the generator returned a structurally
// inconsistent decision (neither or both of edits and code populated). This
// is a bug in the upstream collaborator, fatal for the turn and never
// auto-retried.
var ErrInvalidResponse = errors.New("generator returned an inconsistent decision")

// Decision kinds.
const (
	DecisionEdit = "edit"
	DecisionFull = "full"
)

// Decision is the validated sum type of a follow-up generation response:
// either a non-empty set of edits or a non-empty full replacement, never
// both, never neither.
type Decision struct {
	Kind    string
	Edits   []patch.Edit
	Code    string
	Summary string
}

// wireDecision is the flat shape the generator actually sends: a single
// object with nullable alternatives. ParseDecision converts it into the
// Decision sum type, rejecting inconsistent combinations.
type wireDecision struct {
	Edits []struct {
		Description string `json:"description"`
		OldString   string `json:"old_string"`
		NewString   string `json:"new_string"`
	} `json:"edits"`
	Code    string `json:"code"`
	Summary string `json:"summary"`
}

// ParseDecision extracts and validates a decision from raw generator
// output. The output may wrap the JSON object in markdown fences or
// surrounding prose; everything outside the outermost braces is ignored.
func ParseDecision(raw string) (*Decision, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var wire wireDecision
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	hasEdits := len(wire.Edits) > 0
	hasCode := strings.TrimSpace(wire.Code) != ""

	switch {
	case hasEdits && hasCode:
		return nil, fmt.Errorf("%w: both edits and code populated", ErrInvalidResponse)
	case !hasEdits && !hasCode:
		return nil, fmt.Errorf("%w: neither edits nor code populated", ErrInvalidResponse)
	case hasEdits:
		edits := make([]patch.Edit, 0, len(wire.Edits))
		for i, e := range wire.Edits {
			if e.OldString == "" {
				return nil, fmt.Errorf("%w: edit %d has empty old_string", ErrInvalidResponse, i+1)
			}
			edits = append(edits, patch.Edit{
				Description: e.Description,
				OldString:   e.OldString,
				NewString:   e.NewString,
			})
		}
		return &Decision{
			Kind:    DecisionEdit,
			Edits:   edits,
			Summary: wire.Summary,
		}, nil
	default:
		return &Decision{
			Kind:    DecisionFull,
			Code:    stripCodeFences(wire.Code),
			Summary: wire.Summary,
		}, nil
	}
}

// extractJSONObject returns the substring from the first '{' to the last
// '}' of raw.
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return raw[start : end+1], nil
}

// stripCodeFences removes a single markdown fence wrapper if the whole
// buffer is fenced.
func stripCodeFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") {
		return code
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return code
	}
	if strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return code
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
