// Package patch applies ordered find/replace edits to a code buffer with
// exact-match and uniqueness guarantees. It is pure and synchronous: no
// I/O, no hidden state, deterministic for a given input.
package patch

import (
	"fmt"
	"strings"
)

// Edit is a single replacement request. OldString must occur in the buffer
// exactly once at apply time.
type Edit struct {
	Description string `json:"description"`
	OldString   string `json:"old_string"`
	NewString   string `json:"new_string"`
}

// AppliedEdit is an Edit enriched with the 1-based line number of the first
// character of its match, computed for display only.
type AppliedEdit struct {
	Edit
	LineNumber int `json:"line_number"`
}

// Failure kinds.
const (
	KindNotFound  = "not_found"
	KindAmbiguous = "ambiguous"
)

// Error reports why an edit could not be applied. EditIndex is 1-based.
// Matches is only meaningful for KindAmbiguous.
type Error struct {
	Kind      string
	EditIndex int
	Edit      Edit
	Matches   int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAmbiguous:
		return fmt.Sprintf("edit %d (%s): old string found %d times, must be unique",
			e.EditIndex, e.Edit.Description, e.Matches)
	default:
		return fmt.Sprintf("edit %d (%s): old string not found in current code",
			e.EditIndex, e.Edit.Description)
	}
}

// Apply applies edits to code strictly in order, each against the output of
// the previous one, so later edits may depend on earlier ones having
// happened. If any edit's OldString is missing or non-unique the whole call
// fails and the original input code is returned unchanged; partial progress
// is never exposed.
func Apply(code string, edits []Edit) (string, []AppliedEdit, error) {
	buf := code
	applied := make([]AppliedEdit, 0, len(edits))

	for i, edit := range edits {
		count := strings.Count(buf, edit.OldString)
		switch {
		case count == 0:
			return code, nil, &Error{
				Kind:      KindNotFound,
				EditIndex: i + 1,
				Edit:      edit,
			}
		case count > 1:
			return code, nil, &Error{
				Kind:      KindAmbiguous,
				EditIndex: i + 1,
				Edit:      edit,
				Matches:   count,
			}
		}

		offset := strings.Index(buf, edit.OldString)
		line := strings.Count(buf[:offset], "\n") + 1

		// Replace the first (and only) occurrence.
		buf = buf[:offset] + edit.NewString + buf[offset+len(edit.OldString):]

		applied = append(applied, AppliedEdit{
			Edit:       edit,
			LineNumber: line,
		})
	}

	return buf, applied, nil
}
