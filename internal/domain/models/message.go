package models

import (
	"time"
)

// Message roles. Error messages are visible to the user but are never
// replayed into generation context.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Edit types recorded on assistant messages.
const (
	EditTypePatch           = "patch"
	EditTypeFullReplacement = "full_replacement"
)

// Error kinds recorded on error messages.
const (
	ErrorKindEditFailed = "edit_failed"
	ErrorKindCompile    = "compile"
	ErrorKindRuntime    = "runtime"
	ErrorKindAPI        = "api"
	ErrorKindValidation = "validation"
)

// Attachment is a reference to an image the user supplied with a request.
type Attachment struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
}

// EditOperation is a single find/replace operation as surfaced to clients:
// the matching contract is on OldString alone; LineNumber is computed
// post-hoc for display (1-based line of the first character of the match).
type EditOperation struct {
	Description string `json:"description"`
	OldString   string `json:"old_string"`
	NewString   string `json:"new_string"`
	LineNumber  int    `json:"line_number,omitempty"`
}

// AssistantMeta carries the provenance of an assistant message's code.
type AssistantMeta struct {
	Skills       []string        `json:"skills"`
	EditType     string          `json:"edit_type"` // patch or full_replacement
	AppliedEdits []EditOperation `json:"applied_edits,omitempty"`
}

// Message is one entry in a session's conversation ledger. Fields beyond
// the common set are populated per role: Attachments for user messages,
// Code and Meta for assistant messages, ErrorKind and FailedEdit for error
// messages.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	Attachments []Attachment `json:"attachments,omitempty"`

	Code string         `json:"code,omitempty"`
	Meta *AssistantMeta `json:"meta,omitempty"`

	ErrorKind  string         `json:"error_kind,omitempty"`
	FailedEdit *EditOperation `json:"failed_edit,omitempty"`
}

// ContextEntry is the generator-facing view of a ledger message. Assistant
// content is a fixed placeholder, never the generated code; only the latest
// code buffer travels to the generator, as a separate request field.
type ContextEntry struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
