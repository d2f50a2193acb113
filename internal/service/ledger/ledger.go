package ledger

import (
	"time"

	"github.com/google/uuid"

	"cadence/internal/domain/models"
)

// assistantPlaceholder stands in for generated code when assistant turns
// are replayed into generation context. The live buffer travels
// separately; replaying stale code bodies would only mislead the
// generator and burn tokens.
const assistantPlaceholder = "[animation code updated]"

// Ledger is the per-session conversation record. It is the single source
// for both the user-visible transcript and the redacted context replayed
// to the generator. Not safe for concurrent use; the session runtime
// serializes access.
type Ledger struct {
	messages    []models.Message
	manualEdits bool
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{messages: []models.Message{}}
}

// RecordUser appends a user request.
func (l *Ledger) RecordUser(content string, attachments []models.Attachment) models.Message {
	msg := models.Message{
		ID:          uuid.NewString(),
		Role:        models.RoleUser,
		Content:     content,
		Timestamp:   time.Now(),
		Attachments: attachments,
	}
	l.messages = append(l.messages, msg)
	return msg
}

// RecordAssistant appends a successful generation result. A completed
// turn supersedes any manual edits the user made beforehand, so the
// manual-edit flag resets here.
func (l *Ledger) RecordAssistant(content, code string, meta models.AssistantMeta) models.Message {
	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Code:      code,
		Meta:      &meta,
	}
	l.messages = append(l.messages, msg)
	l.manualEdits = false
	return msg
}

// RecordError appends a terminal failure notice. Error messages appear in
// the transcript but are excluded from generation context.
func (l *Ledger) RecordError(kind, content string, failedEdit *models.EditOperation) models.Message {
	msg := models.Message{
		ID:         uuid.NewString(),
		Role:       models.RoleError,
		Content:    content,
		Timestamp:  time.Now(),
		ErrorKind:  kind,
		FailedEdit: failedEdit,
	}
	l.messages = append(l.messages, msg)
	return msg
}

// Context returns the generator-facing view of the transcript: error
// messages dropped, assistant code bodies replaced with a placeholder.
func (l *Ledger) Context() []models.ContextEntry {
	out := make([]models.ContextEntry, 0, len(l.messages))
	for _, msg := range l.messages {
		switch msg.Role {
		case models.RoleUser:
			out = append(out, models.ContextEntry{
				Role:        msg.Role,
				Content:     msg.Content,
				Attachments: msg.Attachments,
			})
		case models.RoleAssistant:
			out = append(out, models.ContextEntry{
				Role:    msg.Role,
				Content: assistantPlaceholder,
			})
		}
	}
	return out
}

// UsedSkills returns the union of skill tags across all assistant
// messages, in first-seen order.
func (l *Ledger) UsedSkills() []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, msg := range l.messages {
		if msg.Meta == nil {
			continue
		}
		for _, id := range msg.Meta.Skills {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// LastAttachments returns the attachments of the most recent user message
// that carried any. Corrective turns reuse them so the generator keeps
// seeing the reference imagery.
func (l *Ledger) LastAttachments() []models.Attachment {
	for i := len(l.messages) - 1; i >= 0; i-- {
		msg := l.messages[i]
		if msg.Role == models.RoleUser && len(msg.Attachments) > 0 {
			return msg.Attachments
		}
	}
	return nil
}

// SetManualEdits marks that the user has edited the code buffer by hand
// since the last generation.
func (l *Ledger) SetManualEdits() {
	l.manualEdits = true
}

// ClearManualEdits resets the flag without an assistant turn, used when
// undo or redo replaces the buffer with a stored snapshot.
func (l *Ledger) ClearManualEdits() {
	l.manualEdits = false
}

// HasManualEdits reports whether un-regenerated manual edits exist.
func (l *Ledger) HasManualEdits() bool {
	return l.manualEdits
}

// Messages returns a copy of the full transcript.
func (l *Ledger) Messages() []models.Message {
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of recorded messages.
func (l *Ledger) Len() int {
	return len(l.messages)
}
