// Package generation defines the contract with the external generation
// collaborator: the request shape a turn sends, the decision shape it gets
// back, and the Anthropic-backed provider implementation.
package generation

import (
	"context"

	"cadence/internal/domain/models"
	"cadence/internal/service/patch"
)

// Correction is the error context an automatic retry attaches to its
// request. It is ephemeral: cleared on success or on a new user-initiated
// turn. FailedEdit is set for patch failures only.
type Correction struct {
	Error       string      `json:"error"`
	Attempt     int         `json:"attempt"`
	MaxAttempts int         `json:"max_attempts"`
	FailedEdit  *patch.Edit `json:"failed_edit,omitempty"`
}

// Request carries everything a single generation call needs. CurrentCode is
// empty on the first turn of a session; Context is the ledger's redacted
// view (error turns excluded, assistant code replaced by a placeholder).
type Request struct {
	CurrentCode    string
	Prompt         string
	Context        []models.ContextEntry
	IsFollowUp     bool
	HasManualEdits bool
	Correction     *Correction
	UsedSkills     []string
	Attachments    []models.Attachment
	Aspect         string
}

// FullResult is the outcome of an unconditional full generation: the
// complete code buffer plus the augmentation tags the generator reports
// having drawn on.
type FullResult struct {
	Code    string
	Skills  []string
	Summary string
}

// DeltaFunc receives code fragments as they stream in. Returning an error
// aborts the stream.
type DeltaFunc func(delta string) error

// Provider is the generation collaborator. GenerateFull serves first turns
// (streamed code plus trailing metadata); Decide serves follow-up turns
// (one structured edit-or-full decision). Implementations own their
// transport timeouts; callers do not impose deadlines beyond ctx.
type Provider interface {
	GenerateFull(ctx context.Context, req *Request, onDelta DeltaFunc) (*FullResult, error)
	Decide(ctx context.Context, req *Request) (*Decision, error)
}
