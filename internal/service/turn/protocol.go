// Package turn orchestrates session turns: the edit-or-full decision
// protocol, the bounded self-correction loop, and the per-session runtime
// that serializes everything against a single code buffer.
package turn

import (
	"context"
	"log/slog"

	"cadence/internal/domain/models"
	"cadence/internal/service/generation"
	"cadence/internal/service/patch"
)

// Turn states. A turn moves Idle -> AwaitingDecision -> Applying or
// Replacing -> Settled or Failed; the states exist for logging and for
// tests asserting the path taken.
const (
	StateIdle             = "idle"
	StateAwaitingDecision = "awaiting_decision"
	StateApplying         = "applying"
	StateReplacing        = "replacing"
	StateSettled          = "settled"
	StateFailed           = "failed"
)

// Outcome is the settled result of one decision-protocol pass: the final
// code buffer plus how it was produced.
type Outcome struct {
	Code         string
	EditType     string
	AppliedEdits []models.EditOperation
	Summary      string
}

// Protocol runs the follow-up decision flow: one generation call for a
// structured decision, then either patch application or wholesale
// replacement. First turns never pass through here; they use
// unconditional full generation.
type Protocol struct {
	provider generation.Provider
	logger   *slog.Logger
}

// NewProtocol creates a protocol over the given provider.
func NewProtocol(provider generation.Provider, logger *slog.Logger) *Protocol {
	return &Protocol{provider: provider, logger: logger}
}

// Run executes one decision pass. Patch failures return the *patch.Error
// unwrapped so the caller can feed the failing edit into the correction
// loop; generation and protocol-violation errors pass through as-is.
func (p *Protocol) Run(ctx context.Context, req *generation.Request) (*Outcome, error) {
	p.logger.Debug("turn state", "state", StateAwaitingDecision)

	decision, err := p.provider.Decide(ctx, req)
	if err != nil {
		p.logger.Debug("turn state", "state", StateFailed)
		return nil, err
	}

	if decision.Kind == generation.DecisionEdit {
		p.logger.Debug("turn state", "state", StateApplying, "edits", len(decision.Edits))

		code, applied, err := patch.Apply(req.CurrentCode, decision.Edits)
		if err != nil {
			p.logger.Debug("turn state", "state", StateFailed)
			return nil, err
		}

		ops := make([]models.EditOperation, 0, len(applied))
		for _, a := range applied {
			ops = append(ops, models.EditOperation{
				Description: a.Description,
				OldString:   a.OldString,
				NewString:   a.NewString,
				LineNumber:  a.LineNumber,
			})
		}

		p.logger.Debug("turn state", "state", StateSettled, "edit_type", models.EditTypePatch)
		return &Outcome{
			Code:         code,
			EditType:     models.EditTypePatch,
			AppliedEdits: ops,
			Summary:      decision.Summary,
		}, nil
	}

	p.logger.Debug("turn state", "state", StateReplacing)
	p.logger.Debug("turn state", "state", StateSettled, "edit_type", models.EditTypeFullReplacement)
	return &Outcome{
		Code:     decision.Code,
		EditType: models.EditTypeFullReplacement,
		Summary:  decision.Summary,
	}, nil
}
