package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"cadence/internal/config"
	"cadence/internal/domain"
	"cadence/internal/domain/models"
	"cadence/internal/domain/repositories"
	"cadence/internal/service/generation"
	"cadence/internal/service/history"
	"cadence/internal/service/ledger"
	"cadence/internal/service/patch"
)

// TurnResult is the settled outcome of a successful turn, automatic
// retries included.
type TurnResult struct {
	Code         string                 `json:"code"`
	EditType     string                 `json:"edit_type"`
	AppliedEdits []models.EditOperation `json:"applied_edits,omitempty"`
	Summary      string                 `json:"summary,omitempty"`
	Skills       []string               `json:"skills,omitempty"`
	Snapshot     *models.Snapshot       `json:"snapshot,omitempty"`
	Attempts     int                    `json:"attempts"`
	CanUndo      bool                   `json:"can_undo"`
	CanRedo      bool                   `json:"can_redo"`
}

// HistoryResult reports the buffer state after an undo or redo. Moved is
// false at a history boundary; the code returned is then the unchanged
// working buffer.
type HistoryResult struct {
	Code     string           `json:"code"`
	Moved    bool             `json:"moved"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
	CanUndo  bool             `json:"can_undo"`
	CanRedo  bool             `json:"can_redo"`
}

// PreviewReport is the feedback the preview collaborator sends after
// compiling or running the current buffer. Kind distinguishes compile
// from runtime failures when OK is false.
type PreviewReport struct {
	OK      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Runtime is the single logical actor for one open session. It owns the
// working code buffer, the ledger, the snapshot history cursor, and the
// correction counters, and admits one turn at a time.
//
// Two locks with distinct roles: mu guards the busy flag that serializes
// turns; stateMu orders a turn's ledger/history/buffer commits against
// the read accessors, which must stay safe while a turn is in flight.
type Runtime struct {
	mu   sync.Mutex
	busy bool

	stateMu sync.Mutex

	session   *models.Session
	sessions  repositories.SessionRepository
	ledger    *ledger.Ledger
	history   *history.Store
	provider  generation.Provider
	protocol  *Protocol
	corrector *Corrector
	logger    *slog.Logger

	workingCode string
}

func newRuntime(session *models.Session, sessions repositories.SessionRepository, hist *history.Store, provider generation.Provider, maxAttempts int, logger *slog.Logger) *Runtime {
	r := &Runtime{
		session:   session,
		sessions:  sessions,
		ledger:    ledger.New(),
		history:   hist,
		provider:  provider,
		protocol:  NewProtocol(provider, logger),
		corrector: NewCorrector(maxAttempts),
		logger:    logger.With("session_id", session.ID),
	}
	if snap := hist.Current(); snap != nil {
		r.workingCode = snap.Code
	}
	return r
}

// acquire claims the turn slot or fails fast with ErrBusy. The slot stays
// claimed across the whole turn including automatic retries.
func (r *Runtime) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return domain.ErrBusy
	}
	r.busy = true
	return nil
}

func (r *Runtime) release() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// Submit runs one user-initiated turn. The first turn of a session
// streams a full generation through onDelta; follow-up turns go through
// the decision protocol and onDelta is unused.
func (r *Runtime) Submit(ctx context.Context, prompt string, attachments []models.Attachment, onDelta generation.DeltaFunc) (*TurnResult, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	if err := validation.Validate(prompt,
		validation.Required,
		validation.RuneLength(1, config.MaxPromptLength),
	); err != nil {
		return nil, fmt.Errorf("%w: prompt: %v", domain.ErrValidation, err)
	}
	if len(attachments) > config.MaxAttachments {
		return nil, fmt.Errorf("%w: at most %d attachments", domain.ErrValidation, config.MaxAttachments)
	}

	r.corrector.Reset()

	// Context is captured before recording so the prompt is not replayed
	// twice; it travels as the request's own user message.
	r.stateMu.Lock()
	contextEntries := r.ledger.Context()
	r.ledger.RecordUser(prompt, attachments)
	r.stateMu.Unlock()

	if r.history.Current() == nil {
		return r.runFirstTurn(ctx, prompt, attachments, contextEntries, onDelta)
	}
	return r.runTurnLoop(ctx, prompt, prompt, nil, attachments, contextEntries)
}

// Preview consumes one compile/run report from the preview collaborator.
// A success report clears correction state and returns a nil result. A
// failure report either launches a corrective turn (result returned as
// for Submit) or, with the attempt budget exhausted, records a terminal
// error and fails with ErrAttemptsExhausted. Failure reports for a
// session that has no code yet are rejected with ErrValidation.
func (r *Runtime) Preview(ctx context.Context, report PreviewReport) (*TurnResult, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	if report.OK {
		r.corrector.Reset()
		return nil, nil
	}

	// A failure report is meaningless before any code exists; there is
	// nothing to correct.
	if r.history.Current() == nil && r.workingCode == "" {
		return nil, fmt.Errorf("%w: no code to correct", domain.ErrValidation)
	}

	kind, errKind := FailureCompile, models.ErrorKindCompile
	if report.Kind == FailureRuntime {
		kind, errKind = FailureRuntime, models.ErrorKindRuntime
	}

	correction, prompt, ok := r.corrector.Next(Failure{Kind: kind, Message: report.Message})
	if !ok {
		r.stateMu.Lock()
		r.ledger.RecordError(errKind, report.Message, nil)
		r.stateMu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrAttemptsExhausted, report.Message)
	}

	r.logger.Info("corrective turn",
		"failure", kind,
		"attempt", correction.Attempt,
		"max_attempts", correction.MaxAttempts,
	)

	contextEntries := r.ledger.Context()
	return r.runTurnLoop(ctx, "", prompt, correction, r.ledger.LastAttachments(), contextEntries)
}

// UpdateCode records a manual edit to the working buffer. Manual edits
// are advisory context for later turns, not snapshots.
func (r *Runtime) UpdateCode(code string) error {
	if err := r.acquire(); err != nil {
		return err
	}
	defer r.release()

	if len(code) > config.MaxCodeSize {
		return fmt.Errorf("%w: code exceeds %d bytes", domain.ErrValidation, config.MaxCodeSize)
	}

	r.stateMu.Lock()
	r.workingCode = code
	r.ledger.SetManualEdits()
	r.stateMu.Unlock()
	return nil
}

// Undo steps the history cursor back one snapshot.
func (r *Runtime) Undo() (*HistoryResult, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	code, moved := r.history.Undo()
	return r.historyResult(code, moved), nil
}

// Redo steps the history cursor forward one snapshot.
func (r *Runtime) Redo() (*HistoryResult, error) {
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	code, moved := r.history.Redo()
	return r.historyResult(code, moved), nil
}

func (r *Runtime) historyResult(code string, moved bool) *HistoryResult {
	if moved {
		r.workingCode = code
		r.ledger.ClearManualEdits()
	}
	return &HistoryResult{
		Code:     r.workingCode,
		Moved:    moved,
		Snapshot: r.history.Current(),
		CanUndo:  r.history.CanUndo(),
		CanRedo:  r.history.CanRedo(),
	}
}

// Messages returns the session transcript. Safe to call while a turn is
// in flight.
func (r *Runtime) Messages() []models.Message {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.ledger.Messages()
}

// Snapshots returns the full snapshot stack in sequence order. Safe to
// call while a turn is in flight.
func (r *Runtime) Snapshots() []models.Snapshot {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.history.Snapshots()
}

// Code returns the current working buffer. Safe to call while a turn is
// in flight.
func (r *Runtime) Code() string {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.workingCode
}

// Session returns the owning session record.
func (r *Runtime) Session() *models.Session {
	return r.session
}

func (r *Runtime) runFirstTurn(ctx context.Context, prompt string, attachments []models.Attachment, contextEntries []models.ContextEntry, onDelta generation.DeltaFunc) (*TurnResult, error) {
	req := &generation.Request{
		Prompt:      prompt,
		Context:     contextEntries,
		UsedSkills:  r.ledger.UsedSkills(),
		Attachments: attachments,
		Aspect:      r.session.Aspect,
	}

	result, err := r.provider.GenerateFull(ctx, req, onDelta)
	if err != nil {
		r.recordFailure(err)
		return nil, err
	}

	outcome := &Outcome{
		Code:     result.Code,
		EditType: models.EditTypeFullReplacement,
		Summary:  result.Summary,
	}
	return r.settle(ctx, prompt, outcome, result.Skills)
}

// runTurnLoop drives the decision protocol, retrying synchronously on
// patch failures until success or budget exhaustion. userPrompt is empty
// for corrective turns launched from Preview.
func (r *Runtime) runTurnLoop(ctx context.Context, userPrompt, turnPrompt string, correction *generation.Correction, attachments []models.Attachment, contextEntries []models.ContextEntry) (*TurnResult, error) {
	for {
		req := &generation.Request{
			CurrentCode:    r.workingCode,
			Prompt:         turnPrompt,
			Context:        contextEntries,
			IsFollowUp:     true,
			HasManualEdits: r.ledger.HasManualEdits(),
			Correction:     correction,
			UsedSkills:     r.ledger.UsedSkills(),
			Attachments:    attachments,
			Aspect:         r.session.Aspect,
		}

		outcome, err := r.protocol.Run(ctx, req)
		if err == nil {
			return r.settle(ctx, userPrompt, outcome, nil)
		}

		var patchErr *patch.Error
		if !errors.As(err, &patchErr) {
			r.recordFailure(err)
			return nil, err
		}

		next, retryPrompt, ok := r.corrector.Next(Failure{
			Kind:       FailurePatch,
			Message:    patchErr.Error(),
			FailedEdit: &patchErr.Edit,
		})
		if !ok {
			op := editOperation(patchErr.Edit)
			r.stateMu.Lock()
			r.ledger.RecordError(models.ErrorKindEditFailed, patchErr.Error(), &op)
			r.stateMu.Unlock()
			return nil, err
		}

		r.logger.Info("retrying after patch failure",
			"attempt", next.Attempt,
			"max_attempts", next.MaxAttempts,
		)

		correction = next
		turnPrompt = retryPrompt
		if len(attachments) == 0 {
			attachments = r.ledger.LastAttachments()
		}
	}
}

// settle commits a successful outcome: working buffer, ledger, snapshot.
// A snapshot persistence failure does not fail the turn; the buffer stays
// live and the history store stays dirty until the next save succeeds.
func (r *Runtime) settle(ctx context.Context, userPrompt string, outcome *Outcome, skillTags []string) (*TurnResult, error) {
	content := outcome.Summary
	if content == "" {
		content = "Updated the animation."
	}

	var promptPtr, summaryPtr *string
	if userPrompt != "" {
		promptPtr = &userPrompt
	}
	if outcome.Summary != "" {
		summaryPtr = &outcome.Summary
	}

	// Buffer, ledger, and snapshot stack commit as one unit as far as
	// readers are concerned.
	r.stateMu.Lock()
	r.workingCode = outcome.Code
	r.ledger.RecordAssistant(content, outcome.Code, models.AssistantMeta{
		Skills:       skillTags,
		EditType:     outcome.EditType,
		AppliedEdits: outcome.AppliedEdits,
	})
	snapshot, err := r.history.Save(ctx, outcome.Code, promptPtr, summaryPtr, skillTags)
	r.stateMu.Unlock()

	if err != nil {
		r.logger.Warn("snapshot persistence failed, keeping in-memory buffer", "error", err)
	} else if err := r.sessions.Touch(ctx, r.session.ID); err != nil {
		r.logger.Warn("failed to touch session", "error", err)
	}

	return &TurnResult{
		Code:         outcome.Code,
		EditType:     outcome.EditType,
		AppliedEdits: outcome.AppliedEdits,
		Summary:      outcome.Summary,
		Skills:       skillTags,
		Snapshot:     snapshot,
		Attempts:     r.corrector.Attempt(),
		CanUndo:      r.history.CanUndo(),
		CanRedo:      r.history.CanRedo(),
	}, nil
}

func (r *Runtime) recordFailure(err error) {
	kind := models.ErrorKindAPI
	if errors.Is(err, domain.ErrValidation) {
		kind = models.ErrorKindValidation
	}
	r.stateMu.Lock()
	r.ledger.RecordError(kind, err.Error(), nil)
	r.stateMu.Unlock()
}

func editOperation(e patch.Edit) models.EditOperation {
	return models.EditOperation{
		Description: e.Description,
		OldString:   e.OldString,
		NewString:   e.NewString,
	}
}
