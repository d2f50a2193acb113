package turn

import (
	"fmt"

	"cadence/internal/service/generation"
	"cadence/internal/service/patch"
)

// Failure kinds the correction loop reacts to.
const (
	FailurePatch   = "patch"
	FailureCompile = "compile"
	FailureRuntime = "runtime"
)

// Failure describes one qualifying failure. FailedEdit is set for patch
// failures only.
type Failure struct {
	Kind       string
	Message    string
	FailedEdit *patch.Edit
}

// Corrective instruction templates. Patch failures get told to widen the
// match context; compile and runtime failures get told to fix only the
// reported error.
const (
	patchRetryPrompt = "The previous edit could not be applied: %s. " +
		"Provide the edits again with more surrounding lines in each old_string so that every old_string matches the current code exactly once."
	errorRetryPrompt = "The code produced an error: %s. " +
		"Fix only this error; keep everything else about the animation unchanged."
)

// Corrector owns the retry bookkeeping for one session. It holds no code
// buffer; it only decides whether a failed turn earns another automatic
// attempt and what that attempt should say.
type Corrector struct {
	maxAttempts int
	attempt     int
}

// NewCorrector creates a corrector with the given attempt budget.
func NewCorrector(maxAttempts int) *Corrector {
	return &Corrector{maxAttempts: maxAttempts, attempt: 1}
}

// Reset returns the counter to attempt 1. Called whenever a turn is
// initiated by explicit user action and whenever a correction succeeds.
func (c *Corrector) Reset() {
	c.attempt = 1
}

// Attempt returns the current attempt number, starting at 1.
func (c *Corrector) Attempt() int {
	return c.attempt
}

// Next consumes one failure. When budget remains it advances the counter
// and returns the correction context plus the corrective prompt for the
// retry; when the budget is exhausted it reports false and the failure is
// terminal.
func (c *Corrector) Next(f Failure) (*generation.Correction, string, bool) {
	if c.attempt >= c.maxAttempts {
		return nil, "", false
	}
	c.attempt++

	correction := &generation.Correction{
		Error:       f.Message,
		Attempt:     c.attempt,
		MaxAttempts: c.maxAttempts,
		FailedEdit:  f.FailedEdit,
	}

	var prompt string
	if f.Kind == FailurePatch {
		prompt = fmt.Sprintf(patchRetryPrompt, f.Message)
	} else {
		prompt = fmt.Sprintf(errorRetryPrompt, f.Message)
	}

	return correction, prompt, true
}
