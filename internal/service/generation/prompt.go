package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"cadence/internal/skills"
)

// Stream protocol markers for full generation. The generator emits the
// invalid marker alone when the request is out of domain, and appends the
// metadata marker followed by one JSON object after the code.
const (
	metadataMarker = "<<<METADATA>>>"
	invalidMarker  = "<<<INVALID_REQUEST>>>"
)

const fullSystemPrompt = `You write self-contained animated web components from natural language descriptions.
Output only component source code: one complete file, no explanations, no markdown fences.
Target aspect ratio: %s.
If the request is not a description of a motion graphics animation, respond with exactly %s and nothing else.
After the final line of code, emit %s followed by one JSON object: {"skills": [<ids of the technique notes below you relied on>], "summary": "<one sentence describing the animation>"}.
%s`

const decideSystemPrompt = `You modify an existing animated web component according to a change request.
Respond with exactly one JSON object and nothing else, in one of two shapes:
{"edits": [{"description": "...", "old_string": "...", "new_string": "..."}], "summary": "..."} for targeted changes, or
{"code": "<entire replacement file>", "summary": "..."} when the change is too broad for targeted edits.
Every old_string must be copied exactly from the current code and must occur in it exactly once; include enough surrounding lines to make it unique.
Populate exactly one of "edits" and "code", never both.
%s`

// buildFullSystemPrompt assembles the first-turn system prompt including
// the skill blocks not yet seen by this session.
func buildFullSystemPrompt(aspect string, blocks []skills.Skill) string {
	if aspect == "" {
		aspect = "16:9"
	}
	return fmt.Sprintf(fullSystemPrompt, aspect, invalidMarker, metadataMarker, renderSkillBlocks(blocks))
}

// buildDecideSystemPrompt assembles the follow-up system prompt.
func buildDecideSystemPrompt(hasManualEdits bool) string {
	note := ""
	if hasManualEdits {
		note = "The user has edited the code by hand since the last generation. Preserve their manual changes; prefer targeted edits over full replacement."
	}
	return strings.TrimSpace(fmt.Sprintf(decideSystemPrompt, note))
}

func renderSkillBlocks(blocks []skills.Skill) string {
	if len(blocks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Technique notes:\n")
	for _, s := range blocks {
		fmt.Fprintf(&b, "[%s] %s\n%s\n", s.ID, s.Title, strings.TrimSpace(s.Content))
	}
	return b.String()
}

// buildUserContent renders the request prompt plus any correction context
// into the final user message text.
func buildUserContent(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Prompt)

	if req.Correction != nil {
		fmt.Fprintf(&b, "\n\nCorrection attempt %d of %d.", req.Correction.Attempt, req.Correction.MaxAttempts)
		if req.Correction.FailedEdit != nil {
			if payload, err := json.Marshal(req.Correction.FailedEdit); err == nil {
				fmt.Fprintf(&b, "\nThe edit that failed to apply was: %s", payload)
			}
		}
	}

	if req.IsFollowUp && req.CurrentCode != "" {
		fmt.Fprintf(&b, "\n\nCurrent code:\n%s", req.CurrentCode)
	}

	return b.String()
}
