package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"cadence/internal/domain"
	"cadence/internal/domain/models"
	"cadence/internal/skills"
)

const (
	fullGenerationMaxTokens = 16384
	decisionMaxTokens       = 8192
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	client   *anthropic.Client
	model    string
	registry *skills.Registry
	logger   *slog.Logger
}

// NewAnthropicProvider creates a provider with the given API key and model.
func NewAnthropicProvider(apiKey, model string, registry *skills.Registry, logger *slog.Logger) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &AnthropicProvider{
		client:   &client,
		model:    model,
		registry: registry,
		logger:   logger,
	}, nil
}

// GenerateFull streams a complete code buffer for a first turn. Deltas are
// forwarded through onDelta as they arrive (metadata trailer withheld);
// the final result carries the full code plus detected skills.
func (p *AnthropicProvider) GenerateFull(ctx context.Context, req *Request, onDelta DeltaFunc) (*FullResult, error) {
	blocks := p.registry.Excluding(req.UsedSkills)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  buildMessages(req),
		MaxTokens: fullGenerationMaxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: buildFullSystemPrompt(req.Aspect, blocks)},
		},
	}

	gate := newDeltaGate(onDelta)
	stream := p.client.Messages.NewStreaming(ctx, params)

	for stream.Next() {
		event := stream.Current()
		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if e.Delta.Type == "text_delta" {
				if err := gate.write(e.Delta.Text); err != nil {
					return nil, fmt.Errorf("delta consumer failed: %w", err)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		p.logger.Error("generation stream failed", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	if err := gate.flush(); err != nil {
		return nil, fmt.Errorf("delta consumer failed: %w", err)
	}

	text := gate.text()
	if isInvalidRequest(text) {
		return nil, fmt.Errorf("%w: request is not an animation description", domain.ErrValidation)
	}

	code, meta := splitFullOutput(text)
	if code == "" {
		return nil, fmt.Errorf("%w: empty code buffer from full generation", ErrInvalidResponse)
	}

	p.logger.Debug("full generation complete",
		"code_bytes", len(code),
		"skills", meta.Skills,
	)

	return &FullResult{
		Code:    code,
		Skills:  meta.Skills,
		Summary: meta.Summary,
	}, nil
}

// Decide obtains one structured edit-or-full decision for a follow-up turn.
func (p *AnthropicProvider) Decide(ctx context.Context, req *Request) (*Decision, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  buildMessages(req),
		MaxTokens: decisionMaxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: buildDecideSystemPrompt(req.HasManualEdits)},
		},
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		p.logger.Error("decision request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	decision, err := ParseDecision(text.String())
	if err != nil {
		return nil, err
	}

	p.logger.Debug("decision received",
		"kind", decision.Kind,
		"edits", len(decision.Edits),
	)

	return decision, nil
}

// buildMessages converts the ledger context plus the current request into
// Anthropic message params. Assistant context content is already redacted
// by the ledger; the live code buffer travels inside the final user
// message.
func buildMessages(req *Request) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(req.Context)+1)

	for _, entry := range req.Context {
		switch entry.Role {
		case models.RoleUser:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(entry.Attachments))
			if entry.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(entry.Content))
			}
			for _, att := range entry.Attachments {
				blocks = append(blocks, imageBlock(att))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewUserMessage(blocks...))
			}
		case models.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(entry.Content)))
		}
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(req.Attachments))
	blocks = append(blocks, anthropic.NewTextBlock(buildUserContent(req)))
	for _, att := range req.Attachments {
		blocks = append(blocks, imageBlock(att))
	}
	result = append(result, anthropic.NewUserMessage(blocks...))

	return result
}

func imageBlock(att models.Attachment) anthropic.ContentBlockParamUnion {
	return anthropic.ContentBlockParamUnion{
		OfImage: &anthropic.ImageBlockParam{
			Source: anthropic.ImageBlockParamSourceUnion{
				OfURL: &anthropic.URLImageSourceParam{URL: att.URL},
			},
		},
	}
}
