package nlparser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pipelinerun/engine/runtime/pipeline"
)

// MessagesClient captures the subset of the Anthropic SDK client used by the
// parser, satisfied by *sdk.MessageService so tests can pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicParser asks a Claude model to emit the JSON-shaped Pipeline
// Specification the engine consumes, given a tool catalogue description and
// a free-text request. It is the one concrete Parser implementation wired
// into this module; the oracle contract itself (Parser) stays model-agnostic.
type AnthropicParser struct {
	msg       MessagesClient
	model     string
	maxTokens int
	toolsDoc  string
}

// Options configures an AnthropicParser.
type Options struct {
	// Model is the Claude model identifier, e.g. string(sdk.ModelClaudeSonnet4_5_20250929).
	Model string
	// MaxTokens bounds the completion length. Defaults to 4096 if zero.
	MaxTokens int
	// ToolsDoc is a human-readable description of the registered tools
	// (name, category, input schema) injected into the system prompt so the
	// model only references tool_type values that actually exist.
	ToolsDoc string
}

// New constructs an AnthropicParser. msg is required; the model identifier
// must be non-empty.
func New(msg MessagesClient, opts Options) (*AnthropicParser, error) {
	if msg == nil {
		return nil, errors.New("nlparser: anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("nlparser: model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicParser{msg: msg, model: opts.Model, maxTokens: maxTokens, toolsDoc: opts.ToolsDoc}, nil
}

// NewFromAPIKey constructs an AnthropicParser using the default Anthropic
// HTTP client authenticated with apiKey, which must be non-empty.
func NewFromAPIKey(apiKey string, opts Options) (*AnthropicParser, error) {
	if apiKey == "" {
		return nil, errors.New("nlparser: api key is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&client.Messages, opts)
}

const systemPromptTemplate = `You decompose a user's request into a pipeline of typed tool invocations.
Respond with exactly one JSON object matching this shape and nothing else:
{"pipeline_id": string, "components": [{"id": string, "tool_type": string, "params": object, "output": {"type": string, "key": string}}]}
Reference a prior step's output with a placeholder string of the form
"$<node_id>.output" or "$<node_id>.output.<dotted.key.path>".
Available tools:
%s`

// Parse asks Claude to produce a Pipeline Specification for request and
// decodes the JSON response.
func (p *AnthropicParser) Parse(ctx context.Context, request string) (pipeline.Spec, error) {
	systemPrompt := fmt.Sprintf(systemPromptTemplate, p.toolsDoc)
	msg, err := p.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(request)),
		},
	})
	if err != nil {
		return pipeline.Spec{}, fmt.Errorf("nlparser: anthropic messages.new: %w", err)
	}

	text := extractText(msg)
	spec, err := decodeSpec(text)
	if err != nil {
		return pipeline.Spec{}, fmt.Errorf("nlparser: decode pipeline spec: %w", err)
	}
	return spec, nil
}

func extractText(msg *sdk.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if text := block.AsText(); text.Text != "" {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// decodeSpec extracts the span from the first '{' to the last '}' in text (the model
// may wrap it in prose or a fenced code block despite instructions) and
// decodes it into a pipeline.Spec.
func decodeSpec(text string) (pipeline.Spec, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return pipeline.Spec{}, fmt.Errorf("no JSON object found in model response")
	}
	var spec pipeline.Spec
	if err := json.Unmarshal([]byte(text[start:end+1]), &spec); err != nil {
		return pipeline.Spec{}, err
	}
	if spec.PipelineID == "" {
		return pipeline.Spec{}, fmt.Errorf("pipeline_id missing from model response")
	}
	return spec, nil
}
