package nlparser

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

func TestDecodeSpec_PlainJSON(t *testing.T) {
	spec, err := decodeSpec(`{"pipeline_id": "p1", "components": [{"id": "a", "tool_type": "search"}]}`)
	require.NoError(t, err)
	require.Equal(t, "p1", spec.PipelineID)
	require.Len(t, spec.Components, 1)
	require.Equal(t, "search", spec.Components[0].ToolType)
}

func TestDecodeSpec_JSONWrappedInProseAndFence(t *testing.T) {
	text := "Here is the pipeline:\n```json\n{\"pipeline_id\": \"p2\", \"components\": []}\n```\nLet me know if that works."
	spec, err := decodeSpec(text)
	require.NoError(t, err)
	require.Equal(t, "p2", spec.PipelineID)
}

func TestDecodeSpec_NoJSONObjectFoundErrors(t *testing.T) {
	_, err := decodeSpec("I'm not sure what pipeline you mean.")
	require.Error(t, err)
}

func TestDecodeSpec_MissingPipelineIDErrors(t *testing.T) {
	_, err := decodeSpec(`{"components": []}`)
	require.Error(t, err)
}

func TestDecodeSpec_MalformedJSONErrors(t *testing.T) {
	_, err := decodeSpec(`{"pipeline_id": "p1", "components": [}`)
	require.Error(t, err)
}

type stubMessagesClient struct{}

func (stubMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return &sdk.Message{}, nil
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Options{Model: "claude-x"})
	require.Error(t, err)
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(stubMessagesClient{}, Options{})
	require.Error(t, err)
}

func TestNew_DefaultsMaxTokensWhenUnset(t *testing.T) {
	p, err := New(stubMessagesClient{}, Options{Model: "claude-x"})
	require.NoError(t, err)
	require.Equal(t, 4096, p.maxTokens)
}

func TestNew_PreservesExplicitMaxTokens(t *testing.T) {
	p, err := New(stubMessagesClient{}, Options{Model: "claude-x", MaxTokens: 100})
	require.NoError(t, err)
	require.Equal(t, 100, p.maxTokens)
}

func TestNewFromAPIKey_RequiresKey(t *testing.T) {
	_, err := NewFromAPIKey("", Options{Model: "claude-x"})
	require.Error(t, err)
}
