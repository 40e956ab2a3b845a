package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/toolident"
)

func echoInvoker(name string) Invoker {
	return func(ctx context.Context, params map[string]any) envelope.Envelope {
		return envelope.NewBuilder(name, params).Primary(params["text"]).Build()
	}
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	r := New()
	err := r.Register(ToolDescriptor{Category: toolident.CategoryOther, Invoke: echoInvoker("x")})
	require.Error(t, err)
}

func TestRegister_RejectsInvalidCategory(t *testing.T) {
	r := New()
	err := r.Register(ToolDescriptor{Name: "t1", Category: toolident.Category("bogus"), Invoke: echoInvoker("t1")})
	require.Error(t, err)
}

func TestRegister_RejectsNilInvoker(t *testing.T) {
	r := New()
	err := r.Register(ToolDescriptor{Name: "t1", Category: toolident.CategoryOther})
	require.Error(t, err)
}

func TestRegister_SucceedsAndIsRetrievableViaGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDescriptor{Name: "t1", Category: toolident.CategoryDataSource, Invoke: echoInvoker("t1")}))

	desc, ok := r.Get("t1")
	require.True(t, ok)
	require.Equal(t, toolident.Ident("t1"), desc.Name)
}

func TestGet_UnregisteredToolReturnsFalse(t *testing.T) {
	r := New()
	_, ok := r.Get("nope")
	require.False(t, ok)
}

func TestList_ReturnsAllRegisteredDescriptors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDescriptor{Name: "a", Category: toolident.CategoryOther, Invoke: echoInvoker("a")}))
	require.NoError(t, r.Register(ToolDescriptor{Name: "b", Category: toolident.CategoryOther, Invoke: echoInvoker("b")}))

	list := r.List()
	require.Len(t, list, 2)
}

func TestInvoke_UnknownToolReturnsErrorEnvelope(t *testing.T) {
	r := New()
	env := r.Invoke(context.Background(), "missing", map[string]any{})
	require.Equal(t, envelope.StatusError, env.Status)
}

func TestInvoke_ValidationFailureReturnsErrorEnvelopeWithoutInvoking(t *testing.T) {
	r := New()
	invoked := false
	require.NoError(t, r.Register(ToolDescriptor{
		Name:     "strict_tool",
		Category: toolident.CategoryOther,
		InputSchema: map[string]toolident.SemanticType{
			"count": toolident.SemanticNumber,
		},
		Invoke: func(ctx context.Context, params map[string]any) envelope.Envelope {
			invoked = true
			return envelope.NewBuilder("strict_tool", params).Message("ok").Build()
		},
	}))

	env := r.Invoke(context.Background(), "strict_tool", map[string]any{"count": []any{"not", "a", "number"}})
	require.Equal(t, envelope.StatusError, env.Status)
	require.False(t, invoked)
}

func TestInvoke_UnknownParamsAreAllowed(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDescriptor{
		Name:     "permissive_tool",
		Category: toolident.CategoryOther,
		InputSchema: map[string]toolident.SemanticType{
			"known": toolident.SemanticString,
		},
		Invoke: echoInvoker("permissive_tool"),
	}))

	env := r.Invoke(context.Background(), "permissive_tool", map[string]any{"unknown_extra": "fine"})
	require.Equal(t, envelope.StatusSuccess, env.Status)
}

func TestInvoke_RecoversFromPanicIntoErrorEnvelope(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDescriptor{
		Name:     "panicky",
		Category: toolident.CategoryOther,
		Invoke: func(ctx context.Context, params map[string]any) envelope.Envelope {
			panic("kaboom")
		},
	}))

	env := r.Invoke(context.Background(), "panicky", map[string]any{})
	require.Equal(t, envelope.StatusError, env.Status)
	require.Contains(t, env.Error, "kaboom")
}

func TestInvoke_DelegatesToRegisteredInvokerOnSuccess(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(ToolDescriptor{Name: "echo", Category: toolident.CategoryOther, Invoke: echoInvoker("echo")}))

	env := r.Invoke(context.Background(), "echo", map[string]any{"text": "hello"})
	require.Equal(t, envelope.StatusSuccess, env.Status)
	require.Equal(t, "hello", env.Data.Primary)
}
