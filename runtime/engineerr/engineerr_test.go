package engineerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_SetsKindAndMessage(t *testing.T) {
	err := New(KindBadSpec, "spec is empty")
	require.Equal(t, KindBadSpec, err.Kind)
	require.Equal(t, "spec is empty", err.Message)
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf(KindToolError, "tool %q failed with code %d", "search", 42)
	require.Equal(t, `tool "search" failed with code 42`, err.Message)
}

func TestWithNode_ReturnsCopyLeavingOriginalUntouched(t *testing.T) {
	orig := New(KindToolError, "boom")
	withNode := orig.WithNode("search-1")

	require.Equal(t, "search-1", withNode.FailingNode)
	require.Empty(t, orig.FailingNode)
}

func TestWithRemediation_ReturnsCopyLeavingOriginalUntouched(t *testing.T) {
	orig := New(KindDependencyIssue, "missing package")
	withRem := orig.WithRemediation("pip install pandas")

	require.Equal(t, "pip install pandas", withRem.Remediation)
	require.Empty(t, orig.Remediation)
}

func TestWrap_PreservesCauseChain(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(KindToolError, "invoke failed", cause)

	require.Equal(t, KindToolError, wrapped.Kind)
	require.NotNil(t, wrapped.Cause)
	require.Equal(t, KindInternal, wrapped.Cause.Kind)
	require.Equal(t, "connection refused", wrapped.Cause.Message)
}

func TestFromError_NilReturnsNil(t *testing.T) {
	require.Nil(t, FromError(nil))
}

func TestFromError_PlainErrorClassifiesAsInternal(t *testing.T) {
	err := FromError(errors.New("boom"))
	require.Equal(t, KindInternal, err.Kind)
	require.Equal(t, "boom", err.Message)
}

func TestFromError_AlreadyAnErrorPassesThroughUnchanged(t *testing.T) {
	orig := New(KindCycleDetected, "cycle found")
	require.Same(t, orig, FromError(orig))
}

func TestError_StringFormatWithoutFailingNode(t *testing.T) {
	err := New(KindBadSpec, "empty spec")
	require.Equal(t, "bad_spec: empty spec", err.Error())
}

func TestError_StringFormatWithFailingNode(t *testing.T) {
	err := New(KindToolError, "boom").WithNode("search-1")
	require.Equal(t, "tool_error: boom (node=search-1)", err.Error())
}

func TestError_NilReceiverReturnsEmptyString(t *testing.T) {
	var err *Error
	require.Equal(t, "", err.Error())
}

func TestUnwrap_ReturnsCauseForErrorsIs(t *testing.T) {
	cause := New(KindInternal, "root cause")
	wrapped := &Error{Kind: KindToolError, Message: "outer", Cause: cause}

	require.True(t, errors.Is(wrapped, cause))
}

func TestUnwrap_NoCauseReturnsNil(t *testing.T) {
	err := New(KindBadSpec, "no cause here")
	require.Nil(t, err.Unwrap())
}

func TestErrorsAs_MatchesErrorType(t *testing.T) {
	wrapped := Wrap(KindToolError, "outer failure", errors.New("inner"))

	var target *Error
	require.True(t, errors.As(wrapped, &target))
	require.Equal(t, KindToolError, target.Kind)
}

func TestKindTerminal_TerminalKinds(t *testing.T) {
	for _, k := range []Kind{KindToolError, KindTimeout, KindCancelled, KindInternal, KindBadSpec} {
		require.True(t, k.Terminal(), "expected %s to be terminal", k)
	}
}

func TestKindTerminal_NonTerminalKinds(t *testing.T) {
	for _, k := range []Kind{KindUnresolvedPlaceholder, KindCycleDetected, KindDependencyIssue, KindShapeMismatchUnrecoverable} {
		require.False(t, k.Terminal(), "expected %s to not be terminal", k)
	}
}
