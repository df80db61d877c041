package gwerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildsErrorWithoutCause(t *testing.T) {
	err := New(KindInvalidParams, "prompt is required")
	assert.Equal(t, "invalid_params: prompt is required", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapPreservesCauseInMessageAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(KindProvider, "open session for claude", cause)

	assert.Equal(t, "provider: open session for claude: connection refused", err.Error())
	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesWrappedKind(t *testing.T) {
	err := New(KindNoProviders, "nothing eligible")
	assert.True(t, Is(err, KindNoProviders))
	assert.False(t, Is(err, KindTimeout))
}

func TestIsMatchesThroughStandardWrapping(t *testing.T) {
	base := New(KindWorkflow, "workflow not found")
	wrapped := fmt.Errorf("executing step: %w", base)

	assert.True(t, Is(wrapped, KindWorkflow))
}

func TestIsFalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindInternal))
}

func TestKindStringCoversAllVariants(t *testing.T) {
	cases := map[Kind]string{
		KindNoProviders:   "no_providers",
		KindProvider:      "provider",
		KindWorkflow:      "workflow",
		KindInvalidState:  "invalid_state",
		KindInvalidParams: "invalid_params",
		KindProtocol:      "protocol",
		KindTimeout:       "timeout",
		KindInternal:      "internal",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
