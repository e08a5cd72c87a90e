package rerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfAndHints(t *testing.T) {
	err := New(KindNavigation, "refused").WithHint("check the URL")
	assert.Equal(t, KindNavigation, KindOf(err))
	assert.Equal(t, "check the URL", HintOf(err))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, KindNavigation, KindOf(wrapped), "kinds survive wrapping")

	assert.Equal(t, Kind(""), KindOf(errors.New("foreign")))
	assert.Empty(t, HintOf(errors.New("foreign")))
}

func TestWrapUnwraps(t *testing.T) {
	inner := errors.New("socket closed")
	err := Wrap(KindCDP, "Network.enable", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "Network.enable")
	assert.Contains(t, err.Error(), "socket closed")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindModelRetryable, "429")))
	assert.False(t, IsRetryable(New(KindModelFatal, "bad request")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestParseError(t *testing.T) {
	err := &ParseError{Offset: 12, Line: 2, Msg: "unexpected token"}
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "offset 12")
}
