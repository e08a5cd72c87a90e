package detail

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsrecon/internal/rerr"
)

func TestStoreRetrieveIdentity(t *testing.T) {
	s := NewStore(0)
	value := map[string]interface{}{"a": 1.0, "b": []interface{}{"x", "y"}}

	id := s.Store(value)
	assert.True(t, strings.HasPrefix(id, "detail_"))

	got, err := s.Retrieve(id, "")
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestTokensAreUnique(t *testing.T) {
	s := NewStore(0)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.Store(i)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestPathIndexing(t *testing.T) {
	s := NewStore(0)
	dom := map[string]interface{}{
		"tag": "html",
		"children": []interface{}{
			map[string]interface{}{"tag": "head"},
			map[string]interface{}{"tag": "body", "children": []interface{}{
				map[string]interface{}{"tag": "script"},
			}},
		},
	}
	id := s.Store(dom)

	got, err := s.Retrieve(id, "children.0.tag")
	require.NoError(t, err)
	assert.Equal(t, "head", got)

	got, err = s.Retrieve(id, "children.1.children.0.tag")
	require.NoError(t, err)
	assert.Equal(t, "script", got)

	_, err = s.Retrieve(id, "children.7")
	require.Error(t, err)
	assert.Equal(t, rerr.KindDetailTokenInvalid, rerr.KindOf(err))

	// A failed path lookup must not consume the token.
	got, err = s.Retrieve(id, "tag")
	require.NoError(t, err)
	assert.Equal(t, "html", got)
}

func TestExpiryIsDistinctFailure(t *testing.T) {
	s := NewStore(5 * time.Millisecond)
	id := s.Store("short-lived")
	time.Sleep(15 * time.Millisecond)

	_, err := s.Retrieve(id, "")
	require.Error(t, err)
	assert.Equal(t, rerr.KindDetailTokenExpired, rerr.KindOf(err))

	_, err = s.Retrieve("detail_doesnotexist", "")
	require.Error(t, err)
	assert.Equal(t, rerr.KindDetailTokenInvalid, rerr.KindOf(err))
}

func TestSmartHandlePassthroughAndEnvelope(t *testing.T) {
	s := NewStore(0)

	small := map[string]interface{}{"ok": true}
	assert.Equal(t, small, s.SmartHandle(small, 1024))

	big := strings.Repeat("data", 1000)
	out := s.SmartHandle(big, 100)
	env, ok := out.(map[string]interface{})
	require.True(t, ok)
	id := env["detailId"].(string)

	got, err := s.Retrieve(id, "")
	require.NoError(t, err)
	assert.Equal(t, big, got)
}

func TestCleanup(t *testing.T) {
	s := NewStore(time.Millisecond)
	s.Store("a")
	s.Store("b")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, s.Cleanup())
	assert.Zero(t, s.Len())
}
