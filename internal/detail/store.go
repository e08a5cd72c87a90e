// Package detail stores oversized tool results under short-lived opaque
// identifiers so the dispatcher can return a summary now and let the
// agent drill in on demand. Tokens live for ten minutes and are never
// reused; expired and unknown tokens fail distinguishably.
package detail

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jsrecon/internal/logging"
	"jsrecon/internal/rerr"
)

// DefaultTTL bounds how long a stored value stays retrievable.
const DefaultTTL = 10 * time.Minute

type entry struct {
	value     interface{}
	size      int
	createdAt time.Time
	expiresAt time.Time
}

// Store is the process-wide detail-token store.
type Store struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates a store with the given TTL (DefaultTTL when zero).
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{ttl: ttl, entries: make(map[string]*entry)}
}

// Store saves value and returns its opaque token. Serialized size is
// computed once here, not on every retrieve.
func (s *Store) Store(value interface{}) string {
	id := "detail_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	size := serializedSize(value)
	now := time.Now()

	s.mu.Lock()
	s.entries[id] = &entry{
		value:     value,
		size:      size,
		createdAt: now,
		expiresAt: now.Add(s.ttl),
	}
	s.mu.Unlock()

	logging.DetailDebug("stored %s (%d bytes, ttl %v)", id, size, s.ttl)
	return id
}

// Retrieve returns the stored value, optionally indexed by a dotted
// path ("children.0.tag"). Failures are side-effect free: an expired or
// bad-path retrieve does not consume the token.
func (s *Store) Retrieve(id string, path string) (interface{}, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && time.Now().After(e.expiresAt) {
		ok = false
		e = nil
		s.mu.Unlock()
		return nil, rerr.New(rerr.KindDetailTokenExpired, fmt.Sprintf("token %s has expired", id)).
			WithHint("re-issue the tool call that produced this token")
	}
	s.mu.Unlock()

	if !ok {
		return nil, rerr.New(rerr.KindDetailTokenInvalid, fmt.Sprintf("unknown token %s", id)).
			WithHint("tokens are process-lifetime and expire after 10 minutes")
	}
	if path == "" {
		return e.value, nil
	}
	return indexPath(e.value, path)
}

// SmartHandle returns value untouched when its serialized size fits in
// maxBytes, otherwise stores it and returns a summary envelope.
func (s *Store) SmartHandle(value interface{}, maxBytes int) interface{} {
	size := serializedSize(value)
	if maxBytes <= 0 || size <= maxBytes {
		return value
	}
	id := s.Store(value)
	return map[string]interface{}{
		"summary":  Summarize(value, size),
		"detailId": id,
		"size":     size,
		"hint":     "call get_detailed_data with detailId (and an optional path) for the full value",
	}
}

// Cleanup drops expired entries; called periodically by the dispatcher.
func (s *Store) Cleanup() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live tokens.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func serializedSize(value interface{}) int {
	data, err := json.Marshal(value)
	if err != nil {
		return 0
	}
	return len(data)
}

// indexPath walks a dotted path into decoded JSON-ish structures:
// map keys by name, slice elements by numeric segment.
func indexPath(value interface{}, path string) (interface{}, error) {
	// Normalize through JSON so struct values index the same way maps do.
	data, err := json.Marshal(value)
	if err != nil {
		return nil, rerr.New(rerr.KindDetailTokenInvalid, "stored value is not serializable")
	}
	var cur interface{}
	if err := json.Unmarshal(data, &cur); err != nil {
		return nil, rerr.New(rerr.KindDetailTokenInvalid, "stored value is not serializable")
	}

	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]interface{}:
			next, ok := v[seg]
			if !ok {
				return nil, rerr.New(rerr.KindDetailTokenInvalid,
					fmt.Sprintf("path segment %q not found", seg))
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, rerr.New(rerr.KindDetailTokenInvalid,
					fmt.Sprintf("path segment %q is not a valid index", seg))
			}
			cur = v[idx]
		default:
			return nil, rerr.New(rerr.KindDetailTokenInvalid,
				fmt.Sprintf("cannot index into scalar at %q", seg))
		}
	}
	return cur, nil
}

// Summarize produces a short human-readable description of a value.
func Summarize(value interface{}, size int) string {
	switch v := value.(type) {
	case string:
		if len(v) > 200 {
			return fmt.Sprintf("string of %d bytes: %s...", len(v), v[:200])
		}
		return v
	case []interface{}:
		return fmt.Sprintf("array of %d elements (%d bytes serialized)", len(v), size)
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
			if len(keys) == 8 {
				break
			}
		}
		return fmt.Sprintf("object with %d keys (%d bytes serialized), keys include: %s",
			len(v), size, strings.Join(keys, ", "))
	default:
		return fmt.Sprintf("value of %d serialized bytes", size)
	}
}
