// Package sessionid allocates the monotonic local identifier a receiver
// stamps onto each session it creates.
package sessionid

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source produces session identifiers as opaque strings suitable for
// embedding in the sink filename suffix.
type Source interface {
	Next() string
}

// Clock allocates ids from the current millisecond clock, the
// convention carried over from the teacher's utils.GenerateTimestampID:
// monotonically increasing and human-orderable in logs, at the cost of
// being collidable across a fast receiver restart (see DESIGN.md).
type Clock struct {
	mu   sync.Mutex
	last int64
}

// NewClock returns the default session id source.
func NewClock() *Clock { return &Clock{} }

// Next returns the current millisecond timestamp as a decimal string,
// nudged forward by one if it would repeat the previous call's value
// within the same millisecond.
func (c *Clock) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return strconv.FormatInt(now, 10)
}

// UUID allocates cryptographically random ids via github.com/google/uuid,
// immune to the clock source's restart-collision risk, for operators who
// opt in with --session-id-source=uuid.
type UUID struct{}

// NewUUID returns a uuid-backed session id source.
func NewUUID() *UUID { return &UUID{} }

// Next returns a random UUID's string form.
func (UUID) Next() string {
	return uuid.NewString()
}

// FromFlag resolves the --session-id-source flag value to a Source,
// defaulting to Clock for any value other than "uuid".
func FromFlag(value string) Source {
	if value == "uuid" {
		return NewUUID()
	}
	return NewClock()
}
