package domain

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var lastStamp int64

// nextStamp returns a strictly increasing millisecond timestamp so ids
// created within the same millisecond still sort by creation.
func nextStamp() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastStamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastStamp, last, now) {
			return now
		}
	}
}

// NewCardID generates an identifier for a new card.
func NewCardID() string {
	return newID("card")
}

// NewStepID generates an identifier for a new step.
func NewStepID() string {
	return newID("step")
}

// Unique within a board for a session; not a global identifier.
func newID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + "-" + strconv.FormatInt(nextStamp(), 36) + "-" + suffix
}
