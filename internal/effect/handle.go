package effect

import (
	"sync/atomic"

	"github.com/udisondev/abilitysystem/internal/aggregator"
)

// Handle identifies one active effect. Handles are process-wide unique and
// never reused.
type Handle = aggregator.Handle

const (
	// HandleInvalid is returned for rejected applications.
	HandleInvalid Handle = 0
	// HandleNone is returned for applied instant effects that leave no entry.
	HandleNone Handle = -1
)

var lastHandle atomic.Int64

// NewHandle allocates the next handle.
func NewHandle() Handle {
	return Handle(lastHandle.Add(1))
}

// IsValidHandle reports whether h refers to (or once referred to) an entry.
func IsValidHandle(h Handle) bool {
	return h > 0
}

// WasApplied reports whether an application returning h succeeded.
func WasApplied(h Handle) bool {
	return h > 0 || h == HandleNone
}
