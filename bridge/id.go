package bridge

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique correlation tokens.
type Generator func() string

// UUIDv7 returns time-sortable RFC 9562 tokens.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Sequence returns "1", "2", ... Deterministic; meant for tests and replay.
func Sequence() Generator {
	var n atomic.Uint64
	return func() string {
		return strconv.FormatUint(n.Add(1), 10)
	}
}

// IDs allocates kind-scoped correlation ids such as "hover_0190…".
type IDs struct {
	gen Generator
}

// NewIDs wraps gen; nil means UUIDv7.
func NewIDs(gen Generator) *IDs {
	if gen == nil {
		gen = UUIDv7()
	}
	return &IDs{gen: gen}
}

func (i *IDs) New(kind Kind) string {
	return string(kind) + "_" + i.gen()
}
