package tracer

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// spanPrefix distinguishes span ids minted by different processes.
	spanPrefix  uint32
	spanCounter atomic.Uint32
)

func init() {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		spanPrefix = binary.BigEndian.Uint32(b[:4])
		spanCounter.Store(binary.BigEndian.Uint32(b[4:]))
	}
}

// NewTraceID returns 32 lowercase hex characters derived from a random
// (version 4) UUID.
func NewTraceID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewSpanID returns 16 lowercase hex characters: a per-process random prefix
// followed by a process-wide counter. Ids repeat only after 2^32 spans from
// one process.
func NewSpanID() string {
	return fmt.Sprintf("%08x%08x", spanPrefix, spanCounter.Add(1))
}
