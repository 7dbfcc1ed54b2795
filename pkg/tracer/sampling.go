package tracer

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"
)

// SampleValue maps a trace id onto [0, 1) deterministically, so every
// process that sees the same trace id reaches the same head decision.
//
// Dashes are removed, the first 8 characters are parsed as a base-16 uint32
// and divided by 2^32. When fewer than 8 characters remain or they are not
// hex, the FNV-1a 32-bit hash of the raw id is used instead.
//
//	SampleValue("00000000...") == 0.0
//	SampleValue("80000000...") == 0.5
func SampleValue(traceID string) float64 {
	return float64(sampleBits(traceID)) / (math.MaxUint32 + 1.0)
}

func sampleBits(traceID string) uint32 {
	compact := strings.ReplaceAll(traceID, "-", "")
	if len(compact) >= 8 {
		if v, err := strconv.ParseUint(compact[:8], 16, 32); err == nil {
			return uint32(v)
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(traceID))
	return h.Sum32()
}

// ShouldSample decides whether a span is sent. A rate of 1.0 always samples
// and a latency above the tail threshold always samples; otherwise the head
// decision is SampleValue(traceID) < rate. The operation name does not
// influence the decision.
func (t *Tracer) ShouldSample(traceID, operation string, latency time.Duration) bool {
	rate := t.SamplingRate()
	if rate >= 1.0 {
		return true
	}
	if latency > t.TailThreshold() {
		return true
	}
	return SampleValue(traceID) < rate
}
