package gpudebug

import "slices"

// Well-known noisy driver message ids.
const (
	// IDBufferMemoryInfo reports where a buffer object was placed in memory.
	IDBufferMemoryInfo uint32 = 131185

	// IDBufferPerformance reports buffer usage hints being ignored.
	IDBufferPerformance uint32 = 131186

	// IDPixelPathPerformance is raised by framebuffer blits.
	IDPixelPathPerformance uint32 = 131154
)

// SuppressionSet is a fixed set of message ids that are dropped before they
// reach a sink, regardless of severity. It is never mutated after the
// Processor holding it is constructed.
type SuppressionSet struct {
	ids map[uint32]struct{}
}

// NewSuppressionSet returns a set holding exactly ids.
func NewSuppressionSet(ids ...uint32) SuppressionSet {
	m := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return SuppressionSet{ids: m}
}

// DefaultSuppressions returns the built-in noise list.
func DefaultSuppressions() SuppressionSet {
	return NewSuppressionSet(IDBufferMemoryInfo, IDBufferPerformance, IDPixelPathPerformance)
}

// Contains reports whether id is suppressed.
func (s SuppressionSet) Contains(id uint32) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of suppressed ids.
func (s SuppressionSet) Len() int { return len(s.ids) }

// IDs returns the suppressed ids in ascending order.
func (s SuppressionSet) IDs() []uint32 {
	out := make([]uint32, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
