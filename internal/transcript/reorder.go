package transcript

import "sort"

// Reorderer buffers upload responses that arrive out of chunk order and
// releases them to the accumulator strictly in sequence order. Uploads are
// issued in order but the network gives no guarantee about completion
// order; without this buffer the transcript could interleave audio content
// non-chronologically.
type Reorderer struct {
	next    int
	pending map[int]Segment
}

func NewReorderer() *Reorderer {
	return &Reorderer{pending: make(map[int]Segment)}
}

// Add records the segment for the given chunk sequence index and returns
// the run of segments that are now releasable in order. A segment whose
// predecessors are still in flight is held back and released later.
// Duplicate or stale sequence indexes are dropped.
func (r *Reorderer) Add(seq int, seg Segment) []Segment {
	if seq < r.next {
		return nil
	}
	if _, ok := r.pending[seq]; ok {
		return nil
	}
	r.pending[seq] = seg

	var out []Segment
	for {
		next, ok := r.pending[r.next]
		if !ok {
			break
		}
		delete(r.pending, r.next)
		out = append(out, next)
		r.next++
	}
	return out
}

// Drain releases everything still buffered, in sequence order, skipping
// gaps. Used at session stop after the in-flight drain window closes: a
// chunk whose upload never resolved must not hold back later segments
// forever.
func (r *Reorderer) Drain() []Segment {
	if len(r.pending) == 0 {
		return nil
	}

	seqs := make([]int, 0, len(r.pending))
	for seq := range r.pending {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	out := make([]Segment, 0, len(seqs))
	for _, seq := range seqs {
		out = append(out, r.pending[seq])
		if seq >= r.next {
			r.next = seq + 1
		}
	}
	r.pending = make(map[int]Segment)
	return out
}

// Pending reports how many segments are buffered waiting for predecessors.
func (r *Reorderer) Pending() int {
	return len(r.pending)
}
