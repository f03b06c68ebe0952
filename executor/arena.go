package executor

import "fmt"

// byteRange is a half-open [Start, End) span of bytes within one
// per-submission arena buffer.
type byteRange struct {
	Start, End uint64
}

func (r byteRange) overlaps(o byteRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// AliasingHazardError reports that a submission attempted to stage two
// byte ranges of the same arena that overlap, which would let the GPU
// observe a partially-written read depending on scheduling order within
// the batch.
type AliasingHazardError struct {
	A, B byteRange
}

func (e *AliasingHazardError) Error() string {
	return fmt.Sprintf("executor: aliasing hazard: range [%d,%d) overlaps [%d,%d)", e.A.Start, e.A.End, e.B.Start, e.B.End)
}

// Arena is a per-submission scratch buffer shared by every dab/tile write
// encoded into one GPU batch. Callers write at explicit byte offsets
// (e.g. one offset per target tile slot within a combined staging buffer)
// rather than always appending at the end, since a batch's writes are
// planned up front by tile coordinate, not produced in a single linear
// pass. WriteAt is what enforces the no-aliasing invariant.
type Arena struct {
	buf    []byte
	ranges []byteRange
	strict bool
}

// NewArena returns an empty arena. strict, when true, panics on a detected
// aliasing hazard (the debug-build behavior); when false it returns an
// error from WriteAt instead (the release behavior), matching the rest of
// this module's strict/non-strict split for protocol violations.
func NewArena(strict bool) *Arena {
	return &Arena{strict: strict}
}

// Append writes data to the end of the arena and returns the byte range it
// now occupies. Since an appended range always starts at the arena's
// current length, it can never overlap an earlier range and never fails;
// callers that need overlap-checked placement at a caller-chosen offset
// should use WriteAt instead.
func (a *Arena) Append(data []byte) byteRange {
	start := uint64(len(a.buf))
	r := byteRange{Start: start, End: start + uint64(len(data))}
	a.buf = append(a.buf, data...)
	a.ranges = append(a.ranges, r)
	return r
}

// WriteAt writes data at a caller-chosen byte offset, growing the arena if
// necessary, and fails if [offset, offset+len(data)) overlaps any range
// already written this submission. This is the enforcement point for the
// critical rule that no two writes (e.g. two dabs whose target tile
// offsets were computed incorrectly) may alias the same bytes within one
// batch.
func (a *Arena) WriteAt(offset uint64, data []byte) error {
	r := byteRange{Start: offset, End: offset + uint64(len(data))}

	for _, existing := range a.ranges {
		if r.overlaps(existing) {
			err := &AliasingHazardError{A: existing, B: r}
			if a.strict {
				panic(err)
			}
			return err
		}
	}

	if need := int(r.End); need > len(a.buf) {
		a.buf = append(a.buf, make([]byte, need-len(a.buf))...)
	}
	copy(a.buf[r.Start:r.End], data)
	a.ranges = append(a.ranges, r)
	return nil
}

// Bytes returns the arena's full backing buffer as accumulated so far.
func (a *Arena) Bytes() []byte { return a.buf }

// Slice returns the bytes written at r.
func (a *Arena) Slice(r byteRange) []byte { return a.buf[r.Start:r.End] }

// Len reports how many bytes the arena currently spans.
func (a *Arena) Len() int { return len(a.buf) }

// Reset clears the arena for reuse by the next submission, retaining its
// underlying storage to avoid reallocating on every batch.
func (a *Arena) Reset() {
	a.buf = a.buf[:0]
	a.ranges = a.ranges[:0]
}
