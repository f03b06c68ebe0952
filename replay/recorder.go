package replay

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// flushEveryEvents bounds how many buffered trace lines a Recorder holds
// before forcing a flush, so a crash mid-run loses at most this many
// trailing events.
const flushEveryEvents = 128

// Recorder appends OutputEvents to an underlying writer as newline
// delimited JSON, assigning monotonic event ids and a per-run identifier.
// One Recorder is created per recorded session; it is not safe to share
// across goroutines without external synchronization beyond what its own
// mutex provides for Record itself.
type Recorder struct {
	mu                     sync.Mutex
	w                      *bufio.Writer
	closer                 io.Closer
	scenarioID             string
	runID                  string
	nextEventID            uint64
	nextMergeRequestID      uint64
	pendingSinceFlush      uint32
}

// NewRecorder wraps w (and, if non-nil, its Closer) as a trace recorder
// for scenarioID, generating a fresh v4 run id as an opaque correlation
// identifier.
func NewRecorder(w io.Writer, scenarioID string) *Recorder {
	closer, _ := w.(io.Closer)
	return &Recorder{
		w:                 bufio.NewWriter(w),
		closer:            closer,
		scenarioID:        NormalizeScenarioID(scenarioID),
		runID:             uuid.NewString(),
		nextEventID:       1,
		nextMergeRequestID: 1,
	}
}

// RunID returns the run identifier stamped on every event this recorder
// writes.
func (r *Recorder) RunID() string { return r.runID }

// NextMergeRequestID allocates the next merge_request_id for a new
// MergeLifecycleOutput event, unique within this run.
func (r *Recorder) NextMergeRequestID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextMergeRequestID
	r.nextMergeRequestID++
	return id
}

// Record appends one event built from tick/phase/payload, filling in the
// envelope's scenario_id, run_id, and a freshly allocated event_id.
func (r *Recorder) Record(tick uint64, phase OutputPhase, kind OutputKind, payload OutputPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := OutputEvent{
		Envelope: EventEnvelope{
			SchemaVersion: 1,
			ScenarioID:    r.scenarioID,
			RunID:         r.runID,
			EventID:       r.nextEventID,
			Tick:          tick,
			Phase:         phase,
			Kind:          kind,
		},
		Payload: payload,
	}
	r.nextEventID++

	if err := WriteJSONLEvent(r.w, event); err != nil {
		return fmt.Errorf("replay: record event: %w", err)
	}
	r.pendingSinceFlush++
	if r.pendingSinceFlush >= flushEveryEvents {
		if err := r.w.Flush(); err != nil {
			return fmt.Errorf("replay: flush trace: %w", err)
		}
		r.pendingSinceFlush = 0
	}
	return nil
}

// Close flushes any buffered events and closes the underlying writer if
// it implements io.Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("replay: flush trace on close: %w", err)
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
