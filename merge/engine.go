package merge

import (
	"sync"

	icache "github.com/SunastanS/glaphica/internal/cache"
	"github.com/SunastanS/glaphica/protocol"
)

// RetentionState is the lifecycle stage of a stroke's buffer tiles within
// the retention window, per BrushBufferTileRegistry.
type RetentionState uint8

const (
	RetentionActive RetentionState = iota
	RetentionPendingMerge
	RetentionRetained
	RetentionReleased
)

type receiptRecord struct {
	id              protocol.ReceiptId
	state           protocol.ReceiptState
	plan            protocol.MergePlan
	submissionToken protocol.SubmissionToken
}

type strokeEntry struct {
	sessionID uint64
	layerID   uint64
	ended     bool
	retention RetentionState
	// bufferTiles are the stroke's brush buffer tile keys, kept allocated
	// through the retention window so the stroke remains editable. Output
	// keys are NOT tracked here: once committed they belong to the
	// document.
	bufferTiles []protocol.TileKey
}

// DefaultRetentionCapacity bounds how many recently merged strokes stay in
// the Retained state before the soft-limit cache starts evicting the
// oldest ones, per the retention window's "most recent strokes" contract.
const DefaultRetentionCapacity = 64

// Engine is the merge lifecycle engine: the authoritative owner of every
// receipt's state, the stroke ordering tracker, and the retention window.
// It does not itself talk to the GPU; completion information is supplied
// externally by PushCompletionNotice (from the executor's PollMergeNotices
// dispatch) and pulled out by PollCompletionNotices.
type Engine struct {
	mu sync.Mutex

	receipts      map[protocol.ReceiptId]*receiptRecord
	nextReceiptID uint64

	// strokes tracks the BeginStroke/EndStroke/MergeBuffer ordering
	// invariant: session N+1 may not submit while any earlier session has
	// not yet issued MergeBuffer (i.e. called Submit).
	strokes       map[uint64]*strokeEntry
	orderedOpen   []uint64 // open session ids in BeginStroke order

	retained *icache.Cache[uint64, *strokeEntry]
	pending  []pendingNotice

	evictionHook func(retainID uint64)
}

// NewEngine constructs a merge engine with the given retention window
// capacity (soft limit on retained strokes; 0 or less selects
// DefaultRetentionCapacity).
func NewEngine(retentionCapacity int) *Engine {
	if retentionCapacity <= 0 {
		retentionCapacity = DefaultRetentionCapacity
	}
	return &Engine{
		receipts: make(map[protocol.ReceiptId]*receiptRecord),
		strokes:  make(map[uint64]*strokeEntry),
		retained: icache.New[uint64, *strokeEntry](retentionCapacity),
	}
}

// OnEviction registers a callback invoked when the retention window's soft
// limit evicts a retained stroke, recording the eviction as a capability
// downgrade rather than aborting rendering (per the engine's documented
// fail-with-recorded-eviction policy for this open question).
func (e *Engine) OnEviction(f func(retainID uint64)) {
	e.evictionHook = f
}

// BeginStroke registers a new stroke session, enforcing that no earlier
// open session remains un-submitted.
func (e *Engine) BeginStroke(sessionID, layerID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, open := range e.orderedOpen {
		if s := e.strokes[open]; s != nil && s.retention == RetentionActive {
			return &protocol.MergeSubmitError{Kind: protocol.MergeSubmitStrokeNotEnded}
		}
	}

	e.strokes[sessionID] = &strokeEntry{sessionID: sessionID, layerID: layerID, retention: RetentionActive}
	e.orderedOpen = append(e.orderedOpen, sessionID)
	return nil
}

// EndStroke marks a session as ended, permitting its MergeBuffer (Submit)
// to proceed.
func (e *Engine) EndStroke(sessionID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.strokes[sessionID]; ok {
		s.ended = true
	}
}

// Submit allocates a receipt in Pending state for plan, recording the
// current submission token for later waterline-gated release. It is
// rejected with MergeSubmitError if the originating stroke was never
// ended or targets a layer different from the one it began on.
func (e *Engine) Submit(plan protocol.MergePlan, token protocol.SubmissionToken) (protocol.ReceiptId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.strokes[plan.StrokeSessionID]
	if !ok || !s.ended {
		return 0, &protocol.MergeSubmitError{Kind: protocol.MergeSubmitStrokeNotEnded}
	}
	if s.layerID != plan.LayerID {
		return 0, &protocol.MergeSubmitError{Kind: protocol.MergeSubmitStrokeNotEnded}
	}

	e.nextReceiptID++
	id := protocol.ReceiptId(e.nextReceiptID)
	e.receipts[id] = &receiptRecord{id: id, state: protocol.ReceiptPending, plan: plan, submissionToken: token}

	s.retention = RetentionPendingMerge
	for _, m := range plan.Mappings {
		if !m.StrokeTileKey.IsZero() {
			s.bufferTiles = append(s.bufferTiles, m.StrokeTileKey)
		}
	}
	return id, nil
}

// pendingNotices holds completion notices supplied by the executor,
// awaiting a PollCompletionNotices drain. poll_completion_notices does not
// mutate receipt state; only AckResult does.
type pendingNotice struct {
	frameID uint64
	notice  protocol.CompletionNotice
}

// PushCompletionNotice is called by the GPU executor's PollMergeNotices
// dispatch once it has confirmed the GPU fence enclosing a receipt's
// submission has passed.
func (e *Engine) PushCompletionNotice(frameID uint64, notice protocol.CompletionNotice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, pendingNotice{frameID: frameID, notice: notice})
}

// PollCompletionNotices drains and returns every notice queued for
// frameID (or all queued notices if frameID is 0, meaning "unfiltered").
// It never mutates receipt state.
func (e *Engine) PollCompletionNotices(frameID uint64) []protocol.CompletionNotice {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []protocol.CompletionNotice
	remaining := e.pending[:0]
	for _, p := range e.pending {
		if frameID == 0 || p.frameID == frameID {
			out = append(out, p.notice)
		} else {
			remaining = append(remaining, p)
		}
	}
	e.pending = remaining
	return out
}

// AckOutcome reports the receipt id and resulting state after ack_result.
type AckOutcome struct {
	ReceiptID protocol.ReceiptId
	State     protocol.ReceiptState
}

// AckResult is the sole entry point advancing a receipt from Pending to
// Succeeded or Failed. Duplicate acks fail fast with MergeAckError.
func (e *Engine) AckResult(notice protocol.CompletionNotice) (AckOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.receipts[notice.ReceiptID]
	if !ok {
		return AckOutcome{}, &protocol.MergeAckError{Kind: protocol.MergeAckIllegalState, Receipt: notice.ReceiptID}
	}

	next := protocol.ReceiptSucceeded
	if !notice.Succeeded {
		next = protocol.ReceiptFailed
	}
	if !rec.state.CanTransitionTo(next) {
		return AckOutcome{}, &protocol.MergeAckError{Kind: protocol.MergeAckIllegalState, Receipt: notice.ReceiptID, Observed: rec.state}
	}

	rec.state = next
	return AckOutcome{ReceiptID: rec.id, State: rec.state}, nil
}

// Plan returns the MergePlan a receipt was submitted with, needed by the
// caller to splice output tile keys into the document on commit.
func (e *Engine) Plan(id protocol.ReceiptId) (protocol.MergePlan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.receipts[id]
	if !ok {
		return protocol.MergePlan{}, false
	}
	return rec.plan, true
}

// TokenOf returns the submission token a receipt was submitted under.
// Release of the receipt's tile keys is gated on this token falling at or
// below the complete waterline.
func (e *Engine) TokenOf(id protocol.ReceiptId) (protocol.SubmissionToken, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.receipts[id]
	if !ok {
		return 0, false
	}
	return rec.submissionToken, true
}

// State returns a receipt's current lifecycle state.
func (e *Engine) State(id protocol.ReceiptId) (protocol.ReceiptState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.receipts[id]
	if !ok {
		return 0, false
	}
	return rec.state, true
}

// Finalize transitions a Succeeded/Failed receipt to Finalized or Aborted.
// Committing splices the plan's output mapping into dest (the target
// layer's TileImage) via apply, bumping its revision; aborting does not
// touch the document.
func (e *Engine) Finalize(id protocol.ReceiptId, commit bool, apply func(protocol.MergePlan)) error {
	e.mu.Lock()
	rec, ok := e.receipts[id]
	if !ok {
		e.mu.Unlock()
		return &protocol.MergeAckError{Kind: protocol.MergeAckIllegalState, Receipt: id}
	}
	next := protocol.ReceiptFinalized
	if !commit {
		next = protocol.ReceiptAborted
	}
	if !rec.state.CanTransitionTo(next) {
		e.mu.Unlock()
		return &protocol.MergeAckError{Kind: protocol.MergeAckIllegalState, Receipt: id, Observed: rec.state}
	}
	rec.state = next
	plan := rec.plan
	sessionID := plan.StrokeSessionID
	s := e.strokes[sessionID]
	e.mu.Unlock()

	if commit && apply != nil {
		apply(plan)
	}

	var evictedID uint64
	var wasEvicted bool
	e.mu.Lock()
	if s != nil {
		if commit {
			s.retention = RetentionRetained
			// The retention window is a soft limit: pushing a fresh
			// stroke in may displace the oldest retained one, which is
			// recorded as a capability downgrade, not an error.
			if k, ev, ok := e.retained.Set(sessionID, s); ok {
				ev.retention = RetentionReleased
				delete(e.strokes, k)
				e.removeFromOpenList(k)
				evictedID, wasEvicted = k, true
			}
		} else {
			s.retention = RetentionReleased
			delete(e.strokes, sessionID)
			e.removeFromOpenList(sessionID)
		}
	}
	e.mu.Unlock()

	if wasEvicted && e.evictionHook != nil {
		e.evictionHook(evictedID)
	}
	return nil
}

func (e *Engine) removeFromOpenList(sessionID uint64) {
	for i, id := range e.orderedOpen {
		if id == sessionID {
			e.orderedOpen = append(e.orderedOpen[:i], e.orderedOpen[i+1:]...)
			return
		}
	}
}

// RetainStroke reports whether sessionID currently holds retained buffer
// tiles, and returns them. Used by "edit previous stroke" flows.
func (e *Engine) RetainStroke(sessionID uint64) ([]protocol.TileKey, bool) {
	s, ok := e.retained.Get(sessionID)
	if !ok || s.retention != RetentionRetained {
		return nil, false
	}
	return s.bufferTiles, true
}

// ReleaseStroke releases sessionID's retained buffer tiles, invoked either
// explicitly by a higher layer or implicitly by eviction pressure from the
// atlas. release reports which tile keys the caller must now release from
// the atlas.
func (e *Engine) ReleaseStroke(sessionID uint64) []protocol.TileKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.retained.Get(sessionID)
	if !ok {
		return nil
	}
	s.retention = RetentionReleased
	e.retained.Delete(sessionID)
	return s.bufferTiles
}

// RetainedCount reports how many strokes the retention window currently
// holds, for observability sampling.
func (e *Engine) RetainedCount() int {
	return e.retained.Len()
}

// HandleAtlasEviction is registered with atlas.Store.OnEviction; it
// records the eviction against the owning stroke session without aborting
// rendering, per the documented fail-with-recorded-eviction policy: a
// subsequent RetainStroke/edit-previous-stroke attempt against an evicted
// session simply fails rather than silently synthesizing from the
// document.
func (e *Engine) HandleAtlasEviction(retainID uint64) {
	e.mu.Lock()
	s, ok := e.retained.Get(retainID)
	if ok {
		s.retention = RetentionReleased
		e.retained.Delete(retainID)
	}
	e.mu.Unlock()
	if e.evictionHook != nil {
		e.evictionHook(retainID)
	}
}
