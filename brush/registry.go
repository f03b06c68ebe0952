// Package brush implements the brush execution pipeline: shaping a raw
// pointer sample stream into a uniformly-spaced dab stream, allocating
// scratch buffer tiles for an in-flight stroke, and emitting the
// BrushCommand batches the runtime fabric carries to the GPU executor.
package brush

import (
	"sync"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

// RetentionState is the lifecycle stage of one stroke session's buffer
// tiles within the registry (distinct
// from the merge engine's receipt-output retention window: this tracks
// the pre-merge scratch tiles the brush pipeline paints into, not the
// post-merge output tiles the document retains).
type RetentionState uint8

const (
	Active RetentionState = iota
	PendingMerge
	Retained
	Released
)

func (s RetentionState) String() string {
	switch s {
	case PendingMerge:
		return "PendingMerge"
	case Retained:
		return "Retained"
	case Released:
		return "Released"
	default:
		return "Active"
	}
}

type session struct {
	tiles     map[model.TileCoord]protocol.TileKey
	retention RetentionState
}

// Registry maps stroke_session_id to its allocated buffer tile keys and
// retention state. It is owned by the engine thread; the brush pipeline
// and the driver are its callers.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]*session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uint64]*session)}
}

// BeginSession registers a fresh, empty buffer tile set for sessionID.
func (r *Registry) BeginSession(sessionID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &session{tiles: make(map[model.TileCoord]protocol.TileKey), retention: Active}
}

// TileFor returns the buffer tile key backing coord for sessionID,
// allocating a fresh R32Float tile from store on first touch.
func (r *Registry) TileFor(store *atlas.Store, sessionID uint64, coord model.TileCoord) (protocol.TileKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		s = &session{tiles: make(map[model.TileCoord]protocol.TileKey), retention: Active}
		r.sessions[sessionID] = s
	}
	if key, ok := s.tiles[coord]; ok {
		return key, nil
	}

	key, err := store.Allocate()
	if err != nil {
		return 0, err
	}
	s.tiles[coord] = key
	return key, nil
}

// Tiles returns a snapshot of sessionID's currently allocated buffer
// tiles, keyed by target coordinate.
func (r *Registry) Tiles(sessionID uint64) map[model.TileCoord]protocol.TileKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make(map[model.TileCoord]protocol.TileKey, len(s.tiles))
	for k, v := range s.tiles {
		out[k] = v
	}
	return out
}

// SetState updates sessionID's retention state, a no-op if the session is
// unknown (already released or never begun).
func (r *Registry) SetState(sessionID uint64, state RetentionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.retention = state
	}
}

// State reports sessionID's current retention state.
func (r *Registry) State(sessionID uint64) (RetentionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, false
	}
	return s.retention, true
}

// Release returns sessionID's buffer tile keys and removes the session
// from the registry; no Released state is recorded, and State reports the
// session as unknown afterwards. The caller is responsible for
// releasing the returned keys from the owning atlas store; Release itself
// never touches the atlas, matching the rest of this package's
// separation between bookkeeping and atlas mutation.
func (r *Registry) Release(sessionID uint64) []protocol.TileKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]protocol.TileKey, 0, len(s.tiles))
	for _, k := range s.tiles {
		out = append(out, k)
	}
	delete(r.sessions, sessionID)
	return out
}
