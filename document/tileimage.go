// Package document owns the layer tree: the group/leaf structure of a
// drawing, each leaf's TileImage, and the revision counter bumped on any
// semantic structural change.
package document

import (
	"sync"

	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

// tileEntry is one sparse tile slot of a TileImage: the current content
// key and the image version at which it last changed.
type tileEntry struct {
	key       protocol.TileKey
	changedAt uint64
}

// TileImage is a virtual, unbounded image composed of sparse tiles, each
// referenced by an opaque TileKey. It carries a monotonically increasing
// version bumped on every mutation and supports dirty_since(v) queries
// without scanning the whole image: each tile records the version at
// which it last changed, grounded on the same "one record per unit,
// queried by recency" shape as an atomic dirty bitmap but adapted to a
// sparse, unbounded coordinate space where a fixed-size bitset would not
// fit.
type TileImage struct {
	mu      sync.RWMutex
	tiles   map[model.TileCoord]tileEntry
	version uint64
}

// NewTileImage returns an empty TileImage at version 0.
func NewTileImage() *TileImage {
	return &TileImage{tiles: make(map[model.TileCoord]tileEntry)}
}

// Version returns the image's current version.
func (t *TileImage) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Get returns the tile key at coord, if any tile is present there.
func (t *TileImage) Get(coord model.TileCoord) (protocol.TileKey, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.tiles[coord]
	return e.key, ok
}

// Set installs key as the content of coord, bumping the image version and
// recording that coord changed at the new version. Passing the zero
// TileKey removes the tile (the coordinate becomes unoccupied).
func (t *TileImage) Set(coord model.TileCoord, key protocol.TileKey) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.version++
	if key.IsZero() {
		delete(t.tiles, coord)
	} else {
		t.tiles[coord] = tileEntry{key: key, changedAt: t.version}
	}
	return t.version
}

// SetMany applies a batch of coord->key updates as a single version bump,
// used by the merge engine's finalize step to splice a whole plan's
// mappings in as one atomic change.
func (t *TileImage) SetMany(updates map[model.TileCoord]protocol.TileKey) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.version++
	for coord, key := range updates {
		if key.IsZero() {
			delete(t.tiles, coord)
		} else {
			t.tiles[coord] = tileEntry{key: key, changedAt: t.version}
		}
	}
	return t.version
}

// DirtySince returns every tile coordinate that has changed since
// previousVersion, plus the image's current version. A previousVersion of
// 0 returns every occupied coordinate (the image is "fully dirty").
func (t *TileImage) DirtySince(previousVersion uint64) ([]model.TileCoord, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var changed []model.TileCoord
	for coord, e := range t.tiles {
		if e.changedAt > previousVersion {
			changed = append(changed, coord)
		}
	}
	return changed, t.version
}

// TileCount returns the number of occupied tile coordinates; for
// diagnostics and tests.
func (t *TileImage) TileCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tiles)
}
