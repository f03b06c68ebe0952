package atlas

import (
	"fmt"
	"sort"
	"sync"

	"github.com/SunastanS/glaphica/protocol"
)

// shardCount must be a power of two; chosen to keep per-shard contention
// low without the shard-selection hash costing more than a shift-and-mask.
const shardCount = 32
const shardMask = shardCount - 1

// record is what a shard stores for one live TileKey: the physical slot it
// currently occupies.
type record struct {
	pageIndex uint32
	slot      uint32
}

type shard struct {
	mu      sync.Mutex
	entries map[protocol.TileKey]record
}

// PageFactory constructs the GPU-backed storage for one new atlas page
// (one texture-array layer). Supplied by the executor at Store
// construction so this package stays independent of any concrete hal
// device handle until a page actually needs to grow.
type PageFactory func(layerIndex uint32) (GPUTextureArrayLayer, error)

// EvictionNotice is pushed whenever a key is released due to external
// retention pressure rather than a normal merge-driven release. The merge
// engine consumes these to transition dependent receipts without treating
// the eviction as a hard failure.
type EvictionNotice struct {
	Key      protocol.TileKey
	RetainID uint64
}

// Store is a TileAtlasStore for one payload kind (backend). It owns a
// sharded key->slot index and a set of pages, each independently
// allocatable, plus a FIFO staged operation queue drained once per GPU
// batch.
type Store struct {
	backend     protocol.BackendKind
	newPage     PageFactory
	maxPages    uint32
	evictedFunc func(EvictionNotice)

	shards [shardCount]*shard

	pagesMu sync.Mutex
	pages   []*page

	opsMu sync.Mutex
	ops   []stagedOp
}

// NewStore constructs an atlas store for one backend kind. maxPages bounds
// how many texture-array layers the store may grow to before allocate
// reports AtlasFull; newPage is invoked lazily the first time a new page is
// needed.
func NewStore(backend protocol.BackendKind, maxPages uint32, newPage PageFactory) *Store {
	s := &Store{
		backend:  backend,
		newPage:  newPage,
		maxPages: maxPages,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[protocol.TileKey]record)}
	}
	return s
}

// OnEviction registers a callback invoked whenever release_for_eviction
// frees a key due to external retention pressure. Only one callback may be
// registered; a later call replaces an earlier one.
func (s *Store) OnEviction(f func(EvictionNotice)) {
	s.evictedFunc = f
}

func (s *Store) shardFor(key protocol.TileKey) *shard {
	h := uint64(key.Slot()) * 2654435761
	return s.shards[h&shardMask]
}

// allocate picks any page with a free slot, pops a free slot, constructs a
// TileKey, and inserts it into the owning shard's index. If no page has a
// free slot and the store is below maxPages, a new page is created first.
func (s *Store) Allocate() (protocol.TileKey, error) {
	p, slot, generation, ok := s.allocateSlotFromExistingPages()
	if !ok {
		var err error
		p, slot, generation, err = s.growAndAllocate()
		if err != nil {
			return 0, err
		}
	}

	key := protocol.NewTileKey(s.backend, generation, packSlotIndex(p.layerIndex, slot))
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = record{pageIndex: p.layerIndex, slot: slot}
	sh.mu.Unlock()
	return key, nil
}

func (s *Store) allocateSlotFromExistingPages() (*page, uint32, uint32, bool) {
	s.pagesMu.Lock()
	pages := s.pages
	s.pagesMu.Unlock()
	for _, p := range pages {
		if slot, gen, ok := p.allocate(); ok {
			return p, slot, gen, true
		}
	}
	return nil, 0, 0, false
}

func (s *Store) growAndAllocate() (*page, uint32, uint32, error) {
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()

	// Re-check: another goroutine may have grown the store while we waited.
	for _, p := range s.pages {
		if slot, gen, ok := p.allocate(); ok {
			return p, slot, gen, nil
		}
	}

	if uint32(len(s.pages)) >= s.maxPages {
		return nil, 0, 0, &protocol.AtlasError{Op: "allocate", Kind: protocol.AtlasFull}
	}

	layerIndex := uint32(len(s.pages))
	gpuLayer, err := s.newPage(layerIndex)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("atlas: grow page %d: %w", layerIndex, err)
	}
	p := newPage(layerIndex, gpuLayer)
	s.pages = append(s.pages, p)

	slot, gen, ok := p.allocate()
	if !ok {
		// A fresh page always has free slots; this would be a logic bug.
		panic("atlas: freshly created page reports no free slots")
	}
	return p, slot, gen, nil
}

// packSlotIndex combines a page index and an in-page slot offset into the
// 32-bit slot_index field of a TileKey.
func packSlotIndex(pageIndex, slot uint32) uint32 {
	return pageIndex*SlotsPerPage + slot
}

func unpackSlotIndex(packed uint32) (pageIndex, slot uint32) {
	return packed / SlotsPerPage, packed % SlotsPerPage
}

// Resolve looks up key's physical location, validating its generation
// against the page's current generation for that slot.
func (s *Store) Resolve(key protocol.TileKey) (protocol.TileAddress, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	rec, found := sh.entries[key]
	sh.mu.Unlock()
	if !found {
		return protocol.TileAddress{}, &protocol.AtlasError{Op: "resolve", Key: key, Kind: protocol.AtlasNotFound}
	}

	p := s.pageAt(rec.pageIndex)
	gen := p.currentGeneration(rec.slot)
	if gen != key.Generation() {
		return protocol.TileAddress{}, &protocol.AtlasError{Op: "resolve", Key: key, Kind: protocol.AtlasGenerationMismatch}
	}
	return protocol.TileAddress{AtlasLayer: rec.pageIndex, TileIndex: rec.slot, Generation: gen}, nil
}

func (s *Store) pageAt(index uint32) *page {
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()
	return s.pages[index]
}

// PageCount reports how many atlas pages have been grown so far.
func (s *Store) PageCount() int {
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()
	return len(s.pages)
}

// SlotsOccupied reports how many live keys the store currently indexes,
// summed across shards. Intended for metrics sampling, not hot paths.
func (s *Store) SlotsOccupied() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}

// IsAllocated reports whether key currently resolves to a live slot.
func (s *Store) IsAllocated(key protocol.TileKey) bool {
	_, err := s.Resolve(key)
	return err == nil
}

// Release removes key from its shard's index, bumps the slot's generation,
// returns the slot to its page's free list, and enqueues a Clear op.
// Idempotent: releasing an already-released (or unknown) key returns false.
func (s *Store) Release(key protocol.TileKey) bool {
	return s.releaseInternal(key, false)
}

// releaseForEviction is identical to Release but additionally raises an
// EvictionNotice, used when the atlas itself initiates the release under
// retention pressure rather than the merge engine driving it.
func (s *Store) ReleaseForEviction(key protocol.TileKey, retainID uint64) bool {
	released := s.releaseInternal(key, false)
	if released && s.evictedFunc != nil {
		s.evictedFunc(EvictionNotice{Key: key, RetainID: retainID})
	}
	return released
}

func (s *Store) releaseInternal(key protocol.TileKey, _ bool) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	rec, found := sh.entries[key]
	if found {
		delete(sh.entries, key)
	}
	sh.mu.Unlock()
	if !found {
		return false
	}

	p := s.pageAt(rec.pageIndex)
	p.release(rec.slot)
	s.enqueueOp(stagedOp{kind: opClear, pageIndex: rec.pageIndex, slot: rec.slot, generation: p.currentGeneration(rec.slot)})
	return true
}

// ReleaseSetAtomic performs a deterministic multi-shard release. Shard ids
// touched by the given keys are sorted ascending and locked in that order
// so concurrent multi-key releases can never deadlock against each other.
// Either every key releases or none do.
func (s *Store) ReleaseSetAtomic(keys []protocol.TileKey) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	shardIdxOf := make(map[int]struct{})
	for _, k := range keys {
		h := uint64(k.Slot()) * 2654435761
		shardIdxOf[int(h&shardMask)] = struct{}{}
	}
	shardIdxs := make([]int, 0, len(shardIdxOf))
	for idx := range shardIdxOf {
		shardIdxs = append(shardIdxs, idx)
	}
	sort.Ints(shardIdxs)

	for _, idx := range shardIdxs {
		s.shards[idx].mu.Lock()
	}
	defer func() {
		for _, idx := range shardIdxs {
			s.shards[idx].mu.Unlock()
		}
	}()

	// Validate every key exists before mutating anything, so the operation
	// can still fail cleanly with observable state unchanged.
	recs := make([]record, len(keys))
	for i, k := range keys {
		sh := s.shardFor(k)
		rec, found := sh.entries[k]
		if !found {
			return 0, &protocol.TileSetError{FailedKey: k, Reason: "not found"}
		}
		recs[i] = rec
	}

	for i, k := range keys {
		sh := s.shardFor(k)
		delete(sh.entries, k)
		p := s.pageAt(recs[i].pageIndex)
		p.release(recs[i].slot)
		s.enqueueOp(stagedOp{kind: opClear, pageIndex: recs[i].pageIndex, slot: recs[i].slot, generation: p.currentGeneration(recs[i].slot)})
	}
	return len(keys), nil
}
