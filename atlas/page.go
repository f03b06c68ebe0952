// Package atlas implements the tile atlas store: a sharded CPU index
// mapping opaque TileKey handles to physical slots within a set of
// texture-array-backed pages, a generation-bumped free-list allocator per
// page, and a staged GPU operation queue drained once per batch.
package atlas

import (
	"sync"
	"sync/atomic"

	"github.com/SunastanS/glaphica/model"
)

// SlotsPerPageSide is the number of slots along one edge of a page; a page
// holds SlotsPerPageSide*SlotsPerPageSide slots arranged in a grid across
// one texture-array layer.
const SlotsPerPageSide = 16

// SlotsPerPage is the total slot count of one page.
const SlotsPerPage = SlotsPerPageSide * SlotsPerPageSide

// page is one texture-array layer's slot bookkeeping: a per-slot
// generation counter bumped on every release, a stack of free slots, and
// a dirty bit per slot set by enqueue_upload and cleared once
// drain_and_execute writes the slot.
type page struct {
	layerIndex uint32

	mu         sync.Mutex
	generation []uint32 // len SlotsPerPage
	freeList   []uint32 // stack of free slot indices

	dirty []atomic.Uint64 // bitset, ceil(SlotsPerPage/64) words

	texture GPUTextureArrayLayer
}

func newPage(layerIndex uint32, texture GPUTextureArrayLayer) *page {
	p := &page{
		layerIndex: layerIndex,
		generation: make([]uint32, SlotsPerPage),
		freeList:   make([]uint32, SlotsPerPage),
		dirty:      make([]atomic.Uint64, (SlotsPerPage+63)/64),
		texture:    texture,
	}
	for i := range p.freeList {
		// Populate back-to-front so slot 0 is allocated first.
		p.freeList[i] = uint32(SlotsPerPage - 1 - i)
	}
	return p
}

// allocate pops a free slot, returning its index and current generation.
// Returns ok=false if the page has no free slots.
func (p *page) allocate() (slot uint32, generation uint32, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.freeList)
	if n == 0 {
		return 0, 0, false
	}
	slot = p.freeList[n-1]
	p.freeList = p.freeList[:n-1]
	return slot, p.generation[slot], true
}

// release bumps the slot's generation and returns it to the free list.
// It is the caller's responsibility to ensure the slot is not double-freed;
// release never fails.
func (p *page) release(slot uint32) (newGeneration uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation[slot]++
	p.freeList = append(p.freeList, slot)
	return p.generation[slot]
}

// currentGeneration reads the slot's generation without mutating free-list
// state; used by resolve and by drain_and_execute's generation check.
func (p *page) currentGeneration(slot uint32) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation[slot]
}

func (p *page) markDirty(slot uint32) {
	word, bit := slot/64, slot%64
	p.dirty[word].Or(uint64(1) << bit)
}

func (p *page) clearDirty(slot uint32) {
	word, bit := slot/64, slot%64
	p.dirty[word].And(^(uint64(1) << bit))
}

// slotOrigin returns the pixel-space origin of a slot's TileStride x
// TileStride region within the page's texture-array layer.
func slotOrigin(slot uint32) (x, y uint32) {
	row := slot / SlotsPerPageSide
	col := slot % SlotsPerPageSide
	return col * model.TileStride, row * model.TileStride
}
