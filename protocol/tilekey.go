// Package protocol defines the wire-level types shared by every other
// component: opaque tile handles, submission tokens, waterlines, receipt
// identifiers, and the render-tree/brush-command shapes that cross the
// engine/executor boundary. None of these types carry behavior beyond
// encoding and equality -- the state machines that interpret them live in
// atlas, document, merge, and fabric.
package protocol

import "fmt"

// BackendKind identifies a tile atlas's pixel format family.
type BackendKind uint8

const (
	// BackendRGBA8 stores 8-bit-per-channel premultiplied color tiles.
	BackendRGBA8 BackendKind = iota
	// BackendR32Float stores single-channel float tiles (brush buffers, masks).
	BackendR32Float
	// BackendR8Uint stores single-channel 8-bit tiles (coverage, stencils).
	BackendR8Uint
)

func (k BackendKind) String() string {
	switch k {
	case BackendRGBA8:
		return "RGBA8"
	case BackendR32Float:
		return "R32Float"
	case BackendR8Uint:
		return "R8Uint"
	default:
		return fmt.Sprintf("BackendKind(%d)", uint8(k))
	}
}

// TileKey is an opaque 64-bit handle into a TileAtlasStore. It packs three
// fields so that a stale handle from a freed slot can never be confused
// with the slot's current occupant:
//
//	bits [63:56] backend kind  (8 bits)
//	bits [55:32] generation    (24 bits)
//	bits [31:0]  slot index    (32 bits)
//
// Equality is exact bit-for-bit equality; a key minted against an older
// generation of its slot is a different TileKey even though the slot index
// matches.
type TileKey uint64

const (
	backendShift    = 56
	generationShift = 32
	generationMask  = (1 << 24) - 1
	slotMask        = (1 << 32) - 1
)

// NewTileKey packs a backend kind, generation, and slot index into a TileKey.
// The generation is truncated to 24 bits and the slot index to 32 bits.
func NewTileKey(backend BackendKind, generation uint32, slot uint32) TileKey {
	return TileKey(uint64(backend)<<backendShift |
		uint64(generation&generationMask)<<generationShift |
		uint64(slot&slotMask))
}

// Backend returns the packed backend kind.
func (k TileKey) Backend() BackendKind {
	return BackendKind(uint64(k) >> backendShift)
}

// Generation returns the packed generation counter.
func (k TileKey) Generation() uint32 {
	return uint32((uint64(k) >> generationShift) & generationMask)
}

// Slot returns the packed slot index.
func (k TileKey) Slot() uint32 {
	return uint32(uint64(k) & slotMask)
}

// IsZero reports whether k is the zero value (never a valid allocated key).
func (k TileKey) IsZero() bool {
	return k == 0
}

func (k TileKey) String() string {
	return fmt.Sprintf("TileKey(%s,gen=%d,slot=%d)", k.Backend(), k.Generation(), k.Slot())
}

// TileAddress is a TileKey resolved to a physical atlas location. It is only
// valid for the frame in which it was resolved unless the caller separately
// holds a SubmissionToken guarding the referencing batch -- the underlying
// slot may be released and reallocated to an unrelated key as soon as the
// resolver returns.
type TileAddress struct {
	AtlasLayer uint32
	TileIndex  uint32
	// Generation is the slot generation observed at resolve time, copied
	// from the resolved TileKey for convenience.
	Generation uint32
}
