package atlas

import (
	"github.com/SunastanS/glaphica/protocol"
)

type opKind uint8

const (
	opUpload opKind = iota
	opClear
)

// stagedOp is one entry of the store's FIFO operation queue. It carries
// the generation observed when the op was enqueued so drain_and_execute
// can detect a slot that was released and reallocated out from under it.
type stagedOp struct {
	kind       opKind
	pageIndex  uint32
	slot       uint32
	generation uint32
	bytes      []byte // meaningful only for opUpload
}

func (s *Store) enqueueOp(op stagedOp) {
	s.opsMu.Lock()
	s.ops = append(s.ops, op)
	s.opsMu.Unlock()
}

// EnqueueUpload validates key, resolves it, and appends an upload op
// carrying the generation observed at enqueue time.
func (s *Store) EnqueueUpload(key protocol.TileKey, bytes []byte) error {
	addr, err := s.Resolve(key)
	if err != nil {
		return err
	}
	p := s.pageAt(addr.AtlasLayer)
	p.markDirty(addr.TileIndex)
	s.enqueueOp(stagedOp{kind: opUpload, pageIndex: addr.AtlasLayer, slot: addr.TileIndex, generation: addr.Generation, bytes: bytes})
	return nil
}

// EnqueueClear validates key, resolves it, and appends a clear op.
func (s *Store) EnqueueClear(key protocol.TileKey) error {
	addr, err := s.Resolve(key)
	if err != nil {
		return err
	}
	s.enqueueOp(stagedOp{kind: opClear, pageIndex: addr.AtlasLayer, slot: addr.TileIndex, generation: addr.Generation})
	return nil
}

// DrainAndExecute pops all currently staged ops in FIFO order and writes
// survivors to the GPU-backed pages via gpu. An op whose recorded
// generation no longer matches the slot's current generation is skipped:
// the slot was released (and may have been reallocated) since the op was
// enqueued.
func (s *Store) DrainAndExecute(gpu GPUQueue) (int, error) {
	s.opsMu.Lock()
	ops := s.ops
	s.ops = nil
	s.opsMu.Unlock()

	executed := 0
	for _, op := range ops {
		p := s.pageAt(op.pageIndex)
		if p.currentGeneration(op.slot) != op.generation {
			continue
		}

		switch op.kind {
		case opUpload:
			if err := p.texture.UploadTile(gpu, op.slot, op.bytes); err != nil {
				return executed, &protocol.TileGpuDrainError{Detail: err.Error()}
			}
			p.clearDirty(op.slot)
		case opClear:
			if err := p.texture.ClearTile(gpu, op.slot); err != nil {
				return executed, &protocol.TileGpuDrainError{Detail: err.Error()}
			}
			p.clearDirty(op.slot)
		}
		executed++
	}
	return executed, nil
}

// PendingOpCount reports the number of ops currently staged; exposed for
// tests and diagnostics, not part of the drain contract.
func (s *Store) PendingOpCount() int {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()
	return len(s.ops)
}
