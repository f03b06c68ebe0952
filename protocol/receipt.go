package protocol

import "fmt"

// ReceiptId identifies one planned merge across its entire lifecycle, from
// plan_merge through finalize. It is minted by the merge engine and is
// stable across retries -- a retried submission reuses the same ReceiptId
// rather than minting a new one, so duplicate completion notices can be
// deduplicated by merge-key.
type ReceiptId uint64

// ReceiptState is the lifecycle stage of a merge receipt. Transitions are
// one-directional: Pending -> {Succeeded, Failed} -> Finalized -> Aborted is
// not reachable once Finalized; BufferReleased always follows Finalized.
type ReceiptState uint8

const (
	// ReceiptPending has been submitted to the fabric but not yet completed.
	ReceiptPending ReceiptState = iota
	// ReceiptSucceeded completed execution and is awaiting acknowledgement.
	ReceiptSucceeded
	// ReceiptFailed completed with an error and is awaiting acknowledgement.
	ReceiptFailed
	// ReceiptFinalized has been committed by finalize after its ack_result;
	// its output tile is visible to subsequent reads.
	ReceiptFinalized
	// ReceiptAborted was withdrawn before completion (session release,
	// shutdown) and will never produce output.
	ReceiptAborted
	// ReceiptBufferReleased has had its retained scratch buffer returned to
	// the pool; the receipt itself is retained only for duplicate detection.
	ReceiptBufferReleased
)

func (s ReceiptState) String() string {
	switch s {
	case ReceiptPending:
		return "Pending"
	case ReceiptSucceeded:
		return "Succeeded"
	case ReceiptFailed:
		return "Failed"
	case ReceiptFinalized:
		return "Finalized"
	case ReceiptAborted:
		return "Aborted"
	case ReceiptBufferReleased:
		return "BufferReleased"
	default:
		return fmt.Sprintf("ReceiptState(%d)", uint8(s))
	}
}

// CanTransitionTo reports whether moving from s to next is a legal receipt
// state transition.
func (s ReceiptState) CanTransitionTo(next ReceiptState) bool {
	switch s {
	case ReceiptPending:
		return next == ReceiptSucceeded || next == ReceiptFailed || next == ReceiptAborted
	case ReceiptSucceeded, ReceiptFailed:
		return next == ReceiptFinalized || next == ReceiptAborted
	case ReceiptFinalized:
		return next == ReceiptBufferReleased
	default:
		return false
	}
}

// MergeKey identifies the logical unit of work a receipt represents
// (stroke session plus output tile), used to deduplicate completion
// notices that arrive more than once across a mailbox merge.
type MergeKey struct {
	StrokeSessionID uint64
	OutputTile      TileKey
}
