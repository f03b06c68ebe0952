package fabric

import "github.com/SunastanS/glaphica/protocol"

// ReceiptKind identifies the concrete type of a Receipt produced by
// executing one Command.
type ReceiptKind uint8

const (
	RcptInitComplete ReceiptKind = iota
	RcptShutdownAck
	RcptResized
	RcptFramePresented
	RcptRenderTreeBound
	RcptBrushCommandsEnqueued
	RcptMergeNotices
	RcptMergeCompletionsProcessed
	RcptMergeResultsAcknowledged
	RcptPlannedMergeEnqueued
)

func (k ReceiptKind) String() string {
	names := [...]string{
		"InitComplete", "ShutdownAck", "Resized", "FramePresented",
		"RenderTreeBound", "BrushCommandsEnqueued", "MergeNotices",
		"MergeCompletionsProcessed", "MergeResultsAcknowledged", "PlannedMergeEnqueued",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Receipt is the interface implemented by every receipt produced from
// executing a Command.
type Receipt interface {
	Kind() ReceiptKind
	MergeKeyValue() uint64 // dedup key used by the mailbox merge
}

type InitCompleteReceipt struct{}

func (InitCompleteReceipt) Kind() ReceiptKind     { return RcptInitComplete }
func (InitCompleteReceipt) MergeKeyValue() uint64 { return 0 }

type ShutdownAckReceipt struct{}

func (ShutdownAckReceipt) Kind() ReceiptKind     { return RcptShutdownAck }
func (ShutdownAckReceipt) MergeKeyValue() uint64 { return 0 }

type ResizedReceipt struct{ Width, Height uint32 }

func (ResizedReceipt) Kind() ReceiptKind     { return RcptResized }
func (ResizedReceipt) MergeKeyValue() uint64 { return 0 }

type FramePresentedReceipt struct{ FrameID uint64 }

func (r FramePresentedReceipt) Kind() ReceiptKind     { return RcptFramePresented }
func (r FramePresentedReceipt) MergeKeyValue() uint64 { return r.FrameID }

type RenderTreeBoundReceipt struct{ Revision uint64 }

func (r RenderTreeBoundReceipt) Kind() ReceiptKind     { return RcptRenderTreeBound }
func (r RenderTreeBoundReceipt) MergeKeyValue() uint64 { return r.Revision }

type BrushCommandsEnqueuedReceipt struct{ Count int }

func (BrushCommandsEnqueuedReceipt) Kind() ReceiptKind     { return RcptBrushCommandsEnqueued }
func (BrushCommandsEnqueuedReceipt) MergeKeyValue() uint64 { return 0 }

type MergeNoticesReceipt struct {
	FrameID uint64
	List    []protocol.CompletionNotice
}

func (r MergeNoticesReceipt) Kind() ReceiptKind     { return RcptMergeNotices }
func (r MergeNoticesReceipt) MergeKeyValue() uint64 { return r.FrameID }

type MergeCompletionsProcessedReceipt struct{ FrameID uint64 }

func (r MergeCompletionsProcessedReceipt) Kind() ReceiptKind     { return RcptMergeCompletionsProcessed }
func (r MergeCompletionsProcessedReceipt) MergeKeyValue() uint64 { return r.FrameID }

type MergeResultsAcknowledgedReceipt struct{ Count int }

func (MergeResultsAcknowledgedReceipt) Kind() ReceiptKind     { return RcptMergeResultsAcknowledged }
func (MergeResultsAcknowledgedReceipt) MergeKeyValue() uint64 { return 0 }

type PlannedMergeEnqueuedReceipt struct{ ReceiptID protocol.ReceiptId }

func (r PlannedMergeEnqueuedReceipt) Kind() ReceiptKind     { return RcptPlannedMergeEnqueued }
func (r PlannedMergeEnqueuedReceipt) MergeKeyValue() uint64 { return uint64(r.ReceiptID) }
