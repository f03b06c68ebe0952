package protocol

// CompletionNotice is emitted by the GPU executor when it has confirmed
// the GPU fence or submission index enclosing a receipt has passed. It is
// the sole authoritative source of completion information for the merge
// engine; polling for notices never mutates receipt state by itself.
type CompletionNotice struct {
	ReceiptID ReceiptId
	Succeeded bool
	// Detail carries audit metadata on failure; empty on success.
	Detail string
}

// GpuFeedbackFrame is the reliable-delta-plus-absorptive-waterline payload
// carried back from the main/GPU thread to the engine thread once per
// main-loop tick. Receipts and errors are deltas (never re-sent once
// consumed by the engine); waterlines are absorptive observations merged
// by max across any number of frames sitting in the mailbox.
type GpuFeedbackFrame struct {
	PresentFrameID         uint64
	SubmitWaterline        Waterline
	ExecutedBatchWaterline Waterline
	CompleteWaterline      Waterline
	Receipts               []CompletionNotice
	Errors                 []FeedbackError
}

// FeedbackError is a fabric-level or passthrough component error riding
// inside a GpuFeedbackFrame, tagged with a MergeKey-less dedup key so
// repeated delivery of the same underlying failure collapses to one entry
// during a mailbox merge.
type FeedbackError struct {
	Kind   ErrorKind
	Detail string
	// DedupKey identifies the originating event for merge deduplication;
	// two errors with the same DedupKey and Kind are the same error.
	DedupKey uint64
}
