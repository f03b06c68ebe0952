package fabric

import "github.com/SunastanS/glaphica/protocol"

// MailboxState accumulates the engine's merged view of feedback across
// however many frames have been drained since the last apply. It is
// reused across merges to avoid a per-merge allocation.
type MailboxState struct {
	frame        protocol.GpuFeedbackFrame
	seenReceipts map[uint64]struct{}
	seenErrors   map[uint64]struct{}
}

// NewMailboxState returns an empty mailbox ready to absorb feedback
// frames.
func NewMailboxState() *MailboxState {
	return &MailboxState{
		seenReceipts: make(map[uint64]struct{}),
		seenErrors:   make(map[uint64]struct{}),
	}
}

// Reset clears the mailbox back to empty, for reuse after the engine
// applies a merged frame.
func (m *MailboxState) Reset() {
	m.frame = protocol.GpuFeedbackFrame{}
	for k := range m.seenReceipts {
		delete(m.seenReceipts, k)
	}
	for k := range m.seenErrors {
		delete(m.seenErrors, k)
	}
}

// Merged returns the current absorbed frame.
func (m *MailboxState) Merged() protocol.GpuFeedbackFrame {
	return m.frame
}

// Absorb merges incoming into the mailbox's running state: present_frame_id
// and every waterline take the max of the two observations; receipts and
// errors concatenate, deduplicating by merge-key against everything
// absorbed so far.
func (m *MailboxState) Absorb(incoming protocol.GpuFeedbackFrame) {
	if incoming.PresentFrameID > m.frame.PresentFrameID {
		m.frame.PresentFrameID = incoming.PresentFrameID
	}
	m.frame.SubmitWaterline = m.frame.SubmitWaterline.Max(incoming.SubmitWaterline)
	m.frame.ExecutedBatchWaterline = m.frame.ExecutedBatchWaterline.Max(incoming.ExecutedBatchWaterline)
	m.frame.CompleteWaterline = m.frame.CompleteWaterline.Max(incoming.CompleteWaterline)

	for _, r := range incoming.Receipts {
		key := uint64(r.ReceiptID)
		if _, dup := m.seenReceipts[key]; dup {
			continue
		}
		m.seenReceipts[key] = struct{}{}
		m.frame.Receipts = append(m.frame.Receipts, r)
	}

	for _, e := range incoming.Errors {
		if _, dup := m.seenErrors[e.DedupKey]; dup {
			continue
		}
		m.seenErrors[e.DedupKey] = struct{}{}
		m.frame.Errors = append(m.frame.Errors, e)
	}
}
