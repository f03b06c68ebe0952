package protocol

import "fmt"

// ErrorKind classifies an error by how the outer loop must react: a logic
// bug (hard-asserted in debug, surfaced with full context in release), a
// recoverable condition (retry/redraw), or an unrecoverable condition
// (terminate after a final diagnostic frame).
type ErrorKind uint8

const (
	ErrorLogicBug ErrorKind = iota
	ErrorRecoverable
	ErrorUnrecoverable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorLogicBug:
		return "LogicBug"
	case ErrorRecoverable:
		return "Recoverable"
	case ErrorUnrecoverable:
		return "Unrecoverable"
	default:
		return "Unknown"
	}
}

// AtlasError is the non-fatal error set returned by TileAtlasStore
// operations. Every other atlas-internal inconsistency is a hard
// assertion, not a value of this type.
type AtlasError struct {
	Op   string
	Key  TileKey
	Kind AtlasErrorKind
}

type AtlasErrorKind uint8

const (
	AtlasFull AtlasErrorKind = iota
	AtlasNotFound
	AtlasGenerationMismatch
)

func (e *AtlasError) Error() string {
	switch e.Kind {
	case AtlasFull:
		return fmt.Sprintf("atlas: %s: full", e.Op)
	case AtlasNotFound:
		return fmt.Sprintf("atlas: %s: %s: not found", e.Op, e.Key)
	case AtlasGenerationMismatch:
		return fmt.Sprintf("atlas: %s: %s: generation mismatch", e.Op, e.Key)
	default:
		return fmt.Sprintf("atlas: %s: unknown error", e.Op)
	}
}

// ErrorKind reports the severity classification for this error: atlas errors
// are always recoverable (trigger eviction, or retry) per the error
// taxonomy's definition.
func (e *AtlasError) ErrorKind() ErrorKind { return ErrorRecoverable }

// TileSetError is returned by release_set_atomic when a multi-key release
// could not be completed atomically; no keys were released.
type TileSetError struct {
	FailedKey TileKey
	Reason    string
}

func (e *TileSetError) Error() string {
	return fmt.Sprintf("atlas: release_set_atomic: %s: %s", e.FailedKey, e.Reason)
}

// TileGpuDrainError is returned by drain_and_execute on an unrecoverable
// GPU failure encountered while draining the staged operation queue.
type TileGpuDrainError struct {
	Detail string
}

func (e *TileGpuDrainError) Error() string {
	return fmt.Sprintf("atlas: drain_and_execute: %s", e.Detail)
}

func (e *TileGpuDrainError) ErrorKind() ErrorKind { return ErrorUnrecoverable }

// Merge engine error taxonomy.

type TileMergeErrorKind uint8

const (
	TileMergeDuplicateOutput TileMergeErrorKind = iota
)

type TileMergeError struct {
	Kind  TileMergeErrorKind
	Coord string
}

func (e *TileMergeError) Error() string {
	return fmt.Sprintf("merge: plan_merge: duplicate output at %s", e.Coord)
}

type MergeSubmitErrorKind uint8

const (
	MergeSubmitStrokeNotEnded MergeSubmitErrorKind = iota
)

type MergeSubmitError struct {
	Kind MergeSubmitErrorKind
}

func (e *MergeSubmitError) Error() string {
	return "merge: submit: stroke not ended"
}

type MergeAckErrorKind uint8

const (
	MergeAckIllegalState MergeAckErrorKind = iota
)

type MergeAckError struct {
	Kind     MergeAckErrorKind
	Receipt  ReceiptId
	Observed ReceiptState
}

func (e *MergeAckError) Error() string {
	return fmt.Sprintf("merge: ack_result: %d: illegal state (observed %s)", e.Receipt, e.Observed)
}

// MergePollError surfaces a GPU device error through the polling channel
// rather than through the atlas drain path.
type MergePollError struct {
	Detail string
}

func (e *MergePollError) Error() string {
	return fmt.Sprintf("merge: poll_completion_notices: %s", e.Detail)
}

// Fabric-level errors.

type FabricError struct {
	Kind   FabricErrorKind
	Detail string
}

type FabricErrorKind uint8

const (
	FabricInvalidCommand FabricErrorKind = iota
	FabricCommandFailed
	FabricChannelClosed
	FabricTimeout
	FabricFeedbackQueueTimeout
)

func (e *FabricError) Error() string {
	switch e.Kind {
	case FabricInvalidCommand:
		return "fabric: invalid command"
	case FabricCommandFailed:
		return fmt.Sprintf("fabric: command failed: %s", e.Detail)
	case FabricChannelClosed:
		return "fabric: channel closed"
	case FabricTimeout:
		return fmt.Sprintf("fabric: timeout: %s", e.Detail)
	case FabricFeedbackQueueTimeout:
		return "fabric: feedback queue timeout"
	default:
		return "fabric: unknown error"
	}
}

// AppCoreError unifies runtime, surface, brush-enqueue, merge, logic-bug
// and unrecoverable errors for uniform handling at the top-level loop. It
// wraps the underlying component error without discarding it.
type AppCoreError struct {
	Kind ErrorKind
	Err  error
}

func (e *AppCoreError) Error() string {
	return fmt.Sprintf("appcore[%s]: %s", e.Kind, e.Err)
}

func (e *AppCoreError) Unwrap() error { return e.Err }

// NewAppCoreError wraps err with the given severity classification.
func NewAppCoreError(kind ErrorKind, err error) *AppCoreError {
	return &AppCoreError{Kind: kind, Err: err}
}
