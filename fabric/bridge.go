package fabric

import "github.com/SunastanS/glaphica/protocol"

// Default channel capacities, per the documented heuristic constants.
// Implementers are expected to parameterize and tune these against load;
// NewBridge accepts overrides for exactly that reason.
const (
	DefaultInputRingCapacity    = 1024
	DefaultInputControlCapacity = 256
	DefaultGpuCommandCapacity   = 1024
	DefaultGpuFeedbackCapacity  = 256
)

// Capacities bundles the four channel capacities a Bridge is constructed
// with.
type Capacities struct {
	InputRing    int
	InputControl int
	GpuCommand   int
	GpuFeedback  int
}

// DefaultCapacities returns the documented heuristic constants.
func DefaultCapacities() Capacities {
	return Capacities{
		InputRing:    DefaultInputRingCapacity,
		InputControl: DefaultInputControlCapacity,
		GpuCommand:   DefaultGpuCommandCapacity,
		GpuFeedback:  DefaultGpuFeedbackCapacity,
	}
}

// Bridge owns the four SPSC channels connecting the engine thread to the
// main/GPU thread. Its Endpoints method may be called at most once; the
// returned endpoints are Send-movable handles, not Sync-shared
// state, enforced by convention (callers must not retain a reference to
// the Bridge itself after splitting it into endpoints).
type Bridge struct {
	inputRing    *LossyChannel[protocol.PointerSample]
	inputControl *ReliableChannel[EngineControlMessage]
	gpuCommand   *ReliableChannel[Command]
	gpuFeedback  *ReliableChannel[*protocol.GpuFeedbackFrame]
}

// ControlKind names an engine-consumed control message. These ride the
// reliable input_control channel rather than the lossy pointer ring:
// dropping a pan delta or a close request is never acceptable, dropping
// one pointer sample under load is.
type ControlKind uint8

const (
	// ControlViewPan pans the view by (X, Y) screen-space pixels.
	ControlViewPan ControlKind = iota
	// ControlViewZoom scales the zoom by Amount about the screen-space
	// anchor (X, Y).
	ControlViewZoom
	// ControlViewRotate rolls the view by Amount radians.
	ControlViewRotate
	// ControlViewMirror toggles the horizontal-flip state.
	ControlViewMirror
	// ControlCloseRequest asks the engine to wind the runtime down.
	ControlCloseRequest
)

func (k ControlKind) String() string {
	switch k {
	case ControlViewPan:
		return "ViewPan"
	case ControlViewZoom:
		return "ViewZoom"
	case ControlViewRotate:
		return "ViewRotate"
	case ControlViewMirror:
		return "ViewMirror"
	case ControlCloseRequest:
		return "CloseRequest"
	default:
		return "Unknown"
	}
}

// EngineControlMessage is a reliable, engine-consumed control message.
type EngineControlMessage struct {
	Kind   ControlKind
	X, Y   float64 // pan delta or zoom anchor, screen space
	Amount float64 // zoom factor or roll delta
}

// NewBridge constructs a bridge with the given channel capacities.
func NewBridge(cap Capacities) *Bridge {
	return &Bridge{
		inputRing:    NewLossyChannel[protocol.PointerSample](cap.InputRing),
		inputControl: NewReliableChannel[EngineControlMessage](cap.InputControl),
		gpuCommand:   NewReliableChannel[Command](cap.GpuCommand),
		gpuFeedback:  NewReliableChannel[*protocol.GpuFeedbackFrame](cap.GpuFeedback),
	}
}

// EngineEndpoint is the set of channel handles owned by the engine thread:
// it produces commands and control messages, and consumes pointer samples
// and feedback frames.
type EngineEndpoint struct {
	InputRing    *LossyChannel[protocol.PointerSample]
	InputControl *ReliableChannel[EngineControlMessage]
	GpuCommand   *ReliableChannel[Command]
	GpuFeedback  *ReliableChannel[*protocol.GpuFeedbackFrame]
}

// MainEndpoint is the set of channel handles owned by the main/GPU thread:
// it consumes commands and produces feedback frames.
type MainEndpoint struct {
	GpuCommand  *ReliableChannel[Command]
	GpuFeedback *ReliableChannel[*protocol.GpuFeedbackFrame]
}

// Endpoints splits the bridge into its two thread-owned endpoint sets.
// Call exactly once; hand each endpoint to exactly one goroutine/thread.
func (b *Bridge) Endpoints() (EngineEndpoint, MainEndpoint) {
	engine := EngineEndpoint{
		InputRing:    b.inputRing,
		InputControl: b.inputControl,
		GpuCommand:   b.gpuCommand,
		GpuFeedback:  b.gpuFeedback,
	}
	main := MainEndpoint{
		GpuCommand:  b.gpuCommand,
		GpuFeedback: b.gpuFeedback,
	}
	return engine, main
}
