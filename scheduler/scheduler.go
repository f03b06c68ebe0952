// Package scheduler decides, once per engine-loop tick, how many brush
// commands the engine is allowed to render this frame and whether the
// engine should keep requesting continuous redraws.
package scheduler

// Config bounds the brush-command quota handed out on a hot-path tick.
type Config struct {
	MaxBrushCommandsPerFrame uint32
	MinBrushCommandsPerFrame uint32
}

// DefaultConfig matches the original engine's tuning constants.
func DefaultConfig() Config {
	return Config{
		MaxBrushCommandsPerFrame: 128,
		MinBrushCommandsPerFrame: 8,
	}
}

// Input is the per-tick observation the scheduler decides from.
type Input struct {
	FrameSequenceID      uint64
	BrushHotPathActive   bool
	PendingBrushCommands uint32
	PreviousFrameGpuMicros uint64 // 0 means "unknown"
}

// UpdateReason explains why a Decision's state differs from steady state.
type UpdateReason uint8

const (
	ReasonNone UpdateReason = iota
	BrushHotPathActivated
	BrushHotPathTick
	BrushHotPathDeactivated
)

func (r UpdateReason) String() string {
	switch r {
	case BrushHotPathActivated:
		return "BrushHotPathActivated"
	case BrushHotPathTick:
		return "BrushHotPathTick"
	case BrushHotPathDeactivated:
		return "BrushHotPathDeactivated"
	default:
		return "None"
	}
}

// Decision is the scheduler's per-tick output.
type Decision struct {
	FrameSequenceID        uint64
	SchedulerActive        bool
	BrushCommandsToRender  uint32
	HasBrushCommandsToRender bool
	UpdateReason           UpdateReason
}

// Scheduler tracks whether the brush hot path is currently driving
// continuous redraws.
type Scheduler struct {
	config Config
	active bool
}

// New constructs a scheduler with the given config.
func New(config Config) *Scheduler {
	return &Scheduler{config: config}
}

// IsActive reports whether the scheduler is currently requesting
// continuous redraws.
func (s *Scheduler) IsActive() bool {
	return s.active
}

// ScheduleFrame computes this tick's quota and activity transition.
func (s *Scheduler) ScheduleFrame(input Input) Decision {
	if input.BrushHotPathActive {
		wasInactive := !s.active
		s.active = true
		quota := s.brushQuotaForPending(input.PendingBrushCommands)
		reason := BrushHotPathTick
		if wasInactive {
			reason = BrushHotPathActivated
		}
		return Decision{
			FrameSequenceID:          input.FrameSequenceID,
			SchedulerActive:          true,
			BrushCommandsToRender:    quota,
			HasBrushCommandsToRender: true,
			UpdateReason:             reason,
		}
	}

	if s.active {
		s.active = false
		return Decision{
			FrameSequenceID:          input.FrameSequenceID,
			SchedulerActive:          false,
			BrushCommandsToRender:    0,
			HasBrushCommandsToRender: true,
			UpdateReason:             BrushHotPathDeactivated,
		}
	}

	return Decision{
		FrameSequenceID: input.FrameSequenceID,
		SchedulerActive: false,
	}
}

func (s *Scheduler) brushQuotaForPending(pending uint32) uint32 {
	if pending == 0 {
		return 0
	}
	floor, ceiling := s.config.MinBrushCommandsPerFrame, s.config.MaxBrushCommandsPerFrame
	if floor > ceiling {
		panic("scheduler: MinBrushCommandsPerFrame exceeds MaxBrushCommandsPerFrame")
	}
	return clamp(pending, floor, ceiling)
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
