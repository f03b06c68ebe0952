package scheduler

import "testing"

func TestActivatesAndEmitsQuotaOnFirstBrushHotFrame(t *testing.T) {
	s := New(Config{MaxBrushCommandsPerFrame: 16, MinBrushCommandsPerFrame: 4})

	decision := s.ScheduleFrame(Input{
		FrameSequenceID:      42,
		BrushHotPathActive:   true,
		PendingBrushCommands: 200,
	})

	if !decision.SchedulerActive {
		t.Fatal("expected scheduler active")
	}
	if decision.BrushCommandsToRender != 16 {
		t.Errorf("BrushCommandsToRender = %d, want 16", decision.BrushCommandsToRender)
	}
	if decision.UpdateReason != BrushHotPathActivated {
		t.Errorf("UpdateReason = %v, want BrushHotPathActivated", decision.UpdateReason)
	}
}

func TestEmitsQuotaOnEachHotPathFrame(t *testing.T) {
	s := New(DefaultConfig())
	_ = s.ScheduleFrame(Input{FrameSequenceID: 1, BrushHotPathActive: true, PendingBrushCommands: 20})
	second := s.ScheduleFrame(Input{FrameSequenceID: 2, BrushHotPathActive: true, PendingBrushCommands: 3})

	if !second.SchedulerActive {
		t.Fatal("expected scheduler active")
	}
	if second.BrushCommandsToRender != 8 {
		t.Errorf("BrushCommandsToRender = %d, want 8 (min floor)", second.BrushCommandsToRender)
	}
	if second.UpdateReason != BrushHotPathTick {
		t.Errorf("UpdateReason = %v, want BrushHotPathTick", second.UpdateReason)
	}
}

func TestDeactivatesAndEmitsZeroQuota(t *testing.T) {
	s := New(DefaultConfig())
	_ = s.ScheduleFrame(Input{FrameSequenceID: 1, BrushHotPathActive: true, PendingBrushCommands: 5})
	decision := s.ScheduleFrame(Input{FrameSequenceID: 2, BrushHotPathActive: false})

	if decision.SchedulerActive {
		t.Fatal("expected scheduler inactive")
	}
	if !decision.HasBrushCommandsToRender || decision.BrushCommandsToRender != 0 {
		t.Errorf("decision = %+v, want zero quota present", decision)
	}
	if decision.UpdateReason != BrushHotPathDeactivated {
		t.Errorf("UpdateReason = %v, want BrushHotPathDeactivated", decision.UpdateReason)
	}
}

func TestNeverActivatesWithoutBrushHotPath(t *testing.T) {
	s := New(DefaultConfig())
	decision := s.ScheduleFrame(Input{FrameSequenceID: 7})

	if decision.SchedulerActive {
		t.Fatal("expected scheduler inactive")
	}
	if decision.HasBrushCommandsToRender {
		t.Errorf("expected no quota emitted, got %+v", decision)
	}
}

func TestUsesZeroQuotaForEmptyPendingCommands(t *testing.T) {
	s := New(DefaultConfig())
	decision := s.ScheduleFrame(Input{FrameSequenceID: 77, BrushHotPathActive: true})

	if decision.BrushCommandsToRender != 0 {
		t.Errorf("BrushCommandsToRender = %d, want 0", decision.BrushCommandsToRender)
	}
}
