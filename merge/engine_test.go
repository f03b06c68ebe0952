package merge

import (
	"testing"

	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

func planOneTile(t *testing.T, strokeSession, layerID uint64, strokeKey, outputKey protocol.TileKey) protocol.MergePlan {
	t.Helper()
	coord := model.TileCoord{X: 0, Y: 0}
	plan, err := PlanMerge(strokeSession, layerID, protocol.BlendNormal,
		[]model.TileCoord{coord},
		func(model.TileCoord) (protocol.TileKey, bool) { return 0, false },
		func(model.TileCoord) (protocol.TileKey, bool) { return strokeKey, true },
		func() (protocol.TileKey, error) { return outputKey, nil },
	)
	if err != nil {
		t.Fatalf("PlanMerge: %v", err)
	}
	return plan
}

func TestPlanMergeDuplicateOutput(t *testing.T) {
	coord := model.TileCoord{X: 0, Y: 0}
	_, err := PlanMerge(1, 1, protocol.BlendNormal,
		[]model.TileCoord{coord, coord},
		func(model.TileCoord) (protocol.TileKey, bool) { return 0, false },
		func(model.TileCoord) (protocol.TileKey, bool) { return protocol.NewTileKey(protocol.BackendRGBA8, 0, 1), true },
		func() (protocol.TileKey, error) { return protocol.NewTileKey(protocol.BackendRGBA8, 0, 2), nil },
	)
	if err == nil {
		t.Fatalf("expected duplicate-output error")
	}
	if _, ok := err.(*protocol.TileMergeError); !ok {
		t.Fatalf("expected *protocol.TileMergeError, got %T", err)
	}
}

func TestSubmitRejectsUnendedStroke(t *testing.T) {
	e := NewEngine(0)
	if err := e.BeginStroke(1, 1); err != nil {
		t.Fatalf("BeginStroke: %v", err)
	}
	plan := planOneTile(t, 1, 1, protocol.NewTileKey(protocol.BackendRGBA8, 0, 1), protocol.NewTileKey(protocol.BackendRGBA8, 0, 2))
	if _, err := e.Submit(plan, 1); err == nil {
		t.Fatalf("expected StrokeNotEnded before EndStroke")
	}
	e.EndStroke(1)
	if _, err := e.Submit(plan, 1); err != nil {
		t.Fatalf("Submit after EndStroke: %v", err)
	}
}

func TestBeginStrokeRejectsWhileEarlierSessionOpen(t *testing.T) {
	e := NewEngine(0)
	if err := e.BeginStroke(1, 1); err != nil {
		t.Fatalf("BeginStroke(1): %v", err)
	}
	if err := e.BeginStroke(2, 1); err == nil {
		t.Fatalf("BeginStroke(2) should be rejected while session 1 is still open")
	}
	e.EndStroke(1)
	plan := planOneTile(t, 1, 1, protocol.NewTileKey(protocol.BackendRGBA8, 0, 1), protocol.NewTileKey(protocol.BackendRGBA8, 0, 2))
	if _, err := e.Submit(plan, 1); err != nil {
		t.Fatalf("Submit(1): %v", err)
	}
	if err := e.BeginStroke(2, 1); err != nil {
		t.Fatalf("BeginStroke(2) should succeed once session 1 has submitted: %v", err)
	}
}

func TestAckResultDuplicateFailsFast(t *testing.T) {
	e := NewEngine(0)
	e.BeginStroke(1, 1)
	e.EndStroke(1)
	plan := planOneTile(t, 1, 1, protocol.NewTileKey(protocol.BackendRGBA8, 0, 1), protocol.NewTileKey(protocol.BackendRGBA8, 0, 2))
	id, err := e.Submit(plan, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	notice := protocol.CompletionNotice{ReceiptID: id, Succeeded: true}
	if _, err := e.AckResult(notice); err != nil {
		t.Fatalf("first AckResult: %v", err)
	}
	state, _ := e.State(id)
	if state != protocol.ReceiptSucceeded {
		t.Fatalf("state = %v, want Succeeded", state)
	}

	if _, err := e.AckResult(notice); err == nil {
		t.Fatalf("duplicate AckResult must fail")
	}
	state, _ = e.State(id)
	if state != protocol.ReceiptSucceeded {
		t.Fatalf("state must be unchanged after a failed duplicate ack, got %v", state)
	}
}

func TestFinalizeCommitAppliesAndRetains(t *testing.T) {
	e := NewEngine(0)
	e.BeginStroke(1, 1)
	e.EndStroke(1)
	strokeKey := protocol.NewTileKey(protocol.BackendR32Float, 0, 1)
	plan := planOneTile(t, 1, 1, strokeKey, protocol.NewTileKey(protocol.BackendRGBA8, 0, 2))
	id, _ := e.Submit(plan, 1)
	e.AckResult(protocol.CompletionNotice{ReceiptID: id, Succeeded: true})

	applied := false
	if err := e.Finalize(id, true, func(p protocol.MergePlan) { applied = true }); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !applied {
		t.Fatalf("commit must invoke apply")
	}

	// The retention window holds the stroke's buffer tiles, not the
	// committed output keys: outputs belong to the document after commit.
	keys, ok := e.RetainStroke(1)
	if !ok {
		t.Fatalf("stroke should be retained after commit")
	}
	if len(keys) != 1 || keys[0] != strokeKey {
		t.Fatalf("retained keys = %v, want [%v]", keys, strokeKey)
	}
}

func TestFinalizeAbortDoesNotApply(t *testing.T) {
	e := NewEngine(0)
	e.BeginStroke(1, 1)
	e.EndStroke(1)
	plan := planOneTile(t, 1, 1, protocol.NewTileKey(protocol.BackendRGBA8, 0, 1), protocol.NewTileKey(protocol.BackendRGBA8, 0, 2))
	id, _ := e.Submit(plan, 1)
	e.AckResult(protocol.CompletionNotice{ReceiptID: id, Succeeded: false})

	applied := false
	if err := e.Finalize(id, false, func(p protocol.MergePlan) { applied = true }); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if applied {
		t.Fatalf("abort must not invoke apply")
	}
	if _, ok := e.RetainStroke(1); ok {
		t.Fatalf("aborted stroke must not be retained")
	}
}
