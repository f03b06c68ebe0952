package executor

import (
	"testing"

	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

type fakeResolver struct {
	dirty   map[uint64][]model.TileCoord
	version map[uint64]uint64
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{dirty: make(map[uint64][]model.TileCoord), version: make(map[uint64]uint64)}
}

func (r *fakeResolver) DirtySince(layerID uint64, previousVersion uint64) ([]model.TileCoord, uint64) {
	cur := r.version[layerID]
	if previousVersion >= cur {
		return nil, cur
	}
	return r.dirty[layerID], cur
}

func leafNode(id, layerID uint64) protocol.RenderNode {
	return protocol.RenderNode{
		ID: id, Kind: protocol.NodeLeaf, Visible: true,
		Source: protocol.ImageSource{Kind: protocol.ImageSourceLayer, LayerID: layerID},
	}
}

func TestFramePlannerFullOnFirstPlan(t *testing.T) {
	res := newFakeResolver()
	planner := NewFramePlanner(NewPlannerCache(), res)

	tree := protocol.RenderTreeSnapshot{Revision: 1, Root: protocol.RenderNode{
		ID: 1, Kind: protocol.NodeGroup, Visible: true,
		Children: []protocol.RenderNode{leafNode(2, 100)},
	}}

	plans := planner.Plan(tree)
	if len(plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(plans))
	}
	if plans[0].Mode != PlanFull {
		t.Fatalf("Mode = %v, want PlanFull on first plan", plans[0].Mode)
	}
}

func TestFramePlannerSkipWhenNothingChanged(t *testing.T) {
	res := newFakeResolver()
	planner := NewFramePlanner(NewPlannerCache(), res)
	tree := protocol.RenderTreeSnapshot{Revision: 1, Root: protocol.RenderNode{
		ID: 1, Kind: protocol.NodeGroup, Visible: true,
		Children: []protocol.RenderNode{leafNode(2, 100)},
	}}

	planner.Plan(tree)
	plans := planner.Plan(tree)
	if plans[0].Mode != PlanSkip {
		t.Fatalf("Mode = %v, want PlanSkip when tree and content are unchanged", plans[0].Mode)
	}
}

func TestFramePlannerPartialWhenLeafContentDirty(t *testing.T) {
	res := newFakeResolver()
	planner := NewFramePlanner(NewPlannerCache(), res)
	tree := protocol.RenderTreeSnapshot{Revision: 1, Root: protocol.RenderNode{
		ID: 1, Kind: protocol.NodeGroup, Visible: true,
		Children: []protocol.RenderNode{leafNode(2, 100)},
	}}

	planner.Plan(tree)

	res.version[100] = 1
	res.dirty[100] = []model.TileCoord{{X: 0, Y: 0}}

	plans := planner.Plan(tree)
	if plans[0].Mode != PlanPartial {
		t.Fatalf("Mode = %v, want PlanPartial when a leaf's content changed", plans[0].Mode)
	}
	if len(plans[0].Instances[0].DirtySet) != 1 {
		t.Fatalf("DirtySet = %v, want one coordinate", plans[0].Instances[0].DirtySet)
	}
}

func TestFramePlannerFullWhenStructureChanges(t *testing.T) {
	res := newFakeResolver()
	planner := NewFramePlanner(NewPlannerCache(), res)
	tree := protocol.RenderTreeSnapshot{Revision: 1, Root: protocol.RenderNode{
		ID: 1, Kind: protocol.NodeGroup, Visible: true,
		Children: []protocol.RenderNode{leafNode(2, 100)},
	}}
	planner.Plan(tree)

	tree2 := protocol.RenderTreeSnapshot{Revision: 2, Root: protocol.RenderNode{
		ID: 1, Kind: protocol.NodeGroup, Visible: true,
		Children: []protocol.RenderNode{leafNode(2, 100), leafNode(3, 200)},
	}}
	plans := planner.Plan(tree2)
	if plans[0].Mode != PlanFull {
		t.Fatalf("Mode = %v, want PlanFull after adding a child changes the semantic hash", plans[0].Mode)
	}
	if len(plans[0].Instances) != 2 {
		t.Fatalf("Instances = %d, want 2 after structural change", len(plans[0].Instances))
	}
}
