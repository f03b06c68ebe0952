package executor

import (
	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

// PlanMode classifies how much of a composite node's work the planner
// decided is actually necessary this frame, compared to what its cached
// plan already produced.
type PlanMode uint8

const (
	// PlanSkip reuses the node's cached plan wholesale: neither its
	// semantic shape nor any descendant's pixels changed.
	PlanSkip PlanMode = iota
	// PlanPartial reuses the cached plan's structure but recomputes the
	// draw instances for only the subset of descendants reporting new
	// dirty tiles.
	PlanPartial
	// PlanFull recomputes the node from scratch: its semantic hash
	// changed (structure, blend mode, or image source), so no part of
	// the previous plan can be trusted.
	PlanFull
)

func (m PlanMode) String() string {
	switch m {
	case PlanSkip:
		return "Skip"
	case PlanPartial:
		return "Partial"
	default:
		return "Full"
	}
}

// DrawInstance is one leaf's contribution to a composite node's plan: the
// tile coordinates it must read. The tile image version each leaf was
// planned at is kept in the planner cache entry, not here.
type DrawInstance struct {
	LayerID  uint64
	Source   protocol.ImageSource
	Blend    protocol.BlendMode
	DirtySet []model.TileCoord
}

// CompositeNodePlan is a FramePlanner.Plan result for one render-tree node.
type CompositeNodePlan struct {
	NodeID   uint64
	Mode     PlanMode
	Instances []DrawInstance
}

// planKey identifies one cache entry: a node plus the kind of image source
// it resolves to, since a node's effective plan depends on whether it is
// reading committed layer content or a transient brush buffer.
type planKey struct {
	nodeID uint64
	kind   protocol.ImageSourceKind
}

type cacheEntry struct {
	semanticHash uint64
	plan         CompositeNodePlan
	dirtyVersion map[uint64]uint64 // leaf layer id -> TileImage version observed
}

// PlannerCache holds one entry per (node, source kind) pair across frames,
// the basis for the planner's skip/partial/full decision.
type PlannerCache struct {
	entries map[planKey]*cacheEntry
}

// NewPlannerCache returns an empty cache.
func NewPlannerCache() *PlannerCache {
	return &PlannerCache{entries: make(map[planKey]*cacheEntry)}
}

// Resolver supplies the live state the planner needs but does not own:
// current leaf tile-image versions and dirty coordinates since a given
// version.
type Resolver interface {
	// DirtySince returns the tile coordinates of layerID that changed
	// since previousVersion, plus its current version.
	DirtySince(layerID uint64, previousVersion uint64) ([]model.TileCoord, uint64)
}

// FramePlanner walks a RenderTreeSnapshot bottom-up, deciding for each
// composite node whether last frame's plan can be reused untouched
// (PlanSkip), partially reused (PlanPartial, only dirty leaves
// recomputed), or must be rebuilt (PlanFull, its semantic hash changed).
type FramePlanner struct {
	cache *PlannerCache
	res   Resolver
}

// NewFramePlanner constructs a planner backed by cache and res.
func NewFramePlanner(cache *PlannerCache, res Resolver) *FramePlanner {
	return &FramePlanner{cache: cache, res: res}
}

// Plan walks snapshot's tree and returns one CompositeNodePlan per group
// node, in the same depth-first order groups are visited (root last).
func (p *FramePlanner) Plan(snapshot protocol.RenderTreeSnapshot) []CompositeNodePlan {
	var out []CompositeNodePlan
	p.planNode(snapshot.Root, &out)
	return out
}

func (p *FramePlanner) planNode(n protocol.RenderNode, out *[]CompositeNodePlan) {
	if n.Kind == protocol.NodeLeaf {
		return
	}
	for _, c := range n.Children {
		p.planNode(c, out)
	}
	*out = append(*out, p.planGroup(n))
}

func (p *FramePlanner) planGroup(n protocol.RenderNode) CompositeNodePlan {
	key := planKey{nodeID: n.ID, kind: protocol.ImageSourceLayer}
	hash := groupSemanticHash(n)
	entry, existed := p.cache.entries[key]

	if !existed {
		plan := p.buildFull(n)
		p.cache.entries[key] = &cacheEntry{semanticHash: hash, plan: plan, dirtyVersion: p.versionsOf(plan)}
		return plan
	}

	if entry.semanticHash != hash {
		plan := p.buildFull(n)
		entry.semanticHash = hash
		entry.plan = plan
		entry.dirtyVersion = p.versionsOf(plan)
		return plan
	}

	anyDirty := false
	instances := make([]DrawInstance, len(entry.plan.Instances))
	copy(instances, entry.plan.Instances)
	for i := range instances {
		if instances[i].Source.Kind != protocol.ImageSourceLayer {
			continue
		}
		layerID := instances[i].Source.LayerID
		prevVersion := entry.dirtyVersion[layerID]
		dirty, newVersion := p.res.DirtySince(layerID, prevVersion)
		if len(dirty) > 0 {
			instances[i].DirtySet = dirty
			entry.dirtyVersion[layerID] = newVersion
			anyDirty = true
		} else {
			instances[i].DirtySet = nil
		}
	}

	mode := PlanSkip
	if anyDirty {
		mode = PlanPartial
	}
	plan := CompositeNodePlan{NodeID: n.ID, Mode: mode, Instances: instances}
	entry.plan = plan
	return plan
}

func (p *FramePlanner) buildFull(n protocol.RenderNode) CompositeNodePlan {
	var instances []DrawInstance
	for _, c := range n.Children {
		if c.Kind != protocol.NodeLeaf || !c.Visible {
			continue
		}
		var dirty []model.TileCoord
		if c.Source.Kind == protocol.ImageSourceLayer {
			dirty, _ = p.res.DirtySince(c.Source.LayerID, 0)
		}
		instances = append(instances, DrawInstance{
			LayerID:  c.Source.LayerID,
			Source:   c.Source,
			Blend:    c.Blend,
			DirtySet: dirty,
		})
	}
	return CompositeNodePlan{NodeID: n.ID, Mode: PlanFull, Instances: instances}
}

func (p *FramePlanner) versionsOf(plan CompositeNodePlan) map[uint64]uint64 {
	m := make(map[uint64]uint64, len(plan.Instances))
	for _, inst := range plan.Instances {
		if inst.Source.Kind == protocol.ImageSourceLayer {
			_, version := p.res.DirtySince(inst.LayerID, 0)
			m[inst.LayerID] = version
		}
	}
	return m
}

// groupSemanticHash hashes only the shape-relevant fields of a group node
// and its direct leaf children's identity (not their pixel content), so a
// pure pixel edit never forces PlanFull.
func groupSemanticHash(n protocol.RenderNode) uint64 {
	h := uint64(14695981039346656037)
	const prime = uint64(1099511628211)
	mix := func(v uint64) {
		for i := 0; i < 8; i++ {
			h ^= v & 0xff
			h *= prime
			v >>= 8
		}
	}
	mix(uint64(n.Blend))
	mix(uint64(len(n.Children)))
	for _, c := range n.Children {
		mix(c.ID)
		mix(uint64(c.Kind))
		mix(uint64(c.Blend))
		visible := uint64(0)
		if c.Visible {
			visible = 1
		}
		mix(visible)
		mix(uint64(c.Source.Kind))
		mix(c.Source.LayerID)
		mix(c.Source.StrokeSessionID)
	}
	return h
}
