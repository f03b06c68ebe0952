package document

import (
	"sync"
	"sync/atomic"

	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

// LayerKind distinguishes a group layer (which composites its children)
// from a leaf layer (which owns a TileImage).
type LayerKind uint8

const (
	LayerGroup LayerKind = iota
	LayerLeaf
)

// Layer is one node of the document's layer tree.
type Layer struct {
	ID      uint64
	Kind    LayerKind
	Blend   protocol.BlendMode
	Visible bool

	// Image is non-nil only for LayerLeaf nodes.
	Image *TileImage

	// Children holds child layers for LayerGroup nodes, outermost-first
	// in paint order (later entries paint on top of earlier ones).
	Children []*Layer
}

// Document is the layer tree root plus the revision counter bumped on any
// semantic structural change (a node added/removed/reordered, a blend
// mode changed, or an image source changed). Revision is distinct from
// any one leaf's TileImage version: a leaf's pixels can change (bumping
// that leaf's version) without the document's structural revision moving,
// and vice versa for a pure reorder.
type Document struct {
	mu       sync.RWMutex
	root     *Layer
	revision atomic.Uint64
	nextID   atomic.Uint64
}

// NewDocument returns a document with a single empty root group.
func NewDocument() *Document {
	d := &Document{}
	d.root = &Layer{ID: d.allocID(), Kind: LayerGroup, Visible: true}
	return d
}

func (d *Document) allocID() uint64 {
	return d.nextID.Add(1)
}

// Revision returns the document's current structural revision.
func (d *Document) Revision() uint64 {
	return d.revision.Load()
}

// Root returns the document's root group layer. Callers must not mutate
// the returned tree directly; use AddLeaf/RemoveLayer/SetBlendMode so the
// revision counter stays accurate.
func (d *Document) Root() *Layer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// AddLeaf creates a new leaf layer with an empty TileImage under parent
// and bumps the document revision.
func (d *Document) AddLeaf(parent *Layer, blend protocol.BlendMode) *Layer {
	d.mu.Lock()
	defer d.mu.Unlock()
	leaf := &Layer{ID: d.allocID(), Kind: LayerLeaf, Blend: blend, Visible: true, Image: NewTileImage()}
	parent.Children = append(parent.Children, leaf)
	d.revision.Add(1)
	return leaf
}

// AddGroup creates a new group layer under parent and bumps the document
// revision.
func (d *Document) AddGroup(parent *Layer, blend protocol.BlendMode) *Layer {
	d.mu.Lock()
	defer d.mu.Unlock()
	group := &Layer{ID: d.allocID(), Kind: LayerGroup, Blend: blend, Visible: true}
	parent.Children = append(parent.Children, group)
	d.revision.Add(1)
	return group
}

// RemoveLayer removes child from parent's children list, if present, and
// bumps the document revision. Reports whether a child was removed.
func (d *Document) RemoveLayer(parent *Layer, child *Layer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			d.revision.Add(1)
			return true
		}
	}
	return false
}

// SetBlendMode changes a layer's blend mode and bumps the document
// revision, since blend mode participates in the semantic hash.
func (d *Document) SetBlendMode(layer *Layer, mode protocol.BlendMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layer.Blend = mode
	d.revision.Add(1)
}

// SetVisible changes a layer's visibility and bumps the document
// revision.
func (d *Document) SetVisible(layer *Layer, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layer.Visible = visible
	d.revision.Add(1)
}

// FindByID walks the tree looking for a layer with the given id.
func (d *Document) FindByID(id uint64) *Layer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return findByID(d.root, id)
}

func findByID(l *Layer, id uint64) *Layer {
	if l.ID == id {
		return l
	}
	for _, c := range l.Children {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// CommitMerge splices a merge's output tile keys into layerID's image and
// bumps the document revision. This is the only mutation path a finalized
// merge uses; regular brush painting never touches the document until its
// merge commits here.
func (d *Document) CommitMerge(layerID uint64, updates map[model.TileCoord]protocol.TileKey) bool {
	layer := d.FindByID(layerID)
	if layer == nil || layer.Image == nil {
		return false
	}
	layer.Image.SetMany(updates)
	d.revision.Add(1)
	return true
}

// Snapshot builds an immutable RenderTreeSnapshot of the document's
// current structure, tagged with the document's current revision.
func (d *Document) Snapshot() protocol.RenderTreeSnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return protocol.RenderTreeSnapshot{
		Revision: d.revision.Load(),
		Root:     snapshotNode(d.root),
	}
}

func snapshotNode(l *Layer) protocol.RenderNode {
	node := protocol.RenderNode{
		ID:      l.ID,
		Blend:   l.Blend,
		Visible: l.Visible,
	}
	switch l.Kind {
	case LayerLeaf:
		node.Kind = protocol.NodeLeaf
		node.Source = protocol.ImageSource{Kind: protocol.ImageSourceLayer, LayerID: l.ID}
	case LayerGroup:
		node.Kind = protocol.NodeGroup
		node.Children = make([]protocol.RenderNode, len(l.Children))
		for i, c := range l.Children {
			node.Children[i] = snapshotNode(c)
		}
	}
	return node
}
