// internal/spatial/index.go - Bounding box index over feature ids
package spatial

import (
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/internal/layer"
)

// Index maps feature ids to bounding boxes. The set of ids it holds is
// independent of the store: removing an id from the index does not delete
// the feature.
type Index interface {
	// Insert adds id with the given box, replacing an earlier entry for id.
	// Empty boxes are not indexed.
	Insert(id layer.FeatureID, bbox geometry.Rect) bool
	// Delete removes id; unknown ids are a no-op returning false.
	Delete(id layer.FeatureID) bool
	// Query returns the ids whose box intersects bbox, in ascending order.
	Query(bbox geometry.Rect) []layer.FeatureID
	Len() int
}

// Default R-tree node sizes, same as used for chart feature indexes
const (
	DefaultMinChildren = 25
	DefaultMaxChildren = 50
)

// padding keeps degenerate boxes (points, axis aligned lines) indexable and
// makes boxes that merely touch count as intersecting
const padding = 1e-9

// entry is the value stored in the tree. Entries are pointers so the tree
// can find them again on delete.
type entry struct {
	id   layer.FeatureID
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// RTree is an Index backed by rtreego
type RTree struct {
	tree    *rtreego.Rtree
	entries map[layer.FeatureID]*entry
}

// NewRTree creates an empty 2-D R-tree index
func NewRTree(minChildren, maxChildren int) (*RTree, error) {
	if minChildren < 1 || maxChildren < 2*minChildren {
		return nil, fmt.Errorf("invalid R-tree node sizes %d/%d: max must be at least twice min", minChildren, maxChildren)
	}
	return &RTree{
		tree:    rtreego.NewTree(2, minChildren, maxChildren),
		entries: make(map[layer.FeatureID]*entry),
	}, nil
}

// NewDefaultRTree creates an R-tree with the default node sizes
func NewDefaultRTree() *RTree {
	return &RTree{
		tree:    rtreego.NewTree(2, DefaultMinChildren, DefaultMaxChildren),
		entries: make(map[layer.FeatureID]*entry),
	}
}

func (t *RTree) Insert(id layer.FeatureID, bbox geometry.Rect) bool {
	if bbox.IsEmpty() {
		return false
	}
	rect, err := toRect(bbox)
	if err != nil {
		return false
	}

	t.Delete(id)

	e := &entry{id: id, rect: rect}
	t.tree.Insert(e)
	t.entries[id] = e
	return true
}

func (t *RTree) Delete(id layer.FeatureID) bool {
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	delete(t.entries, id)
	return t.tree.Delete(e)
}

func (t *RTree) Query(bbox geometry.Rect) []layer.FeatureID {
	if bbox.IsEmpty() || len(t.entries) == 0 {
		return nil
	}
	rect, err := toRect(bbox)
	if err != nil {
		return nil
	}

	found := t.tree.SearchIntersect(rect)
	ids := make([]layer.FeatureID, 0, len(found))
	for _, s := range found {
		ids = append(ids, s.(*entry).id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *RTree) Len() int {
	return len(t.entries)
}

func toRect(bbox geometry.Rect) (rtreego.Rect, error) {
	padded := bbox.Expand(padding)
	point := rtreego.Point{padded.MinX, padded.MinY}
	lengths := []float64{padded.Width(), padded.Height()}
	return rtreego.NewRect(point, lengths)
}
