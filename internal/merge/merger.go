// internal/merge/merger.go - Dissolve of adjacent tile fragments
package merge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/internal/layer"
	"github.com/valpere/tile_merge/internal/spatial"
)

// Merger dissolves fragments of the same object that were cut apart at tile
// boundaries. Every group of touching fragments ends up as one feature, the
// one with the lowest id, carrying the union geometry and a group id in the
// dissolveGroup attribute. The other members are deleted.
type Merger struct {
	opts   Options
	logger *zap.Logger
}

// NewMerger creates a merger; zero option fields take their defaults
func NewMerger(opts *Options) *Merger {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}

	o := *opts
	if o.ProximityTolerance < 0 {
		o.ProximityTolerance = 0
	}
	if o.BufferSegments <= 0 {
		o.BufferSegments = defaults.BufferSegments
	}
	if o.NewIndex == nil {
		o.NewIndex = defaults.NewIndex
	}
	if o.NewGroupID == nil {
		o.NewGroupID = defaults.NewGroupID
	}
	if o.Logger == nil {
		o.Logger = defaults.Logger
	}

	return &Merger{opts: o, logger: o.Logger}
}

// Merge dissolves the features of store inside one edit session.
//
// Cancellation through ctx stops the run at the next check; the work done
// so far is committed and the result is marked cancelled. Invalid
// geometries and failed unions are logged and counted, only a failing store
// aborts the run, in which case the session is rolled back.
func (m *Merger) Merge(ctx context.Context, store layer.Store) (*Result, error) {
	start := time.Now()
	result := &Result{Layer: store.Name()}

	if err := store.BeginEdit(); err != nil {
		return result, storeError("begin edit of", store, err)
	}

	r := &run{
		ctx:      ctx,
		opts:     &m.opts,
		logger:   m.logger.With(zap.String("layer", store.Name())),
		store:    store,
		index:    m.opts.NewIndex(),
		features: make(map[layer.FeatureID]*layer.Feature),
		boxes:    make(map[layer.FeatureID]geometry.Rect),
		result:   result,
	}

	if err := r.execute(); err != nil {
		if rollbackErr := store.RollbackEdit(); rollbackErr != nil {
			err = multierr.Append(err, rollbackErr)
		}
		return result, err
	}

	if err := store.CommitEdit(); err != nil {
		return result, storeError("commit", store, err)
	}

	result.Remaining = store.Len()
	result.Duration = time.Since(start)

	r.logger.Info("merge finished",
		zap.Int("features", result.Features),
		zap.Int("groups", result.Groups),
		zap.Int("merged", result.Merged),
		zap.Int("invalid", result.Invalid),
		zap.Int("null_union", result.NullUnion),
		zap.Bool("cancelled", result.Cancelled),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func storeError(op string, store layer.Store, err error) error {
	return internal.NewError(internal.ErrorCodeStoreTransaction,
		fmt.Sprintf("failed to %s layer %s", op, store.Name()), err)
}

// run holds the state of one Merge call
type run struct {
	ctx    context.Context
	opts   *Options
	logger *zap.Logger
	store  layer.Store
	index  spatial.Index
	result *Result

	// snapshot of the layer taken at the start of the run
	features map[layer.FeatureID]*layer.Feature
	order    []layer.FeatureID
	boxes    map[layer.FeatureID]geometry.Rect
}

// group is the state shared by all frames expanding one dissolve group
type group struct {
	id       string
	root     *layer.Feature
	rootErr  error
	geometry geometry.Geometry
	// candidates refused by this group, not retried by its later frames
	rejected map[layer.FeatureID]struct{}
}

func (r *run) execute() error {
	if !r.store.HasAttribute(layer.DissolveGroupField) {
		if err := r.store.AddAttribute(layer.DissolveGroupField); err != nil {
			return storeError("add group attribute to", r.store, err)
		}
	}

	features := r.store.Features()
	r.result.Features = len(features)

	for _, f := range features {
		if r.opts.ResetGroups && f.Grouped() {
			delete(f.Attributes, layer.DissolveGroupField)
			if err := r.store.UpdateFeature(f); err != nil {
				return storeError("reset groups of", r.store, err)
			}
		}
		r.features[f.ID] = f
		r.order = append(r.order, f.ID)
	}

	for _, id := range r.order {
		if r.ctx.Err() != nil {
			break
		}
		f := r.features[id]
		if f.Geometry == nil {
			continue
		}
		box := f.Geometry.BoundingBox()
		if r.index.Insert(id, box) {
			r.boxes[id] = box
			r.result.Indexed++
		}
	}

	for i, id := range r.order {
		if r.ctx.Err() != nil {
			r.result.Cancelled = true
			break
		}

		root := r.features[id]
		if root.Grouped() {
			r.result.Skipped++
			continue
		}

		g := &group{id: r.opts.NewGroupID(), root: root, rejected: make(map[layer.FeatureID]struct{})}
		root.SetAttribute(layer.DissolveGroupField, g.id)
		r.result.Groups++

		if err := r.expand(g); err != nil {
			return err
		}
		if err := r.store.UpdateFeature(root); err != nil {
			return storeError("update", r.store, err)
		}

		if r.opts.Progress != nil {
			r.opts.Progress(i+1, len(r.order))
		}
		if r.ctx.Err() != nil {
			r.result.Cancelled = true
			break
		}
	}

	return nil
}

// expand grows a group from its root. Each absorbed fragment becomes a
// frame of its own whose neighbours are merged into the same root; frames
// run depth first.
func (r *run) expand(g *group) error {
	if g.root.Geometry == nil {
		return nil
	}
	if errs := g.root.Geometry.Validate(); len(errs) > 0 {
		g.rootErr = fmt.Errorf("root %d: %w", g.root.ID, multierr.Combine(errs...))
	}

	stack := []layer.FeatureID{g.root.ID}
	for len(stack) > 0 {
		if r.ctx.Err() != nil {
			return nil
		}

		seed := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		absorbed, err := r.expandFrame(g, seed)
		if err != nil {
			return err
		}
		for i := len(absorbed) - 1; i >= 0; i-- {
			stack = append(stack, absorbed[i])
		}
	}
	return nil
}

// expandFrame merges every fragment touching the group that the index finds
// around seed. It returns the ids it absorbed, in merge order.
func (r *run) expandFrame(g *group, seedID layer.FeatureID) ([]layer.FeatureID, error) {
	seed := r.features[seedID]
	if seed == nil || seed.Geometry == nil || r.ctx.Err() != nil {
		return nil, nil
	}

	working := seed.Geometry.Buffer(0, r.opts.BufferSegments)
	if working == nil || working.IsEmpty() {
		r.logger.Debug("seed geometry is empty after normalization",
			zap.Int64("feature", int64(seedID)),
			zap.String("type", seed.Geometry.Type()))
		return nil, nil
	}
	if g.geometry == nil {
		g.geometry = working
	}

	r.index.Delete(seedID)
	queue := r.index.Query(r.searchBox(working))

	var absorbed []layer.FeatureID
	restore := make(map[layer.FeatureID]struct{})

	// Fragments that were not absorbed go back to the index so later frames
	// and later roots can still reach them.
	defer func() {
		for id := range restore {
			if f := r.features[id]; f != nil && !f.Grouped() {
				r.index.Insert(id, r.boxes[id])
			}
		}
	}()

	for len(queue) > 0 {
		if r.ctx.Err() != nil {
			break
		}

		id := queue[0]
		queue = queue[1:]
		r.index.Delete(id)

		candidate := r.features[id]
		if candidate == nil || candidate.Grouped() {
			continue
		}
		if _, refused := g.rejected[id]; refused {
			restore[id] = struct{}{}
			continue
		}
		if candidate.Geometry == nil || candidate.Geometry.Disjoint(g.geometry) {
			restore[id] = struct{}{}
			continue
		}
		delete(restore, id)

		candidate.SetAttribute(layer.DissolveGroupField, g.id)

		if r.ctx.Err() != nil {
			release(candidate)
			restore[id] = struct{}{}
			break
		}
		normalized := candidate.Geometry.Buffer(0, r.opts.BufferSegments)

		if err := r.validate(g, candidate, normalized); err != nil {
			r.logger.Warn("skipping fragment with invalid geometry",
				zap.String("group", g.id),
				zap.Int64("root", int64(g.root.ID)),
				zap.Int64("candidate", int64(id)),
				zap.Error(err))
			r.reject(g, candidate, restore)
			r.result.Invalid++
			continue
		}

		union := g.geometry.Combine(normalized)
		if union == nil || union.IsEmpty() {
			r.logger.Warn("skipping fragment",
				zap.String("group", g.id),
				zap.Int64("root", int64(g.root.ID)),
				zap.Int64("candidate", int64(id)),
				zap.Error(ErrNullUnionResult))
			r.reject(g, candidate, restore)
			r.result.NullUnion++
			continue
		}

		if err := r.store.DeleteFeature(id); err != nil {
			return absorbed, storeError("delete fragment from", r.store, err)
		}
		g.geometry = union
		g.root.Geometry = union
		if err := r.store.UpdateFeature(g.root); err != nil {
			return absorbed, storeError("update", r.store, err)
		}

		absorbed = append(absorbed, id)
		r.result.Merged++

		queue = append(queue, r.index.Query(union.BoundingBox())...)
	}

	return absorbed, nil
}

// searchBox is the area around a seed in which neighbours are looked up
func (r *run) searchBox(working geometry.Geometry) geometry.Rect {
	if r.opts.ProximityTolerance > 0 {
		if reach := working.Buffer(r.opts.ProximityTolerance, r.opts.BufferSegments); reach != nil && !reach.IsEmpty() {
			return reach.BoundingBox()
		}
	}
	return working.BoundingBox().Expand(r.opts.ProximityTolerance)
}

// validate checks every geometry taking part in a merge
func (r *run) validate(g *group, candidate *layer.Feature, normalized geometry.Geometry) error {
	err := g.rootErr

	if errs := candidate.Geometry.Validate(); len(errs) > 0 {
		err = multierr.Append(err, fmt.Errorf("candidate %d: %w", candidate.ID, multierr.Combine(errs...)))
	}
	if normalized == nil || normalized.IsEmpty() {
		err = multierr.Append(err, fmt.Errorf("candidate %d: %w", candidate.ID,
			&geometry.ValidationError{Reason: "empty after normalization"}))
	} else if errs := normalized.Validate(); len(errs) > 0 {
		err = multierr.Append(err, fmt.Errorf("normalized candidate %d: %w", candidate.ID, multierr.Combine(errs...)))
	}
	if errs := g.geometry.Validate(); len(errs) > 0 {
		err = multierr.Append(err, fmt.Errorf("group %s: %w", g.id, multierr.Combine(errs...)))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrGeometryValidationFailed, err)
	}
	return nil
}

// reject returns a candidate to the pool of ungrouped features
func (r *run) reject(g *group, candidate *layer.Feature, restore map[layer.FeatureID]struct{}) {
	release(candidate)
	g.rejected[candidate.ID] = struct{}{}
	restore[candidate.ID] = struct{}{}
}

func release(f *layer.Feature) {
	delete(f.Attributes, layer.DissolveGroupField)
}
