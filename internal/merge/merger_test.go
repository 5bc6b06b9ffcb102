// internal/merge/merger_test.go - Unit tests for the merge engine
package merge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/tile_merge/internal"
	"github.com/valpere/tile_merge/internal/geometry"
	"github.com/valpere/tile_merge/internal/layer"
)

func mustWKT(t *testing.T, wkt string) *geometry.GEOS {
	t.Helper()
	g, err := geometry.FromWKT(wkt)
	require.NoError(t, err)
	return g
}

func squareWKT(minX, minY, maxX, maxY float64) string {
	return fmt.Sprintf("POLYGON ((%g %g, %g %g, %g %g, %g %g, %g %g))",
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY)
}

// newStore adds one feature per WKT, ids follow the argument order
func newStore(t *testing.T, wkts ...string) *layer.MemoryStore {
	t.Helper()
	store := layer.NewMemoryStore("fragments")
	for i, wkt := range wkts {
		_, err := store.AddFeature(layer.NewFeature(mustWKT(t, wkt), map[string]interface{}{"index": i}))
		require.NoError(t, err)
	}
	return store
}

// testOptions numbers groups g1, g2, ... so assertions can name them
func testOptions() *Options {
	opts := DefaultOptions()
	next := 0
	opts.NewGroupID = func() string {
		next++
		return fmt.Sprintf("g%d", next)
	}
	return opts
}

func area(t *testing.T, g geometry.Geometry) float64 {
	t.Helper()
	gg, ok := g.(*geometry.GEOS)
	require.True(t, ok)
	return gg.Area()
}

func TestMerge_DisjointFeaturesUntouched(t *testing.T) {
	store := newStore(t, squareWKT(0, 0, 10, 10), squareWKT(100, 100, 110, 110))

	result, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Groups)
	assert.Zero(t, result.Merged)
	assert.Equal(t, 2, result.Remaining)
	assert.False(t, store.IsEditing())

	features := store.Features()
	require.Len(t, features, 2)
	assert.True(t, features[0].Geometry.Equals(mustWKT(t, squareWKT(0, 0, 10, 10))))
	assert.True(t, features[1].Geometry.Equals(mustWKT(t, squareWKT(100, 100, 110, 110))))
	assert.Equal(t, "g1", features[0].DissolveGroup())
	assert.Equal(t, "g2", features[1].DissolveGroup())
}

func TestMerge_TwoTouchingFragments(t *testing.T) {
	store := newStore(t, squareWKT(0, 0, 10, 10), squareWKT(10, 0, 20, 10))

	result, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 1, result.Merged)

	features := store.Features()
	require.Len(t, features, 1)
	survivor := features[0]
	assert.Equal(t, layer.FeatureID(1), survivor.ID)
	assert.Equal(t, "g1", survivor.DissolveGroup())
	assert.True(t, survivor.Geometry.Equals(mustWKT(t, squareWKT(0, 0, 20, 10))))
	assert.Equal(t, 0, survivor.Attributes["index"], "the root keeps its attributes")
}

func TestMerge_TransitiveChain(t *testing.T) {
	a := squareWKT(0, 0, 10, 10)
	b := squareWKT(10, 0, 20, 10)
	c := squareWKT(20, 0, 30, 10)

	tests := []struct {
		name  string
		order []string
	}{
		{"in order", []string{a, b, c}},
		{"far end before middle", []string{a, c, b}},
		{"middle first", []string{b, a, c}},
		{"far end first", []string{c, a, b}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, tt.order...)

			result, err := NewMerger(testOptions()).Merge(context.Background(), store)
			require.NoError(t, err)

			assert.Equal(t, 1, result.Groups)
			assert.Equal(t, 2, result.Merged)

			features := store.Features()
			require.Len(t, features, 1)
			assert.Equal(t, layer.FeatureID(1), features[0].ID)
			assert.True(t, features[0].Geometry.Equals(mustWKT(t, squareWKT(0, 0, 30, 10))))
		})
	}
}

func TestMerge_ChainBeyondProximityTolerance(t *testing.T) {
	// The far end of the chain is only reachable through the fragments
	// absorbed on the way.
	var wkts []string
	for i := 0; i < 8; i++ {
		x := float64(i * 100)
		wkts = append(wkts, squareWKT(x, 0, x+100, 100))
	}

	store := newStore(t, wkts...)
	result, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Groups)
	assert.Equal(t, 7, result.Merged)
	require.Equal(t, 1, store.Len())
	assert.InDelta(t, 80000, area(t, store.Features()[0].Geometry), 1e-6)
}

func TestMerge_Grid(t *testing.T) {
	var wkts []string
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			x, y := float64(col*10), float64(row*10)
			wkts = append(wkts, squareWKT(x, y, x+10, y+10))
		}
	}
	// a separate object next to the grid, outside the tolerance
	wkts = append(wkts, squareWKT(80, 80, 90, 90))

	store := newStore(t, wkts...)
	result, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Groups)
	assert.Equal(t, 24, result.Merged)

	features := store.Features()
	require.Len(t, features, 2)
	assert.InDelta(t, 2500, area(t, features[0].Geometry), 1e-6)
	assert.True(t, features[0].Geometry.Equals(mustWKT(t, squareWKT(0, 0, 50, 50))))
	assert.InDelta(t, 100, area(t, features[1].Geometry), 1e-6)
}

func TestMerge_InvalidFragmentNeverMerged(t *testing.T) {
	valid := squareWKT(0, 0, 10, 10)
	bowtie := "POLYGON ((10 0, 20 10, 20 0, 10 10, 10 0))"

	tests := []struct {
		name  string
		order []string
	}{
		{"valid root", []string{valid, bowtie}},
		{"invalid root", []string{bowtie, valid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, tt.order...)

			result, err := NewMerger(testOptions()).Merge(context.Background(), store)
			require.NoError(t, err)

			assert.Zero(t, result.Merged)
			assert.Equal(t, 2, result.Groups)

			features := store.Features()
			require.Len(t, features, 2)
			for i, f := range features {
				assert.Equal(t, mustWKT(t, tt.order[i]).String(), f.Geometry.String(), "geometry of %d is unchanged", f.ID)
				assert.NotEmpty(t, f.DissolveGroup())
			}
			assert.NotEqual(t, features[0].DissolveGroup(), features[1].DissolveGroup())
		})
	}
}

func TestMerge_NeighboursOfInvalidRootStillMerge(t *testing.T) {
	// The hole lies outside the shell, so the root is invalid
	invalidRoot := "POLYGON ((10 0, 20 0, 20 20, 10 20, 10 0), (30 30, 31 30, 31 31, 30 31, 30 30))"
	lower := squareWKT(0, 0, 10, 10)
	upper := squareWKT(0, 10, 10, 20)

	store := newStore(t, invalidRoot, lower, upper)

	result, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Invalid, "both neighbours are refused by the invalid root")
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, 2, result.Groups)

	features := store.Features()
	require.Len(t, features, 2)

	assert.Equal(t, layer.FeatureID(1), features[0].ID)
	assert.Equal(t, mustWKT(t, invalidRoot).String(), features[0].Geometry.String(), "the invalid root stays alone")

	assert.Equal(t, layer.FeatureID(2), features[1].ID)
	assert.True(t, features[1].Geometry.Equals(mustWKT(t, squareWKT(0, 0, 10, 20))))
	assert.NotEqual(t, features[0].DissolveGroup(), features[1].DissolveGroup())
}

func TestMerge_SecondRunIsNoop(t *testing.T) {
	store := newStore(t, squareWKT(0, 0, 10, 10), squareWKT(10, 0, 20, 10), squareWKT(50, 50, 60, 60))
	merger := NewMerger(testOptions())

	first, err := merger.Merge(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, 1, first.Merged)
	before := store.Features()

	second, err := merger.Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Zero(t, second.Groups)
	assert.Zero(t, second.Merged)
	assert.Equal(t, 2, second.Skipped)

	after := store.Features()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].DissolveGroup(), after[i].DissolveGroup())
		assert.True(t, before[i].Geometry.Equals(after[i].Geometry))
	}
}

func TestMerge_ResetGroups(t *testing.T) {
	store := newStore(t, squareWKT(0, 0, 10, 10), squareWKT(50, 50, 60, 60))

	_, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	// a fragment arriving later next to an existing group
	_, err = store.AddFeature(layer.NewFeature(mustWKT(t, squareWKT(10, 0, 20, 10)), nil))
	require.NoError(t, err)

	opts := testOptions()
	opts.ResetGroups = true
	result, err := NewMerger(opts).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Groups)
	assert.Equal(t, 1, result.Merged)
	require.Equal(t, 2, store.Len())
	assert.True(t, store.Features()[0].Geometry.Equals(mustWKT(t, squareWKT(0, 0, 20, 10))))
}

func TestMerge_CancelAfterRoots(t *testing.T) {
	var wkts []string
	for i := 0; i < 10; i++ {
		x := float64(i * 100)
		wkts = append(wkts, squareWKT(x, 0, x+10, 10))
	}
	store := newStore(t, wkts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions()
	opts.Progress = func(processed, total int) {
		assert.Equal(t, 10, total)
		if processed == 3 {
			cancel()
		}
	}

	result, err := NewMerger(opts).Merge(ctx, store)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 3, result.Groups)
	assert.False(t, store.IsEditing(), "partial work is committed")

	grouped := 0
	for _, f := range store.CommittedFeatures() {
		if f.Grouped() {
			grouped++
		}
	}
	assert.Equal(t, 3, grouped)
	assert.Equal(t, 10, store.Len())
}

func TestMerge_CancelledBeforeStart(t *testing.T) {
	store := newStore(t, squareWKT(0, 0, 10, 10), squareWKT(10, 0, 20, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewMerger(testOptions()).Merge(ctx, store)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Zero(t, result.Groups)
	assert.Zero(t, result.Indexed)
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.HasAttribute(layer.DissolveGroupField))
}

func TestMerge_LinesAndPointsStayAlone(t *testing.T) {
	store := newStore(t,
		"LINESTRING (0 0, 10 0)",
		"LINESTRING (10 0, 20 0)",
		"POINT (20 0)",
	)

	result, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Groups)
	assert.Zero(t, result.Merged)
	assert.Equal(t, 3, store.Len())
}

func TestMerge_EmptyLayer(t *testing.T) {
	store := layer.NewMemoryStore("empty")

	result, err := NewMerger(nil).Merge(context.Background(), store)
	require.NoError(t, err)
	assert.Zero(t, result.Features)
	assert.Zero(t, result.Groups)
}

// failingUnion behaves like the wrapped geometry except that unions fail
type failingUnion struct {
	*geometry.GEOS
}

func unwrap(g geometry.Geometry) geometry.Geometry {
	if f, ok := g.(failingUnion); ok {
		return f.GEOS
	}
	return g
}

func (f failingUnion) Buffer(distance float64, segments int) geometry.Geometry {
	buffered := f.GEOS.Buffer(distance, segments)
	if buffered == nil {
		return nil
	}
	return failingUnion{buffered.(*geometry.GEOS)}
}

func (f failingUnion) Combine(geometry.Geometry) geometry.Geometry {
	return nil
}

func (f failingUnion) Disjoint(other geometry.Geometry) bool {
	return f.GEOS.Disjoint(unwrap(other))
}

func (f failingUnion) Equals(other geometry.Geometry) bool {
	return f.GEOS.Equals(unwrap(other))
}

func TestMerge_NullUnionKeepsGroupGeometry(t *testing.T) {
	store := layer.NewMemoryStore("fragments")
	for _, wkt := range []string{squareWKT(0, 0, 10, 10), squareWKT(10, 0, 20, 10)} {
		_, err := store.AddFeature(layer.NewFeature(failingUnion{mustWKT(t, wkt)}, nil))
		require.NoError(t, err)
	}

	result, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 1, result.NullUnion)
	assert.Zero(t, result.Merged)
	assert.Equal(t, 2, result.Groups)

	features := store.Features()
	require.Len(t, features, 2)
	assert.True(t, features[0].Geometry.Equals(mustWKT(t, squareWKT(0, 0, 10, 10))))
}

// failingStore fails every delete
type failingStore struct {
	*layer.MemoryStore
}

func (s failingStore) DeleteFeature(layer.FeatureID) error {
	return errors.New("disk full")
}

func TestMerge_StoreFailureRollsBack(t *testing.T) {
	store := failingStore{newStore(t, squareWKT(0, 0, 10, 10), squareWKT(10, 0, 20, 10))}

	_, err := NewMerger(testOptions()).Merge(context.Background(), store)
	require.Error(t, err)

	var appErr *internal.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, internal.ErrorCodeStoreTransaction, appErr.Code)

	assert.False(t, store.IsEditing())
	assert.Equal(t, 2, store.Len())
	for _, f := range store.Features() {
		assert.False(t, f.Grouped())
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	r := &run{opts: DefaultOptions()}
	bowtie := mustWKT(t, "POLYGON ((0 0, 10 10, 10 0, 0 10, 0 0))")

	g := &group{
		id:       "g1",
		root:     layer.NewFeature(bowtie, nil),
		rootErr:  errors.New("root is broken"),
		geometry: bowtie,
	}
	candidate := layer.NewFeature(bowtie, nil)

	err := r.validate(g, candidate, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeometryValidationFailed)
	assert.Contains(t, err.Error(), "root is broken")
	assert.Contains(t, err.Error(), "empty after normalization")

	var validationErr *geometry.ValidationError
	assert.True(t, errors.As(err, &validationErr))
}
