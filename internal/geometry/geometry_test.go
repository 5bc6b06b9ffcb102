// internal/geometry/geometry_test.go - Unit tests for the GEOS geometry adapter
package geometry

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWKT(t *testing.T, wkt string) *GEOS {
	t.Helper()
	g, err := FromWKT(wkt)
	require.NoError(t, err)
	return g
}

func TestRect(t *testing.T) {
	r := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 5}

	assert.Equal(t, 10.0, r.Width())
	assert.Equal(t, 5.0, r.Height())
	assert.Equal(t, Rect{MinX: -1, MinY: -1, MaxX: 11, MaxY: 6}, r.Expand(1))
	assert.True(t, r.Intersects(Rect{MinX: 10, MinY: 5, MaxX: 20, MaxY: 20}))
	assert.False(t, r.Intersects(Rect{MinX: 10.5, MinY: 0, MaxX: 20, MaxY: 5}))

	empty := EmptyRect()
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.Intersects(r))
	assert.True(t, empty.Expand(3).IsEmpty())
	assert.Equal(t, r, empty.Extend(r))
}

func TestBufferZeroNormalizesPolygon(t *testing.T) {
	square := mustWKT(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")

	normalized := square.Buffer(0, 8)
	require.NotNil(t, normalized)
	assert.True(t, normalized.Equals(square))
	assert.Empty(t, normalized.Validate())
}

func TestBufferZeroCollapsesLines(t *testing.T) {
	line := mustWKT(t, "LINESTRING (0 0, 10 0)")

	normalized := line.Buffer(0, 8)
	require.NotNil(t, normalized)
	assert.True(t, normalized.IsEmpty())
	assert.True(t, normalized.BoundingBox().IsEmpty())
}

func TestBufferGrowsBoundingBox(t *testing.T) {
	square := mustWKT(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")

	box := square.Buffer(10, 8).BoundingBox()
	assert.InDelta(t, -10, box.MinX, 1e-9)
	assert.InDelta(t, -10, box.MinY, 1e-9)
	assert.InDelta(t, 20, box.MaxX, 1e-9)
	assert.InDelta(t, 20, box.MaxY, 1e-9)
}

func TestCombineTouchingSquares(t *testing.T) {
	a := mustWKT(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")
	b := mustWKT(t, "POLYGON ((10 0, 20 0, 20 10, 10 10, 10 0))")

	assert.False(t, a.Disjoint(b))

	union := a.Combine(b)
	require.NotNil(t, union)
	assert.True(t, union.Equals(mustWKT(t, "POLYGON ((0 0, 20 0, 20 10, 0 10, 0 0))")))
	assert.Equal(t, Rect{MinX: 0, MinY: 0, MaxX: 20, MaxY: 10}, union.BoundingBox())
	assert.InDelta(t, 200, union.(*GEOS).Area(), 1e-9)
}

func TestDisjoint(t *testing.T) {
	a := mustWKT(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")
	far := mustWKT(t, "POLYGON ((50 50, 60 50, 60 60, 50 60, 50 50))")

	assert.True(t, a.Disjoint(far))
	assert.True(t, a.Disjoint(nil))

	var missing *GEOS
	assert.True(t, missing.Disjoint(a))
}

func TestIntersection(t *testing.T) {
	a := mustWKT(t, "POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0))")

	clipped := a.Intersection(Rectangle(Rect{MinX: 5, MinY: 5, MaxX: 20, MaxY: 20}))
	require.NotNil(t, clipped)
	assert.Equal(t, Rect{MinX: 5, MinY: 5, MaxX: 10, MaxY: 10}, clipped.BoundingBox())

	assert.Nil(t, a.Intersection(nil))
}

func TestValidate(t *testing.T) {
	bowtie := mustWKT(t, "POLYGON ((0 0, 10 10, 10 0, 0 10, 0 0))")

	errs := bowtie.Validate()
	require.Len(t, errs, 1)

	var validationErr *ValidationError
	require.True(t, errors.As(errs[0], &validationErr))
	assert.NotEmpty(t, validationErr.Reason)

	var missing *GEOS
	assert.Len(t, missing.Validate(), 1)
}

func TestNilSafety(t *testing.T) {
	var missing *GEOS

	assert.Nil(t, missing.Buffer(0, 0))
	assert.Nil(t, missing.Combine(nil))
	assert.True(t, missing.IsEmpty())
	assert.True(t, missing.BoundingBox().IsEmpty())
	assert.Equal(t, "", missing.Type())
	assert.Equal(t, "<nil>", missing.String())
	assert.Zero(t, missing.Area())
	assert.Nil(t, New(nil))
}

func TestOrbRoundTrip(t *testing.T) {
	polygon := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}

	g, err := FromOrb(polygon)
	require.NoError(t, err)
	assert.Equal(t, "Polygon", g.Type())

	back, err := ToOrb(g)
	require.NoError(t, err)
	assert.Equal(t, polygon, back)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Polygon"`)

	_, err = FromOrb(nil)
	assert.Error(t, err)
	_, err = ToOrb(nil)
	assert.Error(t, err)
}

func TestFromGeoJSON_Invalid(t *testing.T) {
	_, err := FromGeoJSON([]byte(`{"type":"Nope"}`))
	assert.Error(t, err)

	_, err = FromWKT("POLYGON ((")
	assert.Error(t, err)
}

func TestEmptyRectUsesInfinity(t *testing.T) {
	empty := EmptyRect()
	assert.True(t, math.IsInf(empty.MinX, 1))
	assert.True(t, math.IsInf(empty.MaxX, -1))
}
