package sketch

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMeasurementGeometry_Empty(t *testing.T) {
	for _, points := range [][]Coordinate{nil, {}, {{1, 1}}} {
		g := BuildMeasurementGeometry(points)
		assert.True(t, g.IsEmpty(), "%d points", len(points))

		data, err := json.Marshal(g)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
	}
}

func TestBuildMeasurementGeometry_Line(t *testing.T) {
	points := []Coordinate{{-75.1, 39.1}, {-75.2, 39.2}, {-75.3, 39.3}}
	g := BuildMeasurementGeometry(points)

	require.False(t, g.IsEmpty())

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "Feature",
		"id": "measure-line",
		"geometry": {"type": "LineString", "coordinates": [[-75.1,39.1],[-75.2,39.2],[-75.3,39.3]]},
		"properties": {"id": "measure-line", "layerId": "dot-measure-lines", "source": "measure-source"}
	}`, string(data))
}

func TestBuildMeasurementGeometry_DuplicateVertices(t *testing.T) {
	g := BuildMeasurementGeometry([]Coordinate{{1, 1}, {1, 1}})
	require.False(t, g.IsEmpty())
	data, err := json.Marshal(g)
	require.NoError(t, err)
	f, err := geojson.UnmarshalFeature(data)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{1, 1}, {1, 1}}, f.Geometry)
	assert.Zero(t, MeasuredLength([]Coordinate{{1, 1}, {1, 1}}))
}

func TestBuildVertexFeatures(t *testing.T) {
	fc := BuildVertexFeatures([]Coordinate{{1, 2}, {3, 4}})
	require.Len(t, fc.Features, 2)

	for i, f := range fc.Features {
		assert.Equal(t, i, f.Properties["id"])
		assert.Equal(t, MeasurePointsLayerID, f.Properties["layerId"])
		assert.Equal(t, MeasureSourceID, f.Properties["source"])
	}
	assert.Equal(t, orb.Point{3, 4}, fc.Features[1].Geometry)

	assert.Empty(t, BuildVertexFeatures(nil).Features)
}

func TestMeasuredLength(t *testing.T) {
	assert.Zero(t, MeasuredLength(nil))
	assert.Zero(t, MeasuredLength([]Coordinate{{0, 0}}))

	// One degree of latitude along a meridian
	assert.InDelta(t, 111319, MeasuredLength([]Coordinate{{0, 0}, {0, 1}}), 500)
	assert.InDelta(t, 2*111319, MeasuredLength([]Coordinate{{0, 0}, {0, 1}, {0, 2}}), 1000)
}

func TestPath(t *testing.T) {
	assert.Equal(t, [][2]float64{{-75.1, 39.1}, {-75.2, 39.2}}, Path([]Coordinate{{-75.1, 39.1}, {-75.2, 39.2}}))
	assert.Empty(t, Path(nil))
}
