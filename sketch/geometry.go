package sketch

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
)

// MeasurementGeometry is the renderable form of the measurement. It is either
// empty (fewer than MinSavePoints vertices) or a single line feature.
type MeasurementGeometry struct {
	line *geojson.Feature
}

// BuildMeasurementGeometry derives the measurement geometry from the vertices.
// Fewer than two vertices yield the empty sentinel, never nil and never an
// error, so the renderer is never handed an invalid line.
func BuildMeasurementGeometry(points []Coordinate) MeasurementGeometry {
	if len(points) < MinSavePoints {
		return MeasurementGeometry{}
	}

	f := geojson.NewFeature(ToLineString(points))
	f.ID = MeasureLineID
	f.Properties["id"] = MeasureLineID
	f.Properties["layerId"] = MeasureLinesLayerID
	f.Properties["source"] = MeasureSourceID
	return MeasurementGeometry{line: f}
}

// IsEmpty reports whether the geometry is the empty sentinel
func (g MeasurementGeometry) IsEmpty() bool {
	return g.line == nil
}

// MarshalJSON encodes the empty sentinel as an empty FeatureCollection and a
// line as a single GeoJSON Feature.
func (g MeasurementGeometry) MarshalJSON() ([]byte, error) {
	if g.line == nil {
		return json.Marshal(geojson.NewFeatureCollection())
	}
	return json.Marshal(g.line)
}

// ToLineString converts vertices to an orb line string in capture order
func ToLineString(points []Coordinate) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = p.Point()
	}
	return ls
}

// BuildVertexFeatures renders one point feature per vertex. properties.id is
// the vertex index, which is what a click on the marker reports back as
// featureIndex.
func BuildVertexFeatures(points []Coordinate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range points {
		f := geojson.NewFeature(p.Point())
		f.Properties["id"] = i
		f.Properties["layerId"] = MeasurePointsLayerID
		f.Properties["source"] = MeasureSourceID
		fc.Append(f)
	}
	return fc
}

// MeasuredLength returns the haversine length of the measurement in meters.
func MeasuredLength(points []Coordinate) float64 {
	if len(points) < MinSavePoints {
		return 0
	}
	return geo.LengthHaversine(ToLineString(points))
}

// Path converts vertices into a single feature-service path of [lng, lat] pairs
func Path(points []Coordinate) [][2]float64 {
	path := make([][2]float64, len(points))
	for i, p := range points {
		path[i] = [2]float64{p.Lng, p.Lat}
	}
	return path
}
