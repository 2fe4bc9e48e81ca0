package sketch

import "maps"

// AttributeTemplate is the attribute record attached to every new route feature.
type AttributeTemplate map[string]any

// DefaultAttributeTemplate returns the fixed attribute record used for new
// routes. The length fields are static and are not derived from the drawn
// geometry.
func DefaultAttributeTemplate() AttributeTemplate {
	return AttributeTemplate{
		"ROUTEID":       "2002009",
		"UPDT":          int64(1708989618000),
		"NEW_ROUTEID":   "KC-200257-F",
		"BEG_MP":        0,
		"END_MP":        0.24,
		"LRS_UPDT_DATE": int64(1550223419000),
		"OBJECTID":      1,
		"GEOM_LEN":      0,
		"Shape__Length": 501.5824792226916,
	}
}

// SpatialReference identifies the coordinate system of an edit geometry
type SpatialReference struct {
	WKID int `json:"wkid"`
}

// PolylineGeometry is the feature-service polyline shape: a list of paths,
// each a list of [x, y] pairs.
type PolylineGeometry struct {
	Paths            [][][2]float64    `json:"paths"`
	SpatialReference *SpatialReference `json:"spatialReference,omitempty"`
}

// EditFeature is a single feature in an applyEdits request
type EditFeature struct {
	Geometry   PolylineGeometry `json:"geometry"`
	Attributes map[string]any   `json:"attributes"`
}

// EditPayload is the one-shot write request built for a save.
type EditPayload struct {
	Adds []EditFeature `json:"adds"`
}

// BuildEditPayload packages the vertices as one new polyline feature with a
// single path. The attribute template is copied so the caller's map is never
// shared with the request. A wkid of 0 leaves the spatial reference to the
// service's default.
func BuildEditPayload(points []Coordinate, attrs AttributeTemplate, wkid int) EditPayload {
	geom := PolylineGeometry{
		Paths: [][][2]float64{Path(points)},
	}
	if wkid != 0 {
		geom.SpatialReference = &SpatialReference{WKID: wkid}
	}

	return EditPayload{
		Adds: []EditFeature{{
			Geometry:   geom,
			Attributes: maps.Clone(map[string]any(attrs)),
		}},
	}
}
