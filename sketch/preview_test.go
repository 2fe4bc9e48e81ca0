package sketch

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func sampleReference() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.LineString{{-75.50, 39.10}, {-75.49, 39.11}, {-75.48, 39.11}}))
	fc.Append(geojson.NewFeature(orb.MultiLineString{{{-75.47, 39.12}, {-75.46, 39.13}}}))
	fc.Append(geojson.NewFeature(orb.Point{-75.45, 39.14}))
	fc.Append(&geojson.Feature{Type: "Feature"}) // no geometry
	return fc
}

func TestPreviewRenderer_SVG(t *testing.T) {
	r := NewPreviewRenderer(sampleReference(), []Coordinate{{-75.495, 39.105}, {-75.485, 39.115}})

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG() error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Error("output is not SVG")
	}
	if !strings.Contains(out, "<path") {
		t.Error("SVG has no paths")
	}
}

func TestPreviewRenderer_PNG(t *testing.T) {
	r := NewPreviewRenderer(sampleReference(), []Coordinate{{-75.495, 39.105}, {-75.485, 39.115}})

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG() error: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Errorf("empty image: %v", img.Bounds())
	}
}

func TestPreviewRenderer_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		ref    *geojson.FeatureCollection
		points []Coordinate
	}{
		{"nothing", nil, nil},
		{"single vertex", nil, []Coordinate{{1, 1}}},
		{"empty reference", geojson.NewFeatureCollection(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewPreviewRenderer(tt.ref, tt.points).RenderToSVG(&buf); err != nil {
				t.Fatalf("RenderToSVG() error: %v", err)
			}
			buf.Reset()
			if err := NewPreviewRenderer(tt.ref, tt.points).RenderToPNG(&buf); err != nil {
				t.Fatalf("RenderToPNG() error: %v", err)
			}
		})
	}
}

func TestLineStrings(t *testing.T) {
	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, {{0.2, 0.2}, {0.4, 0.2}, {0.4, 0.4}, {0.2, 0.2}}}
	tests := []struct {
		name string
		g    orb.Geometry
		want int
	}{
		{"line", orb.LineString{{0, 0}, {1, 1}}, 1},
		{"multiline", orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}}, 2},
		{"polygon", poly, 2},
		{"multipolygon", orb.MultiPolygon{poly, poly}, 4},
		{"multipoint", orb.MultiPoint{{0, 0}, {1, 1}, {2, 2}}, 3},
		{"collection", orb.Collection{orb.Point{0, 0}, orb.LineString{{0, 0}, {1, 1}}}, 2},
		{"bound", orb.Bound{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(lineStrings(tt.g)); got != tt.want {
				t.Errorf("lineStrings() returned %d lines, want %d", got, tt.want)
			}
		})
	}
}
