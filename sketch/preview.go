package sketch

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	referenceColor = color.RGBA{0xFF, 0x00, 0x00, 0xFF}
	measureColor   = color.RGBA{0xDA, 0xB7, 0x00, 0xFF}
	vertexColor    = color.RGBA{0x33, 0x33, 0x33, 0xFF}
)

// PreviewRenderer draws the reference layer and the measurement in Web
// Mercator. Sizes are in millimeters, the canvas unit.
type PreviewRenderer struct {
	Reference  *geojson.FeatureCollection
	Points     []Coordinate
	Width      float64
	Padding    float64
	Resolution canvas.Resolution // PNG output only
	// SimplifyTolerance thins reference lines, in millimeters on the output; 0 disables.
	SimplifyTolerance float64
	Caption           bool // PNG output only
}

// NewPreviewRenderer creates a renderer with default settings
func NewPreviewRenderer(reference *geojson.FeatureCollection, points []Coordinate) *PreviewRenderer {
	return &PreviewRenderer{
		Reference:         reference,
		Points:            points,
		Width:             200.0,
		Padding:           8.0,
		Resolution:        canvas.DPI(96),
		SimplifyTolerance: 0.25,
		Caption:           true,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// viewport maps Mercator meters onto the output canvas.
type viewport struct {
	bound   orb.Bound
	scale   float64
	padding float64
	width   float64
	height  float64
}

func (v viewport) toCanvas(p orb.Point) (float64, float64) {
	return (p[0]-v.bound.Min[0])*v.scale + v.padding, (p[1]-v.bound.Min[1])*v.scale + v.padding
}

// RenderToSVG writes the preview as SVG
func (r *PreviewRenderer) RenderToSVG(w io.Writer) error {
	lines, measure := r.project()
	vp := r.viewport(lines, measure)

	svgRenderer := svg.New(w, vp.width, vp.height, nil)
	r.renderToCanvas(svgRenderer, vp, lines, measure)
	return svgRenderer.Close()
}

// RenderToPNG writes the preview as PNG with an optional text caption
func (r *PreviewRenderer) RenderToPNG(w io.Writer) error {
	lines, measure := r.project()
	vp := r.viewport(lines, measure)

	rast := rasterizer.New(vp.width, vp.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, vp, lines, measure)

	if r.Caption {
		drawCaption(rast, fmt.Sprintf("%d vertices  %.1f m", len(r.Points), MeasuredLength(r.Points)))
	}
	return png.Encode(w, rast)
}

// project converts the reference lines and the measurement to Mercator
// meters. Inputs are cloned because orb projects in place.
func (r *PreviewRenderer) project() ([]orb.LineString, orb.LineString) {
	var lines []orb.LineString
	if r.Reference != nil {
		for _, f := range r.Reference.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			for _, ls := range lineStrings(f.Geometry) {
				lines = append(lines, project.LineString(ls.Clone(), project.WGS84.ToMercator))
			}
		}
	}

	measure := project.LineString(ToLineString(r.Points), project.WGS84.ToMercator)
	return lines, measure
}

// lineStrings flattens the drawable parts of a geometry into line strings.
// Points and multipoints are drawn as single-vertex lines.
func lineStrings(g orb.Geometry) []orb.LineString {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}
	case orb.MultiLineString:
		return v
	case orb.Ring:
		return []orb.LineString{orb.LineString(v)}
	case orb.Polygon:
		out := make([]orb.LineString, len(v))
		for i, ring := range v {
			out[i] = orb.LineString(ring)
		}
		return out
	case orb.MultiPolygon:
		var out []orb.LineString
		for _, poly := range v {
			out = append(out, lineStrings(poly)...)
		}
		return out
	case orb.Point:
		return []orb.LineString{{v}}
	case orb.MultiPoint:
		out := make([]orb.LineString, len(v))
		for i, p := range v {
			out[i] = orb.LineString{p}
		}
		return out
	case orb.Collection:
		var out []orb.LineString
		for _, part := range v {
			out = append(out, lineStrings(part)...)
		}
		return out
	}
	return nil
}

func (r *PreviewRenderer) viewport(lines []orb.LineString, measure orb.LineString) viewport {
	var bound orb.Bound
	first := true
	extend := func(ls orb.LineString) {
		if len(ls) == 0 {
			return
		}
		if first {
			bound = ls.Bound()
			first = false
			return
		}
		bound = bound.Union(ls.Bound())
	}
	for _, ls := range lines {
		extend(ls)
	}
	extend(measure)

	// Nothing or a single position: show a 1 km window around it.
	if first {
		bound = orb.Bound{}
	}
	if bound.Max[0]-bound.Min[0] == 0 && bound.Max[1]-bound.Min[1] == 0 {
		bound = bound.Pad(500)
	}

	inner := r.Width - 2*r.Padding
	dx := bound.Max[0] - bound.Min[0]
	dy := bound.Max[1] - bound.Min[1]
	scale := inner / math.Max(dx, dy)

	return viewport{
		bound:   bound,
		scale:   scale,
		padding: r.Padding,
		width:   dx*scale + 2*r.Padding,
		height:  dy*scale + 2*r.Padding,
	}
}

func (r *PreviewRenderer) renderToCanvas(renderer canvasRenderer, vp viewport, lines []orb.LineString, measure orb.LineString) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(vp.width, vp.height), bgStyle, canvas.Identity)

	refStyle := canvas.DefaultStyle
	refStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	refStyle.Stroke = canvas.Paint{Color: referenceColor}
	refStyle.StrokeWidth = 0.5

	var thin *simplify.DouglasPeuckerSimplifier
	if r.SimplifyTolerance > 0 {
		thin = simplify.DouglasPeucker(r.SimplifyTolerance / vp.scale)
	}

	for _, ls := range lines {
		if thin != nil && len(ls) > 2 {
			if simplified, ok := thin.Simplify(ls).(orb.LineString); ok {
				ls = simplified
			}
		}
		if len(ls) == 1 {
			x, y := vp.toCanvas(ls[0])
			renderer.RenderPath(canvas.Circle(0.6).Translate(x, y), pointStyle(referenceColor), canvas.Identity)
			continue
		}
		renderer.RenderPath(linePath(vp, ls), refStyle, canvas.Identity)
	}

	if len(measure) >= MinSavePoints {
		measureStyle := canvas.DefaultStyle
		measureStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		measureStyle.Stroke = canvas.Paint{Color: measureColor}
		measureStyle.StrokeWidth = 1.5
		measureStyle.StrokeCapper = canvas.RoundCap
		measureStyle.StrokeJoiner = canvas.RoundJoin
		renderer.RenderPath(linePath(vp, measure), measureStyle, canvas.Identity)
	}

	for _, p := range measure {
		x, y := vp.toCanvas(p)
		renderer.RenderPath(canvas.Circle(1.0).Translate(x, y), pointStyle(vertexColor), canvas.Identity)
	}
}

func pointStyle(c color.RGBA) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: c}
	style.Stroke = canvas.Paint{Color: canvas.White}
	style.StrokeWidth = 0.2
	return style
}

func linePath(vp viewport, ls orb.LineString) *canvas.Path {
	cp := &canvas.Path{}
	for i, p := range ls {
		x, y := vp.toCanvas(p)
		if i == 0 {
			cp.MoveTo(x, y)
		} else {
			cp.LineTo(x, y)
		}
	}
	return cp
}

// drawCaption writes a single line of text in the top-left corner.
func drawCaption(dst *rasterizer.Rasterizer, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(6), Y: fixed.I(6 + face.Ascent)},
	}
	d.DrawString(text)
}
