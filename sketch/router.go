package sketch

// ClickAction is what a click did to the measurement
type ClickAction string

const (
	ClickAppended ClickAction = "appended"
	ClickRemoved  ClickAction = "removed"
	// ClickIgnored means the click hit a vertex marker whose index no longer exists.
	ClickIgnored ClickAction = "ignored"
)

// ClickResult reports the outcome of a single click
type ClickResult struct {
	Action ClickAction `json:"action"`
	Index  int         `json:"index"` // vertex index appended at or removed from
	Count  int         `json:"count"` // vertex count after the click
}

// Router turns map clicks into point store mutations.
type Router struct {
	store *PointStore
}

// NewRouter creates a router over the given point store
func NewRouter(store *PointStore) *Router {
	return &Router{store: store}
}

// HandleClick removes the hit vertex when the click landed on a measurement
// point marker, and appends the click position otherwise. The removal check
// runs first, so a click on a marker never adds a vertex.
func (r *Router) HandleClick(ev ClickEvent) ClickResult {
	if idx, ok := vertexHit(ev); ok {
		action := ClickIgnored
		if r.store.RemoveAt(idx) {
			action = ClickRemoved
		}
		return ClickResult{Action: action, Index: idx, Count: r.store.Len()}
	}

	idx := r.store.Append(ev.Coordinate())
	return ClickResult{Action: ClickAppended, Index: idx, Count: r.store.Len()}
}

// vertexHit returns the vertex index when ev landed on a measurement point marker.
func vertexHit(ev ClickEvent) (int, bool) {
	if ev.Hit == nil || ev.Hit.LayerID != MeasurePointsLayerID || ev.Hit.FeatureIndex == nil {
		return 0, false
	}
	return *ev.Hit.FeatureIndex, true
}
