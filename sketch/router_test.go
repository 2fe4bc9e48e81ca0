package sketch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(i int) *int { return &i }

func markerHit(i int) *HitFeature {
	return &HitFeature{LayerID: MeasurePointsLayerID, FeatureIndex: intPtr(i)}
}

func TestRouter_HandleClick(t *testing.T) {
	tests := []struct {
		name      string
		click     ClickEvent
		want      ClickResult
		wantAfter []Coordinate
	}{
		{
			name:      "empty map space appends",
			click:     ClickEvent{Lng: 4, Lat: 4},
			want:      ClickResult{Action: ClickAppended, Index: 3, Count: 4},
			wantAfter: []Coordinate{{1, 1}, {2, 2}, {3, 3}, {4, 4}},
		},
		{
			name:      "marker hit removes",
			click:     ClickEvent{Lng: 2, Lat: 2, Hit: markerHit(1)},
			want:      ClickResult{Action: ClickRemoved, Index: 1, Count: 2},
			wantAfter: []Coordinate{{1, 1}, {3, 3}},
		},
		{
			name:      "stale marker index is ignored",
			click:     ClickEvent{Lng: 9, Lat: 9, Hit: markerHit(7)},
			want:      ClickResult{Action: ClickIgnored, Index: 7, Count: 3},
			wantAfter: []Coordinate{{1, 1}, {2, 2}, {3, 3}},
		},
		{
			name:      "line layer hit appends",
			click:     ClickEvent{Lng: 5, Lat: 5, Hit: &HitFeature{LayerID: MeasureLinesLayerID}},
			want:      ClickResult{Action: ClickAppended, Index: 3, Count: 4},
			wantAfter: []Coordinate{{1, 1}, {2, 2}, {3, 3}, {5, 5}},
		},
		{
			name:      "marker layer without index appends",
			click:     ClickEvent{Lng: 6, Lat: 6, Hit: &HitFeature{LayerID: MeasurePointsLayerID}},
			want:      ClickResult{Action: ClickAppended, Index: 3, Count: 4},
			wantAfter: []Coordinate{{1, 1}, {2, 2}, {3, 3}, {6, 6}},
		},
		{
			name:      "other layer index appends",
			click:     ClickEvent{Lng: 7, Lat: 7, Hit: &HitFeature{LayerID: "reference-routes", FeatureIndex: intPtr(0)}},
			want:      ClickResult{Action: ClickAppended, Index: 3, Count: 4},
			wantAfter: []Coordinate{{1, 1}, {2, 2}, {3, 3}, {7, 7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewPointStore()
			store.Append(Coordinate{1, 1})
			store.Append(Coordinate{2, 2})
			store.Append(Coordinate{3, 3})

			got := NewRouter(store).HandleClick(tt.click)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantAfter, store.Snapshot())
		})
	}
}

func TestRouter_BuildAndTrimSequence(t *testing.T) {
	store := NewPointStore()
	r := NewRouter(store)

	r.HandleClick(ClickEvent{Lng: 0, Lat: 0})
	r.HandleClick(ClickEvent{Lng: 1, Lat: 0})
	r.HandleClick(ClickEvent{Lng: 2, Lat: 0})
	assert.False(t, BuildMeasurementGeometry(store.Snapshot()).IsEmpty())

	// Removing down to one vertex drops the line.
	r.HandleClick(ClickEvent{Hit: markerHit(0)})
	r.HandleClick(ClickEvent{Hit: markerHit(0)})
	assert.Equal(t, []Coordinate{{2, 0}}, store.Snapshot())
	assert.True(t, BuildMeasurementGeometry(store.Snapshot()).IsEmpty())
}
