package sketch

import "sync"

// PointStore holds the in-progress measurement: vertices in capture order.
// The slice index is the vertex identity used for hit-testing.
type PointStore struct {
	mu       sync.RWMutex
	points   []Coordinate
	revision uint64
}

// NewPointStore creates an empty point store
func NewPointStore() *PointStore {
	return &PointStore{
		points: make([]Coordinate, 0),
	}
}

// Append adds a vertex at the end of the measurement and returns its index.
func (ps *PointStore) Append(c Coordinate) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.points = append(ps.points, c)
	ps.revision++
	return len(ps.points) - 1
}

// RemoveAt removes the vertex at index i. Indices outside [0, Len()) come from
// stale hit-test data and are ignored; RemoveAt then reports false.
func (ps *PointStore) RemoveAt(i int) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if i < 0 || i >= len(ps.points) {
		return false
	}

	// Build a new slice so snapshots handed out earlier never see the shift.
	next := make([]Coordinate, 0, len(ps.points)-1)
	next = append(next, ps.points[:i]...)
	next = append(next, ps.points[i+1:]...)
	ps.points = next
	ps.revision++
	return true
}

// Snapshot returns a copy of the vertices in capture order.
func (ps *PointStore) Snapshot() []Coordinate {
	points, _ := ps.SnapshotWithRevision()
	return points
}

// SnapshotWithRevision returns a copy of the vertices and the revision they belong to.
func (ps *PointStore) SnapshotWithRevision() ([]Coordinate, uint64) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	result := make([]Coordinate, len(ps.points))
	copy(result, ps.points)
	return result, ps.revision
}

// Len returns the number of vertices
func (ps *PointStore) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.points)
}

// Revision counts successful mutations since creation.
func (ps *PointStore) Revision() uint64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.revision
}

// ClearIfRevision empties the store only when nothing changed since rev.
// Used to clear after a successful save without dropping clicks made while
// the save was in flight.
func (ps *PointStore) ClearIfRevision(rev uint64) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.revision != rev {
		return false
	}
	ps.points = make([]Coordinate, 0)
	ps.revision++
	return true
}
