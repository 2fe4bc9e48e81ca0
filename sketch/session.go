package sketch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
)

// ErrTooFewPoints is returned when a save is requested before the measurement
// forms a line. Callers disable the save trigger instead of surfacing it.
var ErrTooFewPoints = errors.New("measurement needs at least 2 points")

// FeatureService is the remote layer a session reads from and writes to.
type FeatureService interface {
	QueryFeatures(ctx context.Context) (*geojson.FeatureCollection, error)
	ApplyEdits(ctx context.Context, payload EditPayload) (*EditResult, error)
}

// MeasurementState is an immutable view of the measurement for renderers.
type MeasurementState struct {
	Points   []Coordinate        `json:"points"`
	Revision uint64              `json:"revision"`
	Geometry MeasurementGeometry `json:"geometry"`
	Length   float64             `json:"lengthMeters"`
	CanSave  bool                `json:"canSave"`
}

// SaveReport summarizes a finished save
type SaveReport struct {
	Points    int       `json:"points"`
	Length    float64   `json:"lengthMeters"`
	ObjectIDs []int64   `json:"objectIds,omitempty"`
	Cleared   bool      `json:"cleared"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// SessionOptions configures how saves are packaged
type SessionOptions struct {
	Attributes  AttributeTemplate
	WKID        int
	ClearOnSave bool
}

// Session owns the measurement and drives the remote read and write against
// a feature service. Remote failures are logged and never disturb the
// measurement or the last good reference snapshot.
type Session struct {
	store   *PointStore
	router  *Router
	service FeatureService
	opts    SessionOptions

	mu         sync.RWMutex
	reference  *geojson.FeatureCollection
	lastLoad   *Task
	lastSave   *Task
	lastReport *SaveReport

	listenerMu       sync.RWMutex
	measureListeners []func(MeasurementState)
	refListeners     []func(*geojson.FeatureCollection)
	saveListeners    []func(SaveReport)
}

// NewSession creates a session with an empty measurement
func NewSession(service FeatureService, opts SessionOptions) *Session {
	if opts.Attributes == nil {
		opts.Attributes = DefaultAttributeTemplate()
	}
	store := NewPointStore()
	return &Session{
		store:   store,
		router:  NewRouter(store),
		service: service,
		opts:    opts,
	}
}

// Points returns the session's point store
func (s *Session) Points() *PointStore {
	return s.store
}

// OnMeasurementChange registers a callback run after every measurement change.
func (s *Session) OnMeasurementChange(fn func(MeasurementState)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.measureListeners = append(s.measureListeners, fn)
}

// OnReferenceChange registers a callback run after every successful reference load.
func (s *Session) OnReferenceChange(fn func(*geojson.FeatureCollection)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.refListeners = append(s.refListeners, fn)
}

// OnSaveComplete registers a callback run after every save attempt that reached the service.
func (s *Session) OnSaveComplete(fn func(SaveReport)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.saveListeners = append(s.saveListeners, fn)
}

// HandleClick routes a map click into the measurement.
func (s *Session) HandleClick(ev ClickEvent) ClickResult {
	result := s.router.HandleClick(ev)
	if result.Action != ClickIgnored {
		s.notifyMeasurement()
	} else {
		log.Printf("[SYNC] Ignoring removal of vertex %d: only %d vertices", result.Index, result.Count)
	}
	return result
}

// Measurement derives the current measurement state from a single snapshot.
func (s *Session) Measurement() MeasurementState {
	points, rev := s.store.SnapshotWithRevision()
	return MeasurementState{
		Points:   points,
		Revision: rev,
		Geometry: BuildMeasurementGeometry(points),
		Length:   MeasuredLength(points),
		CanSave:  len(points) >= MinSavePoints,
	}
}

// CanSave reports whether the measurement has enough vertices to be saved.
func (s *Session) CanSave() bool {
	return s.store.Len() >= MinSavePoints
}

// Reference returns the last successfully loaded reference collection, or nil.
func (s *Session) Reference() *geojson.FeatureCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reference
}

// LoadReferenceFeatures reads every feature of the reference layer and
// replaces the reference snapshot. On failure the previous snapshot stays in
// place; the error is logged and returned for observability only.
func (s *Session) LoadReferenceFeatures(ctx context.Context) error {
	fc, err := s.service.QueryFeatures(ctx)
	if err != nil {
		log.Printf("[SYNC] Error loading reference features: %v", err)
		return fmt.Errorf("load reference features: %w", err)
	}
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}

	s.mu.Lock()
	s.reference = fc
	s.mu.Unlock()

	log.Printf("[SYNC] Loaded %d reference features", len(fc.Features))

	s.listenerMu.RLock()
	listeners := append([]func(*geojson.FeatureCollection){}, s.refListeners...)
	s.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(fc)
	}
	return nil
}

// StartLoad runs LoadReferenceFeatures in the background.
func (s *Session) StartLoad(ctx context.Context) *Task {
	task := newTask("load")
	s.mu.Lock()
	s.lastLoad = task
	s.mu.Unlock()

	go func() {
		task.finish(s.LoadReferenceFeatures(ctx))
	}()
	return task
}

// LastLoad returns the most recent background load, or nil
func (s *Session) LastLoad() *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLoad
}

// SaveMeasurement submits the measurement as a new feature. The payload is
// built from the vertices as they are when SaveMeasurement is called; clicks
// made while the request is in flight are not included. A failed save leaves
// the measurement untouched so it can be retried.
func (s *Session) SaveMeasurement(ctx context.Context) (*EditResult, error) {
	points, rev := s.store.SnapshotWithRevision()
	return s.save(ctx, points, rev)
}

// StartSave snapshots the measurement now and submits it in the background.
// A snapshot that cannot form a line returns ErrTooFewPoints and no task.
func (s *Session) StartSave(ctx context.Context) (*Task, error) {
	points, rev := s.store.SnapshotWithRevision()
	if len(points) < MinSavePoints {
		return nil, ErrTooFewPoints
	}

	task := newTask("save")
	s.mu.Lock()
	s.lastSave = task
	s.mu.Unlock()

	go func() {
		_, err := s.save(ctx, points, rev)
		task.finish(err)
	}()
	return task, nil
}

// LastSave returns the most recent background save, or nil
func (s *Session) LastSave() *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSave
}

// LastSaveReport returns the outcome of the most recent save that reached the service.
func (s *Session) LastSaveReport() *SaveReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return nil
	}
	report := *s.lastReport
	return &report
}

func (s *Session) save(ctx context.Context, points []Coordinate, rev uint64) (*EditResult, error) {
	if len(points) < MinSavePoints {
		return nil, ErrTooFewPoints
	}

	payload := BuildEditPayload(points, s.opts.Attributes, s.opts.WKID)
	report := SaveReport{
		Points: len(points),
		Length: MeasuredLength(points),
	}

	result, err := s.service.ApplyEdits(ctx, payload)
	report.At = time.Now()
	if result != nil {
		report.ObjectIDs = result.ObjectIDs()
	}

	if err != nil {
		log.Printf("[SYNC] Error saving measurement (%d points): %v", len(points), err)
		report.Error = err.Error()
		s.recordSave(report)
		return result, fmt.Errorf("save measurement: %w", err)
	}

	log.Printf("[SYNC] Saved measurement: %d points, %.1f m, object ids %v",
		report.Points, report.Length, report.ObjectIDs)

	if s.opts.ClearOnSave {
		report.Cleared = s.store.ClearIfRevision(rev)
		if !report.Cleared {
			log.Printf("[SYNC] Measurement changed during save; keeping %d points", s.store.Len())
		}
	}

	s.recordSave(report)
	if report.Cleared {
		s.notifyMeasurement()
	}
	return result, nil
}

func (s *Session) recordSave(report SaveReport) {
	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()

	s.listenerMu.RLock()
	listeners := append([]func(SaveReport){}, s.saveListeners...)
	s.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(report)
	}
}

func (s *Session) notifyMeasurement() {
	s.listenerMu.RLock()
	listeners := append([]func(MeasurementState){}, s.measureListeners...)
	s.listenerMu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	state := s.Measurement()
	for _, fn := range listeners {
		fn(state)
	}
}
