package sketch

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/paulmach/orb/geojson"
)

const publishTimeout = 2 * time.Second

// Publisher mirrors the rendering sources and save outcomes to MQTT so map
// clients can subscribe instead of polling.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a publisher under the given topic prefix
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "routedraw"
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // late subscribers get the current geometry
	}
}

// Attach registers the publisher as a listener on the session.
func (p *Publisher) Attach(s *Session) {
	s.OnMeasurementChange(func(state MeasurementState) {
		if err := p.PublishMeasurement(state); err != nil {
			log.Printf("[MQTT] Error publishing measurement: %v", err)
		}
	})
	s.OnReferenceChange(func(fc *geojson.FeatureCollection) {
		if err := p.PublishReference(fc); err != nil {
			log.Printf("[MQTT] Error publishing reference features: %v", err)
		}
	})
	s.OnSaveComplete(func(report SaveReport) {
		if err := p.PublishSaveReport(report); err != nil {
			log.Printf("[MQTT] Error publishing save report: %v", err)
		}
	})
}

// PublishCurrent publishes the session's current measurement and, once
// loaded, its reference layer. It runs on every broker (re)connect so
// retained topics reflect state that changed while disconnected.
func (p *Publisher) PublishCurrent(s *Session) error {
	if err := p.PublishMeasurement(s.Measurement()); err != nil {
		return err
	}
	if ref := s.Reference(); ref != nil {
		return p.PublishReference(ref)
	}
	return nil
}

// PublishMeasurement publishes the measurement line to {prefix}/measurement
// and the vertex markers to {prefix}/vertices.
func (p *Publisher) PublishMeasurement(state MeasurementState) error {
	if err := p.publishJSON("measurement", state.Geometry, p.retain); err != nil {
		return err
	}
	return p.publishJSON("vertices", BuildVertexFeatures(state.Points), p.retain)
}

// PublishReference publishes the reference collection to {prefix}/reference
func (p *Publisher) PublishReference(fc *geojson.FeatureCollection) error {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	return p.publishJSON("reference", fc, p.retain)
}

// PublishSaveReport publishes a save outcome to {prefix}/edits. Reports are
// events, so they are never retained.
func (p *Publisher) PublishSaveReport(report SaveReport) error {
	return p.publishJSON("edits", report, false)
}

func (p *Publisher) publishJSON(suffix string, v any, retain bool) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether geometry messages are retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
