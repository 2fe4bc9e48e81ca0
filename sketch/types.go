package sketch

import (
	"time"

	"github.com/paulmach/orb"
)

// Layer and source identifiers shared with the map renderer.
const (
	// MeasurePointsLayerID is the layer that renders one marker per vertex.
	// A click that hits this layer removes the vertex instead of adding one.
	MeasurePointsLayerID = "dot-measure-points"

	// MeasureLinesLayerID is the layer that renders the measurement line.
	MeasureLinesLayerID = "dot-measure-lines"

	// MeasureSourceID is the geometry source both measurement layers draw from.
	MeasureSourceID = "measure-source"

	// MeasureLineID tags the measurement line feature so style layers can target it.
	MeasureLineID = "measure-line"

	// MinSavePoints is the smallest vertex count that forms a saveable line.
	MinSavePoints = 2
)

// Coordinate is a geographic position in degrees. Values are not range checked.
type Coordinate struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Point returns the coordinate as an orb point (x = longitude, y = latitude).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// HitFeature describes the rendered feature a click landed on.
type HitFeature struct {
	LayerID      string `json:"layerId"`
	FeatureIndex *int   `json:"featureIndex,omitempty"`
}

// ClickEvent is a single map click. Hit is nil when the click landed on empty map space.
type ClickEvent struct {
	Lng float64     `json:"lng"`
	Lat float64     `json:"lat"`
	Hit *HitFeature `json:"hit,omitempty"`
}

// Coordinate returns the geographic position of the click.
func (e ClickEvent) Coordinate() Coordinate {
	return Coordinate{Lng: e.Lng, Lat: e.Lat}
}

// FeatureServiceConfig points at a single feature-service layer
type FeatureServiceConfig struct {
	URL     string        `yaml:"url" json:"url"` // e.g. https://host/arcgis/rest/services/DEL_LRS/FeatureServer/0
	APIKey  string        `yaml:"apiKey,omitempty" json:"-"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries int           `yaml:"retries,omitempty" json:"retries,omitempty"` // total attempts per request (default 1)
	WKID    int           `yaml:"wkid,omitempty" json:"wkid,omitempty"`       // spatial reference sent with edits; 0 omits it
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	ClientID string `yaml:"clientId" json:"clientId"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	QoS      byte   `yaml:"qos,omitempty" json:"qos,omitempty"`       // publish QoS for geometry and edit reports
	Retain   *bool  `yaml:"retain,omitempty" json:"retain,omitempty"` // retain geometry topics (default true)
}

// HTTPConfig holds the listener settings for the HTTP boundary
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// Config represents the full configuration file
type Config struct {
	FeatureService FeatureServiceConfig `yaml:"featureService" json:"featureService"`
	MQTT           MQTTConfig           `yaml:"mqtt" json:"mqtt"`
	HTTP           HTTPConfig           `yaml:"http" json:"http"`
	Attributes     map[string]any       `yaml:"attributes,omitempty" json:"attributes,omitempty"` // overrides the default attribute template
	ClearOnSave    bool                 `yaml:"clearOnSave,omitempty" json:"clearOnSave,omitempty"`
}

// GetPrefix returns the MQTT topic prefix, defaulting to "routedraw".
func (c *Config) GetPrefix() string {
	if c.MQTT.Prefix == "" {
		return "routedraw"
	}
	return c.MQTT.Prefix
}

// RetainGeometry reports whether geometry topics are published retained.
func (c *Config) RetainGeometry() bool {
	return c.MQTT.Retain == nil || *c.MQTT.Retain
}

// AttributeTemplate returns the configured attributes or the default template.
func (c *Config) AttributeTemplate() AttributeTemplate {
	if len(c.Attributes) == 0 {
		return DefaultAttributeTemplate()
	}
	return AttributeTemplate(c.Attributes)
}
