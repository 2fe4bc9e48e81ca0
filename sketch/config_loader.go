package sketch

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file and applies environment
// overrides. A missing file is allowed when the environment supplies the
// required settings.
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	case os.IsNotExist(err):
		if os.Getenv("FEATURE_SERVICE_URL") == "" {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnvOverrides lets the environment replace secrets and endpoints from the file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("FEATURE_SERVICE_URL"); v != "" {
		config.FeatureService.URL = v
	}
	if v := os.Getenv("ARCGIS_API_KEY"); v != "" {
		config.FeatureService.APIKey = v
	}
	if v := os.Getenv("FEATURE_SERVICE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.FeatureService.Timeout = d
		}
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		config.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		config.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		config.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		config.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_PREFIX"); v != "" {
		config.MQTT.Prefix = v
	}
	if v := os.Getenv("MQTT_QOS"); v != "" {
		if qos, err := strconv.ParseUint(v, 10, 8); err == nil {
			config.MQTT.QoS = byte(qos)
		}
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.HTTP.Port = port
		}
	}
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.FeatureService.URL == "" {
		return fmt.Errorf("featureService.url is required")
	}
	u, err := url.Parse(c.FeatureService.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("featureService.url is not an absolute URL: %q", c.FeatureService.URL)
	}
	if c.FeatureService.APIKey == "" {
		return fmt.Errorf("featureService.apiKey is required (or set ARCGIS_API_KEY)")
	}
	if c.FeatureService.Retries < 0 {
		return fmt.Errorf("featureService.retries must not be negative")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2: %d", c.MQTT.QoS)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	return nil
}

// DefaultConfig returns a starter configuration. The layer URL is a
// placeholder and the API key is expected from ARCGIS_API_KEY.
func DefaultConfig() *Config {
	retain := true
	return &Config{
		FeatureService: FeatureServiceConfig{
			URL:     "https://services.arcgis.com/ORG_ID/arcgis/rest/services/ROUTES/FeatureServer/0",
			Timeout: DefaultRequestTimeout,
			Retries: DefaultMaxAttempts,
		},
		MQTT: MQTTConfig{
			Prefix:   "routedraw",
			ClientID: "routedraw",
			Retain:   &retain,
		},
		HTTP:       HTTPConfig{Port: 8080},
		Attributes: DefaultAttributeTemplate(),
	}
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ClientOptions turns the feature-service settings into client options
func (c *Config) ClientOptions() []ClientOption {
	var opts []ClientOption
	if c.FeatureService.Timeout > 0 {
		opts = append(opts, WithTimeout(c.FeatureService.Timeout))
	}
	if c.FeatureService.Retries > 0 {
		opts = append(opts, WithMaxRetries(c.FeatureService.Retries))
	}
	return opts
}

// SessionOptions turns the save settings into session options
func (c *Config) SessionOptions() SessionOptions {
	return SessionOptions{
		Attributes:  c.AttributeTemplate(),
		WKID:        c.FeatureService.WKID,
		ClearOnSave: c.ClearOnSave,
	}
}
