package sketch

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClickHandler is called for every click event received over MQTT
type ClickHandler func(ev ClickEvent)

// SaveHandler is called when a save is requested over MQTT
type SaveHandler func()

// MQTTClient receives map clicks and save requests over MQTT
type MQTTClient struct {
	client       mqtt.Client
	config       *Config
	clickHandler ClickHandler
	saveHandler  SaveHandler
	connectHooks []func()
	isConnected  bool
	mu           sync.RWMutex
}

// InitMQTT connects to the configured broker and subscribes to the click and
// save topics. It returns nil, nil when no broker is configured.
func InitMQTT(config *Config, onClick ClickHandler, onSave SaveHandler) (*MQTTClient, error) {
	if config == nil || config.MQTT.Broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}
	if onClick == nil || onSave == nil {
		return nil, fmt.Errorf("MQTT enabled but click or save handler is nil")
	}

	c := &MQTTClient{
		config:       config,
		clickHandler: onClick,
		saveHandler:  onSave,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTT.Broker)

	clientID := config.MQTT.ClientID
	if clientID == "" {
		clientID = "routedraw"
	}
	opts.SetClientID(clientID)

	if config.MQTT.Username != "" {
		opts.SetUsername(config.MQTT.Username)
		opts.SetPassword(config.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	// Clicks must be applied in the order they were made.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)

	go c.connectWithRetry()

	return c, nil
}

// ClickTopic is the topic map clicks arrive on
func (c *MQTTClient) ClickTopic() string {
	return c.config.GetPrefix() + "/click"
}

// SaveTopic is the topic save requests arrive on
func (c *MQTTClient) SaveTopic() string {
	return c.config.GetPrefix() + "/save"
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// OnConnect registers fn to run after every (re)connect, once the intake
// topics are subscribed. fn also runs immediately if already connected.
func (c *MQTTClient) OnConnect(fn func()) {
	c.mu.Lock()
	c.connectHooks = append(c.connectHooks, fn)
	connected := c.isConnected
	c.mu.Unlock()

	if connected {
		fn()
	}
}

// onConnect subscribes to the intake topics; it runs again after every reconnect.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing to intake topics...")
	c.setConnected(true)

	subs := map[string]mqtt.MessageHandler{
		c.ClickTopic(): c.handleClickMessage,
		c.SaveTopic():  c.handleSaveMessage,
	}
	for topic, handler := range subs {
		token := client.Subscribe(topic, 1, handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] Subscribed to %s", topic)
		}
	}

	c.mu.RLock()
	hooks := append([]func(){}, c.connectHooks...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// handleClickMessage decodes a click payload. Malformed payloads are logged and dropped.
func (c *MQTTClient) handleClickMessage(client mqtt.Client, msg mqtt.Message) {
	if msg.Retained() {
		log.Printf("[MQTT] Dropping retained click on %s", msg.Topic())
		return
	}
	ev, err := DecodeClickEvent(msg.Payload())
	if err != nil {
		log.Printf("[MQTT] Dropping click on %s: %v", msg.Topic(), err)
		return
	}
	c.clickHandler(ev)
}

// handleSaveMessage triggers a save. Retained requests are replayed by the
// broker on every subscribe and would create duplicate features.
func (c *MQTTClient) handleSaveMessage(client mqtt.Client, msg mqtt.Message) {
	if msg.Retained() {
		log.Printf("[MQTT] Dropping retained save request on %s", msg.Topic())
		return
	}
	log.Printf("[MQTT] Save requested on %s", msg.Topic())
	c.saveHandler()
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient around a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, onClick ClickHandler, onSave SaveHandler) *MQTTClient {
	return &MQTTClient{
		client:       client,
		config:       config,
		clickHandler: onClick,
		saveHandler:  onSave,
	}
}

// clickPayload is the wire form of a click. It accepts either a single "hit"
// object or the renderer's "features" list, of which only the first entry
// is considered.
type clickPayload struct {
	Lng      *float64     `json:"lng"`
	Lat      *float64     `json:"lat"`
	Hit      *HitFeature  `json:"hit"`
	Features []HitFeature `json:"features"`
}

// DecodeClickEvent parses a click from JSON:
//
//	{"lng": -75.1, "lat": 39.1, "features": [{"layerId": "dot-measure-points", "featureIndex": 1}]}
func DecodeClickEvent(data []byte) (ClickEvent, error) {
	var p clickPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ClickEvent{}, fmt.Errorf("parsing click JSON: %w", err)
	}
	if p.Lng == nil || p.Lat == nil {
		return ClickEvent{}, fmt.Errorf("click is missing lng or lat")
	}

	ev := ClickEvent{Lng: *p.Lng, Lat: *p.Lat, Hit: p.Hit}
	if ev.Hit == nil && len(p.Features) > 0 {
		hit := p.Features[0]
		ev.Hit = &hit
	}
	return ev, nil
}
