package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kwv/routedraw/sketch"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *sketch.Config
	Client     *sketch.FeatureServiceClient
	Session    *sketch.Session
	MQTTClient *sketch.MQTTClient
	Publisher  *sketch.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile string
	PointsFile string
	HttpPort   int
	HttpMode   bool
	MqttMode   bool

	// Signals ends RunService; defaults to SIGINT/SIGTERM.
	Signals chan os.Signal
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.PointsFile = opts.PointsFile
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
	a.MqttMode = opts.MqttMode
}

// Init loads configuration and builds the feature-service client and session.
func (a *App) Init() error {
	if a.Session != nil {
		return nil
	}

	config, err := sketch.LoadConfig(a.ConfigFile)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", a.ConfigFile, err)
	}
	a.Config = config

	auth, err := sketch.NewAPIKeyManager(config.FeatureService.APIKey)
	if err != nil {
		return fmt.Errorf("creating credentials: %w", err)
	}

	client, err := sketch.NewFeatureServiceClient(config.FeatureService.URL, auth, config.ClientOptions()...)
	if err != nil {
		return err
	}
	a.Client = client
	a.Session = sketch.NewSession(client, config.SessionOptions())

	log.Printf("Feature service: %s (%s)", client.LayerURL(), auth)
	return nil
}

// RunInitConfig writes a starter configuration file. An existing file is
// never overwritten.
func (a *App) RunInitConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := sketch.SaveConfig(path, sketch.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("Wrote starter config: %s\n", path)
	fmt.Println("Set featureService.url and ARCGIS_API_KEY before running.")
	return nil
}

// RunLoadOnly loads the reference layer once and prints a summary
func (a *App) RunLoadOnly() error {
	if err := a.Init(); err != nil {
		return err
	}

	if err := a.Session.LoadReferenceFeatures(context.Background()); err != nil {
		return err
	}

	fc := a.Session.Reference()
	counts := make(map[string]int)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			counts["(none)"]++
			continue
		}
		counts[f.Geometry.GeoJSONType()]++
	}

	fmt.Printf("Reference features: %d\n", len(fc.Features))
	for geomType, n := range counts {
		fmt.Printf("  %s: %d\n", geomType, n)
	}

	var bound *orb.Bound
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if bound != nil {
			b = bound.Union(b)
		}
		bound = &b
	}
	if bound != nil {
		fmt.Printf("Bounds: (%.6f, %.6f) - (%.6f, %.6f)\n", bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat())
	}
	return nil
}

// RunSubmit saves the route in pointsFile as a new feature without the map
func (a *App) RunSubmit(pointsFile string) error {
	if err := a.Init(); err != nil {
		return err
	}

	points, err := loadPointsFile(pointsFile)
	if err != nil {
		return err
	}
	for _, p := range points {
		a.Session.Points().Append(p)
	}

	result, err := a.Session.SaveMeasurement(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Saved %d points (%.1f m) as object ids %v\n",
		len(points), sketch.MeasuredLength(points), result.ObjectIDs())
	return nil
}

// RunPreview renders the reference layer and optional route to an SVG or PNG file
func (a *App) RunPreview(outputFile string) error {
	if err := a.Init(); err != nil {
		return err
	}

	// A failed load still renders the route on its own.
	_ = a.Session.LoadReferenceFeatures(context.Background())

	var points []sketch.Coordinate
	if a.PointsFile != "" {
		var err error
		points, err = loadPointsFile(a.PointsFile)
		if err != nil {
			return err
		}
	}

	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputFile, err)
	}
	defer func() { _ = f.Close() }()

	renderer := sketch.NewPreviewRenderer(a.Session.Reference(), points)
	switch strings.ToLower(filepath.Ext(outputFile)) {
	case ".png":
		err = renderer.RenderToPNG(f)
	case ".svg":
		err = renderer.RenderToSVG(f)
	default:
		return fmt.Errorf("unsupported preview format %q (use .svg or .png)", filepath.Ext(outputFile))
	}
	if err != nil {
		return fmt.Errorf("rendering preview: %w", err)
	}

	fmt.Printf("Created preview: %s\n", outputFile)
	return nil
}

// RunService starts the combined MQTT and/or HTTP service
func (a *App) RunService() error {
	fmt.Println("Starting routedraw service...")

	if err := a.Init(); err != nil {
		return err
	}

	// 1. Start MQTT if enabled; the publisher republishes current state on every connect
	if a.MqttMode {
		onSave := func() {
			if _, err := a.Session.StartSave(context.Background()); err != nil {
				log.Printf("[MQTT] Save ignored: %v", err)
			}
		}
		onClick := func(ev sketch.ClickEvent) {
			result := a.Session.HandleClick(ev)
			log.Printf("[MQTT] click (%.6f, %.6f) -> %s %d (count %d)", ev.Lng, ev.Lat, result.Action, result.Index, result.Count)
		}

		mqttClient, err := sketch.InitMQTT(a.Config, onClick, onSave)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return errors.New("MQTT broker not configured (mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = mqttClient

		a.Publisher = sketch.NewPublisher(mqttClient.GetClient(), a.Config.GetPrefix())
		a.Publisher.SetQoS(a.Config.MQTT.QoS)
		a.Publisher.SetRetain(a.Config.RetainGeometry())
		a.Publisher.Attach(a.Session)
		mqttClient.OnConnect(func() {
			if err := a.Publisher.PublishCurrent(a.Session); err != nil {
				log.Printf("[MQTT] Error republishing state: %v", err)
			}
		})
		fmt.Println("MQTT intake and publisher initialized")
	}

	// 2. Load the reference layer once on startup; failures leave it empty
	a.Session.StartLoad(context.Background())

	// 3. Start HTTP server if enabled
	var server *http.Server
	if a.HttpMode {
		port := a.HttpPort
		if port == 0 {
			port = a.Config.HTTP.Port
		}
		if port == 0 {
			port = 8080
		}
		a.HttpPort = port

		var broker brokerStatus
		if a.MQTTClient != nil {
			broker = a.MQTTClient
		}
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           newHTTPServer(a.Session, broker),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	a.printServiceInfo()

	// 4. Wait for interrupt signal
	sigChan := a.Signals
	if sigChan == nil {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}
	<-sigChan

	fmt.Println("\nShutting down service...")
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}

func (a *App) printServiceInfo() {
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		prefix := a.Config.GetPrefix()
		fmt.Println("\nMQTT:")
		fmt.Printf("  Clicks:      %s/click\n", prefix)
		fmt.Printf("  Save:        %s/save\n", prefix)
		fmt.Printf("  Publishing:  %s/{measurement,vertices,reference,edits}\n", prefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health              - Health check")
		fmt.Println("  GET  /status              - Measurement and task status")
		fmt.Println("  GET  /measurement.geojson - Measurement line source")
		fmt.Println("  GET  /vertices.geojson    - Vertex marker source")
		fmt.Println("  GET  /reference.geojson   - Reference route layer")
		fmt.Println("  GET  /preview.svg|png     - Rendered preview")
		fmt.Println("  POST /click               - Map click")
		fmt.Println("  POST /save                - Save measurement as a new feature")
		fmt.Println("  POST /reload              - Reload reference layer")
	}

	fmt.Println("\nPress Ctrl+C to stop")
}

// loadPointsFile reads a route as either [[lng,lat],...] or a GeoJSON
// LineString (bare geometry or feature).
func loadPointsFile(path string) ([]sketch.Coordinate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading points file: %w", err)
	}

	var pairs [][2]float64
	if err := json.Unmarshal(data, &pairs); err == nil {
		points := make([]sketch.Coordinate, len(pairs))
		for i, p := range pairs {
			points[i] = sketch.Coordinate{Lng: p[0], Lat: p[1]}
		}
		return points, nil
	}

	var geom orb.Geometry
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		geom = f.Geometry
	} else if g, err := geojson.UnmarshalGeometry(data); err == nil {
		geom = g.Geometry()
	}

	ls, ok := geom.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("points file %s: expected [[lng,lat],...] or a GeoJSON LineString", path)
	}
	points := make([]sketch.Coordinate, len(ls))
	for i, p := range ls {
		points[i] = sketch.Coordinate{Lng: p.Lon(), Lat: p.Lat()}
	}
	return points, nil
}
