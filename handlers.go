package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kwv/routedraw/sketch"
)

// maxClickBytes bounds a click request body.
const maxClickBytes = 64 << 10

// brokerStatus reports the MQTT connection state
type brokerStatus interface {
	IsConnected() bool
}

// statusResponse is the body of GET /status
type statusResponse struct {
	Points          int                `json:"points"`
	Revision        uint64             `json:"revision"`
	LengthMeters    float64            `json:"lengthMeters"`
	CanSave         bool               `json:"canSave"`
	ReferenceLoaded bool               `json:"referenceLoaded"`
	ReferenceCount  int                `json:"referenceCount"`
	MQTTConnected   *bool              `json:"mqttConnected,omitempty"`
	LastLoad        *sketch.TaskInfo   `json:"lastLoad,omitempty"`
	LastSave        *sketch.TaskInfo   `json:"lastSave,omitempty"`
	LastSaveReport  *sketch.SaveReport `json:"lastSaveReport,omitempty"`
}

// newHTTPServer creates an HTTP server with all endpoints. broker is nil
// when MQTT is not enabled.
func newHTTPServer(session *sketch.Session, broker brokerStatus) http.Handler {
	mux := http.NewServeMux()

	mqttConnected := func() *bool {
		if broker == nil {
			return nil
		}
		connected := broker.IsConnected()
		return &connected
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status          string    `json:"status"`
			Timestamp       time.Time `json:"timestamp"`
			ReferenceLoaded bool      `json:"referenceLoaded"`
			MQTTConnected   *bool     `json:"mqttConnected,omitempty"`
		}{
			Status:          "ok",
			Timestamp:       time.Now(),
			ReferenceLoaded: session.Reference() != nil,
			MQTTConnected:   mqttConnected(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		m := session.Measurement()
		resp := statusResponse{
			Points:         len(m.Points),
			Revision:       m.Revision,
			LengthMeters:   m.Length,
			CanSave:        m.CanSave,
			MQTTConnected:  mqttConnected(),
			LastSaveReport: session.LastSaveReport(),
		}
		if ref := session.Reference(); ref != nil {
			resp.ReferenceLoaded = true
			resp.ReferenceCount = len(ref.Features)
		}
		if t := session.LastLoad(); t != nil {
			info := t.Info()
			resp.LastLoad = &info
		}
		if t := session.LastSave(); t != nil {
			info := t.Info()
			resp.LastSave = &info
		}
		writeJSON(w, http.StatusOK, resp)
	})

	// Measurement line source: a LineString feature, or an empty FeatureCollection
	mux.HandleFunc("GET /measurement.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeGeoJSON(w, session.Measurement().Geometry)
	})

	// Vertex markers; properties.id is the featureIndex to send back on click
	mux.HandleFunc("GET /vertices.geojson", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		writeGeoJSON(w, sketch.BuildVertexFeatures(session.Points().Snapshot()))
	})

	mux.HandleFunc("GET /reference.geojson", func(w http.ResponseWriter, r *http.Request) {
		ref := session.Reference()
		if ref == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeGeoJSON(w, ref)
	})

	mux.HandleFunc("POST /click", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxClickBytes))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}
		ev, err := sketch.DecodeClickEvent(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result := session.HandleClick(ev)
		log.Printf("[HTTP] /click (%.6f, %.6f) -> %s %d (count %d)", ev.Lng, ev.Lat, result.Action, result.Index, result.Count)
		writeJSON(w, http.StatusOK, result)
	})

	// Saving is disabled below two points; the request is refused rather than queued.
	mux.HandleFunc("POST /save", func(w http.ResponseWriter, r *http.Request) {
		task, err := session.StartSave(context.WithoutCancel(r.Context()))
		switch {
		case errors.Is(err, sketch.ErrTooFewPoints):
			http.Error(w, "save disabled: measurement needs at least 2 points", http.StatusConflict)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("wait") != "true" {
			writeJSON(w, http.StatusAccepted, task.Info())
			return
		}

		select {
		case <-task.Done():
		case <-r.Context().Done():
			return
		}
		status := http.StatusOK
		if task.Err() != nil {
			status = http.StatusBadGateway
		}
		resp := struct {
			Task   sketch.TaskInfo    `json:"task"`
			Report *sketch.SaveReport `json:"report,omitempty"`
		}{
			Task:   task.Info(),
			Report: session.LastSaveReport(),
		}
		writeJSON(w, status, resp)
	})

	mux.HandleFunc("POST /reload", func(w http.ResponseWriter, r *http.Request) {
		task := session.StartLoad(context.WithoutCancel(r.Context()))
		writeJSON(w, http.StatusAccepted, task.Info())
	})

	mux.HandleFunc("GET /preview.svg", func(w http.ResponseWriter, r *http.Request) {
		renderer := sketch.NewPreviewRenderer(session.Reference(), session.Points().Snapshot())
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("[HTTP] Error rendering SVG preview: %v", err)
		}
	})

	mux.HandleFunc("GET /preview.png", func(w http.ResponseWriter, r *http.Request) {
		renderer := sketch.NewPreviewRenderer(session.Reference(), session.Points().Snapshot())
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToPNG(w); err != nil {
			log.Printf("[HTTP] Error rendering PNG preview: %v", err)
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}

func writeGeoJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding GeoJSON: %v", err)
	}
}
