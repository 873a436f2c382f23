package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"autovrs-client/internal/inspect"
	"autovrs-client/internal/metrics"
	"autovrs-client/internal/session"
)

// Server is the read-only local operator endpoint: it exposes the session
// snapshot, the current display image, an MJPEG mirror of whatever the
// session shows, and prometheus metrics. It never mutates session state.
type Server struct {
	client      *inspect.Client
	metrics     *metrics.Metrics
	broadcaster *FrameBroadcaster
}

// NewServer wires a monitor server to the client's session.
func NewServer(client *inspect.Client, m *metrics.Metrics) *Server {
	return &Server{
		client:      client,
		metrics:     m,
		broadcaster: NewFrameBroadcaster(client.Session()),
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/frame.jpg", s.handleFrame)
	mux.HandleFunc("/stream", s.handleStream)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Stop releases the session subscription and viewer channels.
func (s *Server) Stop() {
	s.broadcaster.Stop()
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap := s.client.Session().Snapshot()

	payload := map[string]any{
		"mode":        string(snap.Mode),
		"connection":  string(snap.Connection),
		"frame_count": snap.FrameCount,
		"has_image":   len(snap.Image) > 0,
		"camera_note": snap.CameraNote,
		"timestamp":   float64(time.Now().Unix()),
	}
	if snap.Resolution != nil {
		payload["resolution"] = snap.Resolution
	}
	if snap.Detections != nil {
		payload["detections"] = snap.Detections
	}
	if snap.Analysis != nil {
		payload["analysis"] = snap.Analysis
	}
	if snap.LastError != nil {
		payload["last_error"] = snap.LastError.Error()
	}
	writeJSON(w, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.client.Session().Snapshot()
	writeJSON(w, map[string]any{
		"status":    "ok",
		"connected": snap.Connection == session.Connected,
		"mode":      string(snap.Mode),
	})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	snap := s.client.Session().Snapshot()
	if len(snap.Image) == 0 {
		http.Error(w, "No frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(snap.Image)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id, frameCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)
	streamMJPEGFromChannel(w, r, frameCh)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
