package session

import (
	"sync"

	"autovrs-client/internal/logger"
	"autovrs-client/internal/protocol"
)

// Mode is the view-state toggle governing what the presentation layer renders.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeCaptured Mode = "captured"
)

// ConnStatus mirrors the transport connection state for observers.
type ConnStatus string

const (
	Disconnected ConnStatus = "disconnected"
	Connecting   ConnStatus = "connecting"
	Connected    ConnStatus = "connected"
)

// Snapshot is the read surface of the session. Byte slices are shared with
// the session and must be treated as read-only by observers.
type Snapshot struct {
	Mode       Mode
	Image      []byte // live frame bytes or captured image bytes, per Mode
	FrameCount uint64
	Resolution *protocol.Resolution
	Detections *protocol.DetectionResult // nil outside Captured mode
	Analysis   *protocol.Analysis        // nil outside Captured mode
	Connection ConnStatus
	CameraNote string // remote camera status text, e.g. "waiting"
	Remote     *protocol.StatusResponse
	LastError  error
}

// Session holds the Live/Captured view state. It is the single source of
// truth the presentation layer reads; every mutation notifies all current
// subscribers exactly once, synchronously, on the mutating goroutine.
type Session struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Snapshot)

	mode       Mode
	liveImage  []byte
	frameCount uint64
	resolution *protocol.Resolution

	capturedImage []byte
	detections    *protocol.DetectionResult
	analysis      *protocol.Analysis

	connection ConnStatus
	cameraNote string
	remote     *protocol.StatusResponse
	lastErr    error
}

// New creates a session in Live mode with no frame yet.
func New() *Session {
	return &Session{
		subs:       make(map[int]func(Snapshot)),
		mode:       ModeLive,
		connection: Disconnected,
	}
}

// Subscribe registers an observer called on every mutation. The returned
// func removes the observer; it is safe to call more than once.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot returns the current view state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Mode:       s.mode,
		Image:      s.liveImage,
		FrameCount: s.frameCount,
		Resolution: s.resolution,
		Connection: s.connection,
		CameraNote: s.cameraNote,
		Remote:     s.remote,
		LastError:  s.lastErr,
	}
	if s.mode == ModeCaptured {
		snap.Image = s.capturedImage
		snap.Detections = s.detections
		snap.Analysis = s.analysis
	}
	return snap
}

// notifyLocked snapshots state and subscribers under the lock, then invokes
// the callbacks outside it so observers may call back into the session.
func (s *Session) notifyLocked() {
	snap := s.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
	s.mu.Lock()
}

// SetLiveFrame replaces the held live frame unconditionally. Older frames are
// discarded, never queued; the newest frame always wins.
func (s *Session) SetLiveFrame(image []byte, info protocol.FrameInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.liveImage = image
	if info.FrameCount > s.frameCount {
		s.frameCount = info.FrameCount
	}
	if info.Resolution != nil {
		s.resolution = info.Resolution
	}
	s.cameraNote = ""
	s.notifyLocked()
}

// SetCaptured transitions into Captured mode with the resolved capture image
// and its detections. Triggered only by a successful capture resolution.
func (s *Session) SetCaptured(image []byte, detections *protocol.DetectionResult, analysis *protocol.Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = ModeCaptured
	s.capturedImage = image
	s.detections = detections
	s.analysis = analysis
	logger.Info("Session", "Entered captured mode (%d detections)", detectionCount(detections))
	s.notifyLocked()
}

// ReturnToLive restores Live mode and clears the captured image and its
// detections so no stale detection data can leak into a later render.
// Safe to call when no capture was ever made.
func (s *Session) ReturnToLive() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = ModeLive
	s.capturedImage = nil
	s.detections = nil
	s.analysis = nil
	s.notifyLocked()
}

// SetError records a non-fatal session error for the presentation layer.
// The current mode and images are left untouched.
func (s *Session) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	s.notifyLocked()
}

// SetConnection records the transport status.
func (s *Session) SetConnection(status ConnStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connection == status {
		return
	}
	s.connection = status
	s.notifyLocked()
}

// SetCameraNote records the remote camera status text, distinguishing
// "no frame yet" from "lost connection".
func (s *Session) SetCameraNote(note string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cameraNote = note
	s.notifyLocked()
}

// SetRemoteStatus stores the latest status_response from the station.
func (s *Session) SetRemoteStatus(status protocol.StatusResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remote = &status
	s.notifyLocked()
}

func detectionCount(r *protocol.DetectionResult) int {
	if r == nil {
		return 0
	}
	return len(r.Detections)
}
