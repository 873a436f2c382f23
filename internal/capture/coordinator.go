package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"autovrs-client/internal/errdefs"
	"autovrs-client/internal/logger"
	"autovrs-client/internal/metrics"
	"autovrs-client/internal/protocol"
	"autovrs-client/internal/session"
)

// Sender is the transport surface the coordinator needs.
type Sender interface {
	Send(payload []byte) error
	IsConnected() bool
}

type requestKind int

const (
	kindCapture requestKind = iota
	kindToggle
)

type pendingRequest struct {
	id       string
	kind     requestKind
	issuedAt time.Time
	timer    *time.Timer
}

// Coordinator issues capture and detection-toggle requests, tracks them by
// correlation id, and resolves them against routed responses or timeouts.
// The pending table holds any number of outstanding requests; nothing here
// assumes a single slot.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest

	sender  Sender
	session *session.Session
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewCoordinator creates a coordinator resolving into the given session.
func NewCoordinator(sender Sender, sess *session.Session, timeout time.Duration, m *metrics.Metrics) *Coordinator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Coordinator{
		pending: make(map[string]*pendingRequest),
		sender:  sender,
		session: sess,
		timeout: timeout,
		metrics: m,
	}
}

// RequestCapture asks the station to freeze and analyze one frame. It fails
// with NotConnected while the transport is down; otherwise it records the
// request as issued and returns its correlation id immediately. Resolution
// arrives later via HandleResponse or the timeout.
func (c *Coordinator) RequestCapture(filename string, enableDetection bool) (string, error) {
	if !c.sender.IsConnected() {
		return "", errdefs.NotConnected("capture request requires a connection")
	}

	id := uuid.NewString()
	payload, err := protocol.EncodeCapture(id, filename, enableDetection)
	if err != nil {
		return "", err
	}

	c.track(id, kindCapture)
	if err := c.sender.Send(payload); err != nil {
		c.evict(id)
		return "", err
	}

	if c.metrics != nil {
		c.metrics.CaptureRequests.Add(1)
	}
	logger.Info("Capture", "Capture requested (id=%s, detection=%v)", id, enableDetection)
	return id, nil
}

// RequestDetectionToggle asks the station to enable or disable defect
// detection, correlated the same way captures are.
func (c *Coordinator) RequestDetectionToggle(enabled bool) (string, error) {
	if !c.sender.IsConnected() {
		return "", errdefs.NotConnected("detection toggle requires a connection")
	}

	id := uuid.NewString()
	payload, err := protocol.EncodeSetDetection(id, enabled)
	if err != nil {
		return "", err
	}

	c.track(id, kindToggle)
	if err := c.sender.Send(payload); err != nil {
		c.evict(id)
		return "", err
	}
	logger.Info("Capture", "Detection toggle requested (id=%s, enabled=%v)", id, enabled)
	return id, nil
}

// HandleResponse resolves a routed capture_response. Responses with an
// unknown or already-resolved id are dropped with a diagnostic and never
// mutate session state.
func (c *Coordinator) HandleResponse(resp protocol.CaptureResponse) {
	req := c.take(resp.RequestID, kindCapture)
	if req == nil {
		logger.Warn("Capture", "Dropping unmatched capture response (id=%q)", resp.RequestID)
		return
	}

	if !resp.Success {
		if c.metrics != nil {
			c.metrics.CapturesFailed.Add(1)
		}
		logger.Warn("Capture", "Capture %s failed: %s", resp.RequestID, resp.Message)
		c.session.SetError(errdefs.CaptureFailed(resp.Message))
		return
	}

	image, err := resp.ImageBytes()
	if err != nil {
		if c.metrics != nil {
			c.metrics.CapturesFailed.Add(1)
		}
		c.session.SetError(errdefs.Decode("capture image payload", err))
		return
	}

	if c.metrics != nil {
		c.metrics.CapturesOK.Add(1)
	}
	logger.Info("Capture", "Capture %s resolved in %v", resp.RequestID, time.Since(req.issuedAt).Round(time.Millisecond))
	c.session.SetCaptured(image, resp.DetectionResults, resp.Analysis)
}

// HandleDetectionSetting resolves a routed detection_setting_response.
func (c *Coordinator) HandleDetectionSetting(resp protocol.DetectionSettingResponse) {
	req := c.take(resp.RequestID, kindToggle)
	if req == nil {
		logger.Warn("Capture", "Dropping unmatched detection setting response (id=%q)", resp.RequestID)
		return
	}

	if !resp.Success {
		c.session.SetError(fmt.Errorf("detection toggle failed: %s", resp.Message))
		return
	}
	logger.Info("Capture", "Detection now %v on the station", resp.Enabled)
}

// PendingCount reports how many requests are still outstanding.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) track(id string, kind requestKind) {
	req := &pendingRequest{id: id, kind: kind, issuedAt: time.Now()}
	req.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })

	c.mu.Lock()
	c.pending[id] = req
	c.mu.Unlock()
}

// take removes and returns the pending request, or nil when the id is
// unknown, already resolved, or of a different kind.
func (c *Coordinator) take(id string, kind requestKind) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.pending[id]
	if !ok || req.kind != kind {
		return nil
	}
	req.timer.Stop()
	delete(c.pending, id)
	return req
}

func (c *Coordinator) evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req, ok := c.pending[id]; ok {
		req.timer.Stop()
		delete(c.pending, id)
	}
}

// expire transitions a request to timed out: it is evicted to bound memory
// and the timeout surfaces as a session error.
func (c *Coordinator) expire(id string) {
	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if c.metrics != nil && req.kind == kindCapture {
		c.metrics.CaptureTimeouts.Add(1)
	}
	logger.Warn("Capture", "Request %s timed out after %v", id, c.timeout)
	c.session.SetError(errdefs.CaptureTimeout(id))
}
