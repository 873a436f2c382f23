package inspect

import (
	"fmt"

	"autovrs-client/internal/capture"
	"autovrs-client/internal/config"
	"autovrs-client/internal/errdefs"
	"autovrs-client/internal/geometry"
	"autovrs-client/internal/logger"
	"autovrs-client/internal/metrics"
	"autovrs-client/internal/overlay"
	"autovrs-client/internal/protocol"
	"autovrs-client/internal/session"
	"autovrs-client/internal/transport"
)

// Client is the inspection session client: it wires the transport manager,
// message router, capture coordinator and session state machine into one
// explicitly constructed object. Presentation layers read the session and
// issue commands through here; they never mutate state directly.
type Client struct {
	cfg         config.Config
	transport   *transport.Manager
	router      *protocol.Router
	coordinator *capture.Coordinator
	session     *session.Session
	metrics     *metrics.Metrics
}

// NewClient constructs a client from configuration. Lifecycle is owned by
// the caller: Connect to start, Close to dispose.
func NewClient(cfg config.Config, m *metrics.Metrics) *Client {
	c := &Client{
		cfg:     cfg,
		session: session.New(),
		metrics: m,
	}

	c.transport = transport.NewManager(transport.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
		OnMessage:         func(payload []byte) { c.router.Route(payload) },
		OnStatus:          c.onTransportStatus,
		Metrics:           m,
	})

	c.coordinator = capture.NewCoordinator(c.transport, c.session, cfg.CaptureTimeout, m)

	c.router = &protocol.Router{
		OnConnectionNotice: c.onConnectionNotice,
		OnVideoFrame:       c.onVideoFrame,
		OnCameraStatus:     c.onCameraStatus,
		OnCaptureResponse:  c.coordinator.HandleResponse,
		OnDetectionSetting: c.coordinator.HandleDetectionSetting,
		OnStatusResponse:   c.onStatusResponse,
		OnDecodeError:      c.onDecodeError,
	}

	return c
}

// Session returns the view state presentation layers subscribe to.
func (c *Client) Session() *session.Session {
	return c.session
}

// Connected reports whether the transport is currently connected.
func (c *Client) Connected() bool {
	return c.transport.IsConnected()
}

// Connect dials the station endpoint {base}/ws/{clientId}.
func (c *Client) Connect() error {
	endpoint, err := c.cfg.Endpoint()
	if err != nil {
		return err
	}
	return c.transport.Connect(endpoint)
}

// Close disconnects and disables reconnection until the next Connect.
func (c *Client) Close() {
	c.transport.Disconnect()
}

// RequestCapture issues a capture for the current frame and returns its
// correlation id. The session transitions to Captured mode only once the
// station's successful response arrives.
func (c *Client) RequestCapture(filename string, enableDetection bool) (string, error) {
	return c.coordinator.RequestCapture(filename, enableDetection)
}

// ReturnToLiveCamera restores Live mode, clearing the captured image and
// its detections. No-op-safe when nothing was captured.
func (c *Client) ReturnToLiveCamera() {
	c.session.ReturnToLive()
}

// RequestStatus queries the station status; the answer lands on the session.
func (c *Client) RequestStatus() error {
	if !c.transport.IsConnected() {
		return errdefs.NotConnected("status query requires a connection")
	}
	payload, err := protocol.EncodeStatusQuery()
	if err != nil {
		return err
	}
	return c.transport.Send(payload)
}

// SetDetection toggles defect detection on the station.
func (c *Client) SetDetection(enabled bool) (string, error) {
	return c.coordinator.RequestDetectionToggle(enabled)
}

// ResolveDetections maps the captured frame's detections onto a render
// target of the given size. Returns nil outside Captured mode.
func (c *Client) ResolveDetections(width, height int) []geometry.Box {
	snap := c.session.Snapshot()
	if snap.Mode != session.ModeCaptured {
		return nil
	}
	return geometry.Resolve(snap.Detections, width, height)
}

// RenderCaptured returns the captured frame annotated with its detection
// boxes as JPEG bytes, resolved against the given render size.
func (c *Client) RenderCaptured(width, height int) ([]byte, error) {
	snap := c.session.Snapshot()
	if snap.Mode != session.ModeCaptured || len(snap.Image) == 0 {
		return nil, fmt.Errorf("no captured frame to render")
	}
	boxes := geometry.Resolve(snap.Detections, width, height)
	return overlay.Render(snap.Image, boxes)
}

func (c *Client) onTransportStatus(status transport.Status) {
	switch status {
	case transport.StatusConnecting:
		c.session.SetConnection(session.Connecting)
	case transport.StatusConnected:
		c.session.SetConnection(session.Connected)
	default:
		c.session.SetConnection(session.Disconnected)
	}
}

func (c *Client) onConnectionNotice(notice protocol.ConnectionNotice) {
	if notice.CameraStatus != "" {
		c.session.SetCameraNote(notice.CameraStatus)
	}
}

func (c *Client) onVideoFrame(frame protocol.VideoFrame) {
	image, err := frame.Bytes()
	if err != nil {
		logger.Warn("Client", "Dropping frame with bad payload: %v", err)
		if c.metrics != nil {
			c.metrics.DecodeErrors.Add(1)
		}
		return
	}
	if c.metrics != nil {
		c.metrics.FramesReceived.Add(1)
	}
	c.session.SetLiveFrame(image, frame.FrameInfo)
}

func (c *Client) onCameraStatus(status protocol.CameraStatus) {
	note := status.Message
	if note == "" {
		note = status.Status
	}
	c.session.SetCameraNote(note)
}

func (c *Client) onStatusResponse(status protocol.StatusResponse) {
	c.session.SetRemoteStatus(status)
}

func (c *Client) onDecodeError(err error) {
	if c.metrics != nil {
		c.metrics.DecodeErrors.Add(1)
	}
}
