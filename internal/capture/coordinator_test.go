package capture

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autovrs-client/internal/errdefs"
	"autovrs-client/internal/metrics"
	"autovrs-client/internal/protocol"
	"autovrs-client/internal/session"
)

// fakeSender records outgoing payloads instead of writing to a socket.
type fakeSender struct {
	connected bool
	sendErr   error
	sent      [][]byte
}

func (f *fakeSender) Send(payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSender) IsConnected() bool { return f.connected }

func (f *fakeSender) lastSent(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, f.sent)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(f.sent[len(f.sent)-1], &msg))
	return msg
}

func TestRequestCaptureSendsCorrelatedCommand(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	c := NewCoordinator(sender, sess, time.Minute, nil)

	id, err := c.RequestCapture("board-42.jpg", true)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, c.PendingCount())

	msg := sender.lastSent(t)
	assert.Equal(t, "capture_image", msg["type"])
	assert.Equal(t, id, msg["request_id"])
	assert.Equal(t, "board-42.jpg", msg["filename"])
	assert.Equal(t, true, msg["enable_detection"])
}

func TestRequestCaptureWhileDisconnected(t *testing.T) {
	sender := &fakeSender{connected: false}
	c := NewCoordinator(sender, session.New(), time.Minute, nil)

	_, err := c.RequestCapture("x.jpg", false)
	require.Error(t, err)
	assert.True(t, errdefs.IsKind(err, errdefs.KindNotConnected))
	assert.Equal(t, 0, c.PendingCount())
	assert.Empty(t, sender.sent)
}

func TestRequestCaptureEvictedOnSendFailure(t *testing.T) {
	sender := &fakeSender{connected: true, sendErr: errors.New("broken pipe")}
	c := NewCoordinator(sender, session.New(), time.Minute, nil)

	_, err := c.RequestCapture("x.jpg", true)
	require.Error(t, err)
	assert.Equal(t, 0, c.PendingCount(), "failed sends must not leave a pending entry")
}

func TestSuccessfulResponseEntersCapturedMode(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	m := metrics.New()
	c := NewCoordinator(sender, sess, time.Minute, m)

	id, err := c.RequestCapture("x.jpg", true)
	require.NoError(t, err)

	image := []byte("jpeg-bytes")
	c.HandleResponse(protocol.CaptureResponse{
		RequestID: id,
		Success:   true,
		ImageData: base64.StdEncoding.EncodeToString(image),
		DetectionResults: &protocol.DetectionResult{
			NumDefects: 1,
			Detections: []protocol.Detection{{BBox: [4]float64{10, 10, 50, 50}, Confidence: 0.9, ClassName: "crack"}},
		},
		Analysis: &protocol.Analysis{TotalDefects: 1},
	})

	snap := sess.Snapshot()
	assert.Equal(t, session.ModeCaptured, snap.Mode)
	assert.Equal(t, image, snap.Image)
	require.NotNil(t, snap.Detections)
	assert.Equal(t, "crack", snap.Detections.Detections[0].ClassName)
	assert.Equal(t, 0, c.PendingCount())
	assert.Equal(t, uint64(1), m.CapturesOK.Load())
}

func TestFailedResponseStaysLive(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	m := metrics.New()
	c := NewCoordinator(sender, sess, time.Minute, m)

	id, err := c.RequestCapture("x.jpg", true)
	require.NoError(t, err)

	c.HandleResponse(protocol.CaptureResponse{RequestID: id, Success: false, Message: "No frame available"})

	snap := sess.Snapshot()
	assert.Equal(t, session.ModeLive, snap.Mode)
	require.Error(t, snap.LastError)
	assert.True(t, errdefs.IsKind(snap.LastError, errdefs.KindCaptureFailed))
	assert.Contains(t, snap.LastError.Error(), "No frame available")
	assert.Equal(t, uint64(1), m.CapturesFailed.Load())
}

func TestUnmatchedResponseIsDropped(t *testing.T) {
	sess := session.New()
	c := NewCoordinator(&fakeSender{connected: true}, sess, time.Minute, nil)

	c.HandleResponse(protocol.CaptureResponse{RequestID: "never-issued", Success: true})

	snap := sess.Snapshot()
	assert.Equal(t, session.ModeLive, snap.Mode)
	assert.NoError(t, snap.LastError)
}

func TestDuplicateResponseResolvesOnce(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	c := NewCoordinator(sender, sess, time.Minute, nil)

	id, err := c.RequestCapture("x.jpg", true)
	require.NoError(t, err)

	var notified int
	sess.Subscribe(func(session.Snapshot) { notified++ })

	resp := protocol.CaptureResponse{
		RequestID: id,
		Success:   true,
		ImageData: base64.StdEncoding.EncodeToString([]byte("img")),
	}
	c.HandleResponse(resp)
	c.HandleResponse(resp) // replay resolves nothing

	assert.Equal(t, 1, notified)
	assert.Equal(t, 0, c.PendingCount())
}

func TestTimeoutSurfacesAsSessionError(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	m := metrics.New()
	c := NewCoordinator(sender, sess, 20*time.Millisecond, m)

	id, err := c.RequestCapture("x.jpg", true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.PendingCount() == 0
	}, time.Second, 5*time.Millisecond)

	snap := sess.Snapshot()
	require.Error(t, snap.LastError)
	assert.True(t, errdefs.IsKind(snap.LastError, errdefs.KindCaptureTimeout))
	assert.Equal(t, session.ModeLive, snap.Mode, "timeouts must not flip the view state")
	assert.Equal(t, uint64(1), m.CaptureTimeouts.Load())

	// A straggler response after the timeout is dropped.
	c.HandleResponse(protocol.CaptureResponse{RequestID: id, Success: true})
	assert.Equal(t, session.ModeLive, sess.Snapshot().Mode)
}

func TestResponseAfterResolutionCancelsTimer(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	c := NewCoordinator(sender, sess, 30*time.Millisecond, nil)

	id, err := c.RequestCapture("x.jpg", false)
	require.NoError(t, err)
	c.HandleResponse(protocol.CaptureResponse{
		RequestID: id,
		Success:   true,
		ImageData: base64.StdEncoding.EncodeToString([]byte("img")),
	})

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, sess.Snapshot().LastError, "resolved requests must not time out later")
}

func TestConcurrentCapturesResolveIndependently(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	c := NewCoordinator(sender, sess, time.Minute, nil)

	id1, err := c.RequestCapture("a.jpg", true)
	require.NoError(t, err)
	id2, err := c.RequestCapture("b.jpg", true)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
	assert.Equal(t, 2, c.PendingCount())

	// Resolve out of order.
	c.HandleResponse(protocol.CaptureResponse{
		RequestID: id2,
		Success:   true,
		ImageData: base64.StdEncoding.EncodeToString([]byte("second")),
	})
	assert.Equal(t, 1, c.PendingCount())
	assert.Equal(t, []byte("second"), sess.Snapshot().Image)

	c.HandleResponse(protocol.CaptureResponse{
		RequestID: id1,
		Success:   true,
		ImageData: base64.StdEncoding.EncodeToString([]byte("first")),
	})
	assert.Equal(t, 0, c.PendingCount())
	assert.Equal(t, []byte("first"), sess.Snapshot().Image)
}

func TestDetectionToggleRoundTrip(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	c := NewCoordinator(sender, sess, time.Minute, nil)

	id, err := c.RequestDetectionToggle(true)
	require.NoError(t, err)

	msg := sender.lastSent(t)
	assert.Equal(t, "set_detection", msg["type"])
	assert.Equal(t, id, msg["request_id"])
	assert.Equal(t, true, msg["enabled"])

	// A capture response cannot resolve a toggle request.
	c.HandleResponse(protocol.CaptureResponse{RequestID: id, Success: true})
	assert.Equal(t, 1, c.PendingCount())

	c.HandleDetectionSetting(protocol.DetectionSettingResponse{RequestID: id, Success: true, Enabled: true})
	assert.Equal(t, 0, c.PendingCount())
	assert.NoError(t, sess.Snapshot().LastError)
}

func TestDetectionToggleFailure(t *testing.T) {
	sender := &fakeSender{connected: true}
	sess := session.New()
	c := NewCoordinator(sender, sess, time.Minute, nil)

	id, err := c.RequestDetectionToggle(false)
	require.NoError(t, err)

	c.HandleDetectionSetting(protocol.DetectionSettingResponse{RequestID: id, Success: false, Message: "detector busy"})
	require.Error(t, sess.Snapshot().LastError)
	assert.Contains(t, sess.Snapshot().LastError.Error(), "detector busy")
}
