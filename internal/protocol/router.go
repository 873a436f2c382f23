package protocol

import (
	"autovrs-client/internal/logger"
)

// Router decodes raw transport payloads and dispatches them by message kind.
// Handlers left nil mean the kind is discarded after logging. Decode failures
// never propagate; the payload is dropped with a diagnostic.
type Router struct {
	OnConnectionNotice func(ConnectionNotice)
	OnVideoFrame       func(VideoFrame)
	OnCameraStatus     func(CameraStatus)
	OnCaptureResponse  func(CaptureResponse)
	OnStatusResponse   func(StatusResponse)
	OnDetectionSetting func(DetectionSettingResponse)
	OnPong             func(Pong)
	OnDecodeError      func(error)
}

// Route classifies one inbound payload and hands it to the matching handler.
func (r *Router) Route(payload []byte) {
	msg, err := DecodeInbound(payload)
	if err != nil {
		logger.Warn("Router", "Dropping inbound message: %v", err)
		if r.OnDecodeError != nil {
			r.OnDecodeError(err)
		}
		return
	}

	switch m := msg.(type) {
	case *ConnectionNotice:
		logger.Info("Router", "Connection notice: status=%s camera=%s", m.Status, m.CameraStatus)
		if r.OnConnectionNotice != nil {
			r.OnConnectionNotice(*m)
		}
	case *VideoFrame:
		if r.OnVideoFrame != nil {
			r.OnVideoFrame(*m)
		}
	case *CameraStatus:
		logger.Debug("Router", "Camera status: %s (%s)", m.Status, m.Message)
		if r.OnCameraStatus != nil {
			r.OnCameraStatus(*m)
		}
	case *CaptureResponse:
		if r.OnCaptureResponse != nil {
			r.OnCaptureResponse(*m)
		}
	case *StatusResponse:
		if r.OnStatusResponse != nil {
			r.OnStatusResponse(*m)
		}
	case *DetectionSettingResponse:
		if r.OnDetectionSetting != nil {
			r.OnDetectionSetting(*m)
		}
	case *Pong:
		logger.Debug("Router", "Pong received (server_time=%.3f)", m.Timestamp)
		if r.OnPong != nil {
			r.OnPong(*m)
		}
	}
}
