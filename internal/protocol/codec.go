package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"autovrs-client/internal/errdefs"
)

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses one station message into its typed payload.
// Malformed JSON and unknown kinds come back as a DecodeError; they must be
// dropped by the caller, never raised past the router.
func DecodeInbound(payload []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errdefs.Decode("malformed message", err)
	}

	decode := func(dst Inbound) (Inbound, error) {
		if err := json.Unmarshal(payload, dst); err != nil {
			return nil, errdefs.Decode(fmt.Sprintf("malformed %s payload", env.Type), err)
		}
		return dst, nil
	}

	switch env.Type {
	case TypeConnection:
		return decode(&ConnectionNotice{})
	case TypeVideoFrame:
		return decode(&VideoFrame{})
	case TypeCameraStatus:
		return decode(&CameraStatus{})
	case TypeCaptureResponse:
		return decode(&CaptureResponse{})
	case TypeStatusResponse:
		return decode(&StatusResponse{})
	case TypeDetectionSetting:
		return decode(&DetectionSettingResponse{})
	case TypePong:
		return decode(&Pong{})
	default:
		return nil, errdefs.Decode(fmt.Sprintf("unknown message type %q", env.Type), nil)
	}
}

// CaptureCommand asks the station to freeze and analyze one frame.
type CaptureCommand struct {
	Type            string `json:"type"`
	RequestID       string `json:"request_id"`
	Filename        string `json:"filename,omitempty"`
	EnableDetection bool   `json:"enable_detection"`
}

// StatusQuery asks the station for its current status.
type StatusQuery struct {
	Type string `json:"type"`
}

// DetectionToggle switches defect detection on the station.
type DetectionToggle struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Enabled   bool   `json:"enabled"`
}

// Ping is the client keepalive heartbeat.
type Ping struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// EncodeCapture builds a capture_image request. The correlation id is
// generated by the caller, never here.
func EncodeCapture(requestID, filename string, enableDetection bool) ([]byte, error) {
	return json.Marshal(CaptureCommand{
		Type:            TypeCaptureImage,
		RequestID:       requestID,
		Filename:        filename,
		EnableDetection: enableDetection,
	})
}

// EncodeStatusQuery builds a get_status request.
func EncodeStatusQuery() ([]byte, error) {
	return json.Marshal(StatusQuery{Type: TypeGetStatus})
}

// EncodeSetDetection builds a set_detection request.
func EncodeSetDetection(requestID string, enabled bool) ([]byte, error) {
	return json.Marshal(DetectionToggle{
		Type:      TypeSetDetection,
		RequestID: requestID,
		Enabled:   enabled,
	})
}

// EncodePing builds a keepalive heartbeat.
func EncodePing(now time.Time) ([]byte, error) {
	return json.Marshal(Ping{
		Type:      TypePing,
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
	})
}
