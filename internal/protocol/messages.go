package protocol

import "encoding/base64"

// Inbound message types sent by the station.
const (
	TypeConnection       = "connection"
	TypeVideoFrame       = "video_frame"
	TypeCameraStatus     = "camera_status"
	TypeCaptureResponse  = "capture_response"
	TypeStatusResponse   = "status_response"
	TypeDetectionSetting = "detection_setting_response"
	TypePong             = "pong"
)

// Outbound message types sent by this client.
const (
	TypeCaptureImage = "capture_image"
	TypeGetStatus    = "get_status"
	TypeSetDetection = "set_detection"
	TypePing         = "ping"
)

// CoordinateSpace declares how detection bbox values are expressed.
type CoordinateSpace string

const (
	// SpacePixel means bbox values are absolute pixels of the captured image.
	SpacePixel CoordinateSpace = "pixel"
	// SpaceNormalized means bbox values are 0-1 fractions of the image size.
	SpaceNormalized CoordinateSpace = "normalized"
)

// Detection mirrors the JSON shape emitted by the station's defect detector.
// BBox is [x1, y1, x2, y2] in the result's coordinate space.
type Detection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
}

// DetectionResult mirrors the detection_results payload of a capture response.
// CoordinateSpace defaults to pixel when the station omits it.
type DetectionResult struct {
	Detections      []Detection     `json:"detections"`
	NumDefects      int             `json:"num_defects"`
	CoordinateSpace CoordinateSpace `json:"coordinate_space,omitempty"`
}

// Space returns the declared coordinate space, defaulting to pixel.
func (r *DetectionResult) Space() CoordinateSpace {
	if r == nil || r.CoordinateSpace == "" {
		return SpacePixel
	}
	return r.CoordinateSpace
}

// Analysis is the station's summary of a detection pass.
type Analysis struct {
	TotalDefects       int            `json:"total_defects"`
	DefectsByType      map[string]int `json:"defects_by_type"`
	HasCriticalDefects bool           `json:"has_critical_defects"`
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FrameInfo describes the live frame accompanying a video_frame message.
type FrameInfo struct {
	Status     string      `json:"status"`
	FrameCount uint64      `json:"frame_count"`
	Resolution *Resolution `json:"resolution,omitempty"`
	LastUpdate float64     `json:"last_update,omitempty"`
}

// ConnectionNotice is the station's welcome/status message.
type ConnectionNotice struct {
	Status       string  `json:"status"`
	ClientID     string  `json:"client_id"`
	ServerTime   float64 `json:"server_time"`
	CameraStatus string  `json:"camera_status"`
}

// VideoFrame carries one live frame as base64 JPEG bytes.
type VideoFrame struct {
	Data      string    `json:"data"`
	Timestamp float64   `json:"timestamp"`
	FrameInfo FrameInfo `json:"frame_info"`
}

// Bytes decodes the frame payload.
func (f VideoFrame) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// CameraStatus is an informational message, e.g. "waiting" while the remote
// camera initializes.
type CameraStatus struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// CaptureResponse resolves a capture_image request by correlation id.
type CaptureResponse struct {
	RequestID        string           `json:"request_id"`
	Success          bool             `json:"success"`
	Message          string           `json:"message"`
	Filepath         string           `json:"filepath,omitempty"`
	ImageData        string           `json:"image_data,omitempty"`
	DetectionResults *DetectionResult `json:"detection_results,omitempty"`
	Analysis         *Analysis        `json:"analysis,omitempty"`
	Timestamp        float64          `json:"timestamp"`
}

// ImageBytes decodes the captured image payload.
func (r CaptureResponse) ImageBytes() ([]byte, error) {
	if r.ImageData == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(r.ImageData)
}

// DetectionStatus mirrors the station's detector availability report.
type DetectionStatus struct {
	Available   bool `json:"available"`
	Enabled     bool `json:"enabled"`
	ModelLoaded bool `json:"model_loaded"`
}

// StatusResponse answers a get_status query.
type StatusResponse struct {
	CameraInfo      FrameInfo       `json:"camera_info"`
	DetectionStatus DetectionStatus `json:"detection_status"`
	Connections     int             `json:"connections"`
	Streaming       bool            `json:"streaming"`
	ServerTime      float64         `json:"server_time"`
}

// DetectionSettingResponse resolves a set_detection request.
type DetectionSettingResponse struct {
	RequestID string  `json:"request_id"`
	Success   bool    `json:"success"`
	Enabled   bool    `json:"enabled"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// Pong is the station's keepalive acknowledgment.
type Pong struct {
	Timestamp       float64 `json:"timestamp"`
	ClientTimestamp float64 `json:"client_timestamp"`
	ClientID        string  `json:"client_id"`
}

// Inbound is the tagged union over all station message kinds.
type Inbound interface {
	Kind() string
}

func (ConnectionNotice) Kind() string         { return TypeConnection }
func (VideoFrame) Kind() string               { return TypeVideoFrame }
func (CameraStatus) Kind() string             { return TypeCameraStatus }
func (CaptureResponse) Kind() string          { return TypeCaptureResponse }
func (StatusResponse) Kind() string           { return TypeStatusResponse }
func (DetectionSettingResponse) Kind() string { return TypeDetectionSetting }
func (Pong) Kind() string                     { return TypePong }
