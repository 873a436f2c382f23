package geometry

import (
	"image"

	"autovrs-client/internal/protocol"
)

// Box is a render-ready detection rectangle in pixel space.
type Box struct {
	Rect       image.Rectangle
	Confidence float64
	ClassName  string
	ClassID    int
}

// Resolve converts a detection result into pixel-space rectangles for a
// render target of the given size. Normalized boxes are scaled by the target
// dimensions; pixel boxes pass through with clamping to the target bounds.
// Resolve never mutates its input and is a pure function of its arguments.
func Resolve(result *protocol.DetectionResult, width, height int) []Box {
	if result == nil || len(result.Detections) == 0 || width <= 0 || height <= 0 {
		return nil
	}

	space := result.Space()
	boxes := make([]Box, 0, len(result.Detections))
	for _, det := range result.Detections {
		x1, y1, x2, y2 := det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3]
		if space == protocol.SpaceNormalized {
			x1 *= float64(width)
			x2 *= float64(width)
			y1 *= float64(height)
			y2 *= float64(height)
		}

		rect := image.Rect(int(x1+0.5), int(y1+0.5), int(x2+0.5), int(y2+0.5))
		rect = rect.Intersect(image.Rect(0, 0, width, height))
		if rect.Empty() {
			continue
		}

		boxes = append(boxes, Box{
			Rect:       rect,
			Confidence: det.Confidence,
			ClassName:  det.ClassName,
			ClassID:    det.ClassID,
		})
	}
	return boxes
}
