package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"autovrs-client/internal/geometry"
)

// Per-class box colors, matching the station's annotation palette.
var classColors = []color.RGBA{
	{R: 255, A: 255},                 // short_circuit
	{B: 255, A: 255},                 // open_circuit
	{R: 255, G: 255, A: 255},         // missing_component
	{R: 255, B: 255, A: 255},         // damaged_track
	{R: 128, B: 128, A: 255},         // wrong_component
	{R: 255, G: 165, A: 255},         // solder_defect
	{G: 255, A: 255},                 // crack
	{G: 255, B: 255, A: 255},         // scratch
}

func classColor(classID int) color.RGBA {
	if classID >= 0 && classID < len(classColors) {
		return classColors[classID]
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}

const boxThickness = 2

// Render draws the resolved detection boxes and their labels onto the
// captured image and returns the annotated frame as JPEG bytes. The source
// bytes are never modified; calling Render twice with the same inputs yields
// the same output.
func Render(imageData []byte, boxes []geometry.Box) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode captured image: %w", err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	for _, box := range boxes {
		col := classColor(box.ClassID)
		drawRect(canvas, box.Rect, col)
		label := fmt.Sprintf("%s: %.2f", box.ClassName, box.Confidence)
		labelY := box.Rect.Min.Y - 4
		if labelY < basicfont.Face7x13.Height {
			labelY = box.Rect.Max.Y + basicfont.Face7x13.Height
		}
		drawLabel(canvas, box.Rect.Min.X, labelY, label, col)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}

func drawRect(img *image.RGBA, rect image.Rectangle, col color.RGBA) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	for t := 0; t < boxThickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setPixel(img, x, rect.Min.Y+t, col)
			setPixel(img, x, rect.Max.Y-1-t, col)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setPixel(img, rect.Min.X+t, y, col)
			setPixel(img, rect.Max.X-1-t, y, col)
		}
	}
}

func setPixel(img *image.RGBA, x, y int, col color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, col)
	}
}

func drawLabel(img *image.RGBA, x, y int, text string, col color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
