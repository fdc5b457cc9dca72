// Package render draws annotation scenes onto an in-memory raster canvas.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/bbox-annotator/pkg/surface"
	"github.com/menta2k/bbox-annotator/pkg/types"
)

// ErrNothingDrawn is returned by Save before the first Draw.
var ErrNothingDrawn = errors.New("render: nothing drawn yet")

// Palette holds overlay colors and stroke sizes
type Palette struct {
	Line              color.NRGBA
	AnchorStroke      color.NRGBA
	AnchorFill        color.NRGBA
	LineWidth         int
	AnchorRadius      int
	AnchorStrokeWidth int
}

// DefaultPalette returns the yellow box, green ring and red dot look.
func DefaultPalette() Palette {
	return Palette{
		Line:              color.NRGBA{0xf4, 0xc2, 0x0d, 0xff},
		AnchorStroke:      color.NRGBA{0x3c, 0xba, 0x54, 0xff},
		AnchorFill:        color.NRGBA{0xdb, 0x32, 0x36, 0xff},
		LineWidth:         2,
		AnchorRadius:      3,
		AnchorStrokeWidth: 2,
	}
}

// Canvas is a surface.Renderer that keeps the last drawn frame
type Canvas struct {
	mu      sync.Mutex
	palette Palette
	width   int
	height  int

	bgKey string
	bg    *image.NRGBA
	frame *image.NRGBA
}

var _ surface.Renderer = (*Canvas)(nil)

// NewCanvas creates a canvas. width and height are used until a scene
// carries its own target size.
func NewCanvas(width, height int, palette Palette) *Canvas {
	if palette.LineWidth < 1 {
		palette.LineWidth = 1
	}
	return &Canvas{palette: palette, width: width, height: height}
}

// Draw renders the scene: the image fitted to the target size, then the
// overlay, then the anchors on top.
func (c *Canvas) Draw(scene surface.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, h := scene.TargetWidth, scene.TargetHeight
	if w <= 0 || h <= 0 {
		w, h = c.width, c.height
	}
	if w <= 0 || h <= 0 {
		return
	}

	frame := imaging.Clone(c.background(scene.Image, w, h))

	if scene.Overlay.Visible {
		for _, seg := range scene.Overlay.Segments() {
			drawSegment(frame, seg, c.palette.Line, c.palette.LineWidth)
		}
	}
	for _, a := range []surface.Anchor{scene.Pt1, scene.Pt2} {
		if a.Visible {
			drawAnchor(frame, a.Point, c.palette)
		}
	}
	c.frame = frame
}

// Frame returns a copy of the last drawn frame, or nil.
func (c *Canvas) Frame() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return nil
	}
	return imaging.Clone(c.frame)
}

// Save writes the last frame to path with the specified format and quality
func (c *Canvas) Save(path, format string, quality int) error {
	img := c.Frame()
	if img == nil {
		return ErrNothingDrawn
	}
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(quality)})
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported snapshot format: %s", format)
	}
}

// background returns the loaded image stretched to w x h, cached per image.
func (c *Canvas) background(img *types.LoadedImage, w, h int) *image.NRGBA {
	if img == nil || img.Pixels == nil {
		return imaging.New(w, h, color.NRGBA{0, 0, 0, 0xff})
	}
	key := fmt.Sprintf("%s@%dx%d", img.ID, w, h)
	if key != c.bgKey || c.bg == nil {
		c.bg = imaging.Resize(img.Pixels, w, h, imaging.Lanczos)
		c.bgKey = key
	}
	return c.bg
}

func drawSegment(img *image.NRGBA, seg types.Segment, c color.NRGBA, width int) {
	x0, y0 := round(seg.From.X), round(seg.From.Y)
	x1, y1 := round(seg.To.X), round(seg.To.Y)
	lo := -(width / 2)
	for s := lo; s < lo+width; s++ {
		if y0 == y1 {
			drawHLine(img, y0+s, x0, x1+1, c)
		} else {
			drawVLine(img, x0+s, y0, y1+1, c)
		}
	}
}

func drawAnchor(img *image.NRGBA, p types.Point, pal Palette) {
	cx, cy := p.X, p.Y
	r := float64(pal.AnchorRadius)
	half := float64(pal.AnchorStrokeWidth) / 2
	outer := r + half
	reach := int(math.Ceil(outer))
	for y := round(cy) - reach; y <= round(cy)+reach; y++ {
		for x := round(cx) - reach; x <= round(cx)+reach; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			switch {
			case d <= r-half:
				img.SetNRGBA(x, y, pal.AnchorFill)
			case d <= outer:
				img.SetNRGBA(x, y, pal.AnchorStroke)
			}
		}
	}
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
