package assist

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// ErrNoImage is returned when there is nothing to send to the model.
var ErrNoImage = errors.New("assist: no image to analyze")

const promptTemplate = `You are an image object locator.

Find the most prominent "%s" in the image.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence",
  "tags": []
}

RULES
- Coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box should tightly include the object.
- If there is no "%s" in the image, set "label" to "none" and "confidence" to 0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Prompt returns the locate prompt for classText.
func Prompt(classText string) string {
	return fmt.Sprintf(promptTemplate, classText, classText)
}

// Detector turns a vision model answer into a suggested box
type Detector struct {
	client        VisionClient
	model         string
	sendSize      int
	sendQuality   int
	minConfidence float64
	logger        *zap.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the detector's logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSendSize bounds the longest side of the image sent to the model.
func WithSendSize(px int) Option {
	return func(d *Detector) { d.sendSize = px }
}

// WithSendQuality sets the JPEG quality of the image sent to the model.
func WithSendQuality(q int) Option {
	return func(d *Detector) {
		if q > 0 && q <= 100 {
			d.sendQuality = q
		}
	}
}

// WithMinConfidence drops answers below c.
func WithMinConfidence(c float64) Option {
	return func(d *Detector) { d.minConfidence = c }
}

// NewDetector creates a detector using model on client.
func NewDetector(client VisionClient, model string, opts ...Option) *Detector {
	d := &Detector{
		client:        client,
		model:         model,
		sendSize:      1024,
		sendQuality:   85,
		minConfidence: 0.05,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Locate asks the model for classText in img. It reports false when the model
// found nothing usable.
func (d *Detector) Locate(ctx context.Context, img image.Image, classText string) (types.Box, bool, error) {
	if img == nil {
		return types.Box{}, false, ErrNoImage
	}
	b64, err := d.encode(img)
	if err != nil {
		return types.Box{}, false, err
	}

	result, err := d.client.AnalyzeImage(ctx, d.model, Prompt(classText), b64)
	if err != nil {
		return types.Box{}, false, err
	}

	box, ok := d.accept(result)
	d.logger.Info("model suggestion",
		zap.String("class", classText),
		zap.String("label", result.Primary.Label),
		zap.Float64("confidence", result.Primary.Confidence),
		zap.Bool("accepted", ok),
	)
	return box, ok, nil
}

func (d *Detector) accept(result *types.AnalysisResult) (types.Box, bool) {
	if result == nil {
		return types.Box{}, false
	}
	p := result.Primary
	if strings.EqualFold(strings.TrimSpace(p.Label), "none") || p.Confidence < d.minConfidence {
		return types.Box{}, false
	}
	box := normalizeBox(p.Box)
	if box.W <= 0 || box.H <= 0 {
		return types.Box{}, false
	}
	return box, true
}

// encode downsizes img to the send size and returns it as base64 JPEG.
func (d *Detector) encode(img image.Image) (string, error) {
	b := img.Bounds()
	if d.sendSize > 0 && (b.Dx() > d.sendSize || b.Dy() > d.sendSize) {
		img = imaging.Fit(img, d.sendSize, d.sendSize, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(d.sendQuality)); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// normalizeBox clamps b into the unit square, trimming width and height so the
// box does not run past the edges.
func normalizeBox(b types.Box) types.Box {
	x, y := clamp(b.X, 0, 1), clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
