package assist

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// SaliencyConfig weights the local saliency estimate
type SaliencyConfig struct {
	// WorkSize bounds the longest side the map is computed at.
	WorkSize       int
	ContrastWeight float64
	ColorWeight    float64
	// WindowRatios are candidate window sizes as fractions of the image.
	WindowRatios []float64
}

// DefaultSaliencyConfig favors edges over brightness.
func DefaultSaliencyConfig() SaliencyConfig {
	return SaliencyConfig{
		WorkSize:       128,
		ContrastWeight: 0.7,
		ColorWeight:    0.3,
		WindowRatios:   []float64{0.25, 0.35, 0.5, 0.65},
	}
}

// SaliencyClient finds the most salient window without a model. It satisfies
// VisionClient so it can stand in for one; model and prompt are ignored.
type SaliencyClient struct {
	cfg SaliencyConfig
}

// NewSaliencyClient creates a local saliency locator.
func NewSaliencyClient(cfg SaliencyConfig) *SaliencyClient {
	if cfg.WorkSize <= 0 {
		cfg.WorkSize = 128
	}
	if len(cfg.WindowRatios) == 0 {
		cfg.WindowRatios = DefaultSaliencyConfig().WindowRatios
	}
	return &SaliencyClient{cfg: cfg}
}

// AnalyzeImage decodes imgB64 and reports the best window as the primary
// subject.
func (s *SaliencyClient) AnalyzeImage(ctx context.Context, _, _ string, imgB64 string) (*types.AnalysisResult, error) {
	data, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Locate(img), nil
}

// Locate scores every candidate window of img and returns the best one.
// Confidence is how far the window stands out from the image average; a
// uniform image scores 0 and is labeled "none".
func (s *SaliencyClient) Locate(img image.Image) *types.AnalysisResult {
	work := imaging.Fit(img, s.cfg.WorkSize, s.cfg.WorkSize, imaging.Box)
	w, h := work.Bounds().Dx(), work.Bounds().Dy()
	none := &types.AnalysisResult{Primary: types.Primary{Label: "none"}}
	if w < 3 || h < 3 {
		return none
	}

	sum := integral(s.saliencyMap(work), w, h)
	// the one pixel border has no neighbors and stays zero
	mean := windowMean(sum, w, 1, 1, w-2, h-2)

	best, bestMean, bx, by, bw, bh := -1.0, 0.0, 0, 0, 0, 0
	for _, ratio := range s.cfg.WindowRatios {
		ww, wh := int(float64(w)*ratio), int(float64(h)*ratio)
		if ww < 2 || wh < 2 {
			continue
		}
		step := max(1, min(ww, wh)/8)
		for y := 0; y+wh <= h; y += step {
			for x := 0; x+ww <= w; x += step {
				// smaller windows need a slightly higher mean to win
				m := windowMean(sum, w, x, y, ww, wh)
				// larger windows win ties
				if score := m * (1 + 0.1*ratio); score > best {
					best, bestMean, bx, by, bw, bh = score, m, x, y, ww, wh
				}
			}
		}
	}
	if bestMean <= 0 || mean <= 0 {
		return none
	}

	confidence := math.Max(0, math.Min(1, (bestMean-mean)/bestMean))
	if confidence == 0 {
		return none
	}
	fw, fh := float64(w), float64(h)
	box := types.Box{X: float64(bx) / fw, Y: float64(by) / fh, W: float64(bw) / fw, H: float64(bh) / fh}
	return &types.AnalysisResult{
		Primary: types.Primary{
			Label:      "salient region",
			Confidence: confidence,
			Box:        box,
			Cx:         box.X + box.W/2,
			Cy:         box.Y + box.H/2,
		},
		Description: "highest contrast window",
		Tags:        []string{"saliency"},
	}
}

// saliencyMap mixes 8-neighbor color difference with brightness, row major.
func (s *SaliencyClient) saliencyMap(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]float64, w*h)
	px := func(x, y int) (float64, float64, float64) {
		i := img.PixOffset(x, y)
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			r1, g1, b1 := px(x, y)
			var edge float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					r2, g2, b2 := px(x+dx, y+dy)
					edge += math.Sqrt((r1-r2)*(r1-r2) + (g1-g2)*(g1-g2) + (b1-b2)*(b1-b2))
				}
			}
			edge /= 8 * 255 * math.Sqrt(3)
			brightness := (r1 + g1 + b1) / (3 * 255)
			out[y*w+x] = s.cfg.ContrastWeight*edge + s.cfg.ColorWeight*brightness
		}
	}
	return out
}

// integral returns a (w+1)x(h+1) summed area table of m.
func integral(m []float64, w, h int) []float64 {
	sum := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			row += m[y*w+x]
			sum[(y+1)*(w+1)+x+1] = sum[y*(w+1)+x+1] + row
		}
	}
	return sum
}

func windowMean(sum []float64, w, x, y, ww, wh int) float64 {
	stride := w + 1
	total := sum[(y+wh)*stride+x+ww] - sum[y*stride+x+ww] - sum[(y+wh)*stride+x] + sum[y*stride+x]
	return total / float64(ww*wh)
}
