package surface

import (
	"math"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// Normalize converts a surface rectangle into the exported annotation record
// for img. It reports false when img is missing or has no dimensions.
//
// Surface coordinates are first divided by the per-axis scale to get natural
// image pixels, then by the natural width and height. Dividing surface pixels
// by the natural size directly is only correct at scale 1 and can leave the
// [0,1] range when the image is shown resized.
func Normalize(r Rect, img *types.LoadedImage) (types.NormalizedBox, bool) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return types.NormalizedBox{}, false
	}
	w, h := float64(img.Width), float64(img.Height)
	sx, sy := scaleOr1(img.ScaleX), scaleOr1(img.ScaleY)

	return types.NormalizedBox{
		Height:    int64(img.Height),
		Width:     int64(img.Width),
		Filename:  img.ID,
		SourceID:  img.ID,
		Format:    img.Format,
		Xmin:      clamp01(r.Min.X / sx / w),
		Xmax:      clamp01(r.Max.X / sx / w),
		Ymin:      clamp01(r.Min.Y / sy / h),
		Ymax:      clamp01(r.Max.Y / sy / h),
		ClassText: img.LabelText,
		Label:     img.Label,
	}, true
}

// Corners maps a fractional box onto surface pixels for img.
func Corners(b types.Box, img *types.LoadedImage) (types.Point, types.Point) {
	w := float64(img.Width) * scaleOr1(img.ScaleX)
	h := float64(img.Height) * scaleOr1(img.ScaleY)
	x0, y0 := clamp01(b.X), clamp01(b.Y)
	x1, y1 := clamp01(b.X+b.W), clamp01(b.Y+b.H)
	return types.Point{X: x0 * w, Y: y0 * h}, types.Point{X: x1 * w, Y: y1 * h}
}

func scaleOr1(s float64) float64 {
	if s <= 0 {
		return 1
	}
	return s
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
