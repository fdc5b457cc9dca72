package assist

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// squareImage draws a white square on a dark background
func squareImage(size, x0, x1 int) image.Image {
	img := imaging.New(size, size, color.NRGBA{20, 20, 20, 255})
	for y := x0; y < x1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	return img
}

func TestSaliencyFindsBrightSquare(t *testing.T) {
	res := NewSaliencyClient(DefaultSaliencyConfig()).Locate(squareImage(64, 20, 44))

	assert.NotEqual(t, "none", res.Primary.Label)
	assert.Greater(t, res.Primary.Confidence, 0.5)
	assert.InDelta(t, 0.5, res.Primary.Cx, 0.2)
	assert.InDelta(t, 0.5, res.Primary.Cy, 0.2)
	assert.Greater(t, res.Primary.Box.W, 0.0)
}

func TestSaliencyUniformImageIsNone(t *testing.T) {
	for _, c := range []color.NRGBA{{0, 0, 0, 255}, {200, 200, 200, 255}} {
		res := NewSaliencyClient(DefaultSaliencyConfig()).Locate(imaging.New(40, 30, c))
		assert.Equal(t, "none", res.Primary.Label)
	}
	res := NewSaliencyClient(SaliencyConfig{}).Locate(imaging.New(2, 2, color.White))
	assert.Equal(t, "none", res.Primary.Label)
}

func TestSaliencyAsDetectorBackend(t *testing.T) {
	client, err := NewClient("saliency", "")
	require.NoError(t, err)

	box, ok, err := NewDetector(client, "").Locate(context.Background(), squareImage(96, 30, 66), "anything")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, box.X >= 0.2 && box.X+box.W <= 0.8, "box %+v", box)

	_, _, err = NewDetector(client, "").Locate(context.Background(), imaging.New(32, 32, color.Black), "x")
	assert.NoError(t, err)
}

func TestSaliencyRejectsGarbage(t *testing.T) {
	_, err := NewSaliencyClient(DefaultSaliencyConfig()).AnalyzeImage(context.Background(), "", "", base64.StdEncoding.EncodeToString([]byte("nope")))
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, squareImage(32, 8, 24), imaging.PNG))
	res, err := NewSaliencyClient(DefaultSaliencyConfig()).AnalyzeImage(context.Background(), "", "", base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.IsType(t, &types.AnalysisResult{}, res)
}

func TestIntegralWindowMean(t *testing.T) {
	m := []float64{
		1, 2, 3,
		4, 5, 6,
	}
	sum := integral(m, 3, 2)
	assert.Equal(t, 3.5, windowMean(sum, 3, 0, 0, 3, 2))
	assert.Equal(t, 5.5, windowMean(sum, 3, 1, 1, 2, 1))
	assert.Equal(t, 3.5, windowMean(sum, 3, 1, 0, 1, 2))
}
