package render

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bbox-annotator/pkg/surface"
	"github.com/menta2k/bbox-annotator/pkg/types"
)

var grey = color.NRGBA{64, 64, 64, 255}

func testScene() surface.Scene {
	a := types.Point{X: 30, Y: 30}
	b := types.Point{X: 10, Y: 10}
	return surface.Scene{
		Image: &types.LoadedImage{
			ID:     "grey.png",
			Width:  40,
			Height: 20,
			Pixels: imaging.New(40, 20, grey),
		},
		TargetWidth:  80,
		TargetHeight: 40,
		Pt1:          surface.Anchor{Point: a, Visible: true},
		Pt2:          surface.Anchor{Point: b, Visible: true},
		Overlay:      surface.OverlayFor(a, b),
		State:        surface.TwoAnchors,
	}
}

func at(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestDrawFitsImageAndOverlay(t *testing.T) {
	pal := DefaultPalette()
	c := NewCanvas(320, 320, pal)
	c.Draw(testScene())

	frame := c.Frame()
	require.NotNil(t, frame)
	assert.Equal(t, 80, frame.Bounds().Dx())
	assert.Equal(t, 40, frame.Bounds().Dy())

	assert.Equal(t, grey, at(frame, 70, 35))
	assert.Equal(t, pal.Line, at(frame, 20, 10))
	assert.Equal(t, pal.Line, at(frame, 10, 20))
	assert.Equal(t, pal.Line, at(frame, 30, 20))
	assert.Equal(t, pal.AnchorFill, at(frame, 30, 30))
	assert.Equal(t, grey, at(frame, 20, 20))
}

func TestDrawHidesOverlayAndAnchors(t *testing.T) {
	c := NewCanvas(80, 40, DefaultPalette())
	scene := testScene()
	scene.Overlay.Visible = false
	scene.Pt1.Visible = false
	scene.Pt2.Visible = false
	c.Draw(scene)

	frame := c.Frame()
	assert.Equal(t, grey, at(frame, 20, 10))
	assert.Equal(t, grey, at(frame, 30, 30))
}

func TestDrawWithoutImageUsesBlankBackground(t *testing.T) {
	c := NewCanvas(16, 8, DefaultPalette())
	c.Draw(surface.Scene{})

	frame := c.Frame()
	require.NotNil(t, frame)
	assert.Equal(t, 16, frame.Bounds().Dx())
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, at(frame, 3, 3))
}

func TestSave(t *testing.T) {
	c := NewCanvas(80, 40, DefaultPalette())
	assert.ErrorIs(t, c.Save(filepath.Join(t.TempDir(), "x.png"), "png", 90), ErrNothingDrawn)

	c.Draw(testScene())
	for _, format := range []string{"png", "jpg"} {
		path := filepath.Join(t.TempDir(), "scene."+format)
		require.NoError(t, c.Save(path, format, 90))

		f, err := os.Open(path)
		require.NoError(t, err)
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 80, cfg.Width)
		assert.Equal(t, 40, cfg.Height)
	}

	assert.Error(t, c.Save(filepath.Join(t.TempDir(), "scene.bmp"), "bmp", 90))
}
