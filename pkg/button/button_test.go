package button

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.PressDuration = 20 * time.Millisecond
	cfg.ReleaseDuration = 30 * time.Millisecond
	cfg.FrameInterval = 2 * time.Millisecond
	return cfg
}

func TestPressFiresOncePerPress(t *testing.T) {
	var pushes atomic.Int32
	b := New(fastConfig(), func() { pushes.Add(1) })
	defer b.Close()

	assert.True(t, b.Press())
	assert.False(t, b.Press())
	assert.False(t, b.Press())
	assert.Equal(t, int32(1), pushes.Load())
	assert.True(t, b.Pressed())

	b.Release()
	assert.False(t, b.Pressed())
	assert.True(t, b.Press())
	assert.Equal(t, int32(2), pushes.Load())
}

func TestReleaseWithoutPressIsNoop(t *testing.T) {
	b := New(fastConfig(), nil)
	b.Release()
	assert.False(t, b.Pressed())
	assert.Equal(t, 18.0, b.Depth())
}

func TestDepthAnimatesToTargets(t *testing.T) {
	cfg := fastConfig()
	b := New(cfg, nil)
	defer b.Close()

	var frames atomic.Int32
	b.OnFrame(func(float64) { frames.Add(1) })

	b.Press()
	assert.Eventually(t, func() bool { return b.Depth() == cfg.PressedDepth }, time.Second, 5*time.Millisecond)

	b.Release()
	assert.Eventually(t, func() bool { return b.Depth() == cfg.Depth }, time.Second, 5*time.Millisecond)
	assert.Greater(t, frames.Load(), int32(1))
}

func TestZeroDurationJumps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PressDuration = 0
	b := New(cfg, nil)
	b.Press()
	assert.Equal(t, cfg.PressedDepth, b.Depth())
}

func TestEaseOutBounce(t *testing.T) {
	assert.Equal(t, 0.0, EaseOutBounce(-1))
	assert.Equal(t, 0.0, EaseOutBounce(0))
	assert.Equal(t, 1.0, EaseOutBounce(1))
	assert.Equal(t, 1.0, EaseOutBounce(2))
	assert.InDelta(t, 1.0, EaseOutBounce(1/2.75), 1e-9)
	assert.InDelta(t, 0.75, EaseOutBounce(1.5/2.75), 1e-9)
	for _, x := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 0.99} {
		v := EaseOutBounce(x)
		assert.True(t, v >= 0 && v <= 1, "ease(%v)=%v", x, v)
	}
}

func TestLerp(t *testing.T) {
	assert.Equal(t, 18.0, Lerp(18, 6, 0))
	assert.Equal(t, 6.0, Lerp(18, 6, 1))
	assert.Equal(t, 12.0, Lerp(18, 6, 0.5))
}

func TestFaceShadesWhileHeld(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PressDuration = 0
	cfg.ReleaseDuration = 0
	b := New(cfg, nil)
	assert.Equal(t, cfg.Colors[0], b.Face())
	b.Press()
	assert.Equal(t, cfg.Colors[1], b.Face())
	b.Release()
	assert.Equal(t, cfg.Colors[0], b.Face())
}
