// Package button implements the momentary push button that triggers a submit.
// Its animation is cosmetic; the only behavior that matters is that a press
// fires the trigger exactly once.
package button

import (
	"image/color"
	"sync"
	"time"
)

// Config shapes the button and its animation
type Config struct {
	Width           int
	Height          int
	Depth           float64
	PressedDepth    float64
	PressDuration   time.Duration
	ReleaseDuration time.Duration
	// FrameInterval is the animation tick; zero means 16ms.
	FrameInterval time.Duration
	// Colors are the front, side and bottom faces, light to dark.
	Colors [3]color.NRGBA
}

// DefaultConfig returns a 320x80 button sinking from depth 18 to 6.
func DefaultConfig() Config {
	return Config{
		Width:           320,
		Height:          80,
		Depth:           18,
		PressedDepth:    6,
		PressDuration:   280 * time.Millisecond,
		ReleaseDuration: 600 * time.Millisecond,
		Colors: [3]color.NRGBA{
			{0x2b, 0xaa, 0x5e, 0xff},
			{0x24, 0x9b, 0x54, 0xff},
			{0x1a, 0x87, 0x41, 0xff},
		},
	}
}

// Button is a momentary control with a rest and a pressed state
type Button struct {
	cfg    Config
	onPush func()

	mu      sync.Mutex
	pressed bool
	depth   float64
	stop    chan struct{}
	onFrame func(depth float64)
}

// New creates a button at rest that calls onPush on every press.
func New(cfg Config, onPush func()) *Button {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 16 * time.Millisecond
	}
	return &Button{cfg: cfg, onPush: onPush, depth: cfg.Depth}
}

// OnFrame registers a callback invoked with the face depth on every
// animation tick.
func (b *Button) OnFrame(fn func(depth float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = fn
}

// Press sinks the button and fires the trigger. A press while the button is
// already held does nothing and reports false.
func (b *Button) Press() bool {
	b.mu.Lock()
	if b.pressed {
		b.mu.Unlock()
		return false
	}
	b.pressed = true
	b.animateLocked(b.cfg.PressedDepth, b.cfg.PressDuration)
	b.mu.Unlock()

	if b.onPush != nil {
		b.onPush()
	}
	return true
}

// Release lets the button spring back.
func (b *Button) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pressed {
		return
	}
	b.pressed = false
	b.animateLocked(b.cfg.Depth, b.cfg.ReleaseDuration)
}

// Pressed reports whether the button is held.
func (b *Button) Pressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed
}

// Depth returns the current depth of the button face.
func (b *Button) Depth() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depth
}

// Face returns the front face color: the lightest shade at rest, the side
// shade while held.
func (b *Button) Face() color.NRGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pressed {
		return b.cfg.Colors[1]
	}
	return b.cfg.Colors[0]
}

// Close stops any running animation.
func (b *Button) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *Button) stopLocked() {
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
}

func (b *Button) animateLocked(target float64, d time.Duration) {
	b.stopLocked()
	from := b.depth
	if d <= 0 || from == target {
		b.depth = target
		return
	}
	stop := make(chan struct{})
	b.stop = stop
	go b.run(stop, from, target, d)
}

func (b *Button) run(stop chan struct{}, from, to float64, d time.Duration) {
	ticker := time.NewTicker(b.cfg.FrameInterval)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t := float64(now.Sub(start)) / float64(d)
			if t > 1 {
				t = 1
			}
			depth := Lerp(from, to, EaseOutBounce(t))
			if t == 1 {
				depth = to
			}

			b.mu.Lock()
			select {
			case <-stop:
				b.mu.Unlock()
				return
			default:
			}
			b.depth = depth
			fn := b.onFrame
			if t == 1 {
				b.stop = nil
			}
			b.mu.Unlock()

			if fn != nil {
				fn(depth)
			}
			if t == 1 {
				return
			}
		}
	}
}
