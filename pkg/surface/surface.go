// Package surface implements the annotation surface: two anchors placed by
// pointer events, the rectangle derived from them, and the export of that
// rectangle as a normalized box over the loaded image.
package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// ErrNoResolver is returned by LoadImage on a surface built without a resolver.
var ErrNoResolver = errors.New("surface: no image resolver configured")

// Resolved is what a Resolver learns about an image reference
type Resolved struct {
	Width  int
	Height int
	Format string
	Image  image.Image
}

// Resolver turns an image reference into pixel dimensions.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (Resolved, error)
}

// Scene is a read-only view of everything a renderer draws
type Scene struct {
	Image        *types.LoadedImage
	TargetWidth  int
	TargetHeight int
	Pt1          Anchor
	Pt2          Anchor
	Overlay      Overlay
	State        State
}

// Renderer draws a scene. It is called with the surface lock held and must not
// call back into the surface.
type Renderer interface {
	Draw(scene Scene)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(Scene)

// Draw calls f(scene).
func (f RendererFunc) Draw(scene Scene) { f(scene) }

// LoadRequest describes an image to install on the surface
type LoadRequest struct {
	Ref          string
	Label        int64
	LabelText    string
	TargetWidth  int
	TargetHeight int
	Format       string
}

// Option configures a Surface
type Option func(*Surface)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Surface) {
		if l != nil {
			s.logger = l
		}
	}
}

// Surface owns the annotation state machine and the loaded image. All methods
// are safe for concurrent use; transitions are applied one at a time.
type Surface struct {
	mu       sync.Mutex
	machine  Machine
	image    *types.LoadedImage
	targetW  int
	targetH  int
	loadSeq  uint64
	resolver Resolver
	renderer Renderer
	logger   *zap.Logger
}

// New creates an empty surface. A nil renderer draws nothing.
func New(resolver Resolver, renderer Renderer, opts ...Option) *Surface {
	if renderer == nil {
		renderer = RendererFunc(func(Scene) {})
	}
	s := &Surface{
		resolver: resolver,
		renderer: renderer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Press handles a pointer-down event. Pointer events drive the state machine
// whether or not an image is loaded; only ExportBox requires one.
func (s *Surface) Press(p types.Point) {
	s.apply(func(m Machine) Machine { return m.Press(p) })
}

// Release handles a pointer-up event.
func (s *Surface) Release(p types.Point) {
	s.apply(func(m Machine) Machine { return m.Release(p) })
}

// Drag moves a visible anchor, giving live feedback on the overlay.
func (s *Surface) Drag(id AnchorID, p types.Point) {
	s.apply(func(m Machine) Machine { return m.Drag(id, p) })
}

// Reset clears both anchors and the overlay. The image stays.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine = s.machine.Reset()
	s.draw()
}

// Suggest places both anchors on the corners of a fractional box. It reports
// false when no image is loaded or the box has no extent on an axis.
func (s *Surface) Suggest(b types.Box) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return false
	}
	a, c := Corners(b, s.image)
	next, ok := s.machine.Place(a, c)
	if !ok {
		return false
	}
	s.machine = next
	s.draw()
	return true
}

// State returns the current annotation state.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State
}

// Scene returns a snapshot of the drawable state.
func (s *Surface) Scene() Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene()
}

// Image returns a copy of the loaded image descriptor, or nil.
func (s *Surface) Image() *types.LoadedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return nil
	}
	img := *s.image
	return &img
}

// ExportBox returns the normalized box when both anchors are placed over a
// loaded image.
func (s *Surface) ExportBox() (types.NormalizedBox, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.State != TwoAnchors {
		return types.NormalizedBox{}, false
	}
	return Normalize(Extents(s.machine.Pt1.Point, s.machine.Pt2.Point), s.image)
}

// LoadImage resolves req.Ref in the background and installs the result,
// resetting the surface to Empty. The previous image stays until then. Only
// the most recently issued load may install its image; an older one that
// finishes late is dropped. The returned channel yields the resolution error,
// if any, and is closed once the load is settled.
func (s *Surface) LoadImage(ctx context.Context, req LoadRequest) <-chan error {
	done := make(chan error, 1)
	if s.resolver == nil {
		done <- ErrNoResolver
		close(done)
		return done
	}

	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	go func() {
		defer close(done)
		res, err := s.resolver.Resolve(ctx, req.Ref)
		if err != nil {
			s.logger.Warn("image resolution failed", zap.String("ref", req.Ref), zap.Error(err))
			done <- fmt.Errorf("resolve %s: %w", req.Ref, err)
			return
		}
		if res.Width <= 0 || res.Height <= 0 {
			done <- fmt.Errorf("resolve %s: invalid dimensions %dx%d", req.Ref, res.Width, res.Height)
			return
		}
		s.install(seq, req, res)
	}()
	return done
}

func (s *Surface) install(seq uint64, req LoadRequest, res Resolved) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		s.logger.Debug("dropping stale image load", zap.String("ref", req.Ref), zap.Uint64("seq", seq))
		return
	}

	format := req.Format
	if format == "" {
		format = res.Format
	}
	tw, th := req.TargetWidth, req.TargetHeight
	if tw <= 0 {
		tw = res.Width
	}
	if th <= 0 {
		th = res.Height
	}

	s.image = &types.LoadedImage{
		ID:        req.Ref,
		Width:     res.Width,
		Height:    res.Height,
		Format:    format,
		Label:     req.Label,
		LabelText: req.LabelText,
		ScaleX:    float64(tw) / float64(res.Width),
		ScaleY:    float64(th) / float64(res.Height),
		Pixels:    res.Image,
	}
	s.targetW, s.targetH = tw, th
	s.machine = s.machine.Reset()
	s.logger.Debug("image installed",
		zap.String("ref", req.Ref),
		zap.Int("width", res.Width),
		zap.Int("height", res.Height),
	)
	s.draw()
}

func (s *Surface) apply(fn func(Machine) Machine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.machine)
	if next == s.machine {
		return
	}
	s.machine = next
	s.draw()
}

func (s *Surface) draw() {
	s.renderer.Draw(s.scene())
}

func (s *Surface) scene() Scene {
	return Scene{
		Image:        s.image,
		TargetWidth:  s.targetW,
		TargetHeight: s.targetH,
		Pt1:          s.machine.Pt1,
		Pt2:          s.machine.Pt2,
		Overlay:      s.machine.Overlay,
		State:        s.machine.State,
	}
}
