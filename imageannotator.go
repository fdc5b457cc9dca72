// Package imageannotator assembles a bounding box annotation workstation.
//
// An Annotator pulls images from a labeling server, shows each one on an
// annotation surface where the user marks two opposite corners of a box, and
// posts the box back normalized to the image's natural size before fetching
// the next image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		imageannotator "github.com/menta2k/bbox-annotator"
//		"github.com/menta2k/bbox-annotator/pkg/config"
//	)
//
//	func main() {
//		cfg := config.Default()
//		cfg.Server.BaseURL = "http://localhost:8080"
//
//		a, err := imageannotator.New(cfg)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer a.Close()
//
//		ctx := context.Background()
//		if _, err := a.Start(ctx); err != nil {
//			log.Fatal(err)
//		}
//		// "click 10 10", "click 50 50", "space", ...
//		if err := a.Console().Run(ctx, os.Stdin, os.Stdout); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Surface (pkg/surface): the two-anchor state machine and box export
//  2. Render (pkg/render): draws the fitted image, overlay and anchors
//  3. Resolve (pkg/resolve): fetches and decodes images by reference
//  4. Session (pkg/session): the labeling server client and submit loop
//  5. Button (pkg/button): the momentary submit button
//  6. Assist (pkg/assist): optional vision model box suggestions
package imageannotator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/bbox-annotator/internal/console"
	"github.com/menta2k/bbox-annotator/internal/metrics"
	"github.com/menta2k/bbox-annotator/internal/utils"
	"github.com/menta2k/bbox-annotator/pkg/assist"
	"github.com/menta2k/bbox-annotator/pkg/button"
	"github.com/menta2k/bbox-annotator/pkg/config"
	"github.com/menta2k/bbox-annotator/pkg/render"
	"github.com/menta2k/bbox-annotator/pkg/resolve"
	"github.com/menta2k/bbox-annotator/pkg/session"
	"github.com/menta2k/bbox-annotator/pkg/surface"
	"github.com/menta2k/bbox-annotator/pkg/types"
)

// Version of the annotator
const Version = "1.0.0"

var (
	// ErrAssistDisabled is returned by Suggest when no detector is configured.
	ErrAssistDisabled = errors.New("assist is disabled")
	// ErrNoImage is returned when an operation needs a loaded image.
	ErrNoImage = errors.New("no image loaded")
)

// Annotator wires every component from one configuration
type Annotator struct {
	cfg      *config.Config
	logger   *zap.Logger
	surface  *surface.Surface
	canvas   *render.Canvas
	loop     *session.Loop
	button   *button.Button
	detector *assist.Detector
	metrics  *metrics.Collector

	backend  session.Backend
	resolver surface.Resolver
	vision   assist.VisionClient

	mu     sync.Mutex
	ctx    context.Context
	pushes chan session.Result
}

// Option configures an Annotator
type Option func(*Annotator)

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(a *Annotator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithBackend replaces the labeling server client.
func WithBackend(b session.Backend) Option {
	return func(a *Annotator) { a.backend = b }
}

// WithResolver replaces the image resolver.
func WithResolver(r surface.Resolver) Option {
	return func(a *Annotator) { a.resolver = r }
}

// WithVisionClient replaces the assist model client. Assist must still be
// enabled in the configuration.
func WithVisionClient(c assist.VisionClient) Option {
	return func(a *Annotator) { a.vision = c }
}

// WithMetrics counts session outcomes on c instead of a private collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Annotator) { a.metrics = c }
}

// New validates cfg and builds an annotator. Nothing touches the network
// until Start.
func New(cfg *config.Config, opts ...Option) (*Annotator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Annotator{
		cfg:    cfg,
		logger: zap.NewNop(),
		ctx:    context.Background(),
		pushes: make(chan session.Result, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}

	palette, err := paletteFrom(cfg.Palette)
	if err != nil {
		return nil, err
	}
	a.canvas = render.NewCanvas(cfg.Canvas.Width, cfg.Canvas.Height, palette)

	if a.resolver == nil {
		a.resolver = resolve.New(cfg.Server.BaseURL, resolve.WithLogger(a.logger.Named("resolve")))
	}
	a.surface = surface.New(a.resolver, a.canvas, surface.WithLogger(a.logger.Named("surface")))

	if a.backend == nil {
		a.backend = session.NewClient(cfg.Server.BaseURL,
			session.WithClientLogger(a.logger.Named("client")),
			session.WithPaths(cfg.Server.ImagePath, cfg.Server.LabelPath),
			session.WithTimeout(cfg.Server.Timeout),
			session.WithRetries(cfg.Server.RetryCount),
		)
	}
	a.loop = session.NewLoop(a.backend, a.surface, session.Settings{
		Label:        cfg.Label.ID,
		LabelText:    cfg.Label.Text,
		TargetWidth:  cfg.Canvas.Width,
		TargetHeight: cfg.Canvas.Height,
		Format:       cfg.Canvas.Format,
	}, session.WithLogger(a.logger.Named("session")), session.WithMetrics(a.metrics))

	btnCfg, err := buttonFrom(cfg.Button)
	if err != nil {
		return nil, err
	}
	a.button = button.New(btnCfg, a.onPush)

	if cfg.Assist.Enabled {
		if a.vision == nil {
			a.vision, err = assist.NewClient(cfg.Assist.Backend, cfg.Assist.URL)
			if err != nil {
				return nil, fmt.Errorf("assist: %w", err)
			}
		}
		a.detector = assist.NewDetector(a.vision, cfg.Assist.Model,
			assist.WithLogger(a.logger.Named("assist")),
			assist.WithSendSize(cfg.Assist.SendSize),
			assist.WithSendQuality(cfg.Assist.SendQuality),
		)
	}
	return a, nil
}

// Start fetches the first image. ctx also bounds submissions fired by the
// push button.
func (a *Annotator) Start(ctx context.Context) (types.ImageRef, error) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	return a.loop.Start(ctx)
}

// Submit posts the current box, if any, and loads the next image.
func (a *Annotator) Submit(ctx context.Context) (session.Result, error) {
	return a.loop.Submit(ctx)
}

// HandleKey routes a key press to the session loop.
func (a *Annotator) HandleKey(ctx context.Context, key string) (session.Result, bool, error) {
	return a.loop.HandleKey(ctx, key)
}

// Suggest asks the vision model for the configured class and places the box
// it returns. It reports false when the model found nothing usable.
func (a *Annotator) Suggest(ctx context.Context) (bool, error) {
	if a.detector == nil {
		return false, ErrAssistDisabled
	}
	img := a.surface.Image()
	if img == nil || img.Pixels == nil {
		return false, ErrNoImage
	}
	box, ok, err := a.detector.Locate(ctx, img.Pixels, img.LabelText)
	if err != nil || !ok {
		return false, err
	}
	return a.surface.Suggest(box), nil
}

// Snapshot saves the last rendered frame and returns its path.
func (a *Annotator) Snapshot() (string, error) {
	id := ""
	if img := a.surface.Image(); img != nil {
		id = img.ID
	}
	if err := utils.EnsureDir(a.cfg.Snapshot.Dir); err != nil {
		return "", err
	}
	path := utils.SnapshotPath(a.cfg.Snapshot.Dir, id, uuid.NewString()[:8], a.cfg.Snapshot.Format)
	if err := a.canvas.Save(path, a.cfg.Snapshot.Format, a.cfg.Snapshot.Quality); err != nil {
		return "", err
	}
	a.logger.Info("snapshot saved", zap.String("path", path))
	return path, nil
}

// Console returns a command console driving this annotator.
func (a *Annotator) Console() *console.Console {
	h := console.Handlers{
		Keys:     a.loop,
		Button:   a.button,
		Snapshot: a.Snapshot,
	}
	if a.detector != nil {
		h.Suggest = a.Suggest
	}
	return console.New(a.surface, h, console.WithLogger(a.logger.Named("console")))
}

// Pushes delivers the outcome of each button triggered submission. Results
// are dropped when nobody is reading.
func (a *Annotator) Pushes() <-chan session.Result {
	return a.pushes
}

// Surface returns the annotation surface.
func (a *Annotator) Surface() *surface.Surface { return a.surface }

// Canvas returns the renderer.
func (a *Annotator) Canvas() *render.Canvas { return a.canvas }

// Button returns the push button.
func (a *Annotator) Button() *button.Button { return a.button }

// Metrics returns the session metrics collector.
func (a *Annotator) Metrics() *metrics.Collector { return a.metrics }

// Close stops the button animation.
func (a *Annotator) Close() {
	a.button.Close()
}

func (a *Annotator) onPush() {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()

	res, err := a.loop.Submit(ctx)
	if err != nil {
		a.logger.Warn("button submit failed", zap.Error(err))
		return
	}
	select {
	case a.pushes <- res:
	default:
	}
}

func paletteFrom(pc config.PaletteConfig) (render.Palette, error) {
	p := render.DefaultPalette()
	var err error
	if p.Line, err = config.ParseColor(pc.Line); err != nil {
		return p, err
	}
	if p.AnchorStroke, err = config.ParseColor(pc.AnchorStroke); err != nil {
		return p, err
	}
	if p.AnchorFill, err = config.ParseColor(pc.AnchorFill); err != nil {
		return p, err
	}
	if pc.LineWidth > 0 {
		p.LineWidth = pc.LineWidth
	}
	if pc.AnchorRadius > 0 {
		p.AnchorRadius = pc.AnchorRadius
	}
	if pc.AnchorStrokeWidth > 0 {
		p.AnchorStrokeWidth = pc.AnchorStrokeWidth
	}
	return p, nil
}

func buttonFrom(bc config.ButtonConfig) (button.Config, error) {
	cfg := button.DefaultConfig()
	cfg.Width, cfg.Height = bc.Width, bc.Height
	cfg.Depth, cfg.PressedDepth = bc.Depth, bc.PressedDepth
	cfg.PressDuration, cfg.ReleaseDuration = bc.PressDuration, bc.ReleaseDuration
	for i := 0; i < len(cfg.Colors) && i < len(bc.Colors); i++ {
		c, err := config.ParseColor(bc.Colors[i])
		if err != nil {
			return cfg, fmt.Errorf("button.colors[%d]: %w", i, err)
		}
		cfg.Colors[i] = c
	}
	return cfg, nil
}
