// Package session drives the labeling workflow: fetch an image, let the user
// draw a box, post it, fetch the next one.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/bbox-annotator/internal/metrics"
	"github.com/menta2k/bbox-annotator/pkg/surface"
	"github.com/menta2k/bbox-annotator/pkg/types"
)

// ErrBusy is returned when an advance is requested while another is running.
var ErrBusy = errors.New("session: advance already in progress")

// Backend is the labeling server as seen by the loop
type Backend interface {
	NextImage(ctx context.Context) (types.ImageRef, error)
	SubmitLabel(ctx context.Context, box types.NormalizedBox) error
}

// Annotator is the part of an annotation surface the loop drives
type Annotator interface {
	LoadImage(ctx context.Context, req surface.LoadRequest) <-chan error
	ExportBox() (types.NormalizedBox, bool)
}

// Settings are applied to every image the loop loads
type Settings struct {
	Label        int64
	LabelText    string
	TargetWidth  int
	TargetHeight int
	Format       string
}

// Result describes one advance of the loop
type Result struct {
	// Submitted is true when a box was posted successfully.
	Submitted bool
	// Box is the exported record, nil when nothing was drawn.
	Box *types.NormalizedBox
	// SubmitErr holds a failed post. The loop still advanced.
	SubmitErr error
	Next      types.ImageRef
}

// Loop ties a Backend to an Annotator
type Loop struct {
	backend  Backend
	surface  Annotator
	settings Settings
	metrics  *metrics.Collector
	logger   *zap.Logger

	advancing sync.Mutex
	mu        sync.Mutex
	current   types.ImageRef
}

// LoopOption configures a Loop
type LoopOption func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(l *zap.Logger) LoopOption {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithMetrics counts loop outcomes on c.
func WithMetrics(c *metrics.Collector) LoopOption {
	return func(lp *Loop) {
		lp.metrics = c
	}
}

// NewLoop creates a loop. Nothing is fetched until Start.
func NewLoop(backend Backend, s Annotator, settings Settings, opts ...LoopOption) *Loop {
	l := &Loop{
		backend:  backend,
		surface:  s,
		settings: settings,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Current returns the reference of the image last loaded by the loop.
func (l *Loop) Current() types.ImageRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Start fetches and loads the first image.
func (l *Loop) Start(ctx context.Context) (types.ImageRef, error) {
	if !l.advancing.TryLock() {
		return types.ImageRef{}, ErrBusy
	}
	defer l.advancing.Unlock()
	return l.advance(ctx)
}

// Submit posts the current box, if any, and moves on to the next image. A
// failed post is reported in Result.SubmitErr and does not stop the advance.
func (l *Loop) Submit(ctx context.Context) (Result, error) {
	if !l.advancing.TryLock() {
		return Result{}, ErrBusy
	}
	defer l.advancing.Unlock()

	var res Result
	if box, ok := l.surface.ExportBox(); ok {
		res.Box = &box
		if err := l.backend.SubmitLabel(ctx, box); err != nil {
			l.logger.Error("failed to submit label", zap.String("image", box.Filename), zap.Error(err))
			l.inc(func(c *metrics.Collector) { c.SubmitFailures.Inc() })
			res.SubmitErr = err
		} else {
			res.Submitted = true
			l.inc(func(c *metrics.Collector) { c.LabelsSubmitted.Inc() })
		}
	} else {
		l.logger.Debug("no box drawn, skipping submission")
		l.inc(func(c *metrics.Collector) { c.Skipped.Inc() })
	}

	next, err := l.advance(ctx)
	res.Next = next
	return res, err
}

// HandleKey routes a key press. Space submits; every other key is ignored
// and reported as unhandled.
func (l *Loop) HandleKey(ctx context.Context, key string) (Result, bool, error) {
	switch key {
	case " ", "space", "Space":
		res, err := l.Submit(ctx)
		return res, true, err
	default:
		return Result{}, false, nil
	}
}

func (l *Loop) advance(ctx context.Context) (types.ImageRef, error) {
	ref, err := l.backend.NextImage(ctx)
	if err != nil {
		l.inc(func(c *metrics.Collector) { c.FetchFailures.Inc() })
		return types.ImageRef{}, fmt.Errorf("fetch next image: %w", err)
	}

	done := l.surface.LoadImage(ctx, surface.LoadRequest{
		Ref:          ref.URI,
		Label:        l.settings.Label,
		LabelText:    l.settings.LabelText,
		TargetWidth:  l.settings.TargetWidth,
		TargetHeight: l.settings.TargetHeight,
		Format:       l.settings.Format,
	})
	// the resolver sees ctx too; waiting for the load to settle keeps current
	// in step with the image the surface shows
	if err = <-done; err != nil {
		l.inc(func(c *metrics.Collector) { c.FetchFailures.Inc() })
		return ref, fmt.Errorf("load %s: %w", ref.URI, err)
	}

	l.mu.Lock()
	l.current = ref
	l.mu.Unlock()
	l.inc(func(c *metrics.Collector) { c.ImagesLoaded.Inc() })
	l.logger.Info("image loaded", zap.String("uri", ref.URI), zap.String("id", ref.ID))
	return ref, nil
}

func (l *Loop) inc(fn func(*metrics.Collector)) {
	if l.metrics != nil {
		fn(l.metrics)
	}
}
