// Package resolve turns image references handed out by a labeling server into
// decoded pixels and natural dimensions.
package resolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/bbox-annotator/internal/utils"
	"github.com/menta2k/bbox-annotator/pkg/surface"
)

// ErrUnsupportedFormat is returned when the bytes behind a reference are not
// an image the resolver can decode.
var ErrUnsupportedFormat = errors.New("image: unknown or unsupported format")

// Resolver fetches images over HTTP or from disk. It satisfies
// surface.Resolver.
type Resolver struct {
	baseURL string
	client  *resty.Client
	logger  *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClient replaces the HTTP client, e.g. to share one with the session.
func WithClient(c *resty.Client) Option {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// New creates a resolver. Server-relative references such as /image/cat.jpg
// are resolved against baseURL; with an empty baseURL they are file paths.
func New(baseURL string, opts ...Option) *Resolver {
	baseURL = strings.TrimSuffix(baseURL, "/")
	r := &Resolver{
		baseURL: baseURL,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "bbox-annotator/1.0"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ surface.Resolver = (*Resolver)(nil)

// Resolve loads ref and reports its natural size and format.
func (r *Resolver) Resolve(ctx context.Context, ref string) (surface.Resolved, error) {
	data, err := r.fetch(ctx, ref)
	if err != nil {
		return surface.Resolved{}, err
	}
	img, format, err := Decode(data)
	if err != nil {
		return surface.Resolved{}, fmt.Errorf("%s: %w", ref, err)
	}
	if format == "" {
		format = utils.FormatFromName(ref)
	}
	b := img.Bounds()
	r.logger.Debug("resolved image",
		zap.String("ref", ref),
		zap.Int("bytes", len(data)),
		zap.String("format", format),
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
	)
	return surface.Resolved{
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: format,
		Image:  img,
	}, nil
}

func (r *Resolver) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "file://"):
		return readFile(strings.TrimPrefix(ref, "file://"))
	case isURL(ref):
	case strings.HasPrefix(ref, "/") && r.baseURL != "":
	default:
		return readFile(ref)
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-cache").
		Get(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to download image: HTTP %s", resp.Status())
	}
	contentType := resp.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, fmt.Errorf("%s does not point to an image (Content-Type: %s)", ref, contentType)
	}
	return resp.Body(), nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return data, nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Decode decodes image bytes with WebP support. The format tag uses the
// labeler's spelling, so JPEG is "jpg".
func Decode(data []byte) (image.Image, string, error) {
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, canonicalFormat(format), nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}
	return nil, "", ErrUnsupportedFormat
}

func canonicalFormat(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
