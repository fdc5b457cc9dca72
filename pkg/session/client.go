package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/bbox-annotator/pkg/types"
)

// StatusError is a non-2xx answer from the labeling server
type StatusError struct {
	Op     string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("%s: server returned %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: server returned %s: %s", e.Op, e.Status, body)
}

// Client talks to the labeling server
type Client struct {
	http      *resty.Client
	imagePath string
	labelPath string
	logger    *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithClientLogger sets the client's logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPaths overrides the next-image and label endpoints.
func WithPaths(imagePath, labelPath string) ClientOption {
	return func(c *Client) {
		if imagePath != "" {
			c.imagePath = imagePath
		}
		if labelPath != "" {
			c.labelPath = labelPath
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithRetries sets how many times a failed next-image request is retried.
// Label posts are never retried so a box is not recorded twice.
func WithRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.http.SetRetryCount(n)
		}
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(wait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		if wait > 0 {
			c.http.SetRetryWaitTime(wait)
		}
		if maxWait > 0 {
			c.http.SetRetryMaxWaitTime(maxWait)
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(10 * time.Second).
			SetHeader("Accept", "application/json").
			SetRetryCount(0).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second),
		imagePath: "/image",
		labelPath: "/label",
		logger:    zap.NewNop(),
	}
	c.http.AddRetryCondition(retryableGet)
	c.http.AddRetryHook(func(resp *resty.Response, err error) {
		fields := []zap.Field{zap.Error(err)}
		if resp != nil && resp.Request != nil {
			fields = append(fields,
				zap.String("url", resp.Request.URL),
				zap.Int("attempt", resp.Request.Attempt),
				zap.Int("status", resp.StatusCode()),
			)
		}
		c.logger.Warn("retrying request", fields...)
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableGet retries only GETs, on transport errors, 429 and 5xx.
func retryableGet(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != resty.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	code := resp.StatusCode()
	return code == 429 || code >= 500
}

// HTTP exposes the underlying resty client so image fetches can share it.
func (c *Client) HTTP() *resty.Client {
	return c.http
}

// NextImage asks the server for the next image to annotate. Failed requests
// are retried with backoff as configured by WithRetries.
func (c *Client) NextImage(ctx context.Context) (types.ImageRef, error) {
	var ref types.ImageRef
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-cache").
		SetResult(&ref).
		Get(c.imagePath)
	if err != nil {
		return types.ImageRef{}, fmt.Errorf("next image: %w", err)
	}
	if resp.IsError() {
		return types.ImageRef{}, &StatusError{Op: "next image", Code: resp.StatusCode(), Status: resp.Status(), Body: resp.String()}
	}
	if ref.URI == "" {
		return types.ImageRef{}, fmt.Errorf("next image: response carried no uri")
	}
	c.logger.Debug("next image", zap.String("uri", ref.URI), zap.String("id", ref.ID))
	return ref, nil
}

// SubmitLabel posts one annotation record.
func (c *Client) SubmitLabel(ctx context.Context, box types.NormalizedBox) error {
	requestID := uuid.NewString()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=UTF-8").
		SetHeader("X-Request-ID", requestID).
		SetBody(box).
		Post(c.labelPath)
	if err != nil {
		return fmt.Errorf("submit label: %w", err)
	}
	if resp.IsError() {
		return &StatusError{Op: "submit label", Code: resp.StatusCode(), Status: resp.Status(), Body: resp.String()}
	}
	c.logger.Info("label submitted",
		zap.String("request_id", requestID),
		zap.String("image", box.Filename),
		zap.Float64("xmin", box.Xmin),
		zap.Float64("xmax", box.Xmax),
		zap.Float64("ymin", box.Ymin),
		zap.Float64("ymax", box.Ymax),
	)
	return nil
}
