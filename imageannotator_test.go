package imageannotator

import (
	"bytes"
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bbox-annotator/pkg/config"
	"github.com/menta2k/bbox-annotator/pkg/surface"
	"github.com/menta2k/bbox-annotator/pkg/types"
)

// fakeServer hands out two 640x480 PNGs and records posted labels
type fakeServer struct {
	mu     sync.Mutex
	next   int
	labels []types.NormalizedBox
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fs := &fakeServer{}

	var png bytes.Buffer
	require.NoError(t, imaging.Encode(&png, imaging.New(640, 480, color.NRGBA{90, 90, 90, 255}), imaging.PNG))

	r := gin.New()
	r.GET("/image", func(c *gin.Context) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		names := []string{"cat.png", "dog.png", "owl.png"}
		if fs.next >= len(names) {
			c.Status(http.StatusNotFound)
			return
		}
		name := names[fs.next]
		fs.next++
		c.JSON(http.StatusOK, types.ImageRef{URI: "/image/" + name, ID: name})
	})
	r.GET("/image/:name", func(c *gin.Context) {
		c.Data(http.StatusOK, "image/png", png.Bytes())
	})
	r.POST("/label", func(c *gin.Context) {
		var box types.NormalizedBox
		if err := c.ShouldBindJSON(&box); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.labels = append(fs.labels, box)
		fs.mu.Unlock()
		c.Status(http.StatusOK)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) posted() []types.NormalizedBox {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]types.NormalizedBox(nil), fs.labels...)
}

type fakeVision struct{}

func (fakeVision) AnalyzeImage(context.Context, string, string, string) (*types.AnalysisResult, error) {
	return &types.AnalysisResult{Primary: types.Primary{
		Label: "cat", Confidence: 0.9,
		Box: types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
	}}, nil
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Server.BaseURL = baseURL
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Canvas.Width = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestAnnotateAndSubmit(t *testing.T) {
	fs, srv := newFakeServer(t)
	cfg := testConfig(srv.URL)
	cfg.Canvas.Format = ""
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	ref, err := a.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cat.png", ref.ID)

	out, err := a.Console().Execute(ctx, "click 32 32")
	require.NoError(t, err)
	assert.Equal(t, surface.OneAnchor.String(), out)
	_, err = a.Console().Execute(ctx, "click 160 288")
	require.NoError(t, err)

	res, handled, err := a.HandleKey(ctx, "space")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, res.Submitted)
	assert.Equal(t, "dog.png", res.Next.ID)

	posted := fs.posted()
	require.Len(t, posted, 1)
	assert.Equal(t, "/image/cat.png", posted[0].Filename)
	assert.Equal(t, "png", posted[0].Format)
	assert.Equal(t, "class1", posted[0].ClassText)
	assert.InDelta(t, 0.1, posted[0].Xmin, 1e-9)
	assert.InDelta(t, 0.5, posted[0].Xmax, 1e-9)
	assert.InDelta(t, 0.1, posted[0].Ymin, 1e-9)
	assert.InDelta(t, 0.9, posted[0].Ymax, 1e-9)

	frame := a.Canvas().Frame()
	require.NotNil(t, frame)
	assert.Equal(t, 320, frame.Bounds().Dx())
}

func TestButtonSubmits(t *testing.T) {
	_, srv := newFakeServer(t)
	cfg := testConfig(srv.URL)
	cfg.Button.PressDuration = 0
	cfg.Button.ReleaseDuration = 0
	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Start(context.Background())
	require.NoError(t, err)

	require.True(t, a.Button().Press())
	a.Button().Release()
	select {
	case res := <-a.Pushes():
		assert.False(t, res.Submitted)
		assert.Equal(t, "dog.png", res.Next.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("button press did not submit")
	}
}

func TestSuggestAndSnapshot(t *testing.T) {
	_, srv := newFakeServer(t)
	cfg := testConfig(srv.URL)
	cfg.Assist.Enabled = true
	cfg.Snapshot.Dir = t.TempDir()
	a, err := New(cfg, WithVisionClient(fakeVision{}))
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	_, err = a.Suggest(ctx)
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = a.Start(ctx)
	require.NoError(t, err)

	ok, err := a.Suggest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	box, ok := a.Surface().ExportBox()
	require.True(t, ok)
	assert.InDelta(t, 0.25, box.Xmin, 1e-9)
	assert.InDelta(t, 0.75, box.Ymax, 1e-9)

	path, err := a.Snapshot()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, cfg.Snapshot.Dir))
	assert.True(t, strings.HasSuffix(path, ".png"))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSuggestDisabled(t *testing.T) {
	a, err := New(testConfig("http://localhost:1"))
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Suggest(context.Background())
	assert.ErrorIs(t, err, ErrAssistDisabled)
}
