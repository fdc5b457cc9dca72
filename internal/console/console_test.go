package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/bbox-annotator/pkg/session"
	"github.com/menta2k/bbox-annotator/pkg/surface"
	"github.com/menta2k/bbox-annotator/pkg/types"
)

type fakeKeys struct{ keys []string }

func (k *fakeKeys) HandleKey(_ context.Context, key string) (session.Result, bool, error) {
	k.keys = append(k.keys, key)
	if key != "space" {
		return session.Result{}, false, nil
	}
	return session.Result{Submitted: true, Next: types.ImageRef{URI: "/image/next.jpg"}}, true, nil
}

type fakeButton struct{ presses, releases int }

func (b *fakeButton) Press() bool { b.presses++; return true }
func (b *fakeButton) Release()    { b.releases++ }

func loadedSurface(t *testing.T) *surface.Surface {
	t.Helper()
	s := surface.New(resolverFunc(func(context.Context, string) (surface.Resolved, error) {
		return surface.Resolved{Width: 320, Height: 320, Format: "jpg"}, nil
	}), nil)
	require.NoError(t, <-s.LoadImage(context.Background(), surface.LoadRequest{Ref: "a.jpg", TargetWidth: 320, TargetHeight: 320}))
	return s
}

type resolverFunc func(context.Context, string) (surface.Resolved, error)

func (f resolverFunc) Resolve(ctx context.Context, ref string) (surface.Resolved, error) {
	return f(ctx, ref)
}

func TestPointerCommands(t *testing.T) {
	s := loadedSurface(t)
	c := New(s, Handlers{})
	ctx := context.Background()

	out, err := c.Execute(ctx, "click 10 10")
	require.NoError(t, err)
	assert.Equal(t, surface.OneAnchor.String(), out)

	out, err = c.Execute(ctx, "export")
	require.NoError(t, err)
	assert.Equal(t, "no box", out)

	_, err = c.Execute(ctx, "press 50 50")
	require.NoError(t, err)
	out, err = c.Execute(ctx, "release 50 50")
	require.NoError(t, err)
	assert.Equal(t, surface.TwoAnchors.String(), out)

	out, err = c.Execute(ctx, "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"image/object/bbox/xmax":0.15625`)

	_, err = c.Execute(ctx, "drag 2 100 100")
	require.NoError(t, err)
	box, ok := s.ExportBox()
	require.True(t, ok)
	assert.InDelta(t, 100.0/320, box.Xmax, 1e-9)

	out, err = c.Execute(ctx, "reset")
	require.NoError(t, err)
	assert.Equal(t, surface.Empty.String(), out)
}

func TestBadInput(t *testing.T) {
	c := New(loadedSurface(t), Handlers{})
	ctx := context.Background()

	for _, line := range []string{"press 1", "press a b", "release nan 5", "click 5 inf", "drag 1 -Inf 2", "drag 3 1 1", "bogus", "space", "push", "suggest", "snapshot"} {
		_, err := c.Execute(ctx, line)
		assert.Error(t, err, line)
	}
	out, err := c.Execute(ctx, "   # comment")
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestHandlers(t *testing.T) {
	keys := &fakeKeys{}
	btn := &fakeButton{}
	suggested := false
	c := New(loadedSurface(t), Handlers{
		Keys:     keys,
		Button:   btn,
		Suggest:  func(context.Context) (bool, error) { suggested = true; return false, nil },
		Snapshot: func() (string, error) { return "", errors.New("nothing drawn") },
	})
	ctx := context.Background()

	out, err := c.Execute(ctx, "space")
	require.NoError(t, err)
	assert.Equal(t, "submitted, next /image/next.jpg", out)

	out, err = c.Execute(ctx, "key a")
	require.NoError(t, err)
	assert.Equal(t, "ignored", out)
	assert.Equal(t, []string{"space", "a"}, keys.keys)

	out, err = c.Execute(ctx, "push")
	require.NoError(t, err)
	assert.Equal(t, "pushed", out)
	assert.Equal(t, 1, btn.presses)
	assert.Equal(t, 1, btn.releases)

	out, err = c.Execute(ctx, "suggest")
	require.NoError(t, err)
	assert.True(t, suggested)
	assert.Equal(t, "no suggestion", out)

	_, err = c.Execute(ctx, "snapshot")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	c := New(loadedSurface(t), Handlers{})
	in := strings.NewReader("click 10 10\nnope\nclick 20 30\nstate\nquit\nclick 1 1\n")
	var out bytes.Buffer

	require.NoError(t, c.Run(context.Background(), in, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, surface.OneAnchor.String(), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "error:"))
	assert.Equal(t, surface.TwoAnchors.String(), lines[2])
	assert.Equal(t, surface.TwoAnchors.String(), lines[3])
}

func TestNonFiniteCoordinatesRejected(t *testing.T) {
	s := loadedSurface(t)
	c := New(s, Handlers{})
	ctx := context.Background()

	_, err := c.Execute(ctx, "click 10 10")
	require.NoError(t, err)
	_, err = c.Execute(ctx, "release NaN +Inf")
	assert.ErrorContains(t, err, "finite")
	assert.Equal(t, surface.OneAnchor, s.State())
}
