package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 320, cfg.Canvas.Width)
	assert.Equal(t, 320, cfg.Canvas.Height)
	assert.Equal(t, int64(1), cfg.Label.ID)
	assert.Equal(t, "class1", cfg.Label.Text)
	assert.Equal(t, "/image", cfg.Server.ImagePath)
	assert.Equal(t, "/label", cfg.Server.LabelPath)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotator.yaml")
	data := []byte(`
server:
  base_url: http://labeler:9000
  timeout: 3s
canvas:
  width: 640
label:
  id: 7
  text: dog
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://labeler:9000", cfg.Server.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Server.Timeout)
	assert.Equal(t, 640, cfg.Canvas.Width)
	assert.Equal(t, 320, cfg.Canvas.Height)
	assert.Equal(t, int64(7), cfg.Label.ID)
	assert.Equal(t, "dog", cfg.Label.Text)
	assert.Equal(t, "#f4c20d", cfg.Palette.Line)
	assert.Len(t, cfg.Button.Colors, 3)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotator.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"canvas": {"width": 100, "height": 50}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Canvas.Width)
	assert.Equal(t, 50, cfg.Canvas.Height)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ANNOTATOR_SERVER_BASE_URL", "http://from-env:1234")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:1234", cfg.Server.BaseURL)
	assert.Equal(t, Default().Canvas, cfg.Canvas)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveAndLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "annotator.yaml")
	cfg := Default()
	cfg.Label.Text = "cat"
	cfg.Button.PressDuration = 150 * time.Millisecond
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cat", loaded.Label.Text)
	assert.Equal(t, 150*time.Millisecond, loaded.Button.PressDuration)
	assert.Equal(t, cfg.Palette, loaded.Palette)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.Server.BaseURL = "" }},
		{"zero canvas", func(c *Config) { c.Canvas.Width = 0 }},
		{"bad line color", func(c *Config) { c.Palette.Line = "yellow" }},
		{"two button colors", func(c *Config) { c.Button.Colors = c.Button.Colors[:2] }},
		{"pressed deeper than rest", func(c *Config) { c.Button.PressedDepth = 40 }},
		{"unknown assist backend", func(c *Config) { c.Assist.Enabled = true; c.Assist.Backend = "gpt" }},
		{"snapshot format", func(c *Config) { c.Snapshot.Format = "bmp" }},
		{"snapshot quality", func(c *Config) { c.Snapshot.Quality = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#f4c20d")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xf4), c.R)
	assert.Equal(t, uint8(0xc2), c.G)
	assert.Equal(t, uint8(0x0d), c.B)
	assert.Equal(t, uint8(0xff), c.A)

	c, err = ParseColor("00000080")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.A)

	_, err = ParseColor("#abc")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)
}

func TestValidateSaliencyNeedsNoModel(t *testing.T) {
	cfg := Default()
	cfg.Assist.Enabled = true
	cfg.Assist.Backend = "saliency"
	cfg.Assist.Model = ""
	assert.NoError(t, cfg.Validate())

	cfg.Assist.Backend = "ollama"
	assert.Error(t, cfg.Validate())
}
