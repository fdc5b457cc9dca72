package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server" json:"server" yaml:"server"`
	Canvas   CanvasConfig   `mapstructure:"canvas" json:"canvas" yaml:"canvas"`
	Label    LabelConfig    `mapstructure:"label" json:"label" yaml:"label"`
	Palette  PaletteConfig  `mapstructure:"palette" json:"palette" yaml:"palette"`
	Button   ButtonConfig   `mapstructure:"button" json:"button" yaml:"button"`
	Assist   AssistConfig   `mapstructure:"assist" json:"assist" yaml:"assist"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" json:"snapshot" yaml:"snapshot"`
	Log      LogConfig      `mapstructure:"log" json:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
}

// ServerConfig locates the labeling server
type ServerConfig struct {
	BaseURL    string        `mapstructure:"base_url" json:"base_url" yaml:"base_url"`
	ImagePath  string        `mapstructure:"image_path" json:"image_path" yaml:"image_path"`
	LabelPath  string        `mapstructure:"label_path" json:"label_path" yaml:"label_path"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	RetryCount int           `mapstructure:"retry_count" json:"retry_count" yaml:"retry_count"`
}

// CanvasConfig is the size images are fitted to on the surface
type CanvasConfig struct {
	Width  int    `mapstructure:"width" json:"width" yaml:"width"`
	Height int    `mapstructure:"height" json:"height" yaml:"height"`
	Format string `mapstructure:"format" json:"format" yaml:"format"`
}

// LabelConfig is the class attached to every box
type LabelConfig struct {
	ID   int64  `mapstructure:"id" json:"id" yaml:"id"`
	Text string `mapstructure:"text" json:"text" yaml:"text"`
}

// PaletteConfig holds overlay colors as #rrggbb strings
type PaletteConfig struct {
	Line              string `mapstructure:"line" json:"line" yaml:"line"`
	AnchorStroke      string `mapstructure:"anchor_stroke" json:"anchor_stroke" yaml:"anchor_stroke"`
	AnchorFill        string `mapstructure:"anchor_fill" json:"anchor_fill" yaml:"anchor_fill"`
	LineWidth         int    `mapstructure:"line_width" json:"line_width" yaml:"line_width"`
	AnchorRadius      int    `mapstructure:"anchor_radius" json:"anchor_radius" yaml:"anchor_radius"`
	AnchorStrokeWidth int    `mapstructure:"anchor_stroke_width" json:"anchor_stroke_width" yaml:"anchor_stroke_width"`
}

// ButtonConfig shapes the push button
type ButtonConfig struct {
	Width           int           `mapstructure:"width" json:"width" yaml:"width"`
	Height          int           `mapstructure:"height" json:"height" yaml:"height"`
	Depth           float64       `mapstructure:"depth" json:"depth" yaml:"depth"`
	PressedDepth    float64       `mapstructure:"pressed_depth" json:"pressed_depth" yaml:"pressed_depth"`
	PressDuration   time.Duration `mapstructure:"press_duration" json:"press_duration" yaml:"press_duration"`
	ReleaseDuration time.Duration `mapstructure:"release_duration" json:"release_duration" yaml:"release_duration"`
	// Colors are front, left and bottom faces, light to dark.
	Colors []string `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// AssistConfig enables model suggested boxes
type AssistConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Backend     string `mapstructure:"backend" json:"backend" yaml:"backend"`
	URL         string `mapstructure:"url" json:"url" yaml:"url"`
	Model       string `mapstructure:"model" json:"model" yaml:"model"`
	SendSize    int    `mapstructure:"send_size" json:"send_size" yaml:"send_size"`
	SendQuality int    `mapstructure:"send_quality" json:"send_quality" yaml:"send_quality"`
}

// SnapshotConfig controls rendered scene output
type SnapshotConfig struct {
	Dir     string `mapstructure:"dir" json:"dir" yaml:"dir"`
	Format  string `mapstructure:"format" json:"format" yaml:"format"`
	Quality int    `mapstructure:"quality" json:"quality" yaml:"quality"`
}

// LogConfig selects the logger flavor
type LogConfig struct {
	Mode string `mapstructure:"mode" json:"mode" yaml:"mode"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:    "http://localhost:8080",
			ImagePath:  "/image",
			LabelPath:  "/label",
			Timeout:    10 * time.Second,
			RetryCount: 2,
		},
		Canvas: CanvasConfig{
			Width:  320,
			Height: 320,
			Format: "jpg",
		},
		Label: LabelConfig{
			ID:   1,
			Text: "class1",
		},
		Palette: PaletteConfig{
			Line:              "#f4c20d",
			AnchorStroke:      "#3cba54",
			AnchorFill:        "#db3236",
			LineWidth:         2,
			AnchorRadius:      3,
			AnchorStrokeWidth: 2,
		},
		Button: ButtonConfig{
			Width:           320,
			Height:          80,
			Depth:           18,
			PressedDepth:    6,
			PressDuration:   280 * time.Millisecond,
			ReleaseDuration: 600 * time.Millisecond,
			Colors:          []string{"#2baa5e", "#249b54", "#1a8741"},
		},
		Assist: AssistConfig{
			Enabled:     false,
			Backend:     "ollama",
			URL:         "http://localhost:11434",
			Model:       "openbmb/minicpm-v4.5",
			SendSize:    1024,
			SendQuality: 85,
		},
		Snapshot: SnapshotConfig{
			Dir:     "./snapshots",
			Format:  "png",
			Quality: 90,
		},
		Log: LogConfig{
			Mode: "development",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.image_path", d.Server.ImagePath)
	v.SetDefault("server.label_path", d.Server.LabelPath)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.retry_count", d.Server.RetryCount)

	v.SetDefault("canvas.width", d.Canvas.Width)
	v.SetDefault("canvas.height", d.Canvas.Height)
	v.SetDefault("canvas.format", d.Canvas.Format)

	v.SetDefault("label.id", d.Label.ID)
	v.SetDefault("label.text", d.Label.Text)

	v.SetDefault("palette.line", d.Palette.Line)
	v.SetDefault("palette.anchor_stroke", d.Palette.AnchorStroke)
	v.SetDefault("palette.anchor_fill", d.Palette.AnchorFill)
	v.SetDefault("palette.line_width", d.Palette.LineWidth)
	v.SetDefault("palette.anchor_radius", d.Palette.AnchorRadius)
	v.SetDefault("palette.anchor_stroke_width", d.Palette.AnchorStrokeWidth)

	v.SetDefault("button.width", d.Button.Width)
	v.SetDefault("button.height", d.Button.Height)
	v.SetDefault("button.depth", d.Button.Depth)
	v.SetDefault("button.pressed_depth", d.Button.PressedDepth)
	v.SetDefault("button.press_duration", d.Button.PressDuration)
	v.SetDefault("button.release_duration", d.Button.ReleaseDuration)
	v.SetDefault("button.colors", d.Button.Colors)

	v.SetDefault("assist.enabled", d.Assist.Enabled)
	v.SetDefault("assist.backend", d.Assist.Backend)
	v.SetDefault("assist.url", d.Assist.URL)
	v.SetDefault("assist.model", d.Assist.Model)
	v.SetDefault("assist.send_size", d.Assist.SendSize)
	v.SetDefault("assist.send_quality", d.Assist.SendQuality)

	v.SetDefault("snapshot.dir", d.Snapshot.Dir)
	v.SetDefault("snapshot.format", d.Snapshot.Format)
	v.SetDefault("snapshot.quality", d.Snapshot.Quality)

	v.SetDefault("log.mode", d.Log.Mode)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// Load reads configuration from a YAML or JSON file layered over the defaults.
// ANNOTATOR_* environment variables override both, e.g.
// ANNOTATOR_SERVER_BASE_URL. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ANNOTATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			v.SetConfigType("json")
		default:
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// SaveToFile saves configuration as JSON or YAML depending on the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative")
	}
	if c.Canvas.Width < 1 || c.Canvas.Height < 1 {
		return fmt.Errorf("canvas.width and canvas.height must be positive")
	}
	for name, hex := range map[string]string{
		"palette.line":          c.Palette.Line,
		"palette.anchor_stroke": c.Palette.AnchorStroke,
		"palette.anchor_fill":   c.Palette.AnchorFill,
	} {
		if _, err := ParseColor(hex); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if len(c.Button.Colors) != 3 {
		return fmt.Errorf("button.colors needs exactly 3 entries, got %d", len(c.Button.Colors))
	}
	for i, hex := range c.Button.Colors {
		if _, err := ParseColor(hex); err != nil {
			return fmt.Errorf("button.colors[%d]: %w", i, err)
		}
	}
	if c.Button.PressedDepth < 0 || c.Button.PressedDepth > c.Button.Depth {
		return fmt.Errorf("button.pressed_depth must be between 0 and button.depth")
	}
	if c.Assist.Enabled {
		switch c.Assist.Backend {
		case "ollama", "llamacpp", "saliency":
		default:
			return fmt.Errorf("assist.backend must be ollama, llamacpp or saliency, got %q", c.Assist.Backend)
		}
		if c.Assist.Model == "" && c.Assist.Backend != "saliency" {
			return fmt.Errorf("assist.model is required when assist is enabled")
		}
	}
	switch strings.ToLower(c.Snapshot.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("snapshot.format must be png, jpg or webp")
	}
	if c.Snapshot.Quality < 1 || c.Snapshot.Quality > 100 {
		return fmt.Errorf("snapshot.quality must be between 1 and 100")
	}
	return nil
}

// ParseColor parses a #rrggbb or #rrggbbaa string
func ParseColor(hex string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	s := strings.TrimPrefix(hex, "#")
	var err error
	switch len(s) {
	case 6:
		_, err = fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 8:
		_, err = fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		return c, fmt.Errorf("invalid color %q", hex)
	}
	if err != nil {
		return c, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	return c, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./annotator.yaml"
	}
	return filepath.Join(home, ".config", "bbox-annotator", "config.yaml")
}
