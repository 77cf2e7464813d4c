// Package config handles viewer configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"image"
)

// Config holds all viewer settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Relief   ReliefConfig   `yaml:"relief"`
	View     ViewConfig     `yaml:"view"`
	Images   []ImageConfig  `yaml:"images"`
	Palette  []PaletteEntry `yaml:"palette"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display and projection settings.
type GraphicsConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Fullscreen bool    `yaml:"fullscreen"`
	VSync      bool    `yaml:"vsync"`
	FOVDegrees float32 `yaml:"fov_degrees"`
	Near       float32 `yaml:"near"`
	Far        float32 `yaml:"far"`
}

// ReliefConfig sizes the relief image and tunes streaming.
type ReliefConfig struct {
	ImageWidth     int     `yaml:"image_width"`
	ImageHeight    int     `yaml:"image_height"`
	Height16Bit    bool    `yaml:"height_16bit"`
	TileSize       int     `yaml:"tile_size"`
	CacheCapacity  int     `yaml:"cache_capacity"`
	ElevationScale float32 `yaml:"elevation_scale"`
	LODThreshold   float32 `yaml:"lod_threshold"`
}

// ViewConfig holds the initial render modes.
type ViewConfig struct {
	Wireframe bool `yaml:"wireframe"`
	Stairs    bool `yaml:"stairs"`
	DebugDist bool `yaml:"debug_dist"`
	Heightmap bool `yaml:"heightmap"`
	ShowStats bool `yaml:"show_stats"`

	SnapshotDir string `yaml:"snapshot_dir"` // F12 frame captures
}

// ImageConfig places one color/height image pair into the relief.
type ImageConfig struct {
	Color   string `yaml:"color"`
	Height  string `yaml:"height"`
	X       int    `yaml:"x"`
	Y       int    `yaml:"y"`
	Subrect []int  `yaml:"subrect,omitempty"` // x, y, w, h of the source; empty for all of it
}

// Origin returns the destination corner in image pixels.
func (c ImageConfig) Origin() image.Point {
	return image.Pt(c.X, c.Y)
}

// Sub returns the source rectangle, zero for the whole source.
func (c ImageConfig) Sub() image.Rectangle {
	if len(c.Subrect) != 4 {
		return image.Rectangle{}
	}
	x, y, w, h := c.Subrect[0], c.Subrect[1], c.Subrect[2], c.Subrect[3]
	return image.Rect(x, y, x+w, y+h)
}

// PaletteEntry is one heightmap palette breakpoint.
type PaletteEntry struct {
	Height int   `yaml:"height"`
	Color  []int `yaml:"color"` // r, g, b[, a] in 0..255
}

// RGBA returns the breakpoint color; a missing alpha is opaque.
func (p PaletteEntry) RGBA() [4]uint8 {
	out := [4]uint8{0, 0, 0, 255}
	for i := 0; i < len(p.Color) && i < 4; i++ {
		out[i] = uint8(min(max(p.Color[i], 0), 255))
	}
	return out
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FOVDegrees: 60,
			Near:       1,
			Far:        1e6,
		},
		Relief: ReliefConfig{
			ImageWidth:     4096,
			ImageHeight:    4096,
			TileSize:       128,
			CacheCapacity:  1024,
			ElevationScale: 1,
			LODThreshold:   1.7,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings the viewer cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Relief.ImageWidth <= 0 || c.Relief.ImageHeight <= 0 {
		errs = append(errs, fmt.Errorf("relief: image size %dx%d", c.Relief.ImageWidth, c.Relief.ImageHeight))
	}
	if c.Relief.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("relief: tile_size %d", c.Relief.TileSize))
	}
	if c.Graphics.Near <= 0 || c.Graphics.Far <= c.Graphics.Near {
		errs = append(errs, fmt.Errorf("graphics: clip range %v..%v", c.Graphics.Near, c.Graphics.Far))
	}
	for i, img := range c.Images {
		if n := len(img.Subrect); n != 0 && n != 4 {
			errs = append(errs, fmt.Errorf("images[%d]: subrect needs 4 values, got %d", i, n))
		}
		if img.Color == "" && img.Height == "" {
			errs = append(errs, fmt.Errorf("images[%d]: no color or height file", i))
		}
	}
	return errors.Join(errs...)
}
