// Package viewer runs the interactive relief viewer: window, input, camera
// and the frame loop around a relief.Relief.
package viewer

import (
	"fmt"
	"image"
	"image/color"
	gomath "math"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/reliefview/internal/config"
	"github.com/Faultbox/reliefview/internal/engine/camera"
	"github.com/Faultbox/reliefview/internal/engine/gpu/glgpu"
	"github.com/Faultbox/reliefview/internal/engine/input"
	"github.com/Faultbox/reliefview/internal/engine/relief"
	"github.com/Faultbox/reliefview/internal/engine/snapshot"
	"github.com/Faultbox/reliefview/internal/engine/window"
	"github.com/Faultbox/reliefview/internal/logger"
	"github.com/Faultbox/reliefview/internal/raster"
	"github.com/Faultbox/reliefview/pkg/math"
)

const title = "ReliefView"

// Viewer owns the window and everything drawn into it.
type Viewer struct {
	cfg    *config.Config
	log    *zap.Logger
	window *window.Window
	device *glgpu.Device
	relief *relief.Relief
	input  *input.Input
	camera *camera.OrbitCamera
	shots  *snapshot.Capture

	opts      relief.RenderOptions
	fbW, fbH  int
	running   bool
	lastStats relief.FrameStats

	snapshotPending bool
}

// New opens the window, creates the relief and loads the configured images.
func New(cfg *config.Config) (*Viewer, error) {
	v := &Viewer{
		cfg:   cfg,
		log:   logger.Named("viewer"),
		input: input.New(),
		shots: snapshot.New(cfg.View.SnapshotDir, "relief"),
		opts: relief.RenderOptions{
			Wireframe: cfg.View.Wireframe,
			Stairs:    cfg.View.Stairs,
			DebugDist: cfg.View.DebugDist,
			Heightmap: cfg.View.Heightmap,
		},
	}

	// Window first, the GL context must exist before the device.
	var err error
	v.window, err = window.New(window.Config{
		Title:      title,
		Width:      cfg.Graphics.Width,
		Height:     cfg.Graphics.Height,
		Fullscreen: cfg.Graphics.Fullscreen,
		VSync:      cfg.Graphics.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	v.device, err = glgpu.New()
	if err != nil {
		v.window.Close()
		return nil, fmt.Errorf("failed to create GPU device: %w", err)
	}
	v.fbW, v.fbH = v.window.DrawableSize()
	v.device.Viewport(v.fbW, v.fbH)

	mode := raster.Height8
	if cfg.Relief.Height16Bit {
		mode = raster.Height16
	}
	size := image.Pt(cfg.Relief.ImageWidth, cfg.Relief.ImageHeight)
	v.relief, err = relief.New(v.device, size, mode, relief.Options{
		TileSize:       cfg.Relief.TileSize,
		CacheCapacity:  cfg.Relief.CacheCapacity,
		ElevationScale: cfg.Relief.ElevationScale,
		Threshold:      cfg.Relief.LODThreshold,
	})
	if err != nil {
		v.window.Close()
		return nil, fmt.Errorf("failed to create relief: %w", err)
	}

	if err := v.relief.SetHeightmapPalette(PaletteEntries(cfg.Palette)); err != nil {
		v.log.Warn("palette upload failed", zap.Error(err))
	}
	for _, img := range cfg.Images {
		written := v.relief.Update(img.Origin(), img.Color, img.Height, img.Sub())
		v.log.Info("image loaded",
			zap.String("color", img.Color),
			zap.String("height", img.Height),
			zap.Stringer("rect", written),
		)
	}

	v.camera = camera.NewOrbitCamera()
	v.camera.MaxDistance = cfg.Graphics.Far / 2
	v.camera.FitToImage(size.X, size.Y)

	return v, nil
}

// PaletteEntries converts configured palette breakpoints.
func PaletteEntries(entries []config.PaletteEntry) []relief.PaletteEntry {
	out := make([]relief.PaletteEntry, 0, len(entries))
	for _, e := range entries {
		c := e.RGBA()
		out = append(out, relief.PaletteEntry{
			Height: e.Height,
			Color:  color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]},
		})
	}
	return out
}

// Run drives the frame loop until the window is closed or Escape is hit.
func (v *Viewer) Run() error {
	v.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	v.log.Info("starting frame loop")

	for v.running {
		now := time.Now()
		dt := float32(now.Sub(lastTime).Seconds())
		lastTime = now

		// 1. Input
		if v.input.Update() {
			v.running = false
			break
		}
		v.handleEvents()
		v.handleMovement(dt)
		v.keepAboveSurface()

		// 2. Draw
		v.device.Clear()
		v.lastStats = v.relief.Render(v.camera.ViewMatrix(), v.projection(), v.viewport(), v.opts)

		// 3. Present, reading the frame back first when asked to
		if v.snapshotPending {
			v.snapshotPending = false
			v.saveSnapshot()
		}
		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			v.report(frameCount)
			frameCount = 0
			fpsTimer = time.Now()
		}
	}
	return nil
}

func (v *Viewer) handleEvents() {
	for _, event := range v.input.Events() {
		switch event.Type {
		case input.EventWindowResize:
			v.fbW, v.fbH = v.window.DrawableSize()
			v.device.Viewport(v.fbW, v.fbH)
		case input.EventKeyDown:
			v.handleKey(event.Key)
		case input.EventMouseMove:
			if v.input.IsButtonHeld(sdl.BUTTON_LEFT) {
				v.camera.HandleDrag(float32(event.DeltaX), float32(event.DeltaY))
			}
		case input.EventMouseWheel:
			v.camera.HandleZoom(float32(event.DeltaY))
		}
	}
}

func (v *Viewer) handleKey(key sdl.Scancode) {
	switch key {
	case sdl.SCANCODE_ESCAPE:
		v.running = false
	case sdl.SCANCODE_F1:
		v.opts.Wireframe = !v.opts.Wireframe
	case sdl.SCANCODE_F2:
		v.opts.Stairs = !v.opts.Stairs
	case sdl.SCANCODE_F3:
		v.opts.DebugDist = !v.opts.DebugDist
	case sdl.SCANCODE_F4:
		v.opts.Heightmap = !v.opts.Heightmap
		if v.opts.Heightmap && v.relief.Palette() == nil {
			v.log.Warn("heightmap mode without a palette, using image colors")
		}
	case sdl.SCANCODE_F5:
		v.toggleHeightMode()
	case sdl.SCANCODE_F9:
		v.toggleStats()
	case sdl.SCANCODE_F12:
		v.snapshotPending = true
	case sdl.SCANCODE_HOME:
		size := v.relief.Size()
		v.camera.FitToImage(size.X, size.Y)
	default:
		return
	}
	v.log.Debug("render options", zap.Any("options", v.opts))
}

func (v *Viewer) saveSnapshot() {
	name, err := v.shots.SaveFramebuffer(v.device.ReadPixels(v.fbW, v.fbH), v.fbW, v.fbH)
	if err != nil {
		v.log.Error("snapshot failed", zap.Error(err))
		return
	}
	v.log.Info("snapshot saved", zap.String("file", name))
}

// toggleStats switches per-second frame statistics, raising the log level
// to debug while they are on.
func (v *Viewer) toggleStats() {
	v.cfg.View.ShowStats = !v.cfg.View.ShowStats
	name := v.cfg.Logging.Level
	if v.cfg.View.ShowStats {
		name = "debug"
	}
	if err := logger.SetLevel(name); err != nil {
		v.log.Warn("log level unchanged", zap.Error(err))
	}
}

func (v *Viewer) toggleHeightMode() {
	mode := raster.Height16
	if v.relief.Store().Mode() == raster.Height16 {
		mode = raster.Height8
	}
	v.relief.SetHeightMode(mode)
	v.log.Info("height mode changed", zap.Stringer("mode", mode))
}

// handleMovement pans with WASD, scaled by the frame time.
func (v *Viewer) handleMovement(dt float32) {
	var forward, right float32
	if v.input.IsKeyHeld(sdl.SCANCODE_W) {
		forward++
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_S) {
		forward--
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_D) {
		right++
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_A) {
		right--
	}
	if forward != 0 || right != 0 {
		// PanSpeed is tuned per 60 Hz frame.
		v.camera.HandleMovement(forward*dt*60, right*dt*60)
	}
}

// keepAboveSurface raises the orbit center when the eye would sink into
// the relief.
func (v *Viewer) keepAboveSurface() {
	eye := v.camera.Position()
	ground := v.relief.SurfaceZ(eye.X, eye.Y) + 2*v.cfg.Graphics.Near
	if eye.Z < ground {
		v.camera.Center.Z += ground - eye.Z
	}
}

func (v *Viewer) projection() math.Mat4 {
	aspect := float32(v.fbW) / float32(max(v.fbH, 1))
	fov := v.cfg.Graphics.FOVDegrees * gomath.Pi / 180
	return math.Perspective(fov, aspect, v.cfg.Graphics.Near, v.cfg.Graphics.Far)
}

func (v *Viewer) viewport() math.Mat4 {
	return math.Viewport(0, 0, float32(v.fbW), float32(v.fbH))
}

func (v *Viewer) report(fps int) {
	s := v.lastStats
	v.window.SetTitle(fmt.Sprintf("%s - %d fps, %d tiles", title, fps, s.Visible))
	if !v.cfg.View.ShowStats {
		return
	}
	v.log.Debug("frame",
		zap.Int("fps", fps),
		zap.Int("visible", s.Visible),
		zap.Ints("per_level", s.PerLevel),
		zap.Uint64("cache_hits", s.CacheHits),
		zap.Uint64("cache_misses", s.CacheMisses),
		zap.Uint64("evictions", s.Evictions),
		zap.Int("skipped", s.Skipped),
	)
}

// Close releases the relief and closes the window.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")
	if v.relief != nil {
		v.relief.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
}
