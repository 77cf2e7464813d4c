package relief

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	stdmath "math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
	"github.com/Faultbox/reliefview/internal/engine/gpu/gputest"
	"github.com/Faultbox/reliefview/internal/raster"
	"github.com/Faultbox/reliefview/pkg/math"
)

type view struct {
	camera, projection, viewport math.Mat4
}

// overhead looks straight down at the centre of a 256x256 image.
func overhead(h float32) view {
	eye := math.Vec3{X: 128, Y: 128, Z: h}
	return view{
		camera:     math.LookAt(eye, math.Vec3{X: 128, Y: 128}, math.Vec3{Y: 1}),
		projection: math.Perspective(float32(stdmath.Pi/3), 800.0/600.0, 1, 1e6),
		viewport:   math.Viewport(0, 0, 800, 600),
	}
}

var (
	near = overhead(300)    // every level-0 tile, 8x8 of them
	far  = overhead(100000) // the single coarsest tile
)

func newRelief(t *testing.T, opts Options) (*Relief, *gputest.Device) {
	t.Helper()
	dev := gputest.NewDevice()
	if opts.TileSize == 0 {
		opts.TileSize = 32
	}
	if opts.ElevationScale == 0 {
		opts.ElevationScale = 0.1
	}
	r, err := New(dev, image.Pt(256, 256), raster.Height8, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, dev
}

func (r *Relief) renderView(v view, opts RenderOptions) FrameStats {
	return r.Render(v.camera, v.projection, v.viewport, opts)
}

func TestRenderUploadsTileContent(t *testing.T) {
	r, dev := newRelief(t, Options{})
	r.Fill(image.Rect(0, 0, 256, 256), 1, 0, 0, 10)

	stats := r.renderView(far, RenderOptions{})
	if stats.Visible != 1 || len(dev.Draws) != 1 {
		t.Fatalf("visible %d, draws %d, want 1 and 1", stats.Visible, len(dev.Draws))
	}
	if stats.CacheMisses != 2 || stats.CacheHits != 0 {
		t.Errorf("cache: %d hits, %d misses, want 0 and 2", stats.CacheHits, stats.CacheMisses)
	}
	top := r.Index().Levels() - 1
	if stats.PerLevel[top] != 1 {
		t.Errorf("PerLevel: got %v", stats.PerLevel)
	}

	draw := dev.Draws[0]
	colorTex := draw.Textures[unitColor]
	heightTex := draw.Textures[unitHeight]
	// Level 6 of 256 is 4x4; the texture adds the border.
	if d := colorTex.Desc(); d.Width != 6 || d.Height != 6 || d.Format != gpu.FormatRGBA8 {
		t.Errorf("color texture: got %+v", d)
	}
	if d := heightTex.Desc(); d.Format != gpu.FormatR8 || d.Filter != gpu.FilterNearest {
		t.Errorf("height texture: got %+v", d)
	}
	for i := 0; i < len(colorTex.Data); i += 4 {
		if px := colorTex.Data[i : i+4]; px[0] != 255 || px[1] != 0 || px[2] != 0 || px[3] != 255 {
			t.Fatalf("color texel %d: got %v", i/4, px)
		}
	}
	for i, v := range heightTex.Data {
		if v != 10 {
			t.Fatalf("height texel %d: got %d, want 10", i, v)
		}
	}

	tile := r.Index().Tile(top, 0)
	if got := draw.Uniforms[uniTransform]; got != tile.Transform {
		t.Errorf("transform: got %v, want %v", got, tile.Transform)
	}
	if got := draw.Uniforms[uniMode]; got != int32(modeColor) {
		t.Errorf("mode: got %v", got)
	}
	if got := draw.Uniforms[uniTexSize]; got != [2]float32{6, 6} {
		t.Errorf("texture size: got %v", got)
	}
	if got := draw.Uniforms[uniElevation]; got != float32(25.5) {
		t.Errorf("elevation: got %v, want 25.5", got)
	}
}

func TestWriteInvalidatesOverlappingTiles(t *testing.T) {
	r, dev := newRelief(t, Options{})
	stats := r.renderView(near, RenderOptions{})
	if stats.Visible != 64 || stats.PerLevel[0] != 64 {
		t.Fatalf("visible %d (per level %v), want 64 finest tiles", stats.Visible, stats.PerLevel)
	}
	if r.colors.Len() != 64 || r.heights.Len() != 64 {
		t.Fatalf("cached: %d color, %d height", r.colors.Len(), r.heights.Len())
	}

	// One pixel inside tile (1,1), away from its edges.
	r.Fill(image.Rect(40, 40, 41, 41), 0, 0, 1, 0)
	if r.colors.Len() != 63 || r.heights.Len() != 63 {
		t.Errorf("after fill: %d color, %d height cached, want 63", r.colors.Len(), r.heights.Len())
	}
	if live := dev.LiveTextures(); live != 126 {
		t.Errorf("live textures: got %d, want 126", live)
	}

	dev.ResetDraws()
	stats = r.renderView(near, RenderOptions{})
	if stats.CacheMisses != 2 || stats.CacheHits != 126 {
		t.Errorf("cache: %d hits, %d misses, want 126 and 2", stats.CacheHits, stats.CacheMisses)
	}

	want := r.Index().Find(0, image.Pt(40, 40))
	for _, d := range dev.Draws {
		if d.Uniforms[uniTransform] != r.Index().Tile(0, want).Transform {
			continue
		}
		tex := d.Textures[unitColor]
		// Pixel (40,40) is texel (9,9) of tile (32,32) with a one texel border.
		off := (9*tex.Desc().Width + 9) * 4
		if px := tex.Data[off : off+4]; px[2] != 255 || px[0] != 0 {
			t.Errorf("refreshed texel: got %v, want blue", px)
		}
		return
	}
	t.Error("refreshed tile not drawn")
}

func TestBorderWriteInvalidatesNeighbour(t *testing.T) {
	r, _ := newRelief(t, Options{})
	r.renderView(near, RenderOptions{})

	// Column 32 is the first of tile column 1 and the right border of column 0.
	r.Fill(image.Rect(32, 100, 33, 101), 0, 1, 0, 0)
	left := r.Index().Tile(0, r.Index().Find(0, image.Pt(31, 100))).Key()
	right := r.Index().Tile(0, r.Index().Find(0, image.Pt(32, 100))).Key()
	if r.colors.Contains(left) || r.colors.Contains(right) {
		t.Error("both tiles sharing the column must be invalidated")
	}
	if r.colors.Len() != 62 {
		t.Errorf("cached: got %d, want 62", r.colors.Len())
	}
}

func TestCacheStaysWithinCapacity(t *testing.T) {
	r, dev := newRelief(t, Options{CacheCapacity: 8})
	stats := r.renderView(near, RenderOptions{})

	if len(dev.Draws) != 64 {
		t.Errorf("draws: got %d, want 64", len(dev.Draws))
	}
	if r.colors.Len() != 8 || r.heights.Len() != 8 {
		t.Errorf("cached: %d color, %d height, want 8 each", r.colors.Len(), r.heights.Len())
	}
	if stats.Evictions != 2*(64-8) {
		t.Errorf("evictions: got %d, want %d", stats.Evictions, 2*(64-8))
	}
	if live := dev.LiveTextures(); live != 16 {
		t.Errorf("live textures: got %d, want 16", live)
	}
}

func TestWireframePass(t *testing.T) {
	r, dev := newRelief(t, Options{})
	r.renderView(far, RenderOptions{Wireframe: true})

	if len(dev.Draws) != 2 {
		t.Fatalf("draws: got %d, want 2", len(dev.Draws))
	}
	fill, wire := dev.Draws[0], dev.Draws[1]
	if fill.Wireframe || !wire.Wireframe {
		t.Errorf("wireframe flags: fill %v, wire %v", fill.Wireframe, wire.Wireframe)
	}
	if wire.DepthBias != [2]float32{wireBiasFactor, wireBiasUnits} {
		t.Errorf("depth bias: got %v", wire.DepthBias)
	}
	if wire.Uniforms[uniMode] != int32(modeTint) {
		t.Errorf("wire mode: got %v", wire.Uniforms[uniMode])
	}
	top := r.Index().Levels() - 1
	if wire.Uniforms[uniTint] != levelTints[top] {
		t.Errorf("wire tint: got %v, want %v", wire.Uniforms[uniTint], levelTints[top])
	}
	if wire.Mesh != fill.Mesh {
		t.Error("wire pass must reuse the tile mesh")
	}
}

func TestStairsMesh(t *testing.T) {
	r, dev := newRelief(t, Options{})
	r.renderView(far, RenderOptions{})
	r.renderView(far, RenderOptions{Stairs: true})

	// The coarsest tile is 4x4 cells.
	if n := dev.Draws[0].Mesh.IndexCount(); n != 4*4*6 {
		t.Errorf("plain indices: got %d", n)
	}
	if n := dev.Draws[1].Mesh.IndexCount(); n != 4*4*18 {
		t.Errorf("stairs indices: got %d", n)
	}
}

func TestDebugDistTint(t *testing.T) {
	r, dev := newRelief(t, Options{})
	r.renderView(far, RenderOptions{})
	r.renderView(far, RenderOptions{DebugDist: true})

	if got := dev.Draws[0].Uniforms[uniTint]; got != [4]float32{} {
		t.Errorf("tint without debug: got %v", got)
	}
	tint := dev.Draws[1].Uniforms[uniTint].([4]float32)
	// The far tile is well below the threshold: blue dominates.
	if tint[2] <= tint[0] || tint[3] == 0 {
		t.Errorf("debug tint: got %v", tint)
	}
}

func TestHeightmapPaletteBinding(t *testing.T) {
	r, dev := newRelief(t, Options{})
	err := r.SetHeightmapPalette([]PaletteEntry{
		{Height: 255, Color: color.RGBA{255, 255, 255, 255}},
		{Height: 0, Color: color.RGBA{0, 0, 0, 255}},
	})
	if err != nil {
		t.Fatalf("SetHeightmapPalette: %v", err)
	}
	r.renderView(far, RenderOptions{Heightmap: true})

	d := dev.Draws[0]
	pal := d.Textures[unitPalette]
	if pal == nil || pal.Desc().Width != 2 || pal.Desc().Height != 1 {
		t.Fatalf("palette texture: got %+v", pal)
	}
	if d.Uniforms[uniMode] != int32(modePalette) {
		t.Errorf("mode: got %v", d.Uniforms[uniMode])
	}
	if d.Uniforms[uniHeightMax] != float32(255) || d.Uniforms[uniPaletteSpan] != float32(255) {
		t.Errorf("palette uniforms: max %v span %v", d.Uniforms[uniHeightMax], d.Uniforms[uniPaletteSpan])
	}

	// Replacing the palette frees the old texture; clearing it falls back to color.
	r.SetHeightmapPalette(nil)
	if !pal.Released {
		t.Error("old palette texture not released")
	}
	dev.ResetDraws()
	r.renderView(far, RenderOptions{Heightmap: true})
	if dev.Draws[0].Uniforms[uniMode] != int32(modeColor) {
		t.Error("heightmap without palette must draw color")
	}
}

func TestHeightModeChangeRecreatesTextures(t *testing.T) {
	r, dev := newRelief(t, Options{})
	r.Fill(image.Rect(0, 0, 256, 256), 0, 0, 0, 7)
	r.renderView(far, RenderOptions{})
	old := dev.Draws[0].Textures[unitHeight]

	r.SetHeightMode(raster.Height16)
	r.renderView(far, RenderOptions{})
	tex := dev.Draws[1].Textures[unitHeight]

	if !old.Released {
		t.Error("stale height texture not released")
	}
	if tex.Desc().Format != gpu.FormatR16 {
		t.Errorf("format: got %v, want R16", tex.Desc().Format)
	}
	// 7 widened to 16 bits, little endian.
	if tex.Data[0] != 7 || tex.Data[1] != 7 {
		t.Errorf("texel: got %v, want [7 7]", tex.Data[:2])
	}
	if dev.Draws[1].Textures[unitColor] != dev.Draws[0].Textures[unitColor] {
		t.Error("color texture should stay cached")
	}
	if got := dev.Draws[1].Uniforms[uniElevation]; got != float32(0.1*65535) {
		t.Errorf("elevation: got %v", got)
	}
}

func TestResize(t *testing.T) {
	r, dev := newRelief(t, Options{})
	r.renderView(near, RenderOptions{})
	r.Resize(image.Pt(128, 64))

	if dev.LiveTextures() != 0 {
		t.Errorf("live textures after resize: %d", dev.LiveTextures())
	}
	if dev.LiveMeshes() != 0 {
		t.Errorf("live meshes after resize: %d", dev.LiveMeshes())
	}
	if got := r.Index().Size(); got != image.Pt(128, 64) {
		t.Errorf("index size: got %v", got)
	}
	if got := r.Store().Levels(); got != r.Index().Levels() {
		t.Errorf("levels: store %d, index %d", got, r.Index().Levels())
	}

	dev.ResetDraws()
	r.renderView(far, RenderOptions{})
	if len(dev.Draws) != 1 {
		t.Errorf("draws after resize: got %d, want 1", len(dev.Draws))
	}
}

func TestResourceFailureSkipsTile(t *testing.T) {
	r, dev := newRelief(t, Options{})
	// The program exists; the two textures fit, the mesh does not.
	dev.FailAfter = 3
	stats := r.renderView(far, RenderOptions{})

	if stats.Skipped != 1 || len(dev.Draws) != 0 {
		t.Errorf("skipped %d with %d draws, want 1 and 0", stats.Skipped, len(dev.Draws))
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateFromFiles(t *testing.T) {
	dir := t.TempDir()
	colorPath := filepath.Join(dir, "color.png")
	heightPath := filepath.Join(dir, "height.png")

	rgba := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	gray := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			rgba.SetNRGBA(x, y, color.NRGBA{0, 200, 0, 255})
			gray.SetGray(x, y, color.Gray{100})
		}
	}
	writePNG(t, colorPath, rgba)
	writePNG(t, heightPath, gray)

	r, _ := newRelief(t, Options{})
	r.renderView(near, RenderOptions{})

	got := r.Update(image.Pt(8, 8), colorPath, heightPath, image.Rectangle{})
	if want := image.Rect(8, 8, 24, 24); got != want {
		t.Errorf("written: got %v, want %v", got, want)
	}
	if c := r.Store().ColorAt(0, 8, 8); c != [4]uint8{0, 200, 0, 255} {
		t.Errorf("color: got %v", c)
	}
	if h := r.Store().HeightAt(0, 23, 23); h != 100 {
		t.Errorf("height: got %d, want 100", h)
	}
	if r.colors.Contains(r.Index().Tile(0, 0).Key()) {
		t.Error("updated tile still cached")
	}

	// Sub rectangle of the source.
	got = r.Update(image.Pt(100, 100), colorPath, "", image.Rect(4, 4, 6, 10))
	if want := image.Rect(100, 100, 102, 106); got != want {
		t.Errorf("sub written: got %v, want %v", got, want)
	}
}

func TestUpdateFailureLeavesChannelUnchanged(t *testing.T) {
	dir := t.TempDir()
	heightPath := filepath.Join(dir, "height.png")
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range gray.Pix {
		gray.Pix[i] = 42
	}
	writePNG(t, heightPath, gray)

	r, _ := newRelief(t, Options{})
	r.Fill(image.Rect(0, 0, 256, 256), 1, 1, 1, 5)

	got := r.Update(image.Pt(0, 0), filepath.Join(dir, "missing.png"), heightPath, image.Rectangle{})
	if want := image.Rect(0, 0, 4, 4); got != want {
		t.Errorf("written: got %v, want %v", got, want)
	}
	if c := r.Store().ColorAt(0, 0, 0); c != [4]uint8{255, 255, 255, 255} {
		t.Errorf("color changed: %v", c)
	}
	if h := r.Store().HeightAt(0, 0, 0); h != 42 {
		t.Errorf("height: got %d, want 42", h)
	}

	if got := r.Update(image.Pt(0, 0), filepath.Join(dir, "missing.png"), "", image.Rectangle{}); !got.Empty() {
		t.Errorf("failed update wrote %v", got)
	}
}

func TestUpdateMemory(t *testing.T) {
	r, _ := newRelief(t, Options{})
	height := &raster.Source{
		Width:  2,
		Height: 2,
		Stride: 4,
		Format: raster.FormatGray16,
		Pix:    []byte{0x00, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x80},
	}
	got := r.UpdateMemory(image.Pt(254, 254), nil, height)
	if want := image.Rect(254, 254, 256, 256); got != want {
		t.Errorf("written: got %v, want %v", got, want)
	}
	// 16-bit 0x8000 stored in an 8-bit channel keeps the high byte.
	if h := r.Store().HeightAt(0, 255, 255); h != 0x80 {
		t.Errorf("height: got %#x, want 0x80", h)
	}
	if h := r.Store().HeightAt(1, 127, 127); h != 0x80 {
		t.Errorf("level 1 height: got %#x, want 0x80", h)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	r, dev := newRelief(t, Options{})
	r.SetHeightmapPalette([]PaletteEntry{{Height: 0}, {Height: 10}})
	r.renderView(near, RenderOptions{Stairs: true})
	r.Close()

	if dev.LiveTextures() != 0 || dev.LiveMeshes() != 0 {
		t.Errorf("live after Close: %d textures, %d meshes", dev.LiveTextures(), dev.LiveMeshes())
	}
	if !dev.Programs[0].Released {
		t.Error("program not released")
	}
}

func TestSurfaceZ(t *testing.T) {
	r, _ := newRelief(t, Options{})
	r.Fill(image.Rect(0, 0, 128, 256), 0, 0, 0, 100)

	tests := []struct {
		x, y float32
		want float32
	}{
		{10, 10, 10},
		{127, 0, 10},
		{127.5, 0, 5},
		{200, 50, 0},
	}
	for _, tt := range tests {
		if got := r.SurfaceZ(tt.x, tt.y); stdmath.Abs(float64(got-tt.want)) > 1e-3 {
			t.Errorf("SurfaceZ(%v, %v): got %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestHeightModeRoundTripDropsUnfetchedTextures(t *testing.T) {
	dev := gputest.NewDevice()
	r, err := New(dev, image.Pt(256, 256), raster.Height16, Options{TileSize: 32, ElevationScale: 0.1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Fill(image.Rect(0, 0, 256, 256), 0, 0, 0, 1234)
	r.renderView(far, RenderOptions{})
	first := dev.Draws[0].Textures[unitHeight]

	// The coarse tile is not fetched while heights are 8-bit.
	r.SetHeightMode(raster.Height8)
	r.renderView(near, RenderOptions{})
	r.SetHeightMode(raster.Height16)
	dev.ResetDraws()
	r.renderView(far, RenderOptions{})

	if !first.Released {
		t.Error("height texture from before the mode change still cached")
	}
	tex := dev.Draws[0].Textures[unitHeight]
	top := r.Index().Levels() - 1
	want := r.Store().HeightAt(top, 0, 0)
	if want != 1028 {
		t.Fatalf("store sample: got %d, want 1028", want)
	}
	if got := binary.LittleEndian.Uint16(tex.Data); got != want {
		t.Errorf("drawn texel: got %d, want %d", got, want)
	}
}

func TestSurfaceZEmptyImage(t *testing.T) {
	r, err := New(gputest.NewDevice(), image.Point{}, raster.Height8, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := r.SurfaceZ(3, 4); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}
