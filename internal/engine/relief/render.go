package relief

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
	"github.com/Faultbox/reliefview/internal/engine/terrain"
	"github.com/Faultbox/reliefview/internal/lod"
	"github.com/Faultbox/reliefview/internal/quadtree"
	"github.com/Faultbox/reliefview/internal/raster"
	"github.com/Faultbox/reliefview/pkg/math"
)

// Texture units.
const (
	unitColor = iota
	unitHeight
	unitPalette
)

// Fragment shading modes.
const (
	modeColor = iota
	modePalette
	modeTint
)

// Uniform names shared with the tile shaders.
const (
	uniClip        = "uClip"
	uniTransform   = "uTransform"
	uniElevation   = "uElevation"
	uniBorder      = "uBorder"
	uniTexSize     = "uTexSize"
	uniHeight      = "uHeight"
	uniColor       = "uColor"
	uniPalette     = "uPalette"
	uniMode        = "uMode"
	uniHeightMax   = "uHeightMax"
	uniPaletteMin  = "uPaletteMin"
	uniPaletteSpan = "uPaletteSpan"
	uniPaletteSize = "uPaletteSize"
	uniTint        = "uTint"
)

// levelTints color wireframe edges by pyramid level.
var levelTints = [raster.MaxLODLevel + 1][4]float32{
	{1, 1, 1, 1},
	{1, 0.2, 0.2, 1},
	{0.2, 1, 0.2, 1},
	{0.2, 0.4, 1, 1},
	{1, 1, 0.2, 1},
	{1, 0.2, 1, 1},
	{0.2, 1, 1, 1},
}

// Wireframe depth bias, pulling edges in front of the filled surface.
const (
	wireBiasFactor = -1
	wireBiasUnits  = -1
)

// RenderOptions select the drawing mode of a frame.
type RenderOptions struct {
	Wireframe bool // second pass with level-tinted edges
	Stairs    bool // stepped cells instead of a continuous surface
	DebugDist bool // tint tiles by their screen-space error
	Heightmap bool // color by height palette
}

// FrameStats describe one rendered frame.
type FrameStats struct {
	Visible     int
	PerLevel    []int
	CacheHits   uint64
	CacheMisses uint64
	Evictions   uint64
	Skipped     int // tiles dropped because a resource failed
}

// Render selects the visible tiles for the camera and draws them coarse to
// fine. viewport maps normalized device coordinates to window pixels. The
// image must have a nonzero size.
func (r *Relief) Render(camera, projection, viewport math.Mat4, opts RenderOptions) FrameStats {
	clip := projection.Mul(camera)
	selected := r.selector.Select(r.index, lod.Params{
		Clip:      clip,
		Viewport:  viewport,
		Elevation: r.elevation(),
		Threshold: r.opts.Threshold,
	})

	stats := FrameStats{
		Visible:  len(selected),
		PerLevel: make([]int, r.index.Levels()),
	}
	r.colors.ResetStats()
	r.heights.ResetStats()

	kind := terrain.KindPlain
	if opts.Stairs {
		kind = terrain.KindStairs
	}

	r.program.Use()
	r.program.SetMat4(uniClip, clip)
	r.program.SetFloat(uniElevation, r.elevation())
	r.program.SetInt(uniBorder, Border)
	r.program.SetInt(uniColor, unitColor)
	r.program.SetInt(uniHeight, unitHeight)
	r.program.SetInt(uniPalette, unitPalette)

	mode := int32(modeColor)
	if opts.Heightmap && r.palette != nil {
		mode = modePalette
		r.program.SetFloat(uniHeightMax, r.store.Mode().MaxValue())
		r.program.SetFloat(uniPaletteMin, float32(r.palette.Min))
		r.program.SetFloat(uniPaletteSpan, float32(max(r.palette.Span(), 1)))
		r.program.SetFloat(uniPaletteSize, float32(len(r.palette.Texels)))
		r.dev.BindTexture(unitPalette, r.paletteTex)
	}
	r.program.SetInt(uniMode, mode)

	drawn := make([]*quadtree.Tile, 0, len(selected))
	for _, sel := range selected {
		tile := r.index.Tile(sel.Level, sel.Index)
		item, err := r.prepare(tile, kind)
		if err != nil {
			stats.Skipped++
			r.log.Warn("tile skipped", zap.Stringer("tile", tile.Key()), zap.Error(err))
			continue
		}
		stats.PerLevel[sel.Level]++

		tint := [4]float32{}
		if opts.DebugDist {
			tint = distTint(sel.Ratio / r.opts.Threshold)
		}
		r.program.SetVec4(uniTint, tint)
		r.draw(item, true)
		drawn = append(drawn, tile)
	}

	if opts.Wireframe && len(drawn) > 0 {
		r.program.SetInt(uniMode, modeTint)
		r.dev.SetWireframe(true)
		r.dev.SetDepthBias(wireBiasFactor, wireBiasUnits)
		// Textures are fetched again: a small cache may have evicted
		// them while later tiles were drawn.
		for _, tile := range drawn {
			item, err := r.prepare(tile, kind)
			if err != nil {
				continue
			}
			r.program.SetVec4(uniTint, levelTints[tile.Level%len(levelTints)])
			r.draw(item, false)
		}
		r.dev.SetDepthBias(0, 0)
		r.dev.SetWireframe(false)
	}

	for _, c := range []*textureCache{r.colors, r.heights} {
		s := c.Stats()
		stats.CacheHits += s.Hits
		stats.CacheMisses += s.Misses
		stats.Evictions += s.Evictions
	}
	if stats.Evictions > 0 {
		r.log.Debug("tile textures evicted", zap.Uint64("count", stats.Evictions))
	}
	return stats
}

// drawItem holds what one tile draw binds.
type drawItem struct {
	tile   *quadtree.Tile
	color  gpu.Texture
	height gpu.Texture
	mesh   gpu.Mesh
}

func (r *Relief) prepare(tile *quadtree.Tile, kind terrain.Kind) (drawItem, error) {
	color, err := r.tileTexture(r.colors, r.store.Color(), tile, gpu.FilterLinear)
	if err != nil {
		return drawItem{}, fmt.Errorf("color: %w", err)
	}
	height, err := r.tileTexture(r.heights, r.store.Height(), tile, gpu.FilterNearest)
	if err != nil {
		return drawItem{}, fmt.Errorf("height: %w", err)
	}
	mesh, err := tile.Mesh().Get(kind)
	if err != nil {
		return drawItem{}, err
	}
	return drawItem{tile: tile, color: color, height: height, mesh: mesh}, nil
}

func (r *Relief) draw(item drawItem, color bool) {
	if color {
		r.dev.BindTexture(unitColor, item.color)
	}
	r.dev.BindTexture(unitHeight, item.height)
	desc := item.height.Desc()
	r.program.SetMat4(uniTransform, item.tile.Transform)
	r.program.SetVec2(uniTexSize, float32(desc.Width), float32(desc.Height))
	r.dev.Draw(item.mesh)
}

// tileTexture returns the cached texture of tile, loading it from the
// pyramid on a miss. A hit whose format no longer matches the pyramid is
// rebuilt in place.
func (r *Relief) tileTexture(cache *textureCache, p *raster.Pyramid, tile *quadtree.Tile, filter gpu.Filter) (gpu.Texture, error) {
	key := tile.Key()
	format, err := gpuFormat(p.Format)
	if err != nil {
		return nil, err
	}
	if tex, ok := cache.Get(key); ok {
		if tex.Desc().Format == format {
			return tex, nil
		}
		r.log.Debug("tile texture format changed",
			zap.Stringer("tile", key),
			zap.Stringer("from", tex.Desc().Format),
			zap.Stringer("to", format),
		)
	}

	tex, err := loadTile(r.dev, p.Level(tile.Level), tile, format, filter)
	if err != nil {
		return nil, err
	}
	cache.Put(key, tex)
	return tex, nil
}

// loadTile samples the tile block plus border from level into a new texture.
func loadTile(dev gpu.Device, level *raster.Level, tile *quadtree.Tile, format gpu.Format, filter gpu.Filter) (gpu.Texture, error) {
	o := tile.LevelOrigin()
	w := tile.Size.X + 2*Border
	h := tile.Size.Y + 2*Border
	tex, err := dev.NewTexture(gpu.TextureDesc{Width: w, Height: h, Format: format, Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("tile %v texture: %w", tile.Key(), err)
	}
	data := level.ReadTile(o.X, o.Y, tile.Size.X, tile.Size.Y, Border)
	tex.Upload(data, 0, 0, w, h, w*format.BytesPerPixel())
	return tex, nil
}

func gpuFormat(f raster.Format) (gpu.Format, error) {
	switch f {
	case raster.FormatRGBA8:
		return gpu.FormatRGBA8, nil
	case raster.FormatGray8:
		return gpu.FormatR8, nil
	case raster.FormatGray16:
		return gpu.FormatR16, nil
	}
	return 0, fmt.Errorf("%w: %v", raster.ErrUnsupportedFormat, f)
}

// elevation is the z of a full-scale height sample.
func (r *Relief) elevation() float32 {
	return r.opts.ElevationScale * r.store.Mode().MaxValue()
}

// distTint maps a normalized screen-space error to a tint: blue well below
// the threshold, green at it, red above.
func distTint(q float32) [4]float32 {
	q = min(max(q, 0), 2)
	if q < 1 {
		return [4]float32{0, q, 1 - q, 0.5}
	}
	return [4]float32{q - 1, 2 - q, 0, 0.5}
}
