// Package relief renders a large color and height raster as a navigable 3D
// surface. It ties the raster pyramids, the tile quadtree, the texture tile
// caches and the LOD selector together behind one object owned by the
// graphics thread.
package relief

import (
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
	"github.com/Faultbox/reliefview/internal/engine/relief/shaders"
	"github.com/Faultbox/reliefview/internal/engine/terrain"
	"github.com/Faultbox/reliefview/internal/engine/texture"
	"github.com/Faultbox/reliefview/internal/lod"
	"github.com/Faultbox/reliefview/internal/logger"
	"github.com/Faultbox/reliefview/internal/quadtree"
	"github.com/Faultbox/reliefview/internal/raster"
	"github.com/Faultbox/reliefview/internal/tilecache"
)

// DefaultTileSize is the physical tile size in grid cells.
const DefaultTileSize = 128

// Border is the texel border around every tile texture.
const Border = 1

// Options tune a Relief. Zero fields take their defaults.
type Options struct {
	TileSize       int
	CacheCapacity  int
	ElevationScale float32
	Threshold      float32
}

func (o Options) withDefaults() Options {
	if o.TileSize <= 0 {
		o.TileSize = DefaultTileSize
	}
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = tilecache.DefaultCapacity
	}
	if o.ElevationScale == 0 {
		o.ElevationScale = 1
	}
	if o.Threshold <= 0 {
		o.Threshold = lod.DefaultThreshold
	}
	return o
}

type textureCache = tilecache.LRU[quadtree.Key, gpu.Texture]

// Relief is the streaming relief renderer. It is not safe for concurrent
// use; Update parallelizes internally and returns only when done.
type Relief struct {
	dev  gpu.Device
	opts Options
	log  *zap.Logger

	store  *raster.Store
	meshes *quadtree.MeshRegistry
	index  *quadtree.Index

	colors  *textureCache
	heights *textureCache

	selector lod.Selector
	program  gpu.Program

	palette    *Palette
	paletteTex gpu.Texture
}

// New creates a renderer for an image of the given size and height depth.
// The raster starts zeroed.
func New(dev gpu.Device, size image.Point, mode raster.HeightMode, opts Options) (*Relief, error) {
	program, err := dev.NewProgram(shaders.TileVertexShader, shaders.TileFragmentShader)
	if err != nil {
		return nil, fmt.Errorf("tile shader: %w", err)
	}

	opts = opts.withDefaults()
	release := func(_ quadtree.Key, t gpu.Texture) { t.Release() }
	r := &Relief{
		dev:     dev,
		opts:    opts,
		log:     logger.Named("relief"),
		store:   raster.NewStore(size, mode),
		meshes:  quadtree.NewMeshRegistry(dev),
		colors:  tilecache.New(opts.CacheCapacity, release),
		heights: tilecache.New(opts.CacheCapacity, release),
		program: program,
	}
	r.buildIndex()
	return r, nil
}

func (r *Relief) buildIndex() {
	size := r.store.Size()
	r.index = quadtree.Build(size, r.store.Levels(), r.opts.TileSize, r.meshes)
	r.log.Info("relief image ready",
		zap.Int("width", size.X),
		zap.Int("height", size.Y),
		zap.Int("levels", r.index.Levels()),
		zap.Int("meshes", r.meshes.Len()),
	)
}

// Resize reallocates the raster for a new size. Content is cleared, the
// tile index is rebuilt and every cached texture is dropped.
func (r *Relief) Resize(size image.Point) {
	r.colors.Clear()
	r.heights.Clear()
	r.index.Close()
	r.store.Resize(size)
	r.buildIndex()
}

// Size returns the image size.
func (r *Relief) Size() image.Point {
	return r.store.Size()
}

// Store exposes the raster pyramids for reading.
func (r *Relief) Store() *raster.Store {
	return r.store
}

// Index exposes the tile forest for reading.
func (r *Relief) Index() *quadtree.Index {
	return r.index
}

// SurfaceZ returns the world z of the full-resolution surface at image
// position (x, y), interpolated between height samples.
func (r *Relief) SurfaceZ(x, y float32) float32 {
	if r.store.Levels() == 0 {
		return 0
	}
	h := terrain.SampleHeight(r.store.Height().Level(0), x, y)
	return h / r.store.Mode().MaxValue() * r.elevation()
}

// SetHeightMode switches the height bit depth. The stored heights are
// converted, so every cached height texture is dropped.
func (r *Relief) SetHeightMode(mode raster.HeightMode) {
	r.invalidate(r.store.SetMode(mode))
}

// Fill writes a constant color (channels in [0,1]) and height into rect,
// clipped to the image, and returns the rectangle written.
func (r *Relief) Fill(rect image.Rectangle, red, green, blue, height float32) image.Rectangle {
	written, damage := r.store.Fill(rect, red, green, blue, height)
	r.invalidate(damage)
	return written
}

// Update loads the color and height images at the given paths and copies
// their sub rectangle into the image with its corner at origin. An empty
// path skips that channel; a zero sub takes the whole image. Load failures
// are logged and leave the channel unchanged. The returned rectangle covers
// what was written.
func (r *Relief) Update(origin image.Point, colorPath, heightPath string, sub image.Rectangle) image.Rectangle {
	return r.update(origin, sub, fileLoader(colorPath), fileLoader(heightPath))
}

// UpdateMemory is Update for already decoded sources. A nil source skips
// its channel.
func (r *Relief) UpdateMemory(origin image.Point, color, height *raster.Source) image.Rectangle {
	return r.update(origin, image.Rectangle{}, memoryLoader(color), memoryLoader(height))
}

func (r *Relief) update(origin image.Point, sub image.Rectangle, color, height raster.Loader) image.Rectangle {
	written, damage, err := r.store.Update(origin, sub, color, height)
	if err != nil {
		r.log.Error("image update failed", zap.Stringer("origin", origin), zap.Error(err))
	}
	r.invalidate(damage)
	return written
}

func fileLoader(path string) raster.Loader {
	if path == "" {
		return nil
	}
	return func() (*raster.Source, error) {
		return texture.DecodeFile(path)
	}
}

func memoryLoader(src *raster.Source) raster.Loader {
	if src == nil {
		return nil
	}
	return func() (*raster.Source, error) {
		return src, nil
	}
}

// invalidate erases the cache entries whose texels, border included,
// overlap the damaged rectangles.
func (r *Relief) invalidate(d raster.Damage) {
	n := eraseDamaged(r.index, r.colors, d.Color) + eraseDamaged(r.index, r.heights, d.Height)
	if n > 0 {
		r.log.Debug("tile textures invalidated", zap.Int("count", n))
	}
}

func eraseDamaged(ix *quadtree.Index, cache *textureCache, rects []image.Rectangle) int {
	n := 0
	for level, rect := range rects {
		if level >= ix.Levels() {
			break
		}
		for _, i := range ix.Overlapping(level, rect, Border) {
			if cache.Erase(ix.Tile(level, i).Key()) {
				n++
			}
		}
	}
	return n
}

// SetHeightmapPalette bakes the breakpoints into the palette texture used
// by heightmap rendering. An empty list removes the palette.
func (r *Relief) SetHeightmapPalette(entries []PaletteEntry) error {
	p := BakePalette(entries)
	var tex gpu.Texture
	if p != nil {
		var err error
		if tex, err = p.upload(r.dev); err != nil {
			return err
		}
	}
	if r.paletteTex != nil {
		r.paletteTex.Release()
	}
	r.palette = p
	r.paletteTex = tex
	return nil
}

// Palette returns the baked palette or nil.
func (r *Relief) Palette() *Palette {
	return r.palette
}

// Close releases every GPU resource.
func (r *Relief) Close() {
	r.colors.Clear()
	r.heights.Clear()
	r.index.Close()
	if r.paletteTex != nil {
		r.paletteTex.Release()
		r.paletteTex = nil
	}
	r.program.Release()
}
