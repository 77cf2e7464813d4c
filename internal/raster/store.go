package raster

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"golang.org/x/sync/errgroup"
)

// Damage lists, per pyramid level, the rectangle a write recomputed.
// Index i is level i in level-i pixel coordinates. A nil slice means the
// channel was not touched.
type Damage struct {
	Color  []image.Rectangle
	Height []image.Rectangle
}

// Empty reports whether neither channel changed.
func (d Damage) Empty() bool {
	return len(d.Color) == 0 && len(d.Height) == 0
}

// Loader produces the source for one channel of an update. It runs on its
// own goroutine, so decoding happens in parallel with the other channel.
type Loader func() (*Source, error)

// Store owns the color and height pyramids.
type Store struct {
	mode   HeightMode
	size   image.Point
	color  *Pyramid
	height *Pyramid
}

// NewStore allocates zeroed pyramids for an image of the given size.
func NewStore(size image.Point, mode HeightMode) *Store {
	s := &Store{mode: mode}
	s.Resize(size)
	return s
}

// Resize reallocates both pyramids. Existing content is discarded.
func (s *Store) Resize(size image.Point) {
	if size.X < 0 {
		size.X = 0
	}
	if size.Y < 0 {
		size.Y = 0
	}
	s.size = size
	s.color = NewPyramid(size.X, size.Y, FormatRGBA8)
	s.height = NewPyramid(size.X, size.Y, s.mode.Format())
}

// SetMode switches the height bit depth. Existing samples are converted
// (16 to 8 bits keeps the high byte, 8 to 16 replicates it) and every level
// is reported as damaged.
func (s *Store) SetMode(mode HeightMode) Damage {
	if mode == s.mode {
		return Damage{}
	}
	old := s.height
	s.mode = mode
	s.height = NewPyramid(s.size.X, s.size.Y, mode.Format())
	if len(old.Levels) == 0 {
		return Damage{}
	}

	l0 := old.Level(0)
	s.height.Level(0).copyFrom(s.Bounds(), &Source{
		Width:  l0.Width,
		Height: l0.Height,
		Stride: l0.Stride,
		Format: l0.Format,
		Pix:    l0.Pix,
	}, image.Point{})
	s.height.Regenerate()

	rects := make([]image.Rectangle, len(s.height.Levels))
	for i, l := range s.height.Levels {
		rects[i] = l.Bounds()
	}
	return Damage{Height: rects}
}

// Size returns the level-0 image size.
func (s *Store) Size() image.Point {
	return s.size
}

// Bounds returns the level-0 image rectangle.
func (s *Store) Bounds() image.Rectangle {
	return image.Rectangle{Max: s.size}
}

// Mode returns the height bit depth.
func (s *Store) Mode() HeightMode {
	return s.mode
}

// Levels returns the number of pyramid levels.
func (s *Store) Levels() int {
	return len(s.color.Levels)
}

// Color returns the color pyramid.
func (s *Store) Color() *Pyramid {
	return s.color
}

// Height returns the height pyramid.
func (s *Store) Height() *Pyramid {
	return s.height
}

// ColorAt returns the RGBA pixel at (x, y) on the given level.
func (s *Store) ColorAt(level, x, y int) [4]uint8 {
	p := s.color.Level(level).At(x, y)
	return [4]uint8{p[0], p[1], p[2], p[3]}
}

// HeightAt returns the height sample at (x, y) on the given level.
func (s *Store) HeightAt(level, x, y int) uint16 {
	return s.height.Level(level).Gray(x, y)
}

// Fill writes a constant color (channels in [0,1]) and height into r on
// level 0, clipped to the image, and propagates the change. It returns the
// rectangle actually written.
func (s *Store) Fill(r image.Rectangle, red, green, blue, height float32) (image.Rectangle, Damage) {
	r = r.Intersect(s.Bounds())
	if r.Empty() {
		return image.Rectangle{}, Damage{}
	}

	colorPx := []byte{unorm8(red), unorm8(green), unorm8(blue), 0xff}
	heightPx := make([]byte, s.mode.Format().BytesPerPixel())
	h := clampFloat(float32(math.Round(float64(height))), 0, s.mode.MaxValue())
	if s.mode == Height16 {
		binary.LittleEndian.PutUint16(heightPx, uint16(h))
	} else {
		heightPx[0] = uint8(h)
	}

	s.color.Level(0).fill(r, colorPx)
	s.height.Level(0).fill(r, heightPx)

	return r, Damage{
		Color:  s.color.Propagate(r),
		Height: s.height.Propagate(r),
	}
}

// Update copies the sub rectangle of the color and height sources into
// level 0 with its top-left corner at origin, converting formats, and
// propagates both pyramids. A zero sub selects each whole source. A nil
// loader leaves that channel alone.
//
// The two channels load, copy and propagate on separate goroutines and are
// joined before Update returns. A channel whose loader fails is left
// unchanged; the other channel still applies. The first failure is
// returned alongside the damage of whatever did apply.
func (s *Store) Update(origin image.Point, sub image.Rectangle, color, height Loader) (image.Rectangle, Damage, error) {
	var (
		g                    errgroup.Group
		colorRect, heightRect image.Rectangle
		damage               Damage
	)

	if color != nil {
		g.Go(func() error {
			var err error
			colorRect, damage.Color, err = s.apply(s.color, origin, sub, color)
			if err != nil {
				return fmt.Errorf("color: %w", err)
			}
			return nil
		})
	}
	if height != nil {
		g.Go(func() error {
			var err error
			heightRect, damage.Height, err = s.apply(s.height, origin, sub, height)
			if err != nil {
				return fmt.Errorf("height: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	return colorRect.Union(heightRect), damage, err
}

// apply runs one half of Update against a single pyramid.
func (s *Store) apply(p *Pyramid, origin image.Point, sub image.Rectangle, load Loader) (image.Rectangle, []image.Rectangle, error) {
	src, err := load()
	if err != nil {
		return image.Rectangle{}, nil, err
	}
	if src == nil {
		return image.Rectangle{}, nil, nil
	}
	if err := src.Validate(); err != nil {
		return image.Rectangle{}, nil, err
	}

	dr, sp := placement(s.Bounds(), origin, sub, src.Bounds())
	if dr.Empty() {
		return image.Rectangle{}, nil, nil
	}
	p.Level(0).copyFrom(dr, src, sp)
	return dr, p.Propagate(dr), nil
}

// placement clips a source sub rectangle placed at origin against the
// destination bounds. It returns the destination rectangle and the source
// point that maps to its top-left corner.
func placement(bounds image.Rectangle, origin image.Point, sub, srcBounds image.Rectangle) (image.Rectangle, image.Point) {
	if sub == (image.Rectangle{}) {
		sub = srcBounds
	}
	sub = sub.Intersect(srcBounds)
	if sub.Empty() {
		return image.Rectangle{}, image.Point{}
	}
	dr := image.Rectangle{Min: origin, Max: origin.Add(sub.Size())}.Intersect(bounds)
	if dr.Empty() {
		return image.Rectangle{}, image.Point{}
	}
	return dr, sub.Min.Add(dr.Min.Sub(origin))
}

func unorm8(v float32) uint8 {
	return uint8(clampFloat(float32(math.Round(float64(v)*255)), 0, 255))
}

func clampFloat(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
