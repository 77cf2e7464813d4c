// Package lod picks, once per frame, the set of quadtree tiles to draw.
//
// The walk starts from every tile of the coarsest level and refines a tile
// into its children while its projected size on screen exceeds its texel
// size by more than the threshold. Only tile geometry is consulted; the
// raster and the texture cache are never touched.
package lod

import (
	"cmp"
	"image"
	stdmath "math"
	"slices"

	"github.com/Faultbox/reliefview/internal/quadtree"
	"github.com/Faultbox/reliefview/pkg/math"
)

const (
	// DefaultThreshold is the screen-to-texel ratio above which a tile is
	// refined. The comparison is strict.
	DefaultThreshold = 1.7

	// NearPlaneFactor replaces the projected size of a tile that crosses
	// the near plane, expressed as a multiple of its texel size.
	NearPlaneFactor = 32
)

// Visibility is the outcome of the frustum test.
type Visibility int

const (
	Outside Visibility = iota
	Inside
	Straddling
)

func (v Visibility) String() string {
	switch v {
	case Inside:
		return "inside"
	case Straddling:
		return "straddling"
	}
	return "outside"
}

// Frustum plane bits, in the order the clip-space tests are listed.
const (
	planeLeft = 1 << iota
	planeRight
	planeBottom
	planeTop
	planeNear
	planeFar

	allPlanes = 1<<6 - 1
)

// Params are the per-frame inputs of Select.
type Params struct {
	// Clip is projection * camera: image space to clip space.
	Clip math.Mat4
	// Viewport maps normalized device coordinates to window pixels.
	Viewport math.Mat4
	// Elevation is the z of the tile bounding boxes' top face.
	Elevation float32
	// Threshold overrides DefaultThreshold when positive.
	Threshold float32
}

// Selected is one tile of the visible set.
type Selected struct {
	Level int
	Index int // into quadtree.Index.Level(Level)
	// Ratio is the screen-space error display_area / image_area that
	// stopped the refinement.
	Ratio float32
}

type candidate struct {
	level int
	index int
}

// Selector holds scratch buffers reused across frames.
type Selector struct {
	stack   []candidate
	visible []Selected
}

// Select walks ix and returns the visible tiles ordered coarsest first.
// The returned slice is reused by the next call.
func (s *Selector) Select(ix *quadtree.Index, p Params) []Selected {
	s.stack = s.stack[:0]
	s.visible = s.visible[:0]
	if ix.Levels() == 0 {
		return s.visible
	}

	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	top := ix.Levels() - 1
	for i := range ix.Level(top) {
		s.stack = append(s.stack, candidate{level: top, index: i})
	}

	for len(s.stack) > 0 {
		c := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		tile := ix.Tile(c.level, c.index)

		clip := corners(p.Clip, tile.Rect.Min, tile.Rect.Max, p.Elevation)
		vis, mask := classify(clip)
		if vis == Outside {
			continue
		}

		d := ratio(tile, clip, mask, p.Viewport)
		if d > threshold && tile.Level > 0 && tile.HasChildren() {
			for _, child := range tile.Children {
				if child != quadtree.NoChild {
					s.stack = append(s.stack, candidate{level: c.level - 1, index: int(child)})
				}
			}
			continue
		}
		s.visible = append(s.visible, Selected{Level: c.level, Index: c.index, Ratio: d})
	}

	slices.SortStableFunc(s.visible, func(a, b Selected) int {
		if a.Level != b.Level {
			return cmp.Compare(b.Level, a.Level)
		}
		return cmp.Compare(a.Index, b.Index)
	})
	return s.visible
}

// corners returns the clip-space positions of a tile's bounding box. The
// first four are the bottom face (z = 0) in the order top-left, top-right,
// bottom-left, bottom-right; the last four are the same points at z =
// elevation.
func corners(clip math.Mat4, minP, maxP image.Point, elevation float32) [8]math.Vec4 {
	x0, y0 := float32(minP.X), float32(minP.Y)
	x1, y1 := float32(maxP.X), float32(maxP.Y)
	var out [8]math.Vec4
	for i, xy := range [4][2]float32{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}} {
		out[i] = clip.MulVec4(math.Vec4{xy[0], xy[1], 0, 1})
		out[i+4] = clip.MulVec4(math.Vec4{xy[0], xy[1], elevation, 1})
	}
	return out
}

// planes returns the bit set of frustum half-spaces v lies in.
func planes(v math.Vec4) int {
	x, y, z, w := v[0], v[1], v[2], v[3]
	m := 0
	if -w < x {
		m |= planeLeft
	}
	if x < w {
		m |= planeRight
	}
	if -w < y {
		m |= planeBottom
	}
	if y < w {
		m |= planeTop
	}
	if -w < z {
		m |= planeNear
	}
	if z < w {
		m |= planeFar
	}
	return m
}

// classify tests the eight clip-space corners against the frustum. A box
// with one corner inside is Inside; a box with every corner outside the
// same plane is Outside; anything else is Straddling and treated as
// visible. The returned mask has a bit set for each plane that at least
// one corner fails.
func classify(c [8]math.Vec4) (Visibility, int) {
	var satisfied, failed int
	inside := false
	for _, v := range c {
		m := planes(v)
		if m == allPlanes {
			inside = true
		}
		satisfied |= m
		failed |= allPlanes &^ m
	}
	switch {
	case inside:
		return Inside, failed
	case satisfied != allPlanes:
		return Outside, failed
	}
	return Straddling, failed
}

// ratio computes the screen-space error of a visible tile.
func ratio(t *quadtree.Tile, clip [8]math.Vec4, failed int, viewport math.Mat4) float32 {
	texels := float32(max(t.Size.X, t.Size.Y))
	if texels <= 0 {
		return 0
	}
	if failed&planeNear != 0 {
		return NearPlaneFactor
	}

	var px [4][2]float32
	for i := 0; i < 4; i++ {
		v := clip[i]
		ndc := math.Vec4{v[0] / v[3], v[1] / v[3], v[2] / v[3], 1}
		w := viewport.MulVec4(ndc)
		px[i] = [2]float32{w[0], w[1]}
	}

	display := float32(0)
	for _, e := range [4][2]int{{0, 1}, {1, 3}, {3, 2}, {2, 0}} {
		dx := px[e[1]][0] - px[e[0]][0]
		dy := px[e[1]][1] - px[e[0]][1]
		display = max(display, float32(stdmath.Sqrt(float64(dx*dx+dy*dy))))
	}
	return display / texels
}
