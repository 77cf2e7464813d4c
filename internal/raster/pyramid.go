package raster

import (
	"image"

	"go.uber.org/zap"

	"github.com/Faultbox/reliefview/internal/logger"
)

// Pyramid is a mipmap chain of levels sharing one pixel format.
type Pyramid struct {
	Format Format
	Levels []*Level
}

// LevelCount returns how many levels an image of the given size derives:
// sizes halve until a dimension would reach zero or MaxLODLevel is hit.
func LevelCount(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	n := 1
	for n <= MaxLODLevel {
		width /= 2
		height /= 2
		if width == 0 || height == 0 {
			break
		}
		n++
	}
	return n
}

// NewPyramid allocates a zeroed pyramid. A zero level 0 derives zero
// coarser levels, so no downsampling pass is needed.
func NewPyramid(width, height int, format Format) *Pyramid {
	p := &Pyramid{Format: format}
	n := LevelCount(width, height)
	for i := 0; i < n; i++ {
		p.Levels = append(p.Levels, NewLevel(width, height, format))
		width /= 2
		height /= 2
	}
	return p
}

// Level returns level i.
func (p *Pyramid) Level(i int) *Level {
	return p.Levels[i]
}

// Regenerate rebuilds every coarser level from level 0.
func (p *Pyramid) Regenerate() {
	for i := 1; i < len(p.Levels); i++ {
		dst := p.Levels[i]
		downsample(p.Levels[i-1], dst, dst.Bounds())
	}
}

// Propagate re-derives the coarser levels below a level-0 write of r.
// The returned slice holds the updated rectangle per level, starting with r
// itself. Each step widens the source rectangle to even coordinates; when
// that widened rectangle falls outside the source level the walk stops and
// the remaining levels keep their previous content.
func (p *Pyramid) Propagate(r image.Rectangle) []image.Rectangle {
	if r.Empty() || len(p.Levels) == 0 {
		return nil
	}
	rects := []image.Rectangle{r}
	cur := r
	for i := 1; i < len(p.Levels); i++ {
		src := p.Levels[i-1]
		sr := image.Rect(cur.Min.X&^1, cur.Min.Y&^1, (cur.Max.X+1)&^1, (cur.Max.Y+1)&^1)
		if sr.Max.X > src.Width || sr.Max.Y > src.Height {
			logger.Debug("mip propagation stopped at level bounds",
				zap.Int("level", i),
				zap.Stringer("source", sr),
				zap.Int("width", src.Width),
				zap.Int("height", src.Height),
			)
			break
		}
		dr := image.Rect(sr.Min.X/2, sr.Min.Y/2, sr.Max.X/2, sr.Max.Y/2)
		downsample(src, p.Levels[i], dr)
		rects = append(rects, dr)
		cur = dr
	}
	return rects
}
