// Package quadtree partitions every pyramid level of the relief image into
// fixed-size tiles and links each tile to the four finer tiles covering the
// same footprint.
//
// Tiles keep a constant physical size (grid cells) on every level while the
// image area they cover doubles per level. Levels are stored as flat arrays
// and children are referenced by index into the next finer level, so the
// forest has no pointers between tiles.
package quadtree

import (
	"image"

	"github.com/Faultbox/reliefview/pkg/math"
)

// NoChild marks an absent child slot.
const NoChild = -1

// Tile is one node of the forest. Tiles never change after Build.
type Tile struct {
	Rect     image.Rectangle // footprint in level-0 pixels
	Level    int
	Col, Row int
	Size     image.Point // physical size in level pixels (= grid cells)
	Children [4]int32    // indices into the level below, NoChild if absent

	// Transform maps tile grid coordinates to level-0 image coordinates;
	// z passes through unchanged.
	Transform math.Mat4

	mesh *SharedMesh
}

// Key returns the cache key of the tile.
func (t *Tile) Key() Key {
	return MakeKey(t.Level, t.Rect.Min)
}

// Mesh returns the shared geometry for the tile's physical size.
func (t *Tile) Mesh() *SharedMesh {
	return t.mesh
}

// HasChildren reports whether any child slot is filled.
func (t *Tile) HasChildren() bool {
	for _, c := range t.Children {
		if c != NoChild {
			return true
		}
	}
	return false
}

// LevelOrigin returns the tile origin in level pixels.
func (t *Tile) LevelOrigin() image.Point {
	return image.Pt(t.Rect.Min.X>>t.Level, t.Rect.Min.Y>>t.Level)
}

// Index is the tile forest of one image size.
type Index struct {
	size     image.Point
	tileSize int
	levels   [][]Tile
	cols     []int
	rows     []int
	meshes   *MeshRegistry
}

// Build creates the forest for an image of the given size with levels
// pyramid levels. Every tile takes a reference on the shared mesh of its
// physical size.
func Build(size image.Point, levels, tileSize int, meshes *MeshRegistry) *Index {
	ix := &Index{
		size:     size,
		tileSize: tileSize,
		meshes:   meshes,
	}
	if size.X <= 0 || size.Y <= 0 {
		return ix
	}

	for l := 0; l < levels; l++ {
		span := tileSize << l
		cols := (size.X + span - 1) / span
		rows := (size.Y + span - 1) / span
		ix.cols = append(ix.cols, cols)
		ix.rows = append(ix.rows, rows)

		tiles := make([]Tile, 0, cols*rows)
		scale := float32(int(1) << l)
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				r := image.Rect(col*span, row*span, (col+1)*span, (row+1)*span).
					Intersect(image.Rectangle{Max: size})
				phys := image.Pt(ceilShift(r.Dx(), l), ceilShift(r.Dy(), l))

				t := Tile{
					Rect:     r,
					Level:    l,
					Col:      col,
					Row:      row,
					Size:     phys,
					Children: [4]int32{NoChild, NoChild, NoChild, NoChild},
					Transform: math.Translate(float32(r.Min.X), float32(r.Min.Y), 0).
						Mul(math.Scale(scale, scale, 1)),
					mesh: meshes.Acquire(phys),
				}
				if l > 0 {
					for i, d := range [4]image.Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
						t.Children[i] = int32(ix.index(l-1, 2*col+d.X, 2*row+d.Y))
					}
				}
				tiles = append(tiles, t)
			}
		}
		ix.levels = append(ix.levels, tiles)
	}
	return ix
}

// ceilShift returns ceil(v / 2^s).
func ceilShift(v, s int) int {
	return (v + (1 << s) - 1) >> s
}

// index returns the arena index of (col, row) on level l or NoChild.
func (ix *Index) index(l, col, row int) int {
	if col < 0 || row < 0 || col >= ix.cols[l] || row >= ix.rows[l] {
		return NoChild
	}
	return row*ix.cols[l] + col
}

// Close releases every mesh reference. The index is empty afterwards.
func (ix *Index) Close() {
	for l := range ix.levels {
		for i := range ix.levels[l] {
			ix.meshes.Release(ix.levels[l][i].mesh)
			ix.levels[l][i].mesh = nil
		}
	}
	ix.levels = nil
	ix.cols = nil
	ix.rows = nil
}

// Size returns the level-0 image size.
func (ix *Index) Size() image.Point {
	return ix.size
}

// TileSize returns the physical tile size.
func (ix *Index) TileSize() int {
	return ix.tileSize
}

// Levels returns the number of levels.
func (ix *Index) Levels() int {
	return len(ix.levels)
}

// Level returns the tiles of level l in row-major order.
func (ix *Index) Level(l int) []Tile {
	return ix.levels[l]
}

// Tile returns tile i of level l.
func (ix *Index) Tile(l, i int) *Tile {
	return &ix.levels[l][i]
}

// Grid returns the column and row count of level l.
func (ix *Index) Grid(l int) (cols, rows int) {
	return ix.cols[l], ix.rows[l]
}

// At returns the index of the tile at (col, row) on level l, or NoChild.
func (ix *Index) At(l, col, row int) int {
	return ix.index(l, col, row)
}

// Find returns the index of the level-l tile containing level-0 point p,
// or NoChild if p is outside the image.
func (ix *Index) Find(l int, p image.Point) int {
	if !p.In(image.Rectangle{Max: ix.size}) {
		return NoChild
	}
	span := ix.tileSize << l
	return ix.index(l, p.X/span, p.Y/span)
}

// Overlapping returns the indices of level-l tiles whose texels, including
// a border of border pixels, intersect r given in level-l pixels.
func (ix *Index) Overlapping(l int, r image.Rectangle, border int) []int {
	if r.Empty() || l >= len(ix.levels) {
		return nil
	}
	r = r.Inset(-border)
	t := ix.tileSize
	c0 := max(floorDiv(r.Min.X, t), 0)
	r0 := max(floorDiv(r.Min.Y, t), 0)
	c1 := min(floorDiv(r.Max.X-1, t)+1, ix.cols[l])
	r1 := min(floorDiv(r.Max.Y-1, t)+1, ix.rows[l])

	var out []int
	for row := r0; row < r1; row++ {
		for col := c0; col < c1; col++ {
			out = append(out, row*ix.cols[l]+col)
		}
	}
	return out
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
