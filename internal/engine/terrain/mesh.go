package terrain

// Kind selects how cells are triangulated.
type Kind int

const (
	// KindPlain is a continuous surface, two triangles per cell.
	KindPlain Kind = iota
	// KindStairs renders every cell as a flat step with vertical walls
	// toward its +x and +y neighbours, six triangles per cell.
	KindStairs
)

func (k Kind) String() string {
	if k == KindStairs {
		return "stairs"
	}
	return "plain"
}

// Build creates the mesh of the given kind for a w x h cell grid.
func Build(kind Kind, w, h int) *Mesh {
	if kind == KindStairs {
		return BuildStairs(w, h)
	}
	return BuildGrid(w, h)
}

// BuildGrid creates a (w+1) x (h+1) vertex grid. Vertex (i, j) samples
// texel (i, j); the last row and column sample the texture border, which
// holds the neighbouring tile's pixels, so adjacent tiles meet seamlessly.
func BuildGrid(w, h int) *Mesh {
	m := &Mesh{
		Width:    w,
		Height:   h,
		Vertices: make([]Vertex, 0, (w+1)*(h+1)),
		Indices:  make([]uint32, 0, w*h*6),
	}

	for j := 0; j <= h; j++ {
		for i := 0; i <= w; i++ {
			p := [2]float32{float32(i), float32(j)}
			m.Vertices = append(m.Vertices, Vertex{Position: p, Sample: p})
		}
	}

	row := uint32(w + 1)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			tl := uint32(j)*row + uint32(i)
			tr := tl + 1
			bl := tl + row
			br := bl + 1
			m.Indices = append(m.Indices,
				tl, bl, tr,
				tr, bl, br,
			)
		}
	}
	return m
}

// Corner order of the four vertices every stairs cell owns.
const (
	cornerTL = iota
	cornerTR
	cornerBL
	cornerBR
)

// BuildStairs creates the stepped mesh. Cells cover [0,w] x [0,h]: the
// extra row and column are never drawn as tops but provide the far side of
// the walls facing the neighbouring tile.
func BuildStairs(w, h int) *Mesh {
	cols := w + 1
	rows := h + 1
	m := &Mesh{
		Width:    w,
		Height:   h,
		Vertices: make([]Vertex, 0, cols*rows*4),
		Indices:  make([]uint32, 0, w*h*18),
	}

	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			s := [2]float32{float32(i), float32(j)}
			x0, y0 := float32(i), float32(j)
			m.Vertices = append(m.Vertices,
				Vertex{Position: [2]float32{x0, y0}, Sample: s},
				Vertex{Position: [2]float32{x0 + 1, y0}, Sample: s},
				Vertex{Position: [2]float32{x0, y0 + 1}, Sample: s},
				Vertex{Position: [2]float32{x0 + 1, y0 + 1}, Sample: s},
			)
		}
	}

	cell := func(i, j int) uint32 { return uint32((j*cols + i) * 4) }

	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			c := cell(i, j)
			right := cell(i+1, j)
			below := cell(i, j+1)
			m.Indices = append(m.Indices,
				// Top
				c+cornerTL, c+cornerBL, c+cornerTR,
				c+cornerTR, c+cornerBL, c+cornerBR,
				// Wall toward +x
				c+cornerTR, c+cornerBR, right+cornerBL,
				c+cornerTR, right+cornerBL, right+cornerTL,
				// Wall toward +y
				c+cornerBL, below+cornerTL, c+cornerBR,
				c+cornerBR, below+cornerTL, below+cornerTR,
			)
		}
	}
	return m
}
