// Package terrain builds the grid geometry shared by relief tiles.
//
// A tile mesh is a flat w x h grid of cells in tile-local pixel units. The
// vertex shader lifts each vertex by the height texel it samples, so one
// mesh serves every tile with the same physical size.
package terrain

import "github.com/Faultbox/reliefview/internal/engine/gpu"

// Vertex is a grid vertex: its position in cell units and the tile texel
// (without texture border) whose height it takes.
type Vertex struct {
	Position [2]float32
	Sample   [2]float32
}

// Mesh holds indexed triangle-list geometry ready for GPU upload.
type Mesh struct {
	Width    int // cells
	Height   int // cells
	Vertices []Vertex
	Indices  []uint32
}

// Triangles returns the triangle count.
func (m *Mesh) Triangles() int {
	return len(m.Indices) / 3
}

// Data flattens the mesh into the gpu vertex layout.
func (m *Mesh) Data() gpu.MeshData {
	verts := make([]float32, 0, len(m.Vertices)*gpu.VertexStride)
	for _, v := range m.Vertices {
		verts = append(verts, v.Position[0], v.Position[1], v.Sample[0], v.Sample[1])
	}
	return gpu.MeshData{Vertices: verts, Indices: m.Indices}
}
