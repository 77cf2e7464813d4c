// Package gpu defines the graphics-resource layer the relief renderer draws
// through: opaque textures, meshes and programs plus bind and draw requests.
// The OpenGL implementation lives in glgpu; gputest records calls for tests.
package gpu

import (
	"fmt"

	"github.com/Faultbox/reliefview/pkg/math"
)

// Format is a texture storage format.
type Format int

const (
	FormatRGBA8 Format = iota
	FormatR8
	FormatR16
)

// BytesPerPixel returns the upload size of one texel.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatR16:
		return 2
	}
	return 1
}

func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatR8:
		return "R8"
	case FormatR16:
		return "R16"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Filter selects texture sampling.
type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

// TextureDesc describes a 2D texture. Sampling always clamps to the edge.
type TextureDesc struct {
	Width  int
	Height int
	Format Format
	Filter Filter
}

// Texture is a GPU texture handle.
type Texture interface {
	// Upload copies w x h texels from data, whose rows are stride bytes
	// apart, into the texture at (x, y).
	Upload(data []byte, x, y, w, h, stride int)
	Desc() TextureDesc
	Release()
}

// VertexStride is the number of floats per mesh vertex: grid position
// (x, y) followed by the texel it samples (s, t).
const VertexStride = 4

// MeshData is indexed triangle-list geometry.
type MeshData struct {
	Vertices []float32
	Indices  []uint32
}

// Mesh is an uploaded MeshData.
type Mesh interface {
	IndexCount() int
	Release()
}

// Program is a linked shader program. Setting a uniform the program does
// not use is silently ignored.
type Program interface {
	Use()
	SetMat4(name string, m math.Mat4)
	SetVec4(name string, v [4]float32)
	SetVec2(name string, x, y float32)
	SetFloat(name string, v float32)
	SetInt(name string, v int32)
	Release()
}

// Device creates resources and issues draw state changes. All calls must
// come from the thread owning the graphics context.
type Device interface {
	NewTexture(desc TextureDesc) (Texture, error)
	NewMesh(data MeshData) (Mesh, error)
	NewProgram(vertexSrc, fragmentSrc string) (Program, error)

	// BindTexture binds tex to a texture unit; nil unbinds.
	BindTexture(unit int, tex Texture)
	// Draw draws mesh with the program last made current.
	Draw(mesh Mesh)
	// SetWireframe switches between filled and line rasterization.
	SetWireframe(on bool)
	// SetDepthBias offsets depth of subsequent draws; zero disables it.
	SetDepthBias(factor, units float32)
}
