package quadtree

import (
	"fmt"
	"image"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
	"github.com/Faultbox/reliefview/internal/engine/terrain"
)

// SharedMesh is the geometry for one physical tile size. Every tile with
// that size holds a reference; the GPU buffers are built on first use and
// freed when the last reference is released.
type SharedMesh struct {
	size     image.Point
	refs     int
	registry *MeshRegistry
	meshes   [2]gpu.Mesh // indexed by terrain.Kind
}

// Size returns the grid size in cells.
func (m *SharedMesh) Size() image.Point {
	return m.size
}

// Refs returns the number of tiles referencing the mesh.
func (m *SharedMesh) Refs() int {
	return m.refs
}

// Get returns the uploaded geometry of the given kind, building it if needed.
func (m *SharedMesh) Get(kind terrain.Kind) (gpu.Mesh, error) {
	if m.meshes[kind] != nil {
		return m.meshes[kind], nil
	}
	data := terrain.Build(kind, m.size.X, m.size.Y).Data()
	mesh, err := m.registry.dev.NewMesh(data)
	if err != nil {
		return nil, fmt.Errorf("%v mesh %dx%d: %w", kind, m.size.X, m.size.Y, err)
	}
	m.meshes[kind] = mesh
	return mesh, nil
}

func (m *SharedMesh) release() {
	for i, mesh := range m.meshes {
		if mesh != nil {
			mesh.Release()
			m.meshes[i] = nil
		}
	}
}

// MeshRegistry maps physical grid sizes to shared meshes.
type MeshRegistry struct {
	dev     gpu.Device
	entries map[image.Point]*SharedMesh
}

// NewMeshRegistry creates an empty registry uploading through dev.
func NewMeshRegistry(dev gpu.Device) *MeshRegistry {
	return &MeshRegistry{
		dev:     dev,
		entries: make(map[image.Point]*SharedMesh),
	}
}

// Acquire returns the mesh for size and takes a reference on it.
func (r *MeshRegistry) Acquire(size image.Point) *SharedMesh {
	m, ok := r.entries[size]
	if !ok {
		m = &SharedMesh{size: size, registry: r}
		r.entries[size] = m
	}
	m.refs++
	return m
}

// Release drops one reference, destroying the mesh at zero.
func (r *MeshRegistry) Release(m *SharedMesh) {
	if m == nil || m.refs == 0 {
		return
	}
	m.refs--
	if m.refs == 0 {
		m.release()
		delete(r.entries, m.size)
	}
}

// Len returns the number of live shared meshes.
func (r *MeshRegistry) Len() int {
	return len(r.entries)
}
