// Package gputest provides an in-memory gpu.Device that records every
// resource and draw, so renderers can be tested without a graphics context.
package gputest

import (
	"errors"
	"fmt"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
	"github.com/Faultbox/reliefview/pkg/math"
)

var _ gpu.Device = (*Device)(nil)

// ErrInjected is returned by creation calls after FailAfter resources.
var ErrInjected = errors.New("gputest: injected failure")

// Texture is a recorded texture. Data mirrors the uploaded texels.
type Texture struct {
	desc     gpu.TextureDesc
	Data     []byte
	Uploads  int
	Released bool
}

// Upload implements gpu.Texture.
func (t *Texture) Upload(data []byte, x, y, w, h, stride int) {
	bpp := t.desc.Format.BytesPerPixel()
	for row := 0; row < h; row++ {
		dst := ((y+row)*t.desc.Width + x) * bpp
		copy(t.Data[dst:dst+w*bpp], data[row*stride:])
	}
	t.Uploads++
}

// Desc implements gpu.Texture.
func (t *Texture) Desc() gpu.TextureDesc { return t.desc }

// Release implements gpu.Texture.
func (t *Texture) Release() { t.Released = true }

// Mesh is a recorded mesh.
type Mesh struct {
	Data     gpu.MeshData
	Released bool
}

// IndexCount implements gpu.Mesh.
func (m *Mesh) IndexCount() int { return len(m.Data.Indices) }

// Release implements gpu.Mesh.
func (m *Mesh) Release() { m.Released = true }

// Program records uniform values by name.
type Program struct {
	dev      *Device
	Uniforms map[string]any
	Released bool
}

// Use implements gpu.Program.
func (p *Program) Use() { p.dev.current = p }

// SetMat4 implements gpu.Program.
func (p *Program) SetMat4(name string, m math.Mat4) { p.Uniforms[name] = m }

// SetVec4 implements gpu.Program.
func (p *Program) SetVec4(name string, v [4]float32) { p.Uniforms[name] = v }

// SetVec2 implements gpu.Program.
func (p *Program) SetVec2(name string, x, y float32) { p.Uniforms[name] = [2]float32{x, y} }

// SetFloat implements gpu.Program.
func (p *Program) SetFloat(name string, v float32) { p.Uniforms[name] = v }

// SetInt implements gpu.Program.
func (p *Program) SetInt(name string, v int32) { p.Uniforms[name] = v }

// Release implements gpu.Program.
func (p *Program) Release() { p.Released = true }

// DrawCall is a snapshot of state at one Draw.
type DrawCall struct {
	Mesh      *Mesh
	Program   *Program
	Textures  map[int]*Texture
	Uniforms  map[string]any
	Wireframe bool
	DepthBias [2]float32
}

// Device implements gpu.Device in memory.
type Device struct {
	Textures []*Texture
	Meshes   []*Mesh
	Programs []*Program
	Draws    []DrawCall

	// FailAfter makes resource creation fail once this many resources
	// exist. Zero disables injection.
	FailAfter int

	current   *Program
	bound     map[int]*Texture
	wireframe bool
	bias      [2]float32
}

// NewDevice returns an empty recording device.
func NewDevice() *Device {
	return &Device{bound: make(map[int]*Texture)}
}

func (d *Device) fail() error {
	if d.FailAfter > 0 && len(d.Textures)+len(d.Meshes)+len(d.Programs) >= d.FailAfter {
		return ErrInjected
	}
	return nil
}

// NewTexture implements gpu.Device.
func (d *Device) NewTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	if err := d.fail(); err != nil {
		return nil, err
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("gputest: bad texture size %dx%d", desc.Width, desc.Height)
	}
	t := &Texture{desc: desc, Data: make([]byte, desc.Width*desc.Height*desc.Format.BytesPerPixel())}
	d.Textures = append(d.Textures, t)
	return t, nil
}

// NewMesh implements gpu.Device.
func (d *Device) NewMesh(data gpu.MeshData) (gpu.Mesh, error) {
	if err := d.fail(); err != nil {
		return nil, err
	}
	m := &Mesh{Data: data}
	d.Meshes = append(d.Meshes, m)
	return m, nil
}

// NewProgram implements gpu.Device.
func (d *Device) NewProgram(vertexSrc, fragmentSrc string) (gpu.Program, error) {
	if err := d.fail(); err != nil {
		return nil, err
	}
	p := &Program{dev: d, Uniforms: make(map[string]any)}
	d.Programs = append(d.Programs, p)
	return p, nil
}

// BindTexture implements gpu.Device.
func (d *Device) BindTexture(unit int, tex gpu.Texture) {
	if tex == nil {
		delete(d.bound, unit)
		return
	}
	d.bound[unit] = tex.(*Texture)
}

// Draw implements gpu.Device.
func (d *Device) Draw(mesh gpu.Mesh) {
	call := DrawCall{
		Mesh:      mesh.(*Mesh),
		Program:   d.current,
		Textures:  make(map[int]*Texture, len(d.bound)),
		Wireframe: d.wireframe,
		DepthBias: d.bias,
	}
	for unit, t := range d.bound {
		call.Textures[unit] = t
	}
	if d.current != nil {
		call.Uniforms = make(map[string]any, len(d.current.Uniforms))
		for k, v := range d.current.Uniforms {
			call.Uniforms[k] = v
		}
	}
	d.Draws = append(d.Draws, call)
}

// SetWireframe implements gpu.Device.
func (d *Device) SetWireframe(on bool) { d.wireframe = on }

// SetDepthBias implements gpu.Device.
func (d *Device) SetDepthBias(factor, units float32) { d.bias = [2]float32{factor, units} }

// LiveTextures counts textures not yet released.
func (d *Device) LiveTextures() int {
	n := 0
	for _, t := range d.Textures {
		if !t.Released {
			n++
		}
	}
	return n
}

// LiveMeshes counts meshes not yet released.
func (d *Device) LiveMeshes() int {
	n := 0
	for _, m := range d.Meshes {
		if !m.Released {
			n++
		}
	}
	return n
}

// ResetDraws forgets recorded draws.
func (d *Device) ResetDraws() {
	d.Draws = d.Draws[:0]
}
