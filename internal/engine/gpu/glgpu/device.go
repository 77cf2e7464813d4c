// Package glgpu implements gpu.Device on OpenGL 4.1 core.
// IMPORTANT: everything here must run on the thread owning the GL context.
package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
	"github.com/Faultbox/reliefview/internal/logger"
)

var (
	_ gpu.Device  = (*Device)(nil)
	_ gpu.Texture = (*Texture)(nil)
	_ gpu.Mesh    = (*Mesh)(nil)
	_ gpu.Program = (*Program)(nil)
)

// Device is the OpenGL gpu.Device.
type Device struct {
	wireframe bool
}

// New initializes the GL function pointers and default state.
// Must be called AFTER the OpenGL context is created.
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	logger.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	gl.ClearColor(0.1, 0.1, 0.15, 1.0)
	// Tile uploads are tightly packed and R8 rows are not 4-byte aligned.
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)

	return &Device{}, nil
}

// Viewport sets the GL viewport to the framebuffer size.
func (d *Device) Viewport(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

// Clear clears color and depth.
func (d *Device) Clear() {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

// BindTexture implements gpu.Device.
func (d *Device) BindTexture(unit int, tex gpu.Texture) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	if tex == nil {
		gl.BindTexture(gl.TEXTURE_2D, 0)
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, tex.(*Texture).id)
}

// Draw implements gpu.Device.
func (d *Device) Draw(mesh gpu.Mesh) {
	m := mesh.(*Mesh)
	gl.BindVertexArray(m.vao)
	gl.DrawElementsWithOffset(gl.TRIANGLES, int32(m.count), gl.UNSIGNED_INT, 0)
	gl.BindVertexArray(0)
}

// SetWireframe implements gpu.Device.
func (d *Device) SetWireframe(on bool) {
	if on == d.wireframe {
		return
	}
	d.wireframe = on
	if on {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	} else {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}
}

// SetDepthBias implements gpu.Device.
func (d *Device) SetDepthBias(factor, units float32) {
	if factor == 0 && units == 0 {
		gl.Disable(gl.POLYGON_OFFSET_FILL)
		gl.Disable(gl.POLYGON_OFFSET_LINE)
		return
	}
	gl.Enable(gl.POLYGON_OFFSET_FILL)
	gl.Enable(gl.POLYGON_OFFSET_LINE)
	gl.PolygonOffset(factor, units)
}

// ReadPixels reads the RGBA framebuffer, bottom row first.
func (d *Device) ReadPixels(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	if len(pixels) == 0 {
		return pixels
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&pixels[0]))
	return pixels
}
