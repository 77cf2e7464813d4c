package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
)

// Texture is a GL_TEXTURE_2D.
type Texture struct {
	id   uint32
	desc gpu.TextureDesc
}

// glFormats returns internal format, pixel format and component type.
func glFormats(f gpu.Format) (int32, uint32, uint32) {
	switch f {
	case gpu.FormatR8:
		return gl.R8, gl.RED, gl.UNSIGNED_BYTE
	case gpu.FormatR16:
		return gl.R16, gl.RED, gl.UNSIGNED_SHORT
	}
	return gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE
}

// NewTexture implements gpu.Device. Storage is allocated but left undefined
// until the first Upload.
func (d *Device) NewTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("glgpu: bad texture size %dx%d", desc.Width, desc.Height)
	}
	t := &Texture{desc: desc}
	internal, format, typ := glFormats(desc.Format)

	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(desc.Width), int32(desc.Height), 0, format, typ, nil)

	filter := int32(gl.LINEAR)
	if desc.Filter == gpu.FilterNearest {
		filter = gl.NEAREST
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAX_LEVEL, 0)

	return t, nil
}

// Upload implements gpu.Texture.
func (t *Texture) Upload(data []byte, x, y, w, h, stride int) {
	if w <= 0 || h <= 0 || len(data) == 0 {
		return
	}
	_, format, typ := glFormats(t.desc.Format)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(stride/t.desc.Format.BytesPerPixel()))
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, int32(x), int32(y), int32(w), int32(h), format, typ, gl.Ptr(data))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
}

// Desc implements gpu.Texture.
func (t *Texture) Desc() gpu.TextureDesc {
	return t.desc
}

// Release implements gpu.Texture.
func (t *Texture) Release() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}
