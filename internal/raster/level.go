package raster

import (
	"encoding/binary"
	"image"
)

// Level is one resolution of a pyramid: a row-major pixel array.
type Level struct {
	Width  int
	Height int
	Stride int // bytes per row
	Format Format
	Pix    []byte
}

// NewLevel allocates a zeroed level.
func NewLevel(width, height int, format Format) *Level {
	stride := width * format.BytesPerPixel()
	return &Level{
		Width:  width,
		Height: height,
		Stride: stride,
		Format: format,
		Pix:    make([]byte, stride*height),
	}
}

// Bounds returns the level rectangle anchored at the origin.
func (l *Level) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Width, l.Height)
}

// PixOffset returns the index of the first byte of pixel (x, y).
func (l *Level) PixOffset(x, y int) int {
	return y*l.Stride + x*l.Format.BytesPerPixel()
}

// At returns the bytes of pixel (x, y). The slice aliases the level.
func (l *Level) At(x, y int) []byte {
	i := l.PixOffset(x, y)
	return l.Pix[i : i+l.Format.BytesPerPixel()]
}

// Gray returns the sample of a single-channel level at (x, y).
func (l *Level) Gray(x, y int) uint16 {
	p := l.At(x, y)
	if l.Format == FormatGray16 {
		return binary.LittleEndian.Uint16(p)
	}
	return uint16(p[0])
}

// fill writes the pixel px into every pixel of r, which must lie inside the level.
func (l *Level) fill(r image.Rectangle, px []byte) {
	bpp := l.Format.BytesPerPixel()
	if r.Empty() {
		return
	}
	// First row pixel by pixel, the rest by row copy.
	first := l.Pix[l.PixOffset(r.Min.X, r.Min.Y):l.PixOffset(r.Max.X, r.Min.Y)]
	for i := 0; i < len(first); i += bpp {
		copy(first[i:i+bpp], px)
	}
	for y := r.Min.Y + 1; y < r.Max.Y; y++ {
		copy(l.Pix[l.PixOffset(r.Min.X, y):], first)
	}
}

// ReadTile copies the w x h block starting at (x0, y0) plus a border of
// border pixels on every side into a tightly packed buffer. Coordinates
// outside the level are clamped, so rows and columns at the raster edge are
// replicated across the whole border.
func (l *Level) ReadTile(x0, y0, w, h, border int) []byte {
	bpp := l.Format.BytesPerPixel()
	tw := w + 2*border
	th := h + 2*border
	out := make([]byte, tw*th*bpp)
	if l.Width == 0 || l.Height == 0 {
		return out
	}

	for ty := 0; ty < th; ty++ {
		sy := clampInt(y0+ty-border, 0, l.Height-1)
		row := out[ty*tw*bpp : (ty+1)*tw*bpp]
		tx := 0
		// Left clamp region.
		for ; tx < tw && x0+tx-border < 0; tx++ {
			copy(row[tx*bpp:], l.At(0, sy))
		}
		// Interior: one contiguous copy.
		end := tx
		for end < tw && x0+end-border < l.Width {
			end++
		}
		if end > tx {
			copy(row[tx*bpp:end*bpp], l.Pix[l.PixOffset(x0+tx-border, sy):])
			tx = end
		}
		// Right clamp region.
		for ; tx < tw; tx++ {
			copy(row[tx*bpp:], l.At(l.Width-1, sy))
		}
	}
	return out
}

// downsample recomputes dst over dr as the 2x2 box average of src.
// The source block 2*dr must lie inside src.
func downsample(src, dst *Level, dr image.Rectangle) {
	switch src.Format {
	case FormatGray16:
		for y := dr.Min.Y; y < dr.Max.Y; y++ {
			for x := dr.Min.X; x < dr.Max.X; x++ {
				sum := uint32(src.Gray(2*x, 2*y)) + uint32(src.Gray(2*x+1, 2*y)) +
					uint32(src.Gray(2*x, 2*y+1)) + uint32(src.Gray(2*x+1, 2*y+1))
				binary.LittleEndian.PutUint16(dst.At(x, y), uint16((sum+2)/4))
			}
		}
	default:
		bpp := src.Format.BytesPerPixel()
		for y := dr.Min.Y; y < dr.Max.Y; y++ {
			top := src.Pix[src.PixOffset(2*dr.Min.X, 2*y):]
			bottom := src.Pix[src.PixOffset(2*dr.Min.X, 2*y+1):]
			out := dst.Pix[dst.PixOffset(dr.Min.X, y):]
			for x := 0; x < dr.Dx(); x++ {
				a := 2 * x * bpp
				b := a + bpp
				for c := 0; c < bpp; c++ {
					sum := uint32(top[a+c]) + uint32(top[b+c]) + uint32(bottom[a+c]) + uint32(bottom[b+c])
					out[x*bpp+c] = uint8((sum + 2) / 4)
				}
			}
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
