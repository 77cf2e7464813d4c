package raster

import (
	"encoding/binary"
	"fmt"
	"image"
)

// Source is decoded raster data handed to the store by an image decoder or
// by a caller passing raw memory.
type Source struct {
	Width  int
	Height int
	Stride int
	Format Format
	Pix    []byte
}

// Bounds returns the source rectangle anchored at the origin.
func (s *Source) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

// Validate checks the format and that Pix holds Height rows of Stride bytes.
func (s *Source) Validate() error {
	bpp := s.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, s.Format)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil
	}
	if s.Stride < s.Width*bpp {
		return fmt.Errorf("%w: stride %d for width %d", ErrShortBuffer, s.Stride, s.Width)
	}
	if need := (s.Height-1)*s.Stride + s.Width*bpp; len(s.Pix) < need {
		return fmt.Errorf("%w: have %d bytes, need %d", ErrShortBuffer, len(s.Pix), need)
	}
	return nil
}

// rgba16 expands one pixel to 16-bit channels. gray reports whether the
// pixel came from a single-channel format.
func rgba16(p []byte, f Format) (r, g, b, a uint32, gray bool) {
	switch f {
	case FormatRGBA8:
		return uint32(p[0]) * 257, uint32(p[1]) * 257, uint32(p[2]) * 257, uint32(p[3]) * 257, false
	case FormatRGB8:
		return uint32(p[0]) * 257, uint32(p[1]) * 257, uint32(p[2]) * 257, 0xffff, false
	case FormatGray8:
		v := uint32(p[0]) * 257
		return v, v, v, 0xffff, true
	case FormatGray16:
		v := uint32(binary.LittleEndian.Uint16(p))
		return v, v, v, 0xffff, true
	}
	return 0, 0, 0, 0, false
}

// luma16 applies the fixed ITU-R 601 grayscale weighting to 16-bit channels.
func luma16(r, g, b uint32) uint32 {
	return (19595*r + 38470*g + 7471*b + 1<<15) >> 16
}

// convertPixel writes the src pixel of format sf into dst of format df.
// Color to gray uses luma, gray to color replicates the sample.
func convertPixel(dst []byte, df Format, src []byte, sf Format) {
	r, g, b, a, gray := rgba16(src, sf)
	switch df {
	case FormatRGBA8:
		dst[0] = uint8(r >> 8)
		dst[1] = uint8(g >> 8)
		dst[2] = uint8(b >> 8)
		dst[3] = uint8(a >> 8)
	case FormatRGB8:
		dst[0] = uint8(r >> 8)
		dst[1] = uint8(g >> 8)
		dst[2] = uint8(b >> 8)
	case FormatGray8, FormatGray16:
		y := r
		if !gray {
			y = luma16(r, g, b)
		}
		if df == FormatGray8 {
			dst[0] = uint8(y >> 8)
		} else {
			binary.LittleEndian.PutUint16(dst, uint16(y))
		}
	}
}

// copyFrom copies the src block starting at sp into dst over dr, converting
// formats as needed. dr must lie inside dst and the block inside src.
func (l *Level) copyFrom(dr image.Rectangle, src *Source, sp image.Point) {
	dbpp := l.Format.BytesPerPixel()
	sbpp := src.Format.BytesPerPixel()
	for y := 0; y < dr.Dy(); y++ {
		drow := l.Pix[l.PixOffset(dr.Min.X, dr.Min.Y+y):]
		srow := src.Pix[(sp.Y+y)*src.Stride+sp.X*sbpp:]
		if l.Format == src.Format {
			copy(drow[:dr.Dx()*dbpp], srow[:dr.Dx()*sbpp])
			continue
		}
		for x := 0; x < dr.Dx(); x++ {
			convertPixel(drow[x*dbpp:(x+1)*dbpp], l.Format, srow[x*sbpp:(x+1)*sbpp], src.Format)
		}
	}
}
