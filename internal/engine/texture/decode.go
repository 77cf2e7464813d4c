// Package texture decodes image files into raster sources for the relief store.
package texture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder (16-bit DEMs)

	"golang.org/x/image/draw"

	"github.com/Faultbox/reliefview/internal/raster"
)

// ErrUnsupportedImage is returned for files no registered decoder understands.
var ErrUnsupportedImage = errors.New("texture: unsupported image")

// DecodeFile reads and decodes the image at path.
func DecodeFile(path string) (*raster.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	src, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return src, nil
}

// Decode decodes an in-memory image. ext is a file extension hint used to
// route TGA files, which have no magic number.
func Decode(data []byte, ext string) (*raster.Source, error) {
	if strings.EqualFold(ext, ".tga") {
		return DecodeTGA(data)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return ToSource(img), nil
}

// ToSource converts a decoded image into a raster source. Gray images keep
// a single channel (16-bit when the file had it); everything else becomes
// RGBA8.
func ToSource(img image.Image) *raster.Source {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch m := img.(type) {
	case *image.Gray:
		src := newSource(w, h, raster.FormatGray8)
		for y := 0; y < h; y++ {
			copy(src.Pix[y*src.Stride:(y+1)*src.Stride], m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return src
	case *image.Gray16:
		// image.Gray16 is big-endian; the store is little-endian.
		src := newSource(w, h, raster.FormatGray16)
		for y := 0; y < h; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < w; x++ {
				v := binary.BigEndian.Uint16(row[2*x:])
				binary.LittleEndian.PutUint16(src.Pix[y*src.Stride+2*x:], v)
			}
		}
		return src
	case *image.NRGBA:
		src := newSource(w, h, raster.FormatRGBA8)
		for y := 0; y < h; y++ {
			copy(src.Pix[y*src.Stride:(y+1)*src.Stride], m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return src
	case *image.RGBA:
		src := newSource(w, h, raster.FormatRGBA8)
		for y := 0; y < h; y++ {
			copy(src.Pix[y*src.Stride:(y+1)*src.Stride], m.Pix[m.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return src
	}

	// Everything else goes through the generic converter. The relief
	// ignores alpha, so colors stay unpremultiplied.
	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	return &raster.Source{
		Width:  w,
		Height: h,
		Stride: nrgba.Stride,
		Format: raster.FormatRGBA8,
		Pix:    nrgba.Pix,
	}
}

func newSource(w, h int, format raster.Format) *raster.Source {
	stride := w * format.BytesPerPixel()
	return &raster.Source{
		Width:  w,
		Height: h,
		Stride: stride,
		Format: format,
		Pix:    make([]byte, stride*h),
	}
}
