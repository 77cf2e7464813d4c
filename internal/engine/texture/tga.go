package texture

import (
	"fmt"

	"github.com/Faultbox/reliefview/internal/raster"
)

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeGray         = 3  // Uncompressed grayscale
	TGATypeRLE          = 10 // RLE compressed true-color
	TGATypeRLEGray      = 11 // RLE compressed grayscale

	tgaHeaderSize            = 18
	tgaDescriptorTopToBottom = 0x20
)

// DecodeTGA decodes a TGA file straight into a raster source.
// True-color images (24/32 bpp) become RGBA8, grayscale images (8 bpp)
// become Gray8, so heightmaps stored as TGA keep their single channel.
func DecodeTGA(data []byte) (*raster.Source, error) {
	if len(data) < tgaHeaderSize {
		return nil, fmt.Errorf("%w: TGA data too short", ErrUnsupportedImage)
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("%w: color-mapped TGA", ErrUnsupportedImage)
	}

	var format raster.Format
	switch imageType {
	case TGATypeUncompressed, TGATypeRLE:
		if bpp != 24 && bpp != 32 {
			return nil, fmt.Errorf("%w: TGA true-color depth %d", ErrUnsupportedImage, bpp)
		}
		format = raster.FormatRGBA8
	case TGATypeGray, TGATypeRLEGray:
		if bpp != 8 {
			return nil, fmt.Errorf("%w: TGA grayscale depth %d", ErrUnsupportedImage, bpp)
		}
		format = raster.FormatGray8
	default:
		return nil, fmt.Errorf("%w: TGA type %d", ErrUnsupportedImage, imageType)
	}

	offset := tgaHeaderSize + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("%w: TGA data truncated", ErrUnsupportedImage)
	}

	src := &raster.Source{
		Width:  width,
		Height: height,
		Stride: width * format.BytesPerPixel(),
		Format: format,
	}
	src.Pix = make([]byte, src.Stride*height)

	d := tgaDecoder{
		src:         src,
		in:          data[offset:],
		fileBpp:     bpp / 8,
		topToBottom: descriptor&tgaDescriptorTopToBottom != 0,
	}
	var err error
	if imageType == TGATypeRLE || imageType == TGATypeRLEGray {
		err = d.readRLE()
	} else {
		err = d.readRaw()
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// tgaDecoder writes file pixels (BGR[A] or gray) into a Source in scan order.
type tgaDecoder struct {
	src         *raster.Source
	in          []byte
	fileBpp     int
	topToBottom bool
	next        int // pixels written so far
}

// put stores one file pixel at the next scan position.
func (d *tgaDecoder) put(p []byte) {
	x := d.next % d.src.Width
	y := d.next / d.src.Width
	if !d.topToBottom {
		y = d.src.Height - 1 - y
	}
	d.next++

	i := y*d.src.Stride + x*d.src.Format.BytesPerPixel()
	if d.src.Format == raster.FormatGray8 {
		d.src.Pix[i] = p[0]
		return
	}
	out := d.src.Pix[i : i+4]
	out[0], out[1], out[2], out[3] = p[2], p[1], p[0], 0xff
	if d.fileBpp == 4 {
		out[3] = p[3]
	}
}

func (d *tgaDecoder) readRaw() error {
	count := d.src.Width * d.src.Height
	if len(d.in) < count*d.fileBpp {
		return fmt.Errorf("%w: TGA pixel data truncated", ErrUnsupportedImage)
	}
	for i := 0; i < count; i++ {
		d.put(d.in[i*d.fileBpp:])
	}
	return nil
}

// readRLE decodes run-length packets. A truncated stream leaves the
// remaining pixels zero, matching how most viewers treat damaged files.
func (d *tgaDecoder) readRLE() error {
	count := d.src.Width * d.src.Height
	pos := 0
	for d.next < count && pos < len(d.in) {
		packet := d.in[pos]
		pos++
		n := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			// Run packet: one pixel repeated n times
			if pos+d.fileBpp > len(d.in) {
				break
			}
			p := d.in[pos : pos+d.fileBpp]
			pos += d.fileBpp
			for i := 0; i < n && d.next < count; i++ {
				d.put(p)
			}
			continue
		}

		// Raw packet: n literal pixels
		for i := 0; i < n && d.next < count; i++ {
			if pos+d.fileBpp > len(d.in) {
				return nil
			}
			d.put(d.in[pos : pos+d.fileBpp])
			pos += d.fileBpp
		}
	}
	return nil
}
