// Package raster holds the CPU-resident color and height pyramids of the relief image.
//
// Level 0 is the full-resolution image. Each coarser level is a 2x2 box
// average of the one below it. Writes go to level 0 and are pushed down the
// pyramid incrementally; every write reports the rectangle it touched on each
// level so texture caches can invalidate exactly what changed.
package raster

import (
	"errors"
	"fmt"
)

// MaxLODLevel is the coarsest pyramid level that is ever derived.
const MaxLODLevel = 6

var (
	// ErrUnsupportedFormat is returned for pixel formats the store cannot convert.
	ErrUnsupportedFormat = errors.New("raster: unsupported pixel format")
	// ErrShortBuffer is returned when a source buffer is smaller than its size and stride claim.
	ErrShortBuffer = errors.New("raster: pixel buffer too short")
)

// Format identifies the pixel layout of a level or source image.
type Format int

const (
	FormatInvalid Format = iota
	FormatRGBA8
	FormatRGB8
	FormatGray8
	FormatGray16 // little-endian
)

// BytesPerPixel returns the size of one pixel in bytes.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGB8:
		return 3
	case FormatGray8:
		return 1
	case FormatGray16:
		return 2
	}
	return 0
}

// Channels returns the number of samples per pixel.
func (f Format) Channels() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGB8:
		return 3
	case FormatGray8, FormatGray16:
		return 1
	}
	return 0
}

// IsGray reports whether the format is single-channel.
func (f Format) IsGray() bool {
	return f == FormatGray8 || f == FormatGray16
}

func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGB8:
		return "RGB8"
	case FormatGray8:
		return "Gray8"
	case FormatGray16:
		return "Gray16"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// HeightMode selects the bit depth of the height pyramid.
type HeightMode int

const (
	Height8 HeightMode = iota
	Height16
)

// Format returns the level format used for heights in this mode.
func (m HeightMode) Format() Format {
	if m == Height16 {
		return FormatGray16
	}
	return FormatGray8
}

// MaxValue returns the largest representable height.
func (m HeightMode) MaxValue() float32 {
	if m == Height16 {
		return 65535
	}
	return 255
}

func (m HeightMode) String() string {
	if m == Height16 {
		return "16-bit"
	}
	return "8-bit"
}
