package relief

import (
	"fmt"
	"image/color"
	"slices"

	"github.com/Faultbox/reliefview/internal/engine/gpu"
)

// MaxPaletteTexels bounds the width of the baked palette texture.
const MaxPaletteTexels = 4096

// PaletteEntry maps a height sample value to a color.
type PaletteEntry struct {
	Height int
	Color  color.RGBA
}

// Palette is a height palette resampled to a uniform step. Texel i holds
// the color of height Min + i*Step.
type Palette struct {
	Min    int
	Step   int
	Texels []color.RGBA
}

// Span returns the height range covered by the texels.
func (p *Palette) Span() int {
	return (len(p.Texels) - 1) * p.Step
}

// BakePalette sorts the breakpoints and resamples them at the greatest
// common divisor of their gaps, interpolating linearly. Entries sharing a
// height keep the last one. When the result would exceed MaxPaletteTexels
// the step is widened to fit.
func BakePalette(entries []PaletteEntry) *Palette {
	if len(entries) == 0 {
		return nil
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b PaletteEntry) int { return a.Height - b.Height })
	points := sorted[:0]
	for _, e := range sorted {
		if n := len(points); n > 0 && points[n-1].Height == e.Height {
			points[n-1] = e
			continue
		}
		points = append(points, e)
	}

	p := &Palette{Min: points[0].Height, Step: 1}
	if len(points) == 1 {
		p.Texels = []color.RGBA{points[0].Color}
		return p
	}

	step := 0
	for i := 1; i < len(points); i++ {
		step = gcd(step, points[i].Height-points[i-1].Height)
	}
	span := points[len(points)-1].Height - p.Min
	if span/step+1 > MaxPaletteTexels {
		step = (span + MaxPaletteTexels - 2) / (MaxPaletteTexels - 1)
	}
	p.Step = step

	n := span/step + 1
	p.Texels = make([]color.RGBA, n)
	seg := 0
	for i := range p.Texels {
		h := p.Min + i*step
		for seg < len(points)-2 && h > points[seg+1].Height {
			seg++
		}
		a, b := points[seg], points[seg+1]
		p.Texels[i] = lerpRGBA(a.Color, b.Color, float32(h-a.Height)/float32(b.Height-a.Height))
	}
	return p
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lerpRGBA(a, b color.RGBA, t float32) color.RGBA {
	t = min(max(t, 0), 1)
	mix := func(x, y uint8) uint8 {
		return uint8(float32(x) + (float32(y)-float32(x))*t + 0.5)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), mix(a.A, b.A)}
}

// upload creates the n x 1 lookup texture.
func (p *Palette) upload(dev gpu.Device) (gpu.Texture, error) {
	tex, err := dev.NewTexture(gpu.TextureDesc{
		Width:  len(p.Texels),
		Height: 1,
		Format: gpu.FormatRGBA8,
		Filter: gpu.FilterLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("palette texture: %w", err)
	}
	data := make([]byte, 0, 4*len(p.Texels))
	for _, c := range p.Texels {
		data = append(data, c.R, c.G, c.B, c.A)
	}
	tex.Upload(data, 0, 0, len(p.Texels), 1, len(data))
	return tex, nil
}
