package terrain

import "github.com/Faultbox/reliefview/internal/raster"

// SampleHeight returns the bilinearly interpolated height sample at (x, y)
// in level pixel coordinates. Grid vertex (i, j) stands on pixel (i, j), so
// whole coordinates return the raw sample. Positions outside the level
// clamp to its edge.
func SampleHeight(level *raster.Level, x, y float32) float32 {
	if level == nil || level.Width == 0 || level.Height == 0 {
		return 0
	}

	x = clampf(x, 0, float32(level.Width-1))
	y = clampf(y, 0, float32(level.Height-1))
	cellX := int(x)
	cellY := int(y)
	fracX := x - float32(cellX)
	fracY := y - float32(cellY)
	nextX := min(cellX+1, level.Width-1)
	nextY := min(cellY+1, level.Height-1)

	// Lerp along the top and bottom rows, then between them.
	top := float32(level.Gray(cellX, cellY))*(1-fracX) + float32(level.Gray(nextX, cellY))*fracX
	bottom := float32(level.Gray(cellX, nextY))*(1-fracX) + float32(level.Gray(nextX, nextY))*fracX
	return top*(1-fracY) + bottom*fracY
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
