// Package camera provides the orbit camera used to fly over the relief.
//
// The relief lives in image space: x to the right, y down the image rows
// and z up out of the image plane.
package camera

import (
	gomath "math"

	"github.com/Faultbox/reliefview/pkg/math"
)

// OrbitCamera orbits around a center point on or above the image plane.
type OrbitCamera struct {
	Center math.Vec3

	Distance float32 // from the center
	Pitch    float32 // elevation above the image plane, radians
	Yaw      float32 // heading around z, radians

	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	DragSensitivity float32
	ZoomSensitivity float32
	PanSpeed        float32 // fraction of Distance per step
}

// NewOrbitCamera creates an orbit camera with default limits.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        1000,
		Pitch:           0.9,
		MinDistance:     2,
		MaxDistance:     1e6,
		MinPitch:        0.05,
		MaxPitch:        1.55,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
		PanSpeed:        0.01,
	}
}

// Position returns the eye position.
func (c *OrbitCamera) Position() math.Vec3 {
	cp := float32(gomath.Cos(float64(c.Pitch)))
	sp := float32(gomath.Sin(float64(c.Pitch)))
	sy := float32(gomath.Sin(float64(c.Yaw)))
	cy := float32(gomath.Cos(float64(c.Yaw)))
	return c.Center.Add(math.Vec3{X: cp * sy, Y: cp * cy, Z: sp}.Scale(c.Distance))
}

// ViewMatrix returns the camera matrix, z up.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Position(), c.Center, math.Vec3{Z: 1})
}

// HandleDrag rotates by a mouse drag delta in pixels.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.Yaw -= deltaX * c.DragSensitivity
	c.Pitch = clamp(c.Pitch+deltaY*c.DragSensitivity, c.MinPitch, c.MaxPitch)
}

// HandleZoom scales the distance by wheel steps; positive zooms in.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance = clamp(c.Distance-delta*c.Distance*c.ZoomSensitivity, c.MinDistance, c.MaxDistance)
}

// HandleMovement pans the center over the image plane. forward moves away
// from the eye, right moves to its right.
func (c *OrbitCamera) HandleMovement(forward, right float32) {
	speed := c.Distance * c.PanSpeed
	sy := float32(gomath.Sin(float64(c.Yaw)))
	cy := float32(gomath.Cos(float64(c.Yaw)))

	// Horizontal view direction and its right-hand perpendicular.
	fx, fy := -sy, -cy
	rx, ry := fy, -fx

	c.Center.X += (fx*forward + rx*right) * speed
	c.Center.Y += (fy*forward + ry*right) * speed
}

// FitToImage centers the camera on a w x h image and backs off far
// enough to see all of it.
func (c *OrbitCamera) FitToImage(w, h int) {
	size := float32(max(w, h))
	c.Center = math.Vec3{X: float32(w) / 2, Y: float32(h) / 2}
	c.Distance = clamp(size*1.2, c.MinDistance, c.MaxDistance)
	c.Pitch = 0.9
	c.Yaw = 0
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
