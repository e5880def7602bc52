// Package geometry provides the small amount of planar geometry shared by the
// detection stages: points, integer rectangles and circles.
package geometry

import (
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PointInt represents a 2D point with integer (pixel) coordinates.
type PointInt struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ToFloat converts to Point2D.
func (p PointInt) ToFloat() Point2D {
	return Point2D{X: float64(p.X), Y: float64(p.Y)}
}

// DistanceSq returns the squared distance to another pixel.
func (p PointInt) DistanceSq(other PointInt) int {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return dx*dx + dy*dy
}

// RectInt represents a rectangle with integer coordinates.
// Max is exclusive.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rectangle covers no pixels.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Clip returns the intersection of r with the image area [0,cols)x[0,rows).
func (r RectInt) Clip(cols, rows int) RectInt {
	x1, y1 := max(r.X, 0), max(r.Y, 0)
	x2, y2 := min(r.X+r.Width, cols), min(r.Y+r.Height, rows)
	if x2 <= x1 || y2 <= y1 {
		return RectInt{}
	}
	return RectInt{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Circle is a circle in pixel space.
type Circle struct {
	Center PointInt `json:"center"`
	Radius float64  `json:"radius"`
}

// Bounds returns the smallest pixel rectangle that contains the circle.
func (c Circle) Bounds() RectInt {
	r := int(math.Ceil(c.Radius))
	return RectInt{
		X:      c.Center.X - r,
		Y:      c.Center.Y - r,
		Width:  2*r + 1,
		Height: 2*r + 1,
	}
}

// Contains reports whether pixel (x, y) lies inside the circle shrunk by
// marginRatio of its radius.
func (c Circle) Contains(x, y int, marginRatio float64) bool {
	dx := float64(x - c.Center.X)
	dy := float64(y - c.Center.Y)
	r := c.Radius * (1.0 - marginRatio)
	return dx*dx+dy*dy <= r*r
}

// Overlaps reports whether the centres of c and other are closer than
// factor times the sum of their radii.
func (c Circle) Overlaps(other Circle, factor float64) bool {
	d := c.Center.ToFloat().Distance(other.Center.ToFloat())
	return d < (c.Radius+other.Radius)*factor
}

// Circumference returns 2πr.
func (c Circle) Circumference() float64 {
	return 2 * math.Pi * c.Radius
}
