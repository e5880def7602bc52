// Package drum finds the mill drum in a reference frame and provides the
// region-of-interest mask and pixel/millimetre calibration derived from it.
package drum

import (
	"math"

	"mill-presenter/internal/errors"
	"mill-presenter/pkg/geometry"

	"gocv.io/x/gocv"
)

// CalibrationSource records where the px/mm scale came from.
type CalibrationSource string

const (
	// SourceAuto means px/mm was derived from the detected drum radius.
	SourceAuto CalibrationSource = "auto"
	// SourceManual means px/mm was set by the operator.
	SourceManual CalibrationSource = "manual"
)

// Geometry is the drum circle in pixel space plus its physical scale.
// It is built once per video and never modified.
type Geometry struct {
	CenterX    int               `json:"center_x"`
	CenterY    int               `json:"center_y"`
	RadiusPx   int               `json:"radius_px"`
	DiameterMM float64           `json:"drum_diameter_mm"`
	PxPerMM    float64           `json:"px_per_mm"`
	Source     CalibrationSource `json:"calibration_source"`
}

// New builds a geometry from a known drum circle. px/mm is derived as
// radius / (diameter / 2).
func New(cx, cy, radiusPx int, diameterMM float64) (Geometry, error) {
	if radiusPx <= 0 {
		return Geometry{}, errors.Calibrationf("drum radius must be positive, got %d", radiusPx)
	}
	if diameterMM <= 0 || math.IsNaN(diameterMM) || math.IsInf(diameterMM, 0) {
		return Geometry{}, errors.Calibrationf("drum diameter must be positive, got %g", diameterMM)
	}
	return Geometry{
		CenterX:    cx,
		CenterY:    cy,
		RadiusPx:   radiusPx,
		DiameterMM: diameterMM,
		PxPerMM:    float64(radiusPx) / (diameterMM / 2),
		Source:     SourceAuto,
	}, nil
}

// WithPxPerMM returns a copy of g with a manual calibration.
func (g Geometry) WithPxPerMM(pxPerMM float64) (Geometry, error) {
	if pxPerMM <= 0 || math.IsNaN(pxPerMM) || math.IsInf(pxPerMM, 0) {
		return Geometry{}, errors.Calibrationf("px_per_mm must be positive, got %g", pxPerMM)
	}
	g.PxPerMM = pxPerMM
	g.Source = SourceManual
	return g, nil
}

// Circle returns the drum outline.
func (g Geometry) Circle() geometry.Circle {
	return geometry.Circle{
		Center: geometry.PointInt{X: g.CenterX, Y: g.CenterY},
		Radius: float64(g.RadiusPx),
	}
}

// IsInside reports whether (x, y) lies within the drum shrunk by
// marginRatio of its radius: (x−cx)² + (y−cy)² ≤ (r·(1−m))².
func (g Geometry) IsInside(x, y int, marginRatio float64) bool {
	return g.Circle().Contains(x, y, marginRatio)
}

// SignedRimDistance returns the distance from (x, y) to the drum rim,
// positive inside the drum and negative outside.
func (g Geometry) SignedRimDistance(x, y int) float64 {
	c := g.Circle()
	d := c.Center.ToFloat().Distance(geometry.Point2D{X: float64(x), Y: float64(y)})
	return c.Radius - d
}

// ROIMask returns an 8-bit rows×cols mask: 255 where the distance to the
// drum centre is ≤ radius·(1−rimMargin), 0 elsewhere. The caller owns the Mat.
func (g Geometry) ROIMask(rows, cols int, rimMargin float64) gocv.Mat {
	buf := make([]byte, rows*cols)
	c := g.Circle()
	for y := 0; y < rows; y++ {
		row := buf[y*cols : (y+1)*cols]
		for x := range row {
			if c.Contains(x, y, rimMargin) {
				row[x] = 255
			}
		}
	}

	mask, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		// Only fails on a size mismatch, which cannot happen here.
		panic(err)
	}
	return mask
}
