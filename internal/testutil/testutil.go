// Package testutil provides synthetic frames and in-memory collaborators
// shared by the pipeline tests.
package testutil

import (
	"image"
	"image/color"

	"mill-presenter/pkg/geometry"

	"gocv.io/x/gocv"
)

// Gray levels used by the synthetic scenes.
const (
	DrumGray = 90
	BeadGray = 220
)

// Scene describes a synthetic drum frame: a dark background, a filled drum
// disk and bright bead disks on top of it.
type Scene struct {
	Rows, Cols int
	Drum       geometry.Circle
	Beads      []geometry.Circle
}

// Render draws the scene into a new BGR Mat owned by the caller.
func (s Scene) Render() gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.Rows, s.Cols, gocv.MatTypeCV8UC3)
	if s.Drum.Radius > 0 {
		fillCircle(&m, s.Drum, DrumGray)
	}
	for _, b := range s.Beads {
		fillCircle(&m, b, BeadGray)
	}
	return m
}

func fillCircle(m *gocv.Mat, c geometry.Circle, level uint8) {
	gocv.Circle(m, image.Pt(c.Center.X, c.Center.Y), int(c.Radius+0.5),
		color.RGBA{R: level, G: level, B: level, A: 255}, -1)
}

// Blank returns a black BGR frame owned by the caller.
func Blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// Circle is shorthand for a pixel circle.
func Circle(x, y int, r float64) geometry.Circle {
	return geometry.Circle{Center: geometry.PointInt{X: x, Y: y}, Radius: r}
}

// BeadSceneDiameterMM is the drum diameter that gives BeadScene a scale of
// 2.5 px/mm, putting each bead in the middle of one default size class.
const BeadSceneDiameterMM = 88.0

// BeadScene returns a 240×320 frame with a drum of radius 110 centred in
// the frame and four separated beads inside it. At 2.5 px/mm the beads are
// 5.6, 8.0, 10.4 and 4.0 mm across (classes 6, 8, 10 and 4).
func BeadScene() Scene {
	return Scene{
		Rows: 240,
		Cols: 320,
		Drum: Circle(160, 120, 110),
		Beads: []geometry.Circle{
			Circle(120, 90, 7),
			Circle(170, 95, 10),
			Circle(130, 150, 13),
			Circle(200, 140, 5),
		},
	}
}

// BeadSceneClasses lists the expected size class of each BeadScene bead.
var BeadSceneClasses = []int{6, 8, 10, 4}
