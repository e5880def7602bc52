package drum

import (
	"image"

	"mill-presenter/internal/config"
	"mill-presenter/internal/errors"

	"gocv.io/x/gocv"
)

// Detect locates the drum in a colour (or grayscale) frame with a Hough
// circle search over radii in [MinRadiusRatio, MaxRadiusRatio]·min(W,H).
// The strongest circle whose centre lies in the central CenterWindow of the
// frame wins. When nothing qualifies Detect fails with an error marked
// errors.ErrCalibration; it never falls back to a guessed circle.
func Detect(frame gocv.Mat, p config.DrumConfig) (Geometry, error) {
	if frame.Empty() {
		return Geometry{}, errors.Calibrationf("empty reference frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() == 1 {
		frame.CopyTo(&gray)
	} else {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{p.BlurKSize, p.BlurKSize}, 0, 0, gocv.BorderDefault)

	rows, cols := gray.Rows(), gray.Cols()
	minDim := min(rows, cols)
	minRadius := int(float64(minDim) * p.MinRadiusRatio)
	maxRadius := int(float64(minDim) * p.MaxRadiusRatio)

	circles := gocv.NewMat()
	defer circles.Close()

	// minDist of one frame dimension: a single drum is expected.
	gocv.HoughCirclesWithParams(blurred, &circles, gocv.HoughGradient,
		1, float64(minDim),
		p.HoughParam1, p.HoughParam2,
		minRadius, maxRadius)

	if circles.Empty() || circles.Cols() == 0 {
		return Geometry{}, errors.Calibrationf("no drum circle with radius %d..%d px in %dx%d frame",
			minRadius, maxRadius, cols, rows)
	}

	window := centerWindow(cols, rows, p.CenterWindow)

	// OpenCV returns circles ordered by accumulator votes, strongest first.
	for i := 0; i < circles.Cols(); i++ {
		x := circles.GetFloatAt(0, i*3)
		y := circles.GetFloatAt(0, i*3+1)
		r := circles.GetFloatAt(0, i*3+2)

		center := image.Point{X: int(x + 0.5), Y: int(y + 0.5)}
		if !center.In(window) {
			continue
		}
		return New(center.X, center.Y, int(r+0.5), p.DiameterMM)
	}

	return Geometry{}, errors.Calibrationf("%d circle(s) found but none centred within the middle %.0f%% of the frame",
		circles.Cols(), p.CenterWindow*100)
}

// FromConfig returns the manual drum circle when one is configured,
// otherwise runs Detect on frame. A configured px/mm override is applied
// in both cases.
func FromConfig(frame gocv.Mat, p config.DrumConfig) (Geometry, error) {
	var (
		g   Geometry
		err error
	)
	if p.HasROIOverride() {
		g, err = New(p.CenterX, p.CenterY, p.RadiusPx, p.DiameterMM)
	} else {
		g, err = Detect(frame, p)
	}
	if err != nil {
		return Geometry{}, err
	}

	if p.PxPerMM > 0 {
		return g.WithPxPerMM(p.PxPerMM)
	}
	return g, nil
}

// centerWindow returns the centred rectangle covering frac of each axis.
func centerWindow(cols, rows int, frac float64) image.Rectangle {
	marginX := int(float64(cols) * (1 - frac) / 2)
	marginY := int(float64(rows) * (1 - frac) / 2)
	return image.Rect(marginX, marginY, cols-marginX+1, rows-marginY+1)
}
