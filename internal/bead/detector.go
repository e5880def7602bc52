package bead

import (
	"math"

	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"

	"gocv.io/x/gocv"
)

// Detector produces raw circle candidates from two independent paths:
// Hough circles for crisp outlines and contour circularity for partial or
// blurred ones. Overlap between the two is resolved by the filter.
type Detector struct {
	cfg config.PipelineConfig
}

// NewDetector creates a detector for cfg.
func NewDetector(cfg config.PipelineConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Detect returns the union of Hough and contour candidates found in gray,
// Hough first. Radius bounds come from the configuration, or are derived
// from the size bins and the drum calibration when not set.
func (d *Detector) Detect(gray gocv.Mat, geom drum.Geometry) []Candidate {
	if gray.Empty() {
		return []Candidate{}
	}

	minR, maxR := d.cfg.RadiusBounds(geom.PxPerMM)

	cands := d.detectHough(gray, minR, maxR)
	cands = append(cands, d.detectContours(gray, minR, maxR)...)
	return cands
}

func (d *Detector) detectHough(gray gocv.Mat, minR, maxR int) []Candidate {
	circles := gocv.NewMat()
	defer circles.Close()

	gocv.HoughCirclesWithParams(gray, &circles, gocv.HoughGradient,
		1, float64(d.cfg.HoughMinDistPx),
		float64(d.cfg.HoughParam1), float64(d.cfg.HoughParam2),
		minR, maxR)

	if circles.Empty() || circles.Cols() == 0 {
		return nil
	}

	cands := make([]Candidate, 0, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		r := float64(circles.GetFloatAt(0, i*3+2))
		if r <= 0 {
			continue
		}
		cands = append(cands, Candidate{
			X:      int(circles.GetFloatAt(0, i*3)),
			Y:      int(circles.GetFloatAt(0, i*3+1)),
			RPx:    r,
			Source: SourceHough,
		})
	}
	return cands
}

// detectContours thresholds gray against its local mean and fits a
// minimum enclosing circle to every sufficiently round contour. Holes are
// kept as well: a bead whose centre is darker than its rim yields an inner
// ring, which the annulus stage of the filter removes.
func (d *Detector) detectContours(gray gocv.Mat, minR, maxR int) []Candidate {
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.AdaptiveThreshold(gray, &binary, 255,
		gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary,
		d.cfg.AdaptiveBlockSize, float32(d.cfg.AdaptiveC))

	// RetrievalList rather than RetrievalExternal: the drum rim thresholds to
	// a closed ring that would otherwise be the only outer contour.
	contours := gocv.FindContours(binary, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	var cands []Candidate
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		area := gocv.ContourArea(contour)
		if area < 10 {
			continue
		}
		perimeter := gocv.ArcLength(contour, true)
		if perimeter == 0 {
			continue
		}
		if circularity(area, perimeter) < d.cfg.MinCircularity {
			continue
		}

		x, y, r := gocv.MinEnclosingCircle(contour)
		if r < float32(minR) || r > float32(maxR) {
			continue
		}

		cands = append(cands, Candidate{
			X:      int(x),
			Y:      int(y),
			RPx:    float64(r),
			Source: SourceContour,
		})
	}
	return cands
}

// circularity is 4πA/P², 1.0 for a perfect circle.
func circularity(area, perimeter float64) float64 {
	return 4 * math.Pi * area / (perimeter * perimeter)
}
