package bead

import (
	"mill-presenter/internal/config"
)

// Unclassified is the class of a ball whose diameter falls outside every bin.
const Unclassified = 0

// Classifier converts pixel radii to physical diameters and assigns each
// detection to the first size bin containing it.
type Classifier struct {
	bins []config.Bin
}

// NewClassifier creates a classifier over bins, which must be sorted and
// disjoint (see config.PipelineConfig.Validate).
func NewClassifier(bins []config.Bin) *Classifier {
	return &Classifier{bins: bins}
}

// Classify maps detections to balls, preserving order. diameter_mm is
// 2·r/pxPerMM; a diameter outside every bin gets class 0.
func (c *Classifier) Classify(dets []ScoredDetection, pxPerMM float64) []Ball {
	balls := make([]Ball, 0, len(dets))
	for _, d := range dets {
		diam := 2 * d.RPx / pxPerMM
		balls = append(balls, Ball{
			X:          d.X,
			Y:          d.Y,
			RPx:        d.RPx,
			DiameterMM: diam,
			Class:      c.ClassOf(diam),
			Conf:       d.Conf,
		})
	}
	return balls
}

// ClassOf returns the label of the bin containing diameterMM, or Unclassified.
func (c *Classifier) ClassOf(diameterMM float64) int {
	for _, b := range c.bins {
		if b.Contains(diameterMM) {
			return b.Label
		}
	}
	return Unclassified
}
