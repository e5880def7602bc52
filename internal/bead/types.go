// Package bead finds grinding beads in a preprocessed drum image: candidate
// circle detection, confidence scoring, filtering and size classification.
package bead

import (
	"mill-presenter/pkg/geometry"
)

// Source indicates which detection path produced a candidate.
type Source int

const (
	// SourceHough indicates detection via the Hough circle transform.
	SourceHough Source = iota
	// SourceContour indicates detection via contour circularity analysis.
	SourceContour
)

func (s Source) String() string {
	switch s {
	case SourceHough:
		return "hough"
	case SourceContour:
		return "contour"
	default:
		return "unknown"
	}
}

// MarshalText encodes the source by name.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Candidate is a raw circle hypothesis in pixel space.
type Candidate struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	RPx    float64 `json:"r_px"`
	Source Source  `json:"source"`
}

// Circle returns the candidate outline.
func (c Candidate) Circle() geometry.Circle {
	return geometry.Circle{Center: geometry.PointInt{X: c.X, Y: c.Y}, Radius: c.RPx}
}

// Feature names recorded on every scored detection.
const (
	FeatureEdgeStrength       = "edge_strength"
	FeatureCircularity        = "circularity"
	FeatureInteriorBrightness = "interior_brightness"
	FeatureRimDistance        = "rim_distance"
	FeatureEdgeConsistency    = "edge_consistency"
)

// ScoredDetection is a candidate with a confidence in [0, 1] and the raw
// feature measurements the confidence was computed from.
type ScoredDetection struct {
	Candidate
	Conf     float64            `json:"conf"`
	Features map[string]float64 `json:"features,omitempty"`
}

// Ball is a classified bead, the unit stored in the results cache.
type Ball struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	RPx        float64 `json:"r_px"`
	DiameterMM float64 `json:"diameter_mm"`
	Class      int     `json:"cls"` // bin label, 0 when unclassified
	Conf       float64 `json:"conf"`
}
