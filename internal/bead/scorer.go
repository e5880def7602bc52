package bead

import (
	"encoding/binary"
	"math"

	"mill-presenter/internal/drum"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// Feature weights. They sum to 1.
const (
	weightEdge     = 0.35
	weightCircular = 0.25
	weightInterior = 0.20
	weightRim      = 0.20
)

const (
	// Mean gradient magnitude treated as a full-strength edge.
	edgeNorm = 100.0
	// Gradient magnitude at which a perimeter pixel counts as an edge pixel.
	edgePixelThreshold = 40.0
	// Subtracted from candidates centred outside the drum.
	outsidePenalty = 0.25
	// Interior brightness is sampled inside this fraction of the radius so
	// a radius one pixel too large does not pull in background.
	interiorRatio = 0.7
)

// Scorer assigns each candidate a confidence from four image features:
// edge support along the perimeter, the fraction of the perimeter that is
// an edge, interior brightness and distance from the drum rim.
type Scorer struct{}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes features and confidence for every candidate, preserving
// order. The gradient image is computed once per call.
func (s *Scorer) Score(cands []Candidate, gray gocv.Mat, geom drum.Geometry) []ScoredDetection {
	scored := make([]ScoredDetection, 0, len(cands))
	if len(cands) == 0 || gray.Empty() {
		return scored
	}

	view := newFrameView(gray)
	for _, c := range cands {
		f := view.features(c, geom)
		scored = append(scored, ScoredDetection{
			Candidate: c,
			Conf:      confidence(f, c, geom),
			Features:  f,
		})
	}
	return scored
}

func confidence(f map[string]float64, c Candidate, geom drum.Geometry) float64 {
	edge := clamp01(f[FeatureEdgeStrength] / edgeNorm)
	circ := clamp01(f[FeatureCircularity])
	interior := clamp01(f[FeatureInteriorBrightness] / 255)
	rim := clamp01(f[FeatureRimDistance] / c.RPx)

	conf := weightEdge*edge + weightCircular*circ + weightInterior*interior + weightRim*rim
	if !geom.IsInside(c.X, c.Y, 0) {
		conf -= outsidePenalty
	}
	return clamp01(conf)
}

// frameView holds host copies of the gray image and its Sobel gradient
// magnitude so features can be sampled without per-pixel cgo calls.
type frameView struct {
	rows, cols int
	gray       []byte
	mag        []float32
}

func newFrameView(gray gocv.Mat) frameView {
	gx := gocv.NewMat()
	defer gx.Close()
	gy := gocv.NewMat()
	defer gy.Close()
	mag := gocv.NewMat()
	defer mag.Close()

	gocv.Sobel(gray, &gx, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gy, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderDefault)
	gocv.Magnitude(gx, gy, &mag)

	return frameView{
		rows: gray.Rows(),
		cols: gray.Cols(),
		gray: gray.ToBytes(),
		mag:  float32s(mag.ToBytes()),
	}
}

func (v frameView) features(c Candidate, geom drum.Geometry) map[string]float64 {
	box := c.Circle().Bounds().Clip(v.cols, v.rows)

	var ring, inside []float64
	edgePixels := 0
	for y := box.Y; y < box.Y+box.Height; y++ {
		for x := box.X; x < box.X+box.Width; x++ {
			dx, dy := float64(x-c.X), float64(y-c.Y)
			d := math.Sqrt(dx*dx + dy*dy)
			i := y*v.cols + x

			if math.Abs(d-c.RPx) < 0.5 {
				m := float64(v.mag[i])
				ring = append(ring, m)
				if m >= edgePixelThreshold {
					edgePixels++
				}
			}
			if d <= c.RPx*interiorRatio {
				inside = append(inside, float64(v.gray[i]))
			}
		}
	}

	f := map[string]float64{
		FeatureEdgeStrength:       0,
		FeatureCircularity:        float64(edgePixels) / (2 * math.Pi * c.RPx),
		FeatureInteriorBrightness: 0,
		FeatureRimDistance:        geom.SignedRimDistance(c.X, c.Y),
		FeatureEdgeConsistency:    0,
	}
	if len(ring) > 0 {
		mean, std := stat.MeanStdDev(ring, nil)
		f[FeatureEdgeStrength] = mean
		if mean > 0 && len(ring) > 1 {
			f[FeatureEdgeConsistency] = math.Max(0, 1-std/mean)
		}
	}
	if len(inside) > 0 {
		f[FeatureInteriorBrightness] = stat.Mean(inside, nil)
	}
	return f
}

// float32s reinterprets a CV_32F buffer from Mat.ToBytes.
func float32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
