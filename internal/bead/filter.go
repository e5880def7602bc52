package bead

import (
	"sort"

	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"
	"mill-presenter/pkg/geometry"

	"gocv.io/x/gocv"
)

// Filter reduces scored candidates to the final detection set.
//
// Stages, in order:
//  1. confidence gate (conf ≥ MinConf)
//  2. rim gate (centre inside the drum shrunk by RimMarginRatio)
//  3. radius gate (within the detector's radius bounds)
//  4. brightness gate, when BrightnessThreshold > 0
//  5. annulus suppression of inner holes, when AnnulusEnabled
//  6. non-maximum suppression
type Filter struct {
	cfg config.PipelineConfig
}

// NewFilter creates a filter for cfg.
func NewFilter(cfg config.PipelineConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Filter runs every stage and returns the survivors in priority order
// (conf desc, radius desc, y asc, x asc). No two survivors overlap.
func (f *Filter) Filter(scored []ScoredDetection, geom drum.Geometry, gray gocv.Mat) []ScoredDetection {
	minR, maxR := f.cfg.RadiusBounds(geom.PxPerMM)

	kept := make([]ScoredDetection, 0, len(scored))
	for _, d := range scored {
		if d.Conf < f.cfg.MinConf {
			continue
		}
		if !geom.IsInside(d.X, d.Y, f.cfg.RimMarginRatio) {
			continue
		}
		if d.RPx < float64(minR) || d.RPx > float64(maxR) {
			continue
		}
		kept = append(kept, d)
	}

	if f.cfg.BrightnessThreshold > 0 && !gray.Empty() {
		kept = f.brightnessGate(kept, gray)
	}
	if f.cfg.AnnulusEnabled {
		kept = suppressAnnulus(kept)
	}
	return NonMaxSuppress(kept, f.cfg.OverlapIoUReject)
}

// brightnessGate drops detections whose centre patch is darker than
// BrightnessThreshold. Beads are bright; holes between them are not.
func (f *Filter) brightnessGate(dets []ScoredDetection, gray gocv.Mat) []ScoredDetection {
	half := f.cfg.BrightnessPatchSize / 2
	out := dets[:0]
	for _, d := range dets {
		patch := geometry.RectInt{
			X:      d.X - half,
			Y:      d.Y - half,
			Width:  2*half + 1,
			Height: 2*half + 1,
		}.Clip(gray.Cols(), gray.Rows())
		if patch.Empty() {
			continue
		}

		var sum float64
		for y := patch.Y; y < patch.Y+patch.Height; y++ {
			for x := patch.X; x < patch.X+patch.Width; x++ {
				sum += float64(gray.GetUCharAt(y, x))
			}
		}
		if sum/float64(patch.Width*patch.Height) >= float64(f.cfg.BrightnessThreshold) {
			out = append(out, d)
		}
	}
	return out
}

// suppressAnnulus removes small detections sitting in the middle of a
// larger one, the inner edge of a ring-shaped bead.
func suppressAnnulus(dets []ScoredDetection) []ScoredDetection {
	if len(dets) <= 1 {
		return dets
	}

	suppressed := make([]bool, len(dets))
	for i, small := range dets {
		for j, large := range dets {
			if i == j || large.RPx <= small.RPx {
				continue
			}
			d := small.Circle().Center.ToFloat().Distance(large.Circle().Center.ToFloat())
			if d < large.RPx*0.5 && small.RPx < large.RPx*0.8 {
				suppressed[i] = true
				break
			}
		}
	}

	out := make([]ScoredDetection, 0, len(dets))
	for i, d := range dets {
		if !suppressed[i] {
			out = append(out, d)
		}
	}
	return out
}

// NonMaxSuppress greedily keeps the highest-priority detection and drops
// every later one whose centre distance is below (r1+r2)·factor from a kept
// detection. Priority is conf desc, then radius desc, y asc and x asc, so
// the result does not depend on input order.
func NonMaxSuppress(dets []ScoredDetection, factor float64) []ScoredDetection {
	ordered := make([]ScoredDetection, len(dets))
	copy(ordered, dets)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch {
		case a.Conf != b.Conf:
			return a.Conf > b.Conf
		case a.RPx != b.RPx:
			return a.RPx > b.RPx
		case a.Y != b.Y:
			return a.Y < b.Y
		default:
			return a.X < b.X
		}
	})

	kept := make([]ScoredDetection, 0, len(ordered))
	for _, d := range ordered {
		overlap := false
		for _, k := range kept {
			if d.Circle().Overlaps(k.Circle(), factor) {
				overlap = true
				break
			}
		}
		if !overlap {
			kept = append(kept, d)
		}
	}
	return kept
}
