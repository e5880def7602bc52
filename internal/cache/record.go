// Package cache stores per-frame detection results. A cache holds one
// header describing the run followed by one record per processed frame, in
// frame order.
package cache

import (
	"math"
	"sort"
	"time"

	"mill-presenter/internal/bead"
	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FormatVersion is written to every cache header.
const FormatVersion = "2.0"

// HistogramBins is the number of equal-width confidence bins over [0, 1].
const HistogramBins = 10

// VideoInfo describes the source recording.
type VideoInfo struct {
	Path        string  `json:"path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
}

// Header identifies a run and records everything needed to reproduce it.
type Header struct {
	Version     string                `json:"version"`
	RunID       string                `json:"run_id"`
	CreatedAt   time.Time             `json:"created_at"`
	ToolVersion string                `json:"tool_version,omitempty"`
	Video       VideoInfo             `json:"video"`
	Geometry    drum.Geometry         `json:"geometry"`
	Config      config.PipelineConfig `json:"config"`
}

// NewHeader creates a header with a fresh run ID.
func NewHeader(video VideoInfo, geom drum.Geometry, cfg config.PipelineConfig) Header {
	return Header{
		Version:   FormatVersion,
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Video:     video,
		Geometry:  geom,
		Config:    cfg,
	}
}

// FrameRecord is the result for one frame.
type FrameRecord struct {
	FrameIndex int     `json:"frame_id"`
	Timestamp  float64 `json:"timestamp"`
	// Balls in filter priority order.
	Balls []bead.Ball `json:"balls"`
	// Counts per bin label; every configured label is present.
	Counts        map[int]int        `json:"counts"`
	ConfHistogram [HistogramBins]int `json:"conf_histogram"`
	// Degraded marks a frame that could not be decoded or processed; it
	// carries no balls.
	Degraded bool `json:"degraded,omitempty"`
}

// NewFrameRecord summarises balls into a record. labels are the configured
// bin labels; balls with class 0 are not counted.
func NewFrameRecord(index int, fps float64, balls []bead.Ball, labels []int) FrameRecord {
	if balls == nil {
		balls = []bead.Ball{}
	}
	rec := FrameRecord{
		FrameIndex: index,
		Timestamp:  timestamp(index, fps),
		Balls:      balls,
		Counts:     make(map[int]int, len(labels)),
	}
	for _, l := range labels {
		rec.Counts[l] = 0
	}
	for _, b := range balls {
		if _, ok := rec.Counts[b.Class]; ok && b.Class != 0 {
			rec.Counts[b.Class]++
		}
	}
	rec.ConfHistogram = confHistogram(balls)
	return rec
}

// DegradedRecord is the zero-ball record written for a frame that failed.
func DegradedRecord(index int, fps float64, labels []int) FrameRecord {
	rec := NewFrameRecord(index, fps, nil, labels)
	rec.Degraded = true
	return rec
}

// Total returns the number of classified balls.
func (r FrameRecord) Total() int {
	n := 0
	for _, c := range r.Counts {
		n += c
	}
	return n
}

func timestamp(index int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(index) / fps
}

// histDividers are the bin edges 0, 0.1, ..., 0.9 and one ulp above 1.0 so
// that a confidence of exactly 1 lands in the last bin.
var histDividers = func() []float64 {
	d := floats.Span(make([]float64, HistogramBins+1), 0, 1)
	d[HistogramBins] = math.Nextafter(1, 2)
	return d
}()

func confHistogram(balls []bead.Ball) [HistogramBins]int {
	var out [HistogramBins]int
	if len(balls) == 0 {
		return out
	}

	confs := make([]float64, len(balls))
	for i, b := range balls {
		confs[i] = math.Min(math.Max(b.Conf, 0), 1)
	}
	sort.Float64s(confs)

	counts := stat.Histogram(nil, histDividers, confs, nil)
	for i, c := range counts {
		out[i] = int(c)
	}
	return out
}
