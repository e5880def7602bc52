package pipeline

import (
	"mill-presenter/internal/bead"
	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"
	"mill-presenter/internal/errors"
	"mill-presenter/internal/preprocess"

	"gocv.io/x/gocv"
)

// FrameResult holds the output of every stage for one frame.
type FrameResult struct {
	Candidates []bead.Candidate
	Scored     []bead.ScoredDetection
	Kept       []bead.ScoredDetection
	Balls      []bead.Ball
}

// FrameProcessor runs the per-frame stages for one calibrated video. The
// ROI mask and CLAHE instance are built once and shared by every frame.
type FrameProcessor struct {
	geom       drum.Geometry
	rows, cols int
	roi        gocv.Mat
	pre        *preprocess.Preprocessor
	detector   *bead.Detector
	scorer     *bead.Scorer
	filter     *bead.Filter
	classifier *bead.Classifier
}

// NewFrameProcessor creates a processor for frames of rows×cols pixels.
// Close releases the native resources.
func NewFrameProcessor(cfg config.PipelineConfig, geom drum.Geometry, rows, cols int) *FrameProcessor {
	return &FrameProcessor{
		geom:       geom,
		rows:       rows,
		cols:       cols,
		roi:        geom.ROIMask(rows, cols, cfg.RimMarginRatio),
		pre:        preprocess.New(cfg),
		detector:   bead.NewDetector(cfg),
		scorer:     bead.NewScorer(),
		filter:     bead.NewFilter(cfg),
		classifier: bead.NewClassifier(cfg.Bins),
	}
}

// Process returns the classified balls of frame.
func (p *FrameProcessor) Process(frame gocv.Mat) ([]bead.Ball, error) {
	res, err := p.ProcessDetailed(frame)
	if err != nil {
		return nil, err
	}
	return res.Balls, nil
}

// ProcessDetailed runs every stage and keeps the intermediate results.
func (p *FrameProcessor) ProcessDetailed(frame gocv.Mat) (FrameResult, error) {
	if frame.Empty() {
		return FrameResult{}, errors.Mark(errors.New("empty frame"), errors.ErrFrameDecode)
	}
	if frame.Rows() != p.rows || frame.Cols() != p.cols {
		return FrameResult{}, errors.Mark(
			errors.Newf("frame is %dx%d, expected %dx%d", frame.Cols(), frame.Rows(), p.cols, p.rows),
			errors.ErrFrameDecode)
	}

	gray := p.pre.Process(frame, &p.roi)
	defer gray.Close()

	var res FrameResult
	res.Candidates = p.detector.Detect(gray, p.geom)
	res.Scored = p.scorer.Score(res.Candidates, gray, p.geom)
	res.Kept = p.filter.Filter(res.Scored, p.geom, gray)
	res.Balls = p.classifier.Classify(res.Kept, p.geom.PxPerMM)
	return res, nil
}

// Close releases the ROI mask and preprocessor.
func (p *FrameProcessor) Close() error {
	p.roi.Close()
	return p.pre.Close()
}
