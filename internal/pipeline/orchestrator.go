// Package pipeline drives the per-frame detection stages across a whole
// recording and streams the results into a cache.
package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mill-presenter/internal/bead"
	"mill-presenter/internal/cache"
	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"
	"mill-presenter/internal/errors"
	"mill-presenter/internal/logger"
	"mill-presenter/internal/video"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ProgressFunc is called after each frame with the number of frames done
// and the number that will be processed.
type ProgressFunc func(current, total int)

// ReaderFunc opens the recording to process.
type ReaderFunc func() (video.Reader, error)

// WriterFunc opens the cache once calibration has succeeded.
type WriterFunc func(cache.Header) (cache.Writer, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimit processes at most n frames. n <= 0 means no limit.
func WithLimit(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = logger.OrNop(l) }
}

// WithCancellation sets the token polled between frames.
func WithCancellation(t CancellationToken) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.cancel = t
		}
	}
}

// WithSource records the recording's path in the cache header.
func WithSource(path string) Option {
	return func(o *Orchestrator) { o.source = path }
}

// WithToolVersion records the producing tool's version in the cache header.
func WithToolVersion(v string) Option {
	return func(o *Orchestrator) { o.toolVersion = v }
}

// Orchestrator runs the pipeline once over one recording.
//
//	Idle → Calibrating → Processing → Done | Cancelled | Failed
//
// Calibration failure fails the run before the cache is opened. Frames
// that cannot be decoded or processed produce degraded records and the run
// continues. The reader and the cache writer are closed on every exit path.
type Orchestrator struct {
	cfg        config.PipelineConfig
	openReader ReaderFunc
	openWriter WriterFunc

	log         *zap.Logger
	cancel      CancellationToken
	limit       int
	source      string
	toolVersion string

	state atomic.Int32

	mu   sync.Mutex
	geom drum.Geometry
	run  RunStats

	// process is replaced in tests.
	process func(p *FrameProcessor, frame gocv.Mat) ([]bead.Ball, error)
}

// RunStats summarises a finished run.
type RunStats struct {
	RunID    string
	Frames   int
	Degraded int
	Balls    int
	Duration time.Duration
}

// New validates cfg and creates an orchestrator.
func New(cfg config.PipelineConfig, openReader ReaderFunc, openWriter WriterFunc, opts ...Option) (*Orchestrator, error) {
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if openReader == nil || openWriter == nil {
		return nil, errors.New("pipeline needs a reader and a writer factory")
	}

	o := &Orchestrator{
		cfg:        cfg,
		openReader: openReader,
		openWriter: openWriter,
		log:        zap.NewNop(),
		cancel:     neverCancelled{},
		process:    (*FrameProcessor).Process,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(zap.String(logger.FieldComponent, "pipeline"))
	for _, w := range warnings {
		o.log.Warn("config", zap.String("warning", w))
	}
	return o, nil
}

// State returns the current state. Safe to call from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Geometry returns the drum calibration; ok is false before calibration
// has succeeded.
func (o *Orchestrator) Geometry() (g drum.Geometry, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.geom, o.geom.RadiusPx > 0
}

// Stats returns counters for the last run.
func (o *Orchestrator) Stats() RunStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

// Run processes the recording. It returns true when every frame was
// processed, false with a nil error when cancelled, and an error when the
// run failed. An orchestrator runs once; later calls return ErrAlreadyRun.
func (o *Orchestrator) Run(progress ProgressFunc) (bool, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateCalibrating)) {
		return false, errors.Mark(errors.Newf("orchestrator is %s", o.State()), errors.ErrAlreadyRun)
	}

	start := time.Now()
	final, err := o.execute(progress)
	if err != nil {
		final = StateFailed
	}

	o.mu.Lock()
	o.run.Duration = time.Since(start)
	stats := o.run
	o.mu.Unlock()

	o.state.Store(int32(final))

	fields := []zap.Field{
		zap.String(logger.FieldState, final.String()),
		zap.Int(logger.FieldCount, stats.Frames),
		zap.Int("degraded", stats.Degraded),
		zap.Int64(logger.FieldDurationMS, stats.Duration.Milliseconds()),
	}
	if err != nil {
		o.log.Error("run failed", append(fields, zap.Error(err))...)
	} else {
		o.log.Info("run finished", fields...)
	}
	return final == StateDone, err
}

func (o *Orchestrator) execute(progress ProgressFunc) (final State, err error) {
	reader, err := o.openReader()
	if err != nil {
		return StateFailed, errors.Wrap(err, "open video")
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close video")
		}
	}()

	geom, rows, cols, err := o.calibrate(reader)
	if err != nil {
		return StateFailed, err
	}

	header := cache.NewHeader(cache.VideoInfo{
		Path:        o.source,
		Width:       reader.Width(),
		Height:      reader.Height(),
		FPS:         reader.FPS(),
		TotalFrames: reader.TotalFrames(),
	}, geom, o.cfg)
	header.ToolVersion = o.toolVersion

	writer, err := o.openWriter(header)
	if err != nil {
		return StateFailed, errors.Wrap(err, "open cache")
	}
	defer func() {
		if cerr := writer.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close cache")
		}
	}()

	o.mu.Lock()
	o.run.RunID = header.RunID
	o.mu.Unlock()

	proc := NewFrameProcessor(o.cfg, geom, rows, cols)
	defer proc.Close()

	total := reader.TotalFrames()
	if o.limit > 0 && o.limit < total {
		total = o.limit
	}
	labels := o.cfg.Labels()
	fps := reader.FPS()

	o.state.Store(int32(StateProcessing))
	o.log.Info("processing",
		zap.String(logger.FieldRunID, header.RunID),
		zap.Int(logger.FieldTotal, total),
		zap.Float64(logger.FieldFPS, fps))

	if o.cancel.IsCancelled() {
		return StateCancelled, nil
	}

	for f, ferr := range reader.Frames(0) {
		if f.Index >= total {
			break
		}

		var rec cache.FrameRecord
		if ferr != nil {
			o.log.Warn("frame decode failed", zap.Int(logger.FieldFrame, f.Index), zap.Error(ferr))
			rec = cache.DegradedRecord(f.Index, fps, labels)
		} else {
			rec = o.processFrame(proc, f, fps, labels)
		}

		if err := writer.Append(rec); err != nil {
			return StateFailed, errors.Wrapf(err, "write frame %d", f.Index)
		}
		o.count(rec)

		if progress != nil {
			progress(f.Index+1, total)
		}
		if o.cancel.IsCancelled() {
			o.log.Info("cancelled", zap.Int(logger.FieldFrame, f.Index))
			return StateCancelled, nil
		}
		if f.Index+1 >= total {
			break
		}
	}
	return StateDone, nil
}

// calibrate reads frame 0 and finds the drum in it.
func (o *Orchestrator) calibrate(reader video.Reader) (geom drum.Geometry, rows, cols int, err error) {
	if reader.TotalFrames() <= 0 {
		return drum.Geometry{}, 0, 0, errors.Calibrationf("video reports no frames")
	}

	first, err := reader.Frame(0)
	defer first.Close()
	if err != nil {
		return drum.Geometry{}, 0, 0, errors.Mark(errors.Wrap(err, "read reference frame"), errors.ErrCalibration)
	}

	geom, err = drum.FromConfig(first, o.cfg.Drum)
	if err != nil {
		return drum.Geometry{}, 0, 0, errors.Wrap(err, "calibrate drum")
	}

	o.mu.Lock()
	o.geom = geom
	o.mu.Unlock()

	o.log.Info("drum calibrated",
		zap.Int(logger.FieldCenterX, geom.CenterX),
		zap.Int(logger.FieldCenterY, geom.CenterY),
		zap.Int(logger.FieldRadius, geom.RadiusPx),
		zap.Float64(logger.FieldPxPerMM, geom.PxPerMM),
		zap.String(logger.FieldSource, string(geom.Source)))
	return geom, first.Rows(), first.Cols(), nil
}

// processFrame runs the stages on one frame. Errors and panics inside the
// stages are logged and turned into a degraded record.
func (o *Orchestrator) processFrame(proc *FrameProcessor, f video.Frame, fps float64, labels []int) (rec cache.FrameRecord) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Mark(errors.Newf("panic: %s", fmt.Sprint(r)), errors.ErrInternal)
			o.log.Error("frame processing failed", zap.Int(logger.FieldFrame, f.Index), zap.Error(err))
			rec = cache.DegradedRecord(f.Index, fps, labels)
		}
	}()

	balls, err := o.process(proc, f.Mat)
	if err != nil {
		o.log.Warn("frame processing failed", zap.Int(logger.FieldFrame, f.Index), zap.Error(err))
		return cache.DegradedRecord(f.Index, fps, labels)
	}

	rec = cache.NewFrameRecord(f.Index, fps, balls, labels)
	o.log.Debug("frame",
		zap.Int(logger.FieldFrame, f.Index),
		zap.Int(logger.FieldCount, len(balls)))
	return rec
}

func (o *Orchestrator) count(rec cache.FrameRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.run.Frames++
	o.run.Balls += len(rec.Balls)
	if rec.Degraded {
		o.run.Degraded++
	}
}
