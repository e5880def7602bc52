package video

import (
	"iter"

	"gocv.io/x/gocv"
)

// RenderFunc produces frame i as a new Mat owned by the caller.
type RenderFunc func(i int) (gocv.Mat, error)

// FuncReader is a Reader whose frames are produced by a function. It is
// used for synthetic recordings and for replaying frames already in memory.
type FuncReader struct {
	width, height int
	total         int
	fps           float64
	render        RenderFunc
	closed        bool
}

var _ Reader = (*FuncReader)(nil)

// NewFuncReader creates a reader of total frames of the given size.
func NewFuncReader(width, height, total int, fps float64, render RenderFunc) *FuncReader {
	return &FuncReader{width: width, height: height, total: total, fps: fps, render: render}
}

func (r *FuncReader) Width() int       { return r.width }
func (r *FuncReader) Height() int      { return r.height }
func (r *FuncReader) TotalFrames() int { return r.total }
func (r *FuncReader) FPS() float64     { return r.fps }

// Closed reports whether Close has been called.
func (r *FuncReader) Closed() bool { return r.closed }

func (r *FuncReader) Frame(i int) (gocv.Mat, error) {
	if i < 0 || i >= r.total {
		return gocv.NewMat(), decodeErrorf(i, "frame %d out of range [0,%d)", i, r.total)
	}
	m, err := r.render(i)
	if err != nil {
		m.Close()
		return gocv.NewMat(), decodeErrorf(i, "render frame %d: %v", i, err)
	}
	return m, nil
}

func (r *FuncReader) Frames(start int) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for i := max(start, 0); i < r.total; i++ {
			m, err := r.Frame(i)
			if err != nil {
				m.Close()
				if !yield(Frame{Index: i}, err) {
					return
				}
				continue
			}
			ok := yield(Frame{Index: i, Mat: m}, nil)
			m.Close()
			if !ok {
				return
			}
		}
	}
}

func (r *FuncReader) Close() error {
	r.closed = true
	return nil
}
