package video

import (
	"iter"
	"math"

	"mill-presenter/internal/errors"

	"gocv.io/x/gocv"
)

// capturer is the part of gocv.VideoCapture that Capture reads through.
type capturer interface {
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, param float64)
	Close() error
}

// Capture reads a video file through OpenCV.
type Capture struct {
	path   string
	cap    capturer
	width  int
	height int
	total  int
	fps    float64
}

var _ Reader = (*Capture)(nil)

// OpenFile opens a video file.
func OpenFile(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, errors.Wrapf(err, "open video %s", path)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Newf("open video %s: not a readable video", path)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	if math.IsNaN(fps) || fps < 0 {
		fps = 0
	}
	return &Capture{
		path:   path,
		cap:    vc,
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		total:  max(int(vc.Get(gocv.VideoCaptureFrameCount)), 0),
		fps:    fps,
	}, nil
}

func (c *Capture) Width() int       { return c.width }
func (c *Capture) Height() int      { return c.height }
func (c *Capture) TotalFrames() int { return c.total }
func (c *Capture) FPS() float64     { return c.fps }

// Frame seeks to frame i and decodes it.
func (c *Capture) Frame(i int) (gocv.Mat, error) {
	if i < 0 || i >= c.total {
		return gocv.NewMat(), decodeErrorf(i, "frame %d out of range [0,%d)", i, c.total)
	}
	c.cap.Set(gocv.VideoCapturePosFrames, float64(i))

	m := gocv.NewMat()
	if !c.cap.Read(&m) || m.Empty() {
		return m, decodeErrorf(i, "decode frame %d of %s", i, c.path)
	}
	return m, nil
}

// Frames reads sequentially from start. The read position is always reset
// to start, since Frame moves it. OpenCV cannot tell a corrupt frame
// from the end of the stream, so after a failed read the next frame is
// tried once: if it decodes, the failure is reported as a decode error for
// that index, otherwise the stream is treated as ended.
func (c *Capture) Frames(start int) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if start < 0 {
			start = 0
		}
		c.cap.Set(gocv.VideoCapturePosFrames, float64(start))

		m := gocv.NewMat()
		defer m.Close()

		for i := start; c.total == 0 || i < c.total; i++ {
			if c.cap.Read(&m) && !m.Empty() {
				if !yield(Frame{Index: i, Mat: m}, nil) {
					return
				}
				continue
			}

			c.cap.Set(gocv.VideoCapturePosFrames, float64(i+1))
			if !c.cap.Read(&m) || m.Empty() {
				return
			}
			if !yield(Frame{Index: i}, decodeErrorf(i, "decode frame %d of %s", i, c.path)) {
				return
			}
			i++
			if !yield(Frame{Index: i, Mat: m}, nil) {
				return
			}
		}
	}
}

// Close releases the capture.
func (c *Capture) Close() error {
	return c.cap.Close()
}
