package video

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mill-presenter/internal/errors"

	"gocv.io/x/gocv"
)

// scriptedCapture plays back solid frames of the given intensities and
// keeps an OpenCV-style read position. Reading a bad index fails and still
// advances the position, as a decoder skipping a broken packet does.
type scriptedCapture struct {
	levels []float64
	bad    map[int]bool
	pos    int
	closed bool
}

func (s *scriptedCapture) Read(m *gocv.Mat) bool {
	if s.pos < 0 || s.pos >= len(s.levels) {
		return false
	}
	i := s.pos
	s.pos++
	if s.bad[i] {
		return false
	}
	v := s.levels[i]
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 2, 2, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(m)
	return true
}

func (s *scriptedCapture) Set(prop gocv.VideoCaptureProperties, param float64) {
	if prop == gocv.VideoCapturePosFrames {
		s.pos = int(param)
	}
}

func (s *scriptedCapture) Close() error {
	s.closed = true
	return nil
}

func scripted(levels []float64, bad ...int) (*Capture, *scriptedCapture) {
	sc := &scriptedCapture{levels: levels, bad: map[int]bool{}}
	for _, i := range bad {
		sc.bad[i] = true
	}
	return &Capture{path: "scripted.avi", cap: sc, width: 2, height: 2, total: len(levels), fps: 25}, sc
}

type yielded struct {
	Index int
	Level int
	Err   bool
}

func collect(t *testing.T, c *Capture, start int) []yielded {
	t.Helper()
	var out []yielded
	for f, err := range c.Frames(start) {
		if err != nil {
			assert.True(t, errors.Is(err, errors.ErrFrameDecode))
			out = append(out, yielded{Index: f.Index, Err: true})
			continue
		}
		out = append(out, yielded{Index: f.Index, Level: int(f.Mat.GetUCharAt(0, 0))})
	}
	return out
}

func TestCaptureFramesAfterRandomAccess(t *testing.T) {
	c, _ := scripted([]float64{0, 10, 20, 30})

	first, err := c.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), first.GetUCharAt(0, 0))
	first.Close()

	assert.Equal(t, []yielded{
		{Index: 0, Level: 0},
		{Index: 1, Level: 10},
		{Index: 2, Level: 20},
		{Index: 3, Level: 30},
	}, collect(t, c, 0))
}

func TestCaptureFramesFromStart(t *testing.T) {
	c, _ := scripted([]float64{0, 10, 20, 30})

	m, err := c.Frame(3)
	require.NoError(t, err)
	m.Close()

	assert.Equal(t, []yielded{
		{Index: 2, Level: 20},
		{Index: 3, Level: 30},
	}, collect(t, c, 2))
}

func TestCaptureFramesRetriesAfterBadFrame(t *testing.T) {
	c, _ := scripted([]float64{0, 10, 20, 30, 40}, 2)

	assert.Equal(t, []yielded{
		{Index: 0, Level: 0},
		{Index: 1, Level: 10},
		{Index: 2, Err: true},
		{Index: 3, Level: 30},
		{Index: 4, Level: 40},
	}, collect(t, c, 0))
}

func TestCaptureFramesEndsOnUnreadableTail(t *testing.T) {
	c, _ := scripted([]float64{0, 10, 20, 30, 40}, 4)

	assert.Equal(t, []yielded{
		{Index: 0, Level: 0},
		{Index: 1, Level: 10},
		{Index: 2, Level: 20},
		{Index: 3, Level: 30},
	}, collect(t, c, 0))
}

func TestCaptureFrameErrors(t *testing.T) {
	c, sc := scripted([]float64{0, 10}, 1)

	m, err := c.Frame(1)
	m.Close()
	assert.True(t, errors.Is(err, errors.ErrFrameDecode))

	m, err = c.Frame(2)
	m.Close()
	assert.True(t, errors.Is(err, errors.ErrFrameDecode))

	require.NoError(t, c.Close())
	assert.True(t, sc.closed)
}

func TestOpenFileReadsFramesInOrder(t *testing.T) {
	const n, w, h = 5, 32, 24
	path := filepath.Join(t.TempDir(), "clip.avi")

	vw, err := gocv.VideoWriterFile(path, "MJPG", 10, w, h, true)
	if err != nil || !vw.IsOpened() {
		if vw != nil {
			vw.Close()
		}
		t.Skip("MJPG writer not available in this OpenCV build")
	}
	for i := 0; i < n; i++ {
		v := float64(i * 50)
		frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), h, w, gocv.MatTypeCV8UC3)
		require.NoError(t, vw.Write(frame))
		frame.Close()
	}
	require.NoError(t, vw.Close())

	c, err := OpenFile(path)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, w, c.Width())
	assert.Equal(t, h, c.Height())
	require.Equal(t, n, c.TotalFrames())

	first, err := c.Frame(0)
	require.NoError(t, err)
	assert.InDelta(t, 0, first.Mean().Val1, 8)
	first.Close()

	var got []int
	for f, err := range c.Frames(0) {
		require.NoError(t, err)
		assert.InDelta(t, float64(f.Index*50), f.Mat.Mean().Val1, 8, "frame %d", f.Index)
		got = append(got, f.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}
