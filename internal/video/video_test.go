package video

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mill-presenter/internal/errors"

	"gocv.io/x/gocv"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func sequenceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_000.png"), 8, 6, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame_001.png"), []byte("not a png"), 0o644))
	writePNG(t, filepath.Join(dir, "frame_002.png"), 8, 6, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	return dir
}

func TestSequenceMetadata(t *testing.T) {
	s, err := OpenSequence(sequenceDir(t), 25)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 8, s.Width())
	assert.Equal(t, 6, s.Height())
	assert.Equal(t, 3, s.TotalFrames())
	assert.Equal(t, 25.0, s.FPS())
}

func TestSequenceFrameIsBGR(t *testing.T) {
	s, err := OpenSequence(sequenceDir(t), 0)
	require.NoError(t, err)

	m, err := s.Frame(2)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 6, m.Rows())
	assert.Equal(t, 8, m.Cols())
	assert.Equal(t, 3, m.Channels())
	assert.Equal(t, uint8(50), m.GetUCharAt(0, 0))
	assert.Equal(t, uint8(100), m.GetUCharAt(0, 1))
	assert.Equal(t, uint8(200), m.GetUCharAt(0, 2))
}

func TestSequenceFramesContinuesPastDecodeErrors(t *testing.T) {
	s, err := OpenSequence(sequenceDir(t), 0)
	require.NoError(t, err)

	var indices []int
	var failed []int
	for f, err := range s.Frames(0) {
		indices = append(indices, f.Index)
		if err != nil {
			assert.True(t, errors.Is(err, errors.ErrFrameDecode))
			failed = append(failed, f.Index)
			continue
		}
		assert.False(t, f.Mat.Empty())
	}
	assert.Equal(t, []int{0, 1, 2}, indices)
	assert.Equal(t, []int{1}, failed)
}

func TestSequenceFramesFromStart(t *testing.T) {
	s, err := OpenSequence(sequenceDir(t), 0)
	require.NoError(t, err)

	var indices []int
	for f := range s.Frames(2) {
		indices = append(indices, f.Index)
	}
	assert.Equal(t, []int{2}, indices)
}

func TestSequenceFrameOutOfRange(t *testing.T) {
	s, err := OpenSequence(sequenceDir(t), 0)
	require.NoError(t, err)

	m, err := s.Frame(3)
	defer m.Close()
	assert.True(t, errors.Is(err, errors.ErrFrameDecode))
}

func TestSequenceEmptyDir(t *testing.T) {
	s, err := OpenSequence(t.TempDir(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalFrames())
	assert.Equal(t, 0, s.Width())
}

func TestOpenDispatch(t *testing.T) {
	r, err := Open(sequenceDir(t))
	require.NoError(t, err)
	defer r.Close()
	assert.IsType(t, &Sequence{}, r)

	_, err = Open(filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)
}

func TestOpenFileRejectsNonVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.mp4")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestFuncReader(t *testing.T) {
	r := NewFuncReader(4, 3, 5, 30, func(i int) (gocv.Mat, error) {
		if i == 3 {
			return gocv.NewMat(), errors.New("boom")
		}
		return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(i), 0, 0, 0), 3, 4, gocv.MatTypeCV8UC3), nil
	})

	var got []int
	for f, err := range r.Frames(1) {
		if err != nil {
			assert.True(t, errors.Is(err, errors.ErrFrameDecode))
			assert.Equal(t, 3, f.Index)
			continue
		}
		got = append(got, int(f.Mat.GetUCharAt(0, 0)))
	}
	assert.Equal(t, []int{1, 2, 4}, got)

	// Breaking out of the loop stops rendering.
	n := 0
	for range r.Frames(0) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)

	assert.False(t, r.Closed())
	require.NoError(t, r.Close())
	assert.True(t, r.Closed())
}

func TestIsSupportedImage(t *testing.T) {
	assert.True(t, IsSupportedImage("a/b/FRAME.TIF"))
	assert.True(t, IsSupportedImage("x.jpeg"))
	assert.False(t, IsSupportedImage("x.mp4"))
}
