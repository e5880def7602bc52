package video

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"iter"
	"os"
	"path/filepath"
	"sort"

	"mill-presenter/internal/errors"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Sequence reads a directory of still images, one frame per file, ordered
// by file name. Frame size is taken from the first image.
type Sequence struct {
	dir    string
	files  []string
	width  int
	height int
	fps    float64
}

var _ Reader = (*Sequence)(nil)

// OpenSequence lists the supported images in dir. fps is reported as-is
// and may be 0.
func OpenSequence(dir string, fps float64) (*Sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open image sequence %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsSupportedImage(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	s := &Sequence{dir: dir, files: files, fps: fps}
	if len(files) > 0 {
		cfg, err := decodeConfig(files[0])
		if err != nil {
			return nil, err
		}
		s.width, s.height = cfg.Width, cfg.Height
	}
	return s, nil
}

func (s *Sequence) Width() int       { return s.width }
func (s *Sequence) Height() int      { return s.height }
func (s *Sequence) TotalFrames() int { return len(s.files) }
func (s *Sequence) FPS() float64     { return s.fps }

// Frame decodes image i.
func (s *Sequence) Frame(i int) (gocv.Mat, error) {
	if i < 0 || i >= len(s.files) {
		return gocv.NewMat(), decodeErrorf(i, "frame %d out of range [0,%d)", i, len(s.files))
	}

	f, err := os.Open(s.files[i])
	if err != nil {
		return gocv.NewMat(), decodeErrorf(i, "open %s: %v", s.files[i], err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return gocv.NewMat(), decodeErrorf(i, "decode %s: %v", s.files[i], err)
	}
	return imageToMat(img)
}

// Frames yields every image from start; unreadable files are reported and
// skipped.
func (s *Sequence) Frames(start int) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for i := max(start, 0); i < len(s.files); i++ {
			m, err := s.Frame(i)
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

// Close is a no-op; files are opened per frame.
func (s *Sequence) Close() error {
	return nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, errors.Wrapf(err, "read image header %s", path)
	}
	return cfg, nil
}

// imageToMat converts a Go image to an 8-bit BGR Mat.
func imageToMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	buf := make([]byte, 0, w*h*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// 16-bit to 8-bit, BGR order for OpenCV
			buf = append(buf, uint8(b>>8), uint8(g>>8), uint8(r>>8))
		}
	}

	m, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "convert image")
	}
	return m, nil
}
