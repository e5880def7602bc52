// Package video provides sequential, index-addressed access to the frames
// of a recording: a video file decoded by OpenCV, a directory of still
// images, or frames generated in memory.
package video

import (
	"iter"
	"os"
	"path/filepath"
	"strings"

	"mill-presenter/internal/errors"

	"gocv.io/x/gocv"
)

// Frame is one decoded frame. Mat is owned by the reader and is only valid
// until the iteration step that produced it returns; Clone it to keep it.
type Frame struct {
	Index int
	Mat   gocv.Mat
}

// Reader is a finite source of BGR frames.
type Reader interface {
	Width() int
	Height() int
	// TotalFrames is the frame count reported by the container. Frames may
	// end earlier when the recording is truncated.
	TotalFrames() int
	// FPS is the nominal frame rate, 0 when unknown.
	FPS() float64
	// Frame decodes frame i into a new Mat owned by the caller.
	Frame(i int) (gocv.Mat, error)
	// Frames yields frames in index order from start. A frame that fails to
	// decode is yielded with its index and an error marked ErrFrameDecode,
	// and iteration continues. The sequence is not restartable.
	Frames(start int) iter.Seq2[Frame, error]
	Close() error
}

// Open picks a reader for path: a directory is read as an image sequence,
// anything else as a video file.
func Open(path string) (Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if info.IsDir() {
		return OpenSequence(path, 0)
	}
	return OpenFile(path)
}

// SupportedImageFormats returns the extensions read by OpenSequence.
func SupportedImageFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".bmp"}
}

// IsSupportedImage reports whether path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedImageFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

func decodeErrorf(index int, format string, args ...interface{}) error {
	err := errors.Mark(errors.Newf(format, args...), errors.ErrFrameDecode)
	return errors.WithDetailf(err, "frame %d", index)
}
