// Package preprocess turns a colour frame into the enhanced grayscale image
// the bead detectors run on.
//
// Stage order is fixed: grayscale, ROI mask, [top-hat], bilateral filter,
// CLAHE, [glare suppression]. Bracketed stages are dormant unless enabled in
// the configuration.
package preprocess

import (
	"image"

	"mill-presenter/internal/config"

	"gocv.io/x/gocv"
)

// Preprocessor applies the enhancement pipeline. It holds a CLAHE instance
// built once in New; Process does not modify the Preprocessor, so one value
// serves every frame of a video. Close releases the native resources.
type Preprocessor struct {
	cfg          config.PipelineConfig
	clahe        gocv.CLAHE
	tophatKernel gocv.Mat
}

// New creates a preprocessor for cfg.
func New(cfg config.PipelineConfig) *Preprocessor {
	p := &Preprocessor{
		cfg:   cfg,
		clahe: gocv.NewCLAHEWithParams(cfg.CLAHEClipLimit, image.Point{cfg.CLAHETileSize, cfg.CLAHETileSize}),
	}
	if cfg.TopHatEnabled {
		p.tophatKernel = gocv.GetStructuringElement(gocv.MorphEllipse,
			image.Point{cfg.TopHatKernelSize, cfg.TopHatKernelSize})
	}
	return p
}

// Close releases the CLAHE object and kernels.
func (p *Preprocessor) Close() error {
	if p.cfg.TopHatEnabled {
		p.tophatKernel.Close()
	}
	return p.clahe.Close()
}

// Process runs the pipeline on a BGR frame. roi may be nil; when given it
// must be an 8-bit mask of the frame's size and pixels outside it are zeroed
// before filtering. The returned single-channel Mat is owned by the caller.
func (p *Preprocessor) Process(frame gocv.Mat, roi *gocv.Mat) gocv.Mat {
	gray := toGray(frame)

	if roi != nil && !roi.Empty() {
		gray = replace(gray, applyMask(gray, *roi))
	}

	if p.cfg.TopHatEnabled {
		gray = replace(gray, p.tophat(gray))
	}

	// Bilateral smooths the drum texture without eating bead edges.
	smoothed := gocv.NewMat()
	gocv.BilateralFilter(gray, &smoothed, p.cfg.BilateralD,
		float64(p.cfg.BilateralSigmaColor), float64(p.cfg.BilateralSigmaSpace))
	gray = replace(gray, smoothed)

	// CLAHE lifts beads out of lighting gradients across the drum.
	enhanced := gocv.NewMat()
	p.clahe.Apply(gray, &enhanced)
	gray = replace(gray, enhanced)

	if p.cfg.GlareEnabled {
		gray = replace(gray, p.suppressGlare(gray))
	}

	return gray
}

func toGray(frame gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

func applyMask(gray, mask gocv.Mat) gocv.Mat {
	out := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), gray.Rows(), gray.Cols(), gocv.MatTypeCV8UC1)
	gocv.BitwiseAndWithMask(gray, gray, &out, mask)
	return out
}

// tophat adds the white top-hat response back onto the image, flattening
// slow illumination changes while keeping small bright objects.
func (p *Preprocessor) tophat(gray gocv.Mat) gocv.Mat {
	th := gocv.NewMat()
	defer th.Close()
	gocv.MorphologyEx(gray, &th, gocv.MorphTophat, p.tophatKernel)

	out := gocv.NewMat()
	gocv.Add(gray, th, &out)
	return out
}

// suppressGlare replaces saturated pixels above GlareThreshold with
// GlareReplacement.
func (p *Preprocessor) suppressGlare(gray gocv.Mat) gocv.Mat {
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(gray, &mask, float32(p.cfg.GlareThreshold), 255, gocv.ThresholdBinary)

	fill := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(p.cfg.GlareReplacement), 0, 0, 0),
		gray.Rows(), gray.Cols(), gocv.MatTypeCV8UC1)
	defer fill.Close()

	out := gray.Clone()
	fill.CopyToWithMask(&out, mask)
	return out
}

// replace closes old and returns next, for chaining stages without leaks.
func replace(old, next gocv.Mat) gocv.Mat {
	old.Close()
	return next
}
