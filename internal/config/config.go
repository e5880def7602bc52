// Package config defines the immutable pipeline configuration: defaults,
// validation and loading from TOML or YAML files.
package config

import (
	"fmt"
	"math"
	"sort"

	"mill-presenter/internal/errors"
)

// Bin maps a half-open diameter range [Min, Max) in millimetres to a size class.
type Bin struct {
	Label int     `toml:"label" yaml:"label" json:"label"`
	Min   float64 `toml:"min" yaml:"min" json:"min"`
	Max   float64 `toml:"max" yaml:"max" json:"max"`
}

// Contains reports whether d falls in [Min, Max).
func (b Bin) Contains(d float64) bool {
	return b.Min <= d && d < b.Max
}

// DrumConfig holds drum detection parameters and manual overrides.
type DrumConfig struct {
	// Physical drum diameter used for px/mm calibration.
	DiameterMM float64 `toml:"diameter_mm" yaml:"diameter_mm" json:"diameter_mm"`

	HoughParam1    float64 `toml:"hough_param1" yaml:"hough_param1" json:"hough_param1"`
	HoughParam2    float64 `toml:"hough_param2" yaml:"hough_param2" json:"hough_param2"`
	BlurKSize      int     `toml:"blur_ksize" yaml:"blur_ksize" json:"blur_ksize"`
	MinRadiusRatio float64 `toml:"min_radius_ratio" yaml:"min_radius_ratio" json:"min_radius_ratio"`
	MaxRadiusRatio float64 `toml:"max_radius_ratio" yaml:"max_radius_ratio" json:"max_radius_ratio"`
	// Fraction of the frame (centred) the drum centre must fall in.
	CenterWindow float64 `toml:"center_window" yaml:"center_window" json:"center_window"`

	// Manual calibration; 0 means derive from the detected radius.
	PxPerMM float64 `toml:"px_per_mm" yaml:"px_per_mm" json:"px_per_mm,omitempty"`

	// Manual ROI; RadiusPx 0 means auto-detect.
	CenterX  int `toml:"center_x" yaml:"center_x" json:"center_x,omitempty"`
	CenterY  int `toml:"center_y" yaml:"center_y" json:"center_y,omitempty"`
	RadiusPx int `toml:"radius_px" yaml:"radius_px" json:"radius_px,omitempty"`
}

// HasROIOverride reports whether a manual drum circle is configured.
func (d DrumConfig) HasROIOverride() bool {
	return d.RadiusPx > 0
}

// PipelineConfig is the full set of tunables. Build it once with Default or
// Load and pass it by value; components never mutate it.
type PipelineConfig struct {
	// Preprocessing
	CLAHEClipLimit      float64 `toml:"clahe_clip_limit" yaml:"clahe_clip_limit" json:"clahe_clip_limit"`
	CLAHETileSize       int     `toml:"clahe_tile_size" yaml:"clahe_tile_size" json:"clahe_tile_size"`
	BilateralD          int     `toml:"bilateral_d" yaml:"bilateral_d" json:"bilateral_d"`
	BilateralSigmaColor int     `toml:"bilateral_sigma_color" yaml:"bilateral_sigma_color" json:"bilateral_sigma_color"`
	BilateralSigmaSpace int     `toml:"bilateral_sigma_space" yaml:"bilateral_sigma_space" json:"bilateral_sigma_space"`

	// Dormant preprocessing stages
	TopHatEnabled    bool `toml:"tophat_enabled" yaml:"tophat_enabled" json:"tophat_enabled"`
	TopHatKernelSize int  `toml:"tophat_kernel_size" yaml:"tophat_kernel_size" json:"tophat_kernel_size"`
	GlareEnabled     bool `toml:"glare_enabled" yaml:"glare_enabled" json:"glare_enabled"`
	GlareThreshold   int  `toml:"glare_threshold" yaml:"glare_threshold" json:"glare_threshold"`
	GlareReplacement int  `toml:"glare_replacement" yaml:"glare_replacement" json:"glare_replacement"`

	// Candidate detection. HoughMinRPx/HoughMaxRPx of 0 derive the bounds
	// from the bins and the drum calibration.
	HoughParam1       int     `toml:"hough_param1" yaml:"hough_param1" json:"hough_param1"`
	HoughParam2       int     `toml:"hough_param2" yaml:"hough_param2" json:"hough_param2"`
	HoughMinDistPx    int     `toml:"hough_min_dist_px" yaml:"hough_min_dist_px" json:"hough_min_dist_px"`
	HoughMinRPx       int     `toml:"hough_min_r_px" yaml:"hough_min_r_px" json:"hough_min_r_px"`
	HoughMaxRPx       int     `toml:"hough_max_r_px" yaml:"hough_max_r_px" json:"hough_max_r_px"`
	MinCircularity    float64 `toml:"min_circularity" yaml:"min_circularity" json:"min_circularity"`
	AdaptiveBlockSize int     `toml:"adaptive_block_size" yaml:"adaptive_block_size" json:"adaptive_block_size"`
	AdaptiveC         float64 `toml:"adaptive_c" yaml:"adaptive_c" json:"adaptive_c"`
	RadiusMarginLow   float64 `toml:"radius_margin_low" yaml:"radius_margin_low" json:"radius_margin_low"`
	RadiusMarginHigh  float64 `toml:"radius_margin_high" yaml:"radius_margin_high" json:"radius_margin_high"`

	// Filtering
	MinConf          float64 `toml:"min_conf" yaml:"min_conf" json:"min_conf"`
	OverlapIoUReject float64 `toml:"overlap_iou_reject" yaml:"overlap_iou_reject" json:"overlap_iou_reject"`
	RimMarginRatio   float64 `toml:"rim_margin_ratio" yaml:"rim_margin_ratio" json:"rim_margin_ratio"`

	// Dormant filter stages; a threshold of 0 disables the brightness gate.
	BrightnessThreshold int  `toml:"brightness_threshold" yaml:"brightness_threshold" json:"brightness_threshold"`
	BrightnessPatchSize int  `toml:"brightness_patch_size" yaml:"brightness_patch_size" json:"brightness_patch_size"`
	AnnulusEnabled      bool `toml:"annulus_enabled" yaml:"annulus_enabled" json:"annulus_enabled"`

	// Classification
	Bins []Bin `toml:"bins_mm" yaml:"bins_mm" json:"bins_mm"`

	Drum DrumConfig `toml:"drum" yaml:"drum" json:"drum"`
}

// DefaultBins returns the standard 4/6/8/10 mm size classes.
func DefaultBins() []Bin {
	return []Bin{
		{Label: 4, Min: 3.0, Max: 5.0},
		{Label: 6, Min: 5.0, Max: 7.0},
		{Label: 8, Min: 7.0, Max: 9.0},
		{Label: 10, Min: 9.0, Max: 12.0},
	}
}

// Default returns the configuration used when no file is given.
func Default() PipelineConfig {
	return PipelineConfig{
		CLAHEClipLimit:      2.0,
		CLAHETileSize:       8,
		BilateralD:          5,
		BilateralSigmaColor: 75,
		BilateralSigmaSpace: 75,

		TopHatKernelSize: 15,
		GlareThreshold:   250,
		GlareReplacement: 200,

		HoughParam1:       50,
		HoughParam2:       30,
		HoughMinDistPx:    15,
		MinCircularity:    0.65,
		AdaptiveBlockSize: 21,
		AdaptiveC:         -5,
		RadiusMarginLow:   0.7,
		RadiusMarginHigh:  1.5,

		MinConf:          0.5,
		OverlapIoUReject: 0.5,
		RimMarginRatio:   0.02,

		BrightnessPatchSize: 5,

		Bins: DefaultBins(),

		Drum: DrumConfig{
			DiameterMM:     200.0,
			HoughParam1:    50,
			HoughParam2:    30,
			BlurKSize:      5,
			MinRadiusRatio: 0.2,
			MaxRadiusRatio: 0.5,
			CenterWindow:   0.6,
		},
	}
}

// Validate checks the configuration. A non-nil error is marked
// errors.ErrConfig. Warnings describe diameter ranges that no bin covers;
// they are legal but usually unintended.
func (c PipelineConfig) Validate() (warnings []string, err error) {
	if err := c.validateBins(); err != nil {
		return nil, err
	}

	switch {
	case c.HoughMinRPx < 0 || c.HoughMaxRPx < 0:
		return nil, errors.Configf("radius bounds must be positive, got min=%d max=%d", c.HoughMinRPx, c.HoughMaxRPx)
	case c.HoughMinRPx > 0 && c.HoughMaxRPx > 0 && c.HoughMinRPx > c.HoughMaxRPx:
		return nil, errors.Configf("hough_min_r_px %d exceeds hough_max_r_px %d", c.HoughMinRPx, c.HoughMaxRPx)
	case c.CLAHEClipLimit <= 0 || c.CLAHETileSize < 1:
		return nil, errors.Configf("invalid CLAHE parameters clip=%g tile=%d", c.CLAHEClipLimit, c.CLAHETileSize)
	case c.BilateralD < 1:
		return nil, errors.Configf("bilateral_d must be >= 1, got %d", c.BilateralD)
	case c.HoughMinDistPx < 1 || c.HoughParam1 <= 0 || c.HoughParam2 <= 0:
		return nil, errors.Configf("invalid hough parameters param1=%d param2=%d min_dist=%d", c.HoughParam1, c.HoughParam2, c.HoughMinDistPx)
	case c.MinCircularity < 0 || c.MinCircularity > 1:
		return nil, errors.Configf("min_circularity %g outside [0,1]", c.MinCircularity)
	case c.AdaptiveBlockSize < 3 || c.AdaptiveBlockSize%2 == 0:
		return nil, errors.Configf("adaptive_block_size must be odd and >= 3, got %d", c.AdaptiveBlockSize)
	case c.RadiusMarginLow <= 0 || c.RadiusMarginHigh <= 0:
		return nil, errors.Configf("radius margins must be positive")
	case c.MinConf < 0 || c.MinConf > 1:
		return nil, errors.Configf("min_conf %g outside [0,1]", c.MinConf)
	case c.OverlapIoUReject <= 0:
		return nil, errors.Configf("overlap_iou_reject must be positive, got %g", c.OverlapIoUReject)
	case c.RimMarginRatio < 0 || c.RimMarginRatio >= 1:
		return nil, errors.Configf("rim_margin_ratio %g outside [0,1)", c.RimMarginRatio)
	case c.TopHatEnabled && (c.TopHatKernelSize < 1 || c.TopHatKernelSize%2 == 0):
		return nil, errors.Configf("tophat_kernel_size must be odd and positive, got %d", c.TopHatKernelSize)
	case c.BrightnessThreshold < 0 || c.BrightnessThreshold > 255 || c.BrightnessPatchSize < 1:
		return nil, errors.Configf("invalid brightness gate threshold=%d patch=%d", c.BrightnessThreshold, c.BrightnessPatchSize)
	}

	if err := c.Drum.validate(); err != nil {
		return nil, err
	}

	return c.binWarnings(), nil
}

func (d DrumConfig) validate() error {
	switch {
	case d.DiameterMM <= 0:
		return errors.Configf("drum diameter_mm must be positive, got %g", d.DiameterMM)
	case d.MinRadiusRatio <= 0 || d.MaxRadiusRatio <= d.MinRadiusRatio:
		return errors.Configf("drum radius ratios must satisfy 0 < min < max, got %g..%g", d.MinRadiusRatio, d.MaxRadiusRatio)
	case d.CenterWindow <= 0 || d.CenterWindow > 1:
		return errors.Configf("drum center_window %g outside (0,1]", d.CenterWindow)
	case d.BlurKSize < 1 || d.BlurKSize%2 == 0:
		return errors.Configf("drum blur_ksize must be odd and positive, got %d", d.BlurKSize)
	case d.HoughParam1 <= 0 || d.HoughParam2 <= 0:
		return errors.Configf("drum hough parameters must be positive")
	case d.PxPerMM < 0 || d.RadiusPx < 0:
		return errors.Configf("drum overrides must not be negative")
	}
	return nil
}

func (c PipelineConfig) validateBins() error {
	if len(c.Bins) == 0 {
		return errors.Configf("bins_mm is empty")
	}
	seen := make(map[int]bool, len(c.Bins))
	for i, b := range c.Bins {
		if b.Label <= 0 {
			return errors.Configf("bin %d: label must be positive, got %d", i, b.Label)
		}
		if seen[b.Label] {
			return errors.Configf("bin %d: duplicate label %d", i, b.Label)
		}
		seen[b.Label] = true
		if b.Min < 0 || b.Max <= b.Min {
			return errors.Configf("bin %d (label %d): need 0 <= min < max, got [%g, %g)", i, b.Label, b.Min, b.Max)
		}
		if i == 0 {
			continue
		}
		prev := c.Bins[i-1]
		if b.Min < prev.Min {
			return errors.Configf("bin %d (label %d): bins must be sorted ascending by min", i, b.Label)
		}
		if b.Min < prev.Max {
			return errors.Configf("bin %d (label %d) overlaps bin %d (label %d)", i, b.Label, i-1, prev.Label)
		}
	}
	return nil
}

func (c PipelineConfig) binWarnings() []string {
	var warnings []string
	for i := 1; i < len(c.Bins); i++ {
		if prev, cur := c.Bins[i-1], c.Bins[i]; prev.Max < cur.Min {
			warnings = append(warnings, fmt.Sprintf("diameters in [%g, %g) mm fall between bins and classify as unknown", prev.Max, cur.Min))
		}
	}
	last := c.Bins[len(c.Bins)-1]
	warnings = append(warnings, fmt.Sprintf("diameters >= %g mm are above every bin and classify as unknown", last.Max))
	return warnings
}

// Labels returns the configured class labels in ascending order.
func (c PipelineConfig) Labels() []int {
	labels := make([]int, len(c.Bins))
	for i, b := range c.Bins {
		labels[i] = b.Label
	}
	sort.Ints(labels)
	return labels
}

// RadiusBounds returns the bead radius search range in pixels for the given
// calibration. Configured bounds win; zero bounds are derived from the
// smallest and largest bin, widened by the radius margins.
func (c PipelineConfig) RadiusBounds(pxPerMM float64) (minR, maxR int) {
	minR, maxR = c.HoughMinRPx, c.HoughMaxRPx
	if minR == 0 {
		minR = int(math.Floor(c.Bins[0].Min / 2 * pxPerMM * c.RadiusMarginLow))
		if minR < 3 {
			minR = 3
		}
	}
	if maxR == 0 {
		maxR = int(math.Ceil(c.Bins[len(c.Bins)-1].Max / 2 * pxPerMM * c.RadiusMarginHigh))
	}
	if maxR < minR {
		maxR = minR
	}
	return minR, maxR
}
