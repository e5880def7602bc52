package commands

import (
	"fmt"
	"image"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"mill-presenter/internal/drum"
	"mill-presenter/internal/errors"
	"mill-presenter/internal/video"
	"mill-presenter/pkg/colorutil"
)

var (
	calibrateFrame   int
	calibrateOverlay string
)

// CalibrateCmd finds the drum on one frame.
var CalibrateCmd = &cobra.Command{
	Use:   "calibrate VIDEO",
	Short: "Find the drum on one frame and report the px/mm scale",
	Long: `Calibrate runs drum detection on a single frame and prints the drum circle and
pixel/millimetre scale that detect would use. With --overlay it also writes
the frame with the drum outline and the rim-margin boundary drawn on it.`,
	Args: cobra.ExactArgs(1),
	RunE: runCalibrate,
}

func init() {
	CalibrateCmd.Flags().IntVar(&calibrateFrame, "frame", 0, "frame index to calibrate on")
	CalibrateCmd.Flags().StringVar(&calibrateOverlay, "overlay", "", "write an annotated image to this path")
	addOverrideFlags(CalibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	cfg, warnings, err := loadConfig()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		pterm.Warning.Println(w)
	}

	r, err := video.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	frame, err := r.Frame(calibrateFrame)
	defer frame.Close()
	if err != nil {
		return errors.Wrapf(err, "read frame %d", calibrateFrame)
	}

	g, err := drum.FromConfig(frame, cfg.Drum)
	if err != nil {
		return err
	}

	minR, maxR := cfg.RadiusBounds(g.PxPerMM)
	data := pterm.TableData{
		{"Property", "Value"},
		{"Frame size", fmt.Sprintf("%dx%d", frame.Cols(), frame.Rows())},
		{"Drum centre", fmt.Sprintf("(%d, %d)", g.CenterX, g.CenterY)},
		{"Drum radius", fmt.Sprintf("%d px", g.RadiusPx)},
		{"Drum diameter", fmt.Sprintf("%.1f mm", g.DiameterMM)},
		{"Scale", fmt.Sprintf("%.4f px/mm (%s)", g.PxPerMM, g.Source)},
		{"Bead radius search", fmt.Sprintf("%d-%d px", minR, maxR)},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	if calibrateOverlay == "" {
		return nil
	}
	drawDrum(&frame, g, cfg.RimMarginRatio)
	if !gocv.IMWrite(calibrateOverlay, frame) {
		return errors.Newf("write overlay %s", calibrateOverlay)
	}
	pterm.Success.Printfln("Overlay written to %s", calibrateOverlay)
	return nil
}

func drawDrum(frame *gocv.Mat, g drum.Geometry, rimMargin float64) {
	center := image.Pt(g.CenterX, g.CenterY)
	gocv.Circle(frame, center, g.RadiusPx, colorutil.Cyan, 2)
	inner := int(float64(g.RadiusPx) * (1 - rimMargin))
	gocv.Circle(frame, center, inner, colorutil.Red, 1)
	gocv.Circle(frame, center, 3, colorutil.Red, -1)
}
