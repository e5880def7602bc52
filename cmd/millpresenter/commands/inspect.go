package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"mill-presenter/internal/cache"
	"mill-presenter/internal/errors"
)

var (
	inspectRun    string
	inspectExport string
	inspectFrame  int
	inspectRuns   bool
)

// InspectCmd summarises a cache.
var InspectCmd = &cobra.Command{
	Use:   "inspect CACHE",
	Short: "Summarise or export an existing cache",
	Long: `Inspect loads a cache written by detect and prints the run header, per-class
totals and the frames that were degraded. --frame prints one frame's beads;
--export writes the whole run as a single JSON document.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	InspectCmd.Flags().StringVar(&inspectRun, "run", "", "run ID to load from a SQLite cache (default: latest)")
	InspectCmd.Flags().BoolVar(&inspectRuns, "runs", false, "list the runs stored in a SQLite cache")
	InspectCmd.Flags().StringVar(&inspectExport, "export", "", "write the run as JSON to this path")
	InspectCmd.Flags().IntVar(&inspectFrame, "frame", -1, "print the beads of one frame")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	format, err := cache.FormatFor(path)
	if err != nil {
		return err
	}

	if inspectRuns {
		if format != cache.FormatSQLite {
			return errors.WithHint(errors.New("--runs needs a SQLite cache"), "JSONL caches hold a single run")
		}
		return listRuns(path)
	}

	h, records, err := loadRun(path, inspectRun)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Run " + h.RunID)
	pterm.Printfln("Created:  %s", h.CreatedAt.Local().Format(time.DateTime))
	pterm.Printfln("Source:   %s (%dx%d, %.2f fps, %d frames)", h.Video.Path, h.Video.Width, h.Video.Height, h.Video.FPS, h.Video.TotalFrames)
	pterm.Printfln("Drum:     (%d, %d) r=%dpx, %.4f px/mm (%s)", h.Geometry.CenterX, h.Geometry.CenterY, h.Geometry.RadiusPx, h.Geometry.PxPerMM, h.Geometry.Source)
	if h.ToolVersion != "" {
		pterm.Printfln("Tool:     %s", h.ToolVersion)
	}
	pterm.Printfln("Frames:   %d", len(records))

	if err := renderClassTable(records, h.Config.Labels()); err != nil {
		return err
	}

	var degraded []int
	for _, rec := range records {
		if rec.Degraded {
			degraded = append(degraded, rec.FrameIndex)
		}
	}
	if len(degraded) > 0 {
		pterm.Warning.Printfln("%d degraded frames: %v", len(degraded), degraded)
	}

	if inspectFrame >= 0 {
		if err := printFrame(records, inspectFrame); err != nil {
			return err
		}
	}

	if inspectExport != "" {
		f, err := os.Create(inspectExport)
		if err != nil {
			return errors.Wrapf(err, "create %s", inspectExport)
		}
		if err := cache.Export(f, h, records); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "close %s", inspectExport)
		}
		pterm.Success.Printfln("Exported %d frames to %s", len(records), inspectExport)
	}
	return nil
}

func printFrame(records []cache.FrameRecord, index int) error {
	for _, rec := range records {
		if rec.FrameIndex != index {
			continue
		}
		data := pterm.TableData{{"#", "X", "Y", "r (px)", "d (mm)", "Class", "Conf"}}
		for i, b := range rec.Balls {
			data = append(data, []string{
				fmt.Sprint(i + 1),
				fmt.Sprint(b.X),
				fmt.Sprint(b.Y),
				fmt.Sprintf("%.1f", b.RPx),
				fmt.Sprintf("%.2f", b.DiameterMM),
				fmt.Sprint(b.Class),
				fmt.Sprintf("%.2f", b.Conf),
			})
		}
		pterm.DefaultSection.Printfln("Frame %d (t=%.3fs)", rec.FrameIndex, rec.Timestamp)
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}
	return errors.Newf("frame %d not in cache", index)
}

func listRuns(path string) error {
	runs, err := cache.ListRuns(path)
	if err != nil {
		return err
	}
	data := pterm.TableData{{"Run", "Created", "Source", "Frames"}}
	for _, h := range runs {
		data = append(data, []string{h.RunID, h.CreatedAt.Local().Format(time.DateTime), h.Video.Path, fmt.Sprint(h.Video.TotalFrames)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
