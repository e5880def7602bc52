package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"mill-presenter/internal/cache"
	"mill-presenter/internal/errors"
	"mill-presenter/internal/pipeline"
	"mill-presenter/internal/version"
	"mill-presenter/internal/video"
	"mill-presenter/pkg/colorutil"
)

var (
	detectOut   string
	detectLimit int
	detectQuiet bool
)

// DetectCmd runs the pipeline over a recording.
var DetectCmd = &cobra.Command{
	Use:   "detect VIDEO",
	Short: "Detect beads in every frame and write a results cache",
	Long: `Detect calibrates the drum on the first frame, then runs preprocessing,
candidate detection, scoring, filtering and classification on every frame,
streaming one record per frame into the cache.

VIDEO is a video file or a directory of numbered images. The cache format
follows the output extension: .jsonl or .db/.sqlite. Ctrl-C stops after the
current frame; the cache then holds every frame processed so far.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	DetectCmd.Flags().StringVarP(&detectOut, "out", "o", "", "cache path (default: VIDEO name with .jsonl)")
	DetectCmd.Flags().IntVarP(&detectLimit, "limit", "n", 0, "process at most N frames")
	DetectCmd.Flags().BoolVarP(&detectQuiet, "quiet", "q", false, "no progress bar")
	addOverrideFlags(DetectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	src := args[0]
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	out := detectOut
	if out == "" {
		out = strings.TrimSuffix(src, filepath.Ext(src)) + ".jsonl"
	}
	if _, err := cache.FormatFor(out); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	o, err := pipeline.New(cfg,
		func() (video.Reader, error) { return video.Open(src) },
		func(h cache.Header) (cache.Writer, error) { return cache.Create(out, h) },
		pipeline.WithLogger(log),
		pipeline.WithCancellation(pipeline.ContextToken(ctx)),
		pipeline.WithLimit(detectLimit),
		pipeline.WithSource(src),
		pipeline.WithToolVersion(version.Get().String()),
	)
	if err != nil {
		return err
	}

	var bar *pterm.ProgressbarPrinter
	progress := func(cur, total int) {
		if detectQuiet {
			return
		}
		if bar == nil {
			bar, _ = pterm.DefaultProgressbar.WithTotal(total).WithTitle("Detecting").Start()
		}
		if bar != nil && cur > bar.Current {
			bar.Add(cur - bar.Current)
		}
	}

	completed, err := o.Run(progress)
	if bar != nil {
		_, _ = bar.Stop()
	}
	if err != nil {
		return errors.Wrapf(err, "detect %s", src)
	}

	stats := o.Stats()
	if completed {
		pterm.Success.Printfln("Processed %d frames in %s", stats.Frames, stats.Duration.Round(1e6))
	} else {
		pterm.Warning.Printfln("Cancelled after %d frames", stats.Frames)
	}
	if g, ok := o.Geometry(); ok {
		pterm.Info.Printfln("Drum at (%d, %d) r=%dpx, %.3f px/mm (%s)", g.CenterX, g.CenterY, g.RadiusPx, g.PxPerMM, g.Source)
	}
	if stats.Degraded > 0 {
		pterm.Warning.Printfln("%d frames could not be processed and are marked degraded", stats.Degraded)
	}

	_, records, err := loadRun(out, stats.RunID)
	if err != nil {
		return errors.Wrap(err, "reload cache")
	}
	if err := renderClassTable(records, cfg.Labels()); err != nil {
		return err
	}
	pterm.Info.Printfln("Cache written to %s (run %s)", out, stats.RunID)
	return nil
}

// loadRun reads runID back from a SQLite cache, or the single run of a JSONL one.
func loadRun(path, runID string) (cache.Header, []cache.FrameRecord, error) {
	if format, err := cache.FormatFor(path); err == nil && format == cache.FormatSQLite {
		return cache.LoadRun(path, runID)
	}
	return cache.Load(path)
}

// renderClassTable prints per-class totals and per-frame means.
func renderClassTable(records []cache.FrameRecord, labels []int) error {
	totals := make(map[int]int)
	for _, rec := range records {
		for label, n := range rec.Counts {
			totals[label] += n
		}
	}
	sort.Ints(labels)

	data := pterm.TableData{{"Class", "Beads", "Per frame"}}
	for _, label := range labels {
		c := colorutil.ClassColor(label)
		name := pterm.NewRGB(c.R, c.G, c.B).Sprintf("%d mm", label)
		perFrame := 0.0
		if len(records) > 0 {
			perFrame = float64(totals[label]) / float64(len(records))
		}
		data = append(data, []string{name, fmt.Sprint(totals[label]), fmt.Sprintf("%.1f", perFrame)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
