// Command beadtest runs bead detection on a single image and prints every stage.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"strings"

	"mill-presenter/internal/bead"
	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"
	"mill-presenter/internal/pipeline"
	"mill-presenter/pkg/colorutil"

	"gocv.io/x/gocv"
)

func main() {
	imagePath := flag.String("image", "", "Path to a frame image (PNG, JPEG, BMP or TIFF)")
	configPath := flag.String("config", "", "Pipeline config (TOML or YAML)")
	diameter := flag.Float64("diameter", 0, "Drum diameter in mm (overrides config)")
	pxPerMM := flag.Float64("px-per-mm", 0, "Fixed px/mm scale (overrides config)")
	outPath := flag.String("out", "", "Write an annotated image here")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: beadtest -image <path> [-config cfg.toml] [-diameter 200] [-px-per-mm 0] [-out annotated.png]")
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		var warnings []string
		var err error
		cfg, warnings, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		for _, w := range warnings {
			fmt.Printf("warning: %s\n", w)
		}
	}
	if *diameter > 0 {
		cfg.Drum.DiameterMM = *diameter
	}
	if *pxPerMM > 0 {
		cfg.Drum.PxPerMM = *pxPerMM
	}
	if _, err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	img := gocv.IMRead(*imagePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		fmt.Fprintf(os.Stderr, "Failed to read image %s\n", *imagePath)
		os.Exit(1)
	}
	fmt.Printf("Loaded image: %dx%d pixels\n", img.Cols(), img.Rows())

	geom, err := drum.FromConfig(img, cfg.Drum)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}
	minR, maxR := cfg.RadiusBounds(geom.PxPerMM)
	fmt.Printf("\nDrum: centre (%d, %d) radius %d px, %.4f px/mm (%s)\n",
		geom.CenterX, geom.CenterY, geom.RadiusPx, geom.PxPerMM, geom.Source)
	fmt.Printf("  Bead radius search: %d-%d px\n", minR, maxR)
	fmt.Printf("  Min conf: %.2f  Overlap factor: %.2f  Rim margin: %.2f\n",
		cfg.MinConf, cfg.OverlapIoUReject, cfg.RimMarginRatio)

	proc := pipeline.NewFrameProcessor(cfg, geom, img.Rows(), img.Cols())
	defer proc.Close()

	res, err := proc.ProcessDetailed(img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nCandidates: %d  Scored: %d  Kept: %d\n", len(res.Candidates), len(res.Scored), len(res.Kept))
	fmt.Printf("%-4s %6s %6s %7s %7s %6s %6s %8s %6s %6s\n",
		"#", "X", "Y", "R(px)", "D(mm)", "Class", "Conf", "Edge", "Circ", "Inner")
	fmt.Println(strings.Repeat("-", 72))

	for i, b := range res.Balls {
		f := res.Kept[i].Features
		fmt.Printf("%-4d %6d %6d %7.1f %7.2f %6d %6.2f %8.1f %6.2f %6.1f\n",
			i+1, b.X, b.Y, b.RPx, b.DiameterMM, b.Class, b.Conf,
			f[bead.FeatureEdgeStrength], f[bead.FeatureCircularity], f[bead.FeatureInteriorBrightness])
	}

	counts := map[int]int{}
	for _, b := range res.Balls {
		counts[b.Class]++
	}
	fmt.Printf("\nTotal: %d beads", len(res.Balls))
	for _, l := range cfg.Labels() {
		fmt.Printf("  %dmm=%d", l, counts[l])
	}
	if n := counts[bead.Unclassified]; n > 0 {
		fmt.Printf("  unclassified=%d", n)
	}
	fmt.Println()

	if *outPath == "" {
		return
	}
	gocv.Circle(&img, image.Pt(geom.CenterX, geom.CenterY), geom.RadiusPx, colorutil.Cyan, 2)
	for _, b := range res.Balls {
		gocv.Circle(&img, image.Pt(b.X, b.Y), int(b.RPx+0.5), colorutil.ClassColor(b.Class), 2)
	}
	if !gocv.IMWrite(*outPath, img) {
		fmt.Fprintf(os.Stderr, "Failed to write %s\n", *outPath)
		os.Exit(1)
	}
	fmt.Printf("Annotated image written to %s\n", *outPath)
}
