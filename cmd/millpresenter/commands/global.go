// Package commands implements the millpresenter subcommands.
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mill-presenter/internal/config"
	"mill-presenter/internal/errors"
	"mill-presenter/internal/logger"
)

var (
	configPath string
	verbose    bool
	jsonLog    bool

	// Overrides shared by detect and calibrate.
	diameterMM float64
	pxPerMM    float64
	roiSpec    string

	log = zap.NewNop()
)

// AddGlobalFlags registers the persistent flags on root.
func AddGlobalFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "pipeline configuration file (.toml, .yaml)")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	f.BoolVar(&jsonLog, "json-log", false, "log as JSON")
}

func addOverrideFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&diameterMM, "diameter-mm", 0, "physical drum diameter in mm (overrides config)")
	f.Float64Var(&pxPerMM, "px-per-mm", 0, "manual px/mm calibration (overrides drum-derived scale)")
	f.StringVar(&roiSpec, "roi", "", "manual drum circle as cx,cy,r in pixels")
}

// Setup builds the logger before any command runs.
func Setup(cmd *cobra.Command, args []string) error {
	l, err := logger.New(logger.Options{JSON: jsonLog, Verbose: verbose})
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	log = l
	return nil
}

// Sync flushes the logger.
func Sync() {
	_ = log.Sync()
}

// Describe renders err with its hints for the terminal.
func Describe(err error) string {
	msg := err.Error()
	if hints := errors.FlattenHints(err); hints != "" {
		msg += "\nhint: " + hints
	}
	return msg
}

// loadConfig reads the configuration file, if any, applies the command-line
// overrides and validates the result.
func loadConfig() (cfg config.PipelineConfig, warnings []string, err error) {
	cfg = config.Default()
	if configPath != "" {
		if cfg, _, err = config.Load(configPath); err != nil {
			return cfg, nil, err
		}
	}

	if diameterMM > 0 {
		cfg.Drum.DiameterMM = diameterMM
	}
	if pxPerMM > 0 {
		cfg.Drum.PxPerMM = pxPerMM
	}
	if roiSpec != "" {
		var cx, cy, r int
		if _, err := fmt.Sscanf(strings.ReplaceAll(roiSpec, " ", ""), "%d,%d,%d", &cx, &cy, &r); err != nil {
			return cfg, nil, errors.WithHint(errors.Configf("bad --roi %q", roiSpec), "expected cx,cy,r, e.g. 960,540,420")
		}
		cfg.Drum.CenterX, cfg.Drum.CenterY, cfg.Drum.RadiusPx = cx, cy, r
	}

	warnings, err = cfg.Validate()
	return cfg, warnings, err
}
