// Command millpresenter detects and sizes grinding beads in mill recordings.
package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"mill-presenter/cmd/millpresenter/commands"
)

var rootCmd = &cobra.Command{
	Use:   "millpresenter",
	Short: "Offline bead detection for grinding-mill videos",
	Long: `millpresenter finds the mill drum in a recording, detects the grinding beads
in every frame, sizes them in millimetres and writes a frame-indexed cache.

Available commands:
  detect    - Run detection over a video and write a results cache
  calibrate - Find the drum on one frame and report the px/mm scale
  inspect   - Summarise or export an existing cache
  version   - Show build information

Examples:
  millpresenter detect mill.mp4 -o mill.jsonl
  millpresenter detect frames/ -o runs.db --config mill.toml --limit 300
  millpresenter calibrate mill.mp4 --overlay drum.png
  millpresenter inspect mill.jsonl --export mill.json`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: commands.Setup,
}

func init() {
	commands.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.DetectCmd)
	rootCmd.AddCommand(commands.CalibrateCmd)
	rootCmd.AddCommand(commands.InspectCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	commands.Sync()
	if err != nil {
		pterm.Error.Println(commands.Describe(err))
		os.Exit(1)
	}
}
