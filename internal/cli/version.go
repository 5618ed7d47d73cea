package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, overridden with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the mfu build",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mfu version %s\n  commit %s\n  built  %s\n", Version, Commit, BuildDate)
	},
}

// VersionString is the short form reported by /api/health.
func VersionString() string {
	return fmt.Sprintf("%s+%s", Version, Commit)
}
