package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags; it defaults to "dev" for
// local builds.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the chfs version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("chfs", Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
