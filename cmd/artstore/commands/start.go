package commands

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an ArtStore service",
	Long: `Start one of the ArtStore services.

All services read the same configuration file; each one only uses the
sections relevant to it, so a single file can describe a whole deployment.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/artstore/config.yaml.

Examples:
  # Start a storage element
  artstore start element

  # Start the admin module with a custom config file
  artstore start admin --config /etc/artstore/config.yaml

  # Start the ingester with environment variable overrides
  ARTSTORE_LOGGING_LEVEL=DEBUG artstore start ingester`,
}

func init() {
	startCmd.AddCommand(startElementCmd)
	startCmd.AddCommand(startAdminCmd)
	startCmd.AddCommand(startIngesterCmd)
	startCmd.AddCommand(startQueryCmd)
}
