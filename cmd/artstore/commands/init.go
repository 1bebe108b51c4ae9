package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artstore/artstore/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample ArtStore configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/artstore/config.yaml.
Use --config to specify a custom path.

One file configures all four services; each start command only reads its
own section plus the shared ones, so the same file can be mounted
everywhere.

Examples:
  # Initialize with default location
  artstore init

  # Initialize with custom path
  artstore init --config /etc/artstore/config.yaml

  # Force overwrite existing config
  artstore init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start a service with: artstore start <element|admin|ingester|query>")
	fmt.Printf("  3. Or specify custom config: artstore start admin --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  The admin module signs tokens with rotating RSA keys it generates on")
	fmt.Println("  first start. Point auth.keys.public_key_path on the other services at")
	fmt.Println("  the exported public key, or inline it:")
	fmt.Println("    export ARTSTORE_AUTH_KEYS_PUBLIC_KEY_PEM=\"$(cat artstore-public.pem)\"")

	return nil
}
