package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the importer configuration",
	Long: `Manage the importer configuration and run-state file.

The file holds the MaxMind license key and endpoints, the Stealthwatch
connection settings, the per-organization search definitions, and the
last imported dataset version.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", cfg.Path())
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration template",
	Long: `Create the configuration file with documented defaults. Edit it afterwards
to set the MaxMind license key and the search definitions:

  searches:
    - name: Acme
      keywords: ["64500", "acme"]

An all-digit keyword matches an ASN exactly; any other keyword matches the
organization description case-insensitively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgFile); err == nil {
			return fmt.Errorf("config file already exists: %s", cfgFile)
		}

		cfg := config.DefaultConfig()
		cfg.SetPath(cfgFile)
		if err := cfg.Save(); err != nil {
			return err
		}

		fmt.Printf("Created default configuration: %s\n", cfgFile)
		fmt.Printf("Set maxmind.license_key and your searches, then run:\n")
		fmt.Printf("  maxmind-asn-importer sync\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
