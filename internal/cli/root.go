package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "maxmind-asn-importer",
	Short: "Import MaxMind ASN data into Stealthwatch host groups",
	Long: `maxmind-asn-importer keeps Stealthwatch Enterprise Tags (Host Groups) in
sync with MaxMind's ASN-to-IP-range dataset.

Configured search keywords (exact ASNs or organization-name substrings) are
matched against each dataset snapshot; the resulting IP ranges are uploaded
as host groups under a parent tag, created or updated as needed. Imports are
skipped while the published dataset version is unchanged.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("maxmind-asn-importer v1.0.0")
	},
}

func init() {
	cobra.OnInitialize(initLogging)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper; MAXMIND_IMPORTER_* env vars fill credential gaps
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.SetEnvPrefix("MAXMIND_IMPORTER")
	viper.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
}
