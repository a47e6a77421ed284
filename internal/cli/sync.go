package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
	"github.com/CiscoSE/MaxmindAsnImporter/internal/importer"
	"github.com/CiscoSE/MaxmindAsnImporter/internal/util"
)

var (
	daemon   bool
	interval time.Duration
	insecure bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one import cycle, or loop forever with --daemon",
	Long: `Sync fetches the current MaxMind dataset version and, when it differs from
the last imported one, downloads the dataset, matches the configured search
keywords, and creates or updates the corresponding Stealthwatch host groups.

In daemon mode the cycle repeats after a fixed idle interval.

Example:
  maxmind-asn-importer sync
  maxmind-asn-importer sync --daemon --interval 24h
  maxmind-asn-importer sync --insecure`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "run as a daemon, repeating on a fixed interval")
	syncCmd.Flags().DurationVar(&interval, "interval", 0, "daemon sleep between cycles (default: config value or 24h)")
	syncCmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification against the SMC")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := ensureCredentials(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if insecure {
		cfg.Stealthwatch.InsecureTLS = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	imp := importer.New(cfg)

	if daemon {
		iv := interval
		if iv == 0 {
			iv = time.Duration(cfg.Interval)
		}
		if iv == 0 {
			iv = 24 * time.Hour
		}
		return imp.RunDaemon(ctx, iv)
	}
	return imp.Run(ctx)
}

// ensureCredentials fills missing secrets from MAXMIND_IMPORTER_* environment
// variables, then prompts for the SMC fields when stdin is a terminal.
// Anything still missing is an explicit configuration error: the importer
// never blocks on input it cannot get. Prompted values are persisted so the
// next run starts clean.
func ensureCredentials(cfg *config.Config) error {
	if cfg.MaxMind.LicenseKey == "" {
		cfg.MaxMind.LicenseKey = viper.GetString("license_key")
	}
	if cfg.MaxMind.LicenseKey == "" {
		return fmt.Errorf("%w: MaxMind license key (free, register at maxmind.com; set maxmind.license_key or MAXMIND_IMPORTER_LICENSE_KEY)", config.ErrCredentialMissing)
	}

	fields := []struct {
		label  string
		envKey string
		value  *string
		secret bool
	}{
		{"Stealthwatch IP/FQDN Address", "sw_address", &cfg.Stealthwatch.Address, false},
		{"Stealthwatch Username", "sw_username", &cfg.Stealthwatch.Username, false},
		{"Stealthwatch Password", "sw_password", &cfg.Stealthwatch.Password, true},
	}

	changed := false
	for _, f := range fields {
		if *f.value == "" {
			*f.value = viper.GetString(f.envKey)
		}
		if *f.value != "" {
			continue
		}
		if !util.Interactive() {
			return fmt.Errorf("%w: %s", config.ErrCredentialMissing, f.label)
		}

		var (
			input string
			err   error
		)
		if f.secret {
			input, err = util.PromptSecret(f.label)
		} else {
			input, err = util.Prompt(f.label)
		}
		if err != nil {
			return err
		}
		if input == "" {
			return fmt.Errorf("%w: %s", config.ErrCredentialMissing, f.label)
		}
		*f.value = input
		changed = true
	}

	if changed {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("persist prompted credentials: %w", err)
		}
	}
	return nil
}
