package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"weibocrawler/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	noColor       bool
	notifications bool
	quiet         bool
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weibocrawler",
	Short: "Crawl Weibo timelines into files, databases and object storage",
	Long: `weibocrawler pages through the public timelines of Weibo accounts and
persists every post it reads.

Features:
  - CSV, JSON, PostgreSQL, MongoDB, Neo4j, NATS and key-value record sinks
  - Image and video mirroring into a local folder tree or a GCS bucket
  - Randomized page pacing to stay under upstream throttling
  - Cookie storage using the system keychain or an encrypted file
  - Prometheus metrics and desktop notifications`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
		if noColor {
			ui.SetColorEnabled(false)
		}

		// Don't show logo for certain commands
		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "completion" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.weibocrawler.yaml or ~/.config/weibocrawler/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notifications, "notifications", true, "enable desktop notifications")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print every page instead of a progress bar")

	rootCmd.SetVersionTemplate(`weibocrawler {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// fail prints an error and exits
func fail(msg string, err error) {
	if err != nil {
		ui.PrintError(msg, err.Error())
	} else {
		ui.PrintError(msg)
	}
	os.Exit(1)
}
