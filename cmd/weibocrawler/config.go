package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"weibocrawler/pkg/config"
	"weibocrawler/pkg/normalize"
	"weibocrawler/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage weibocrawler configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (WEIBOCRAWLER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write the default configuration with every available option.

The file is created as '.weibocrawler.yaml' in the current directory unless a
different path is given with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the configuration after merging the config file, the environment and
the defaults. Cookies, DSNs and passwords are masked.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file.

This command checks:
  - YAML syntax
  - Required fields for every enabled sink and the remote backend
  - Pacing ranges
  - The output encoding
  - Path accessibility`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

// loadUnvalidated merges the file and the environment over the defaults
// without requiring a crawl to be fully specified.
func loadUnvalidated() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".weibocrawler.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		fail("Failed to create configuration file", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Add the accounts to crawl under crawl.user_ids")
	fmt.Println("2. Store a cookie with 'weibocrawler auth set'")
	fmt.Println("3. Run 'weibocrawler config validate' to check the configuration")
	fmt.Println("4. Start crawling with 'weibocrawler crawl'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := loadUnvalidated()
	if err != nil {
		fail("Failed to load configuration", err)
	}

	display := maskConfig(*cfg)
	data, err := yaml.Marshal(&display)
	if err != nil {
		fail("Failed to format configuration", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (WEIBOCRAWLER_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
}

// maskConfig hides secrets before display
func maskConfig(cfg config.Config) config.Config {
	cfg.Weibo.Cookie = mask(cfg.Weibo.Cookie)
	cfg.Sinks.Postgres.DSN = mask(cfg.Sinks.Postgres.DSN)
	cfg.Sinks.Mongo.URI = mask(cfg.Sinks.Mongo.URI)
	cfg.Sinks.Neo4j.Password = mask(cfg.Sinks.Neo4j.Password)
	return cfg
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	ui.PrintInfo("Validating configuration", configFile)

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		fail("Configuration validation failed", err)
	}

	warnings := []string{}
	problems := []string{}

	if cfg.Weibo.Cookie == "" {
		warnings = append(warnings, "no cookie configured; a stored one is used if present")
	}
	if _, err := normalize.NewSanitizer(cfg.Crawl.Encoding); err != nil {
		problems = append(problems, err.Error())
	}

	dirs := map[string]string{}
	if cfg.Media.AnyEnabled() {
		dirs["media output"] = cfg.Media.OutputDir
		if cfg.Remote.Backend == config.RemoteLocal {
			dirs["remote base"] = cfg.Remote.Local.BaseDir
		}
	}
	for _, name := range cfg.Sinks.Enabled {
		switch name {
		case config.SinkCSV:
			dirs["csv sink"] = cfg.Sinks.CSV.Dir
		case config.SinkJSON:
			dirs["json sink"] = cfg.Sinks.JSON.Dir
		}
	}
	if cfg.Logging.File != "" {
		dirs["log"] = filepath.Dir(cfg.Logging.File)
	}
	for label, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create %s directory: %v", label, err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	ids, err := cfg.ResolveUserIDs()
	if err != nil {
		fail("Failed to read user ids", err)
	}
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Accounts: %d\n", len(ids))
	fmt.Printf("  Sinks: %v\n", cfg.Sinks.Enabled)
	fmt.Printf("  Remote backend: %s\n", cfg.Remote.Backend)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.Weibo.RequestsPerMinute)
	fmt.Printf("  Pause every %d-%d pages for %s-%s\n",
		cfg.Crawl.PauseEveryMin, cfg.Crawl.PauseEveryMax, cfg.Crawl.PauseMin, cfg.Crawl.PauseMax)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
