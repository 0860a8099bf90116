// Package cmd provides the command-line interface for LittleSearch.
// It handles command parsing, configuration loading, crawler execution
// and the optional SQLite export.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/littlesearch/littlesearch/internal/config"
	"github.com/littlesearch/littlesearch/internal/crawler"
	"github.com/littlesearch/littlesearch/internal/logging"
	"github.com/littlesearch/littlesearch/internal/report"
	"github.com/littlesearch/littlesearch/internal/storage"
)

const defaultUserAgent = "LittleSearch/1.0"

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "littlesearch [URL]",
	Short: "A polite concurrent web crawler for a small search engine",
	Long: `LittleSearch crawls the web from a start URL and keeps every HTML page
it fetches: title, plain text and outbound links.

Fetches run concurrently with at most one request in flight per host.
Hosts that refuse connections or answer 403 are blocked for the rest of
the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawler,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./littlesearch.yml)")

	addCrawlFlags(rootCmd)
	bindCrawlFlags(rootCmd)

	rootCmd.AddCommand(newReportCmd())
}

// addCrawlFlags registers the crawl flags with defaults taken from config.DefaultConfig
func addCrawlFlags(cmd *cobra.Command) {
	defaults := config.DefaultConfig()
	flags := cmd.Flags()

	flags.Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Crawl bounds
	flags.IntP("max-pages", "n", defaults.MaxPages, "Stop after N fetch tasks (0=unlimited)")
	flags.IntP("concurrency", "c", defaults.Concurrency, "Maximum simultaneous fetches")
	flags.DurationP("delay", "r", defaults.RequestDelay, "Pause after each stored page")
	flags.DurationP("timeout", "t", defaults.RequestTimeout, "HTTP request timeout")
	flags.StringP("user-agent", "u", defaults.UserAgent, "HTTP User-Agent header")
	flags.Int64("max-body-bytes", defaults.MaxBodyBytes, "Truncate response bodies at this size")

	// Politeness
	flags.Bool("respect-robots", defaults.RespectRobots, "Respect robots.txt rules")
	flags.Bool("ignore-robots", false, "Ignore robots.txt rules (same as --respect-robots=false)")
	flags.String("robots-agent", defaults.RobotsAgent, "Agent name matched against robots.txt groups")
	flags.Bool("honor-crawl-delay", defaults.HonorCrawlDelay, "Pace hosts by their robots.txt Crawl-delay")

	// Link scope
	flags.Bool("follow-external-hosts", defaults.FollowExternalHosts, "Follow links to hosts other than the start host")
	flags.Bool("include-subdomains", defaults.IncludeSubdomains, "With --follow-external-hosts=false, also follow the start host's registrable domain")
	flags.StringSlice("include-patterns", []string{}, "Regex patterns for URLs to include")
	flags.StringSlice("exclude-patterns", []string{}, "Regex patterns for URLs to exclude")

	// Output
	flags.StringP("database", "d", "", "Export results to this SQLite database file")
	flags.String("report", "", "Write a Markdown crawl report to this file")
	flags.Duration("stats-interval", defaults.StatsInterval, "Progress log interval (0=off)")
	flags.String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	flags.String("log-format", defaults.Log.Format, "Log format: json or text")
	flags.String("log-file", "", "Also append logs to this file")
}

var flagBindings = []struct {
	viperKey string
	flagName string
}{
	{"max_pages", "max-pages"},
	{"concurrency", "concurrency"},
	{"request_delay", "delay"},
	{"request_timeout", "timeout"},
	{"user_agent", "user-agent"},
	{"max_body_bytes", "max-body-bytes"},
	{"respect_robots", "respect-robots"},
	{"robots_agent", "robots-agent"},
	{"honor_crawl_delay", "honor-crawl-delay"},
	{"follow_external_hosts", "follow-external-hosts"},
	{"include_subdomains", "include-subdomains"},
	{"include_patterns", "include-patterns"},
	{"exclude_patterns", "exclude-patterns"},
	{"database_path", "database"},
	{"report_path", "report"},
	{"stats_interval", "stats-interval"},
	{"log.level", "log-level"},
	{"log.format", "log-format"},
	{"log.file", "log-file"},
}

func bindCrawlFlags(cmd *cobra.Command) {
	for _, bind := range flagBindings {
		if err := viper.BindPFlag(bind.viperKey, cmd.Flags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("littlesearch")
	}

	viper.SetEnvPrefix("LS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	// start_url has no flag; bind it so LS_START_URL is seen by Unmarshal
	_ = viper.BindEnv("start_url")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("LittleSearch/%s", version)
	}
	return "LittleSearch/dev"
}

// loadConfig merges defaults, viper sources and the positional URL
func loadConfig(cmd *cobra.Command, args []string) (*config.CrawlConfig, error) {
	cfg := config.DefaultConfig()

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(args) > 0 {
		cfg.StartURL = args[0]
	}

	if ignore, _ := cmd.Flags().GetBool("ignore-robots"); ignore {
		cfg.RespectRobots = false
	}

	if !cmd.Flags().Changed("user-agent") && cfg.UserAgent == defaultUserAgent {
		cfg.UserAgent = generateUserAgent()
	}

	return cfg, nil
}

func showCurrentConfig(w io.Writer, cfg *config.CrawlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current LittleSearch Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./littlesearch.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: LS_\n\n")

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (LS_ prefix)\n")
	fmt.Fprintf(w, "# 3. Configuration file (littlesearch.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func runCrawler(cmd *cobra.Command, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCloser, err := logging.SetDefault(logging.Config{
		Level:    logging.ParseLevel(cfg.Log.Level),
		Format:   cfg.Log.Format,
		FilePath: cfg.Log.File,
		Console:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	for _, path := range []string{cfg.DatabasePath, cfg.ReportPath} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting crawler with configuration:\n")
	fmt.Fprintf(out, "  Start URL: %s\n", cfg.StartURL)
	fmt.Fprintf(out, "  Max Pages: %d\n", cfg.MaxPages)
	fmt.Fprintf(out, "  Concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(out, "  Request Delay: %v\n", cfg.RequestDelay)
	fmt.Fprintf(out, "  Respect Robots: %t\n", cfg.RespectRobots)
	fmt.Fprintf(out, "  Follow External Hosts: %t\n", cfg.FollowExternalHosts)
	if cfg.DatabasePath != "" {
		fmt.Fprintf(out, "  Database: %s\n", cfg.DatabasePath)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := crawler.NewCrawler(cfg, crawler.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}
	defer func() { _ = c.Close() }()

	pages, runErr := c.Run(ctx)
	interrupted := runErr != nil

	printSummary(out, c.Stats(), c.Errors(), c.BlockedHosts(), interrupted)

	if cfg.DatabasePath != "" {
		if err := exportResults(cfg, c, pages, interrupted); err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Fprintf(out, "Results written to %s\n", cfg.DatabasePath)
	}

	if cfg.ReportPath != "" {
		if err := writeReport(cfg, c, pages, interrupted); err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Fprintf(out, "Report written to %s\n", cfg.ReportPath)
	}

	return runErr
}

func printSummary(w io.Writer, stats crawler.CrawlStats, crawlErrors []crawler.CrawlError, blocked []string, interrupted bool) {
	fmt.Fprintf(w, "\nCrawl summary:\n")
	if interrupted {
		fmt.Fprintf(w, "  Status: interrupted\n")
	}
	fmt.Fprintf(w, "  Pages stored: %d\n", stats.PagesStored)
	fmt.Fprintf(w, "  URLs visited: %d\n", stats.Visited)
	fmt.Fprintf(w, "  Still pending: %d\n", stats.Pending)
	fmt.Fprintf(w, "  Duration: %v\n", stats.Duration.Round(time.Millisecond))

	if len(blocked) > 0 {
		fmt.Fprintf(w, "  Blocked hosts (%d): %s\n", len(blocked), strings.Join(blocked, ", "))
	}

	if len(crawlErrors) > 0 {
		counts := make(map[string]int)
		for _, e := range crawlErrors {
			counts[e.ErrorType]++
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)

		fmt.Fprintf(w, "  Errors (%d):\n", len(crawlErrors))
		for _, t := range types {
			fmt.Fprintf(w, "    %s: %d\n", t, counts[t])
		}
	}
}

// exportResults writes the finished (or interrupted) crawl to SQLite
func exportResults(cfg *config.CrawlConfig, c *crawler.Crawler, pages *crawler.PageStore, interrupted bool) error {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	stats := c.Stats()
	res := &storage.Result{
		Pages:        pages.All(),
		BlockedHosts: c.BlockedHosts(),
		Errors:       c.Errors(),
		Meta: map[string]string{
			"start_url":    cfg.StartURL,
			"user_agent":   cfg.UserAgent,
			"max_pages":    strconv.Itoa(cfg.MaxPages),
			"concurrency":  strconv.Itoa(cfg.Concurrency),
			"pages_stored": strconv.Itoa(stats.PagesStored),
			"visited":      strconv.Itoa(stats.Visited),
			"started_at":   stats.StartTime.UTC().Format(time.RFC3339),
			"finished_at":  time.Now().UTC().Format(time.RFC3339),
			"interrupted":  strconv.FormatBool(interrupted),
		},
	}

	if err := store.SaveResult(res); err != nil {
		return fmt.Errorf("failed to export crawl: %w", err)
	}
	return nil
}

// writeReport renders the crawl as Markdown to cfg.ReportPath
func writeReport(cfg *config.CrawlConfig, c *crawler.Crawler, pages *crawler.PageStore, interrupted bool) error {
	return writeReportFile(cfg.ReportPath, &report.Crawl{
		StartURL:     cfg.StartURL,
		Interrupted:  interrupted,
		Stats:        c.Stats(),
		Pages:        pages.All(),
		BlockedHosts: c.BlockedHosts(),
		Errors:       c.Errors(),
	})
}

func writeReportFile(path string, rc *report.Crawl) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}

	err = report.NewMarkdownWriter(f).Write(rc)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close report: %w", closeErr)
	}
	return err
}
