// Forecast Dashboard CLI
// This application normalizes heterogeneous forecast CSV exports into a
// canonical schema, derives rolling accuracy metrics, renders interactive
// charts, and serves the web dashboard.
//
// Usage:
//
//	forecastdash normalize --input monthly.csv --output normalized.csv
//	forecastdash metrics --input normalized.csv --output metrics.csv
//	forecastdash render --input monthly.csv --output dashboard.html
//	forecastdash serve --addr :8080
//
// For detailed help on any command, use: forecastdash <command> --help
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/hepviz/go-forecast-dashboard/internal/accuracy"
	"github.com/hepviz/go-forecast-dashboard/internal/cache"
	"github.com/hepviz/go-forecast-dashboard/internal/config"
	"github.com/hepviz/go-forecast-dashboard/internal/dashboard"
	"github.com/hepviz/go-forecast-dashboard/internal/demo"
	pipeerr "github.com/hepviz/go-forecast-dashboard/internal/errors"
	"github.com/hepviz/go-forecast-dashboard/internal/logger"
	"github.com/hepviz/go-forecast-dashboard/internal/models"
	"github.com/hepviz/go-forecast-dashboard/internal/normalize"
	"github.com/hepviz/go-forecast-dashboard/internal/source"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "forecastdash"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitDataError   = 4
)

// CLI holds the initialized application components shared across commands.
type CLI struct {
	config     *config.AppConfig
	logManager *logger.Manager
	logger     *slog.Logger
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "--version", "-v":
		fmt.Printf("%s version %s\n", AppName, Version)
		return
	case "--help", "-h", "help":
		if len(args) > 0 {
			printCommandHelp(args[0])
		} else {
			printUsage()
		}
		return
	}

	cli := &CLI{}
	if err := cli.initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.logManager.Close()

	switch command {
	case "normalize":
		if err := cli.handleNormalize(args); err != nil {
			cli.logger.Error("normalize failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "metrics":
		if err := cli.handleMetrics(args); err != nil {
			cli.logger.Error("metrics failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "render":
		if err := cli.handleRender(args); err != nil {
			cli.logger.Error("render failed", "error", err)
			os.Exit(ExitDataError)
		}
	case "serve":
		if err := cli.handleServe(ctx, args); err != nil {
			cli.logger.Error("serve failed", "error", err)
			os.Exit(ExitDataError)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}
}

// initialize loads configuration and sets up logging.
func (cli *CLI) initialize() error {
	manager := config.NewManager(os.Getenv("CONFIG_PATH"), slog.Default())
	cfg, err := manager.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cli.config = cfg

	logManager, err := logger.NewManager(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	cli.logManager = logManager
	cli.logger = logManager.GetComponentLogger("cli").Logger

	return nil
}

// NormalizeFlags represents flags for the normalize command
type NormalizeFlags struct {
	Input       string
	Output      string
	DateColumn  string
	ValueColumn string
	Help        bool
}

// MetricsFlags represents flags for the metrics command
type MetricsFlags struct {
	Input  string
	Output string
	Help   bool
}

// RenderFlags represents flags for the render command
type RenderFlags struct {
	Input  string
	Output string
	Demo   bool
	Help   bool
}

// ServeFlags represents flags for the serve command
type ServeFlags struct {
	Addr string
	Help bool
}

// handleNormalize runs a raw CSV through the pipeline and writes canonical CSV.
func (cli *CLI) handleNormalize(args []string) error {
	flags, err := parseNormalizeFlags(args)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("normalize")
		return nil
	}
	if flags.Input == "" {
		return fmt.Errorf("--input is required")
	}

	loader := source.NewLoader(cli.logger, source.WithMaxBytes(cli.config.Source.UploadMaxBytes))
	result, err := loader.FromFile(flags.Input)
	if err != nil {
		return err
	}

	table, report, err := normalize.New(cli.logger).Normalize(result.Table, normalize.Options{
		DateColumn:  flags.DateColumn,
		ValueColumn: flags.ValueColumn,
		SampleSize:  cli.config.Pipeline.SampleSize,
	})
	if err != nil {
		return err
	}

	cli.logger.Info("normalized table",
		"source", result.Name,
		"date_column", report.DateColumn,
		"value_column", report.ValueColumn,
		"rows_in", report.RowsIn,
		"rows_out", report.RowsOut,
		"pi80_source", report.PI80Source,
		"pi95_source", report.PI95Source)

	return writeOutput(flags.Output, table.WriteCSV)
}

// handleMetrics derives rolling accuracy metrics from a canonical CSV.
func (cli *CLI) handleMetrics(args []string) error {
	flags, err := parseMetricsFlags(args)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("metrics")
		return nil
	}
	if flags.Input == "" {
		return fmt.Errorf("--input is required")
	}

	f, err := os.Open(flags.Input)
	if err != nil {
		return fmt.Errorf("open %s: %w", flags.Input, err)
	}
	defer f.Close()

	table, err := models.ReadForecastCSV(f)
	if err != nil {
		return fmt.Errorf("read canonical csv: %w", err)
	}

	metrics := accuracy.Compute(table)
	cli.logger.Info("computed metrics", "rows", metrics.Len())

	return writeOutput(flags.Output, metrics.WriteCSV)
}

// handleRender normalizes an input (or generates demo data) and writes the
// chart page as standalone HTML.
func (cli *CLI) handleRender(args []string) error {
	flags, err := parseRenderFlags(args)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("render")
		return nil
	}

	var table *models.ForecastTable
	switch {
	case flags.Demo:
		table = demo.Forecast(time.Now().UTC(), cli.config.Demo.Days, cli.config.Demo.Seed)
	case flags.Input != "":
		loader := source.NewLoader(cli.logger, source.WithMaxBytes(cli.config.Source.UploadMaxBytes))
		result, err := loader.FromFile(flags.Input)
		if err != nil {
			return err
		}
		table, _, err = normalize.New(cli.logger).Normalize(result.Table, normalize.Options{
			DateColumn:  cli.config.Pipeline.DateColumn,
			ValueColumn: cli.config.Pipeline.ValueColumn,
			SampleSize:  cli.config.Pipeline.SampleSize,
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("--input or --demo is required")
	}

	metrics := accuracy.Compute(table)
	output := flags.Output
	if output == "" {
		output = "dashboard.html"
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	defer f.Close()

	if err := dashboard.WriteChartHTML(f, table, metrics); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	cli.logger.Info("rendered dashboard", "output", output, "rows", table.Len())
	return nil
}

// handleServe runs the dashboard HTTP server until interrupted.
func (cli *CLI) handleServe(ctx context.Context, args []string) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	if flags.Help {
		printCommandHelp("serve")
		return nil
	}
	if flags.Addr != "" {
		cli.config.Server.Addr = flags.Addr
	}

	backend, err := cli.createCacheBackend(ctx)
	if err != nil {
		return err
	}
	if backend != nil {
		defer backend.Close()
	}

	loader := source.NewLoader(cli.logger,
		source.WithMaxBytes(cli.config.Source.UploadMaxBytes),
		source.WithRateLimit(cli.config.Source.RateLimit),
		source.WithRetryPolicy(cli.retryPolicy()))

	server := dashboard.NewServer(cli.config, cli.logger, loader, cache.NewLoader(backend))
	return server.Start(ctx)
}

// retryPolicy converts the configured retry settings, falling back to the
// defaults for unparsable durations.
func (cli *CLI) retryPolicy() pipeerr.RetryPolicy {
	policy := pipeerr.DefaultRetryPolicy()
	rp := cli.config.Source.RetryPolicy
	if rp.MaxAttempts > 0 {
		policy.MaxAttempts = rp.MaxAttempts
	}
	if d, err := time.ParseDuration(rp.InitialDelay); err == nil && d > 0 {
		policy.InitialDelay = d
	}
	if d, err := time.ParseDuration(rp.MaxDelay); err == nil && d > 0 {
		policy.MaxDelay = d
	}
	return policy
}

// createCacheBackend builds the configured cache backend, or nil when
// caching is disabled.
func (cli *CLI) createCacheBackend(ctx context.Context) (cache.Cache, error) {
	if !cli.config.Cache.Enabled {
		return nil, nil
	}
	switch cli.config.Cache.Backend {
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cli.config.Cache.RedisAddr,
			Password: cli.config.Cache.RedisPassword,
			DB:       cli.config.Cache.RedisDB,
			TTL:      cli.config.CacheTTLDuration(),
		})
	default:
		return cache.NewMemoryCache(cli.config.CacheTTLDuration()), nil
	}
}

// writeOutput writes via fn to the named file, or stdout when name is empty.
func writeOutput(name string, fn func(w io.Writer) error) error {
	if name == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()
	return fn(f)
}

// Flag parsing functions

func parseNormalizeFlags(args []string) (*NormalizeFlags, error) {
	flags := &NormalizeFlags{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--input", "-i":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--input requires a value")
			}
			flags.Input = args[i+1]
			i++
		case "--output", "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--output requires a value")
			}
			flags.Output = args[i+1]
			i++
		case "--date-column":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--date-column requires a value")
			}
			flags.DateColumn = args[i+1]
			i++
		case "--value-column":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--value-column requires a value")
			}
			flags.ValueColumn = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	return flags, nil
}

func parseMetricsFlags(args []string) (*MetricsFlags, error) {
	flags := &MetricsFlags{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--input", "-i":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--input requires a value")
			}
			flags.Input = args[i+1]
			i++
		case "--output", "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--output requires a value")
			}
			flags.Output = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	return flags, nil
}

func parseRenderFlags(args []string) (*RenderFlags, error) {
	flags := &RenderFlags{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--input", "-i":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--input requires a value")
			}
			flags.Input = args[i+1]
			i++
		case "--output", "-o":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--output requires a value")
			}
			flags.Output = args[i+1]
			i++
		case "--demo":
			flags.Demo = true
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	return flags, nil
}

func parseServeFlags(args []string) (*ServeFlags, error) {
	flags := &ServeFlags{}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr", "-a":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--addr requires a value")
			}
			flags.Addr = args[i+1]
			i++
		case "--help", "-h":
			flags.Help = true
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}
	return flags, nil
}

// Help text

func printUsage() {
	fmt.Printf(`%s - forecast normalization and dashboard

Usage:
  %s <command> [flags]

Commands:
  normalize   Normalize a raw forecast CSV to the canonical schema
  metrics     Derive rolling accuracy metrics from a canonical CSV
  render      Render forecast and metrics charts to standalone HTML
  serve       Run the dashboard web server

Flags:
  --version, -v   Print version information
  --help, -h      Print this help

Use "%s <command> --help" for command details.
`, AppName, AppName, AppName)
}

func printCommandHelp(command string) {
	switch command {
	case "normalize":
		fmt.Printf(`Usage: %s normalize --input <file> [flags]

Normalizes an arbitrary forecast CSV export into the canonical schema
(date,predicted_median,actual,pi80_low,pi80_high,pi95_low,pi95_high).

Flags:
  --input, -i      Input CSV path (required)
  --output, -o     Output path (default: stdout)
  --date-column    Explicit date column (default: auto-detect)
  --value-column   Explicit value column (default: auto-detect)
`, AppName)
	case "metrics":
		fmt.Printf(`Usage: %s metrics --input <file> [flags]

Computes per-row absolute error and trailing MAE/RMSE from a canonical CSV.

Flags:
  --input, -i    Canonical CSV path (required)
  --output, -o   Output path (default: stdout)
`, AppName)
	case "render":
		fmt.Printf(`Usage: %s render [--input <file> | --demo] [flags]

Renders the forecast and accuracy charts to a standalone HTML file.

Flags:
  --input, -i    Raw CSV to normalize and render
  --demo         Render the simulated demo series instead
  --output, -o   Output path (default: dashboard.html)
`, AppName)
	case "serve":
		fmt.Printf(`Usage: %s serve [flags]

Runs the dashboard web server. Configuration comes from CONFIG_PATH and
environment variables.

Flags:
  --addr, -a   Listen address (overrides configuration)
`, AppName)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command '%s'\n\n", command)
		printUsage()
	}
}
