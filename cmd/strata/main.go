// Command strata writes, inspects and scans row-group files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/strata/pkg/config"
	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/ajitpratap0/strata/pkg/logger"
	"github.com/ajitpratap0/strata/pkg/match"
	"github.com/ajitpratap0/strata/pkg/metrics"
	"github.com/ajitpratap0/strata/pkg/observability"
	"github.com/ajitpratap0/strata/pkg/performance"
	"github.com/ajitpratap0/strata/pkg/rgfile"
)

var version = "0.1.0"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a failure to the process status: 2 for bad invocations, 3
// for unreadable files, 1 for everything else.
func exitCode(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeValidation, errors.ErrorTypeConfig:
		return 2
	case errors.ErrorTypeCorrupt, errors.ErrorTypeSchema:
		return 3
	default:
		return 1
	}
}

// run executes the CLI with args and tears down logging and tracing before
// returning the command's error.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{v: viper.New()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(stderr, err); err == nil {
		err = cerr
	}
	return err
}

// app carries the state shared by every command once the configuration is
// resolved.
type app struct {
	v        *viper.Viper
	stats    bool
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	monitor  *performance.ResourceMonitor
	span     trace.Span
	shutdown func(context.Context) error
}

// bindings maps configuration keys to the flags that override them.
var bindings = []struct{ key, flag string }{
	{"logging.level", "log-level"},
	{"logging.encoding", "log-format"},
	{"tracing.enabled", "trace"},
	{"tracing.exporter", "trace-exporter"},
	{"metrics.enabled", "metrics"},
	{"reader.sequential", "sequential"},
	{"reader.case_sensitive", "case-sensitive"},
	{"reader.vectorized", "vectorized"},
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "strata",
		Short: "Strata - columnar row-group files with predicate pushdown",
		Long: `Strata stores typed columns in row groups with per-column zone maps.
Scans evaluate filters against the zone maps first and only decompress
the columns a filter or an output row actually touches.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log encoding (json, console)")
	flags.Bool("trace", false, "Export OpenTelemetry spans")
	flags.String("trace-exporter", "stdout", "Span exporter (stdout, none)")
	flags.Bool("metrics", true, "Collect Prometheus metrics")
	flags.Bool("sequential", true, "Advise sequential access on mapped files")
	flags.Bool("case-sensitive", true, "Default case sensitivity of string filters")
	flags.Bool("vectorized", true, "Use unrolled match kernels when the CPU allows")
	flags.BoolVar(&a.stats, "stats", false, "Print metrics and resource usage to stderr on exit")

	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	for _, b := range bindings {
		_ = a.v.BindPFlag(b.key, flags.Lookup(b.flag))
	}
	a.v.SetEnvPrefix("STRATA")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.versionCmd(),
		a.configCmd(),
		a.genCmd(),
		a.catCmd(),
		a.headCmd(),
		a.countCmd(),
		a.dumpCmd(),
		a.analyzeCmd(),
		a.exportCmd(),
	)
	return root
}

// setup resolves the configuration (defaults, then the config file, then
// environment and flags) and installs logging, metrics and tracing.
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	a.override(cfg)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid configuration")
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	logger.Set(log)
	ctx := context.WithValue(cmd.Context(), logger.CommandKey, cmd.Name())
	a.logger = logger.WithContext(ctx)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(cfg.Metrics.Component)
	}
	if !cfg.Reader.Vectorized {
		match.SetVectorized(false)
	}
	if a.stats {
		if a.monitor, err = performance.NewResourceMonitor(); err != nil {
			a.logger.Warn("resource monitor unavailable", zap.Error(err))
		}
	}

	if cfg.Tracing.Enabled {
		tcfg := cfg.Tracing.Observability("strata")
		tcfg.ServiceVersion = version
		tcfg.Output = cmd.ErrOrStderr()
		shutdown, err := observability.InitTracing(tcfg)
		if err != nil {
			return err
		}
		a.shutdown = shutdown
	}
	ctx, span := observability.StartSpan(ctx, "strata."+cmd.Name())
	cmd.SetContext(ctx)
	a.span = span
	return nil
}

// override applies the environment and flag values viper knows about.
func (a *app) override(cfg *config.Config) {
	set := func(key string, apply func()) {
		if a.v.IsSet(key) {
			apply()
		}
	}
	set("logging.level", func() { cfg.Logging.Level = a.v.GetString("logging.level") })
	set("logging.encoding", func() { cfg.Logging.Encoding = a.v.GetString("logging.encoding") })
	set("tracing.enabled", func() { cfg.Tracing.Enabled = a.v.GetBool("tracing.enabled") })
	set("tracing.exporter", func() { cfg.Tracing.Exporter = a.v.GetString("tracing.exporter") })
	set("metrics.enabled", func() { cfg.Metrics.Enabled = a.v.GetBool("metrics.enabled") })
	set("reader.sequential", func() { cfg.Reader.Sequential = a.v.GetBool("reader.sequential") })
	set("reader.case_sensitive", func() { cfg.Reader.CaseSensitive = a.v.GetBool("reader.case_sensitive") })
	set("reader.vectorized", func() { cfg.Reader.Vectorized = a.v.GetBool("reader.vectorized") })
	set("writer.compression", func() { cfg.Writer.Compression = a.v.GetString("writer.compression") })
	set("writer.level", func() { cfg.Writer.Level = a.v.GetInt("writer.level") })
	set("writer.row_group_size", func() { cfg.Writer.RowGroupSize = a.v.GetInt("writer.row_group_size") })
	set("writer.sync", func() { cfg.Writer.Sync = a.v.GetBool("writer.sync") })
}

// close ends the command span, flushes tracing and logging and prints the
// collected statistics when requested.
func (a *app) close(stderr io.Writer, cmdErr error) error {
	if a.span != nil {
		observability.EndSpan(a.span, cmdErr)
	}

	var err error
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := a.shutdown(ctx); serr != nil {
			err = fmt.Errorf("failed to flush traces: %w", serr)
		}
	}
	if a.stats && a.cfg != nil {
		a.printStats(stderr)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func (a *app) printStats(w io.Writer) {
	s := a.metrics.Snapshot()
	fmt.Fprintf(w, "row groups: written=%.0f scanned=%.0f pruned=%.0f\n",
		s.RowGroupsWritten, s.RowGroupsScanned, s.RowGroupsPruned)
	fmt.Fprintf(w, "rows: written=%.0f matched=%.0f\n", s.RowsWritten, s.RowsMatched)
	fmt.Fprintf(w, "bytes: written=%.0f decompressed=%.0f\n", s.BytesWritten, s.BytesDecompressed)
	if a.monitor != nil {
		fmt.Fprintf(w, "resources: %s\n", a.monitor.Usage())
	}
}

// openFile maps a row-group file with the configured reader settings.
func (a *app) openFile(ctx context.Context, path string) (*rgfile.Reader, error) {
	return rgfile.OpenContext(ctx, path,
		rgfile.WithLogger(a.logger),
		rgfile.WithMetrics(a.metrics),
		rgfile.WithAdvice(a.cfg.Reader.Sequential),
	)
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Strata v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Vectorized kernels: %t\n", match.Vectorized())
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
