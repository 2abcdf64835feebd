// Command surveyetl downloads survey responses, normalizes them into a
// principal table plus one indicator table per multi-select question, and
// writes the result to CSV files and/or a database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"surveyetl/internal/config"
	"surveyetl/internal/logging"
	"surveyetl/internal/metrics"
	"surveyetl/internal/metrics/datadog"
	"surveyetl/internal/pipeline"
	"surveyetl/internal/probe"
	"surveyetl/internal/source"

	// register all backends with the storage factory.
	_ "surveyetl/internal/storage/mssql"
	_ "surveyetl/internal/storage/postgres"
	_ "surveyetl/internal/storage/sqlite"
)

const defaultConfig = "configs/pesquisa_funec.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks bad invocations; they exit with code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// runMain executes the CLI and returns the process exit code.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "run '%s --help' for usage\n", root.Name())
		return 2
	}
	return 1
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath     string
	verbose        bool
	metricsBackend string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "surveyetl",
		Short:         "Normalize survey responses into relational tables",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          noArgs,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", defaultConfig, "pipeline config (YAML or JSON)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")
	pf.StringVar(&a.metricsBackend, "metrics-backend", "", "metrics backend: none or datadog (default from METRICS_BACKEND)")

	root.AddCommand(
		a.downloadCmd(),
		a.transformCmd(),
		a.loadCmd(),
		a.runCmd(),
		a.validateCmd(),
		a.probeCmd(),
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("unexpected argument %q for %q", args[0], cmd.CommandPath())}
	}
	return nil
}

func (a *app) downloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Fetch the raw responses and save them to download.path",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRunner(cmd.Context(), func(ctx context.Context, r *pipeline.Runner) error {
				raw, err := r.Download(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "downloaded %d responses to %s\n", len(raw.Rows), r.Config.Download.Path)
				return nil
			})
		},
	}
}

func (a *app) transformCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Normalize the raw responses and write one CSV file per table",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRunner(cmd.Context(), func(ctx context.Context, r *pipeline.Runner) error {
				sum, err := r.TransformToDir(ctx, out)
				if err != nil {
					return err
				}
				a.printSummary(sum)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output directory (default output.dir)")
	return cmd
}

func (a *app) loadCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load every CSV table in a directory into the configured database",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRunner(cmd.Context(), func(ctx context.Context, r *pipeline.Runner) error {
				reports, err := r.Load(ctx, dir)
				if err != nil {
					return err
				}
				a.printSummary(&pipeline.Summary{Reports: reports})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of CSV tables (default output.dir)")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Download, transform and load in one pass",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRunner(cmd.Context(), func(ctx context.Context, r *pipeline.Runner) error {
				sum, err := r.Run(ctx)
				if err != nil {
					return err
				}
				a.printSummary(sum)
				return nil
			})
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline config and exit",
		Args:  noArgs,
		RunE: func(*cobra.Command, []string) error {
			if _, err := a.loadConfig(); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "config ok: %s\n", a.configPath)
			return nil
		},
	}
}

func (a *app) probeCmd() *cobra.Command {
	var (
		file     string
		encoding string
		draft    bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Profile the raw responses and optionally draft a pipeline config",
		Long: "probe reads the configured source (or --file) and prints each column's\n" +
			"canonical name and inferred kind. With --draft it prints a starter\n" +
			"pipeline config as YAML instead.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var src config.Source
			job := ""
			if file != "" {
				src = config.Source{Kind: "file", File: &config.FileSource{Path: file, Encoding: encoding}}
			} else {
				p, err := a.loadConfig()
				if err != nil {
					return err
				}
				src, job = p.Source, p.Job
			}

			log, err := logging.New(a.verbose)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			s, err := source.New(src, log)
			if err != nil {
				return err
			}
			raw, err := s.Read(cmd.Context())
			if err != nil {
				return fmt.Errorf("probe: %w", err)
			}

			rep := probe.Inspect(raw)
			if !draft {
				return rep.WriteText(a.stdout)
			}
			p := probe.Draft(rep, probe.DraftOptions{Job: job, Source: src, OutputDir: "output"})
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(p); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	f := cmd.Flags()
	f.StringVar(&file, "file", "", "CSV or XLSX export to probe instead of the configured source")
	f.StringVar(&encoding, "encoding", "", "encoding of --file when CSV (default utf-8)")
	f.BoolVar(&draft, "draft", false, "print a starter pipeline config as YAML")
	return cmd
}

// loadConfig reads and validates the pipeline file, printing every issue.
func (a *app) loadConfig() (config.Pipeline, error) {
	if strings.TrimSpace(a.configPath) == "" {
		return config.Pipeline{}, usageError{errors.New("--config must not be empty")}
	}
	p, err := config.Load(a.configPath)
	if err != nil {
		return config.Pipeline{}, err
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintln(a.stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return config.Pipeline{}, fmt.Errorf("config %s is invalid", a.configPath)
	}
	return p, nil
}

// withRunner owns the logger and metrics backend for the duration of fn.
func (a *app) withRunner(ctx context.Context, fn func(context.Context, *pipeline.Runner) error) error {
	p, err := a.loadConfig()
	if err != nil {
		return err
	}

	log, err := logging.New(a.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	backend := a.metricsBackend
	if backend == "" {
		backend = os.Getenv("METRICS_BACKEND")
	}
	cleanup, err := initMetrics(ctx, log, p.Job, backend)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	r := &pipeline.Runner{Config: p, Log: log}
	if err := fn(ctx, r); err != nil {
		return err
	}
	log.Debug("completed", zap.Duration("took", time.Since(start).Truncate(time.Millisecond)))
	return nil
}

func (a *app) printSummary(sum *pipeline.Summary) {
	if sum.RawRows > 0 {
		fmt.Fprintf(a.stdout, "responses: %d\n", sum.RawRows)
	}
	for _, t := range sum.Tables {
		fmt.Fprintf(a.stdout, "table %s: %d columns, %d rows\n", t.Name, t.Columns, t.Rows)
	}
	for _, f := range sum.Files {
		fmt.Fprintf(a.stdout, "wrote %s\n", f)
	}
	for _, rep := range sum.Reports {
		fmt.Fprintf(a.stdout, "loaded %s: %d inserted, %d skipped\n", rep.Table, rep.Inserted, rep.Skipped)
	}
}

// metricsBackend is what initMetrics needs from a backend: recording plus a
// final flush on shutdown.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = metrics.SetBackend
)

// initMetrics wires the named backend into the metrics package. The returned
// cleanup is never nil and restores the no-op backend after closing.
func initMetrics(ctx context.Context, log *zap.Logger, jobName, backendName string) (func(), error) {
	log = logging.OrNop(log)
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "nop", "noop":
		log.Debug("metrics disabled")
		return noop, nil

	case "datadog", "dd":
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, fmt.Errorf("metrics: %w", err)
		}
		setMetricsBackend(b)
		log.Info("metrics enabled", zap.String("backend", "datadog"), zap.String("job", jobName), zap.Strings("tags", tags))
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close error", zap.Error(err))
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return noop, fmt.Errorf("metrics: unknown backend %q (want none or datadog)", backendName)
	}
}
