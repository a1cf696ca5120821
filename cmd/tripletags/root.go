package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/tripletags/internal/cluster"
	"github.com/hurttlocker/tripletags/internal/config"
	"github.com/hurttlocker/tripletags/internal/ingest"
	"github.com/hurttlocker/tripletags/internal/logger"
	"github.com/hurttlocker/tripletags/internal/metrics"
	"github.com/hurttlocker/tripletags/internal/migrate"
	"github.com/hurttlocker/tripletags/internal/store"
)

type rootFlags struct {
	configPath  string
	dbPath      string
	clusters    string
	logLevel    string
	logFormat   string
	metricsFile string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "tripletags",
		Short:         "Maintain cluster assignments and full text for the document analysis database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.tripletags/config.yaml)")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite database path")
	pf.StringVar(&flags.clusters, "clusters", "", "tag cluster registry (default ./tag_clusters.json)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "", "console or json")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus textfile metrics here on exit")

	root.AddCommand(
		passCmd(&flags, migrate.PassClassify, "Assign each triple its top matching tag clusters", runClassify),
		passCmd(&flags, migrate.PassAssignMisc, "Give unclassified triples the Misc cluster", runAssignMisc),
		passCmd(&flags, migrate.PassIngestText, "Load each document's file contents into full_text", runIngestText),
		passCmd(&flags, "all", "Run classify, assign-misc and ingest-text in order", runAll),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "tripletags %s\n", version)
			},
		},
	)
	return root
}

// app holds everything a pass command needs for one process.
type app struct {
	cfg     config.ResolvedConfig
	log     *zap.Logger
	store   *store.Store
	metrics *metrics.Metrics
	runner  *migrate.Runner
	out     io.Writer
}

type passFunc func(ctx context.Context, a *app) error

func passCmd(flags *rootFlags, name, short string, run passFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			runErr := run(logger.ContextWithLogger(cmd.Context(), a.log), a)
			if err := a.close(); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
}

func newApp(flags *rootFlags, out io.Writer) (*app, error) {
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:     flags.configPath,
		CLIDBPath:      flags.dbPath,
		CLIClusters:    flags.clusters,
		CLILogLevel:    flags.logLevel,
		CLILogFormat:   flags.logFormat,
		CLIMetricsFile: flags.metricsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving config: %w", err)
	}

	log, err := logger.New(cfg.LogFormat.Value, cfg.LogLevel.Value)
	if err != nil {
		return nil, err
	}
	log.Debug("resolved config",
		zap.String("db_path", cfg.DBPath.Value),
		zap.String("db_path_source", string(cfg.DBPath.Source)),
		zap.String("clusters_path", cfg.ClustersPath.Value),
	)

	s, err := store.Open(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	m := metrics.New()
	return &app{
		cfg:     cfg,
		log:     log,
		store:   s,
		metrics: m,
		runner:  migrate.NewRunner(s, log, m),
		out:     out,
	}, nil
}

func (a *app) close() error {
	var err error
	if path := a.cfg.MetricsFile.Value; path != "" {
		if werr := a.metrics.WriteTextfile(path); werr != nil {
			err = werr
		} else {
			a.log.Debug("wrote metrics", zap.String("path", path))
		}
	}
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing store: %w", cerr)
	}
	_ = a.log.Sync()
	return err
}

func (a *app) loadRegistry() (cluster.Registry, error) {
	reg, modified, err := cluster.File{Path: a.cfg.ClustersPath.Value}.Load()
	if err != nil {
		return cluster.Registry{}, err
	}
	if modified {
		a.log.Info("added fallback cluster to registry",
			zap.String("path", a.cfg.ClustersPath.Value),
			zap.String("name", cluster.FallbackName),
			zap.Int("id", cluster.FallbackID),
		)
	}
	return reg, nil
}

func (a *app) report(sum *migrate.Summary) {
	fmt.Fprint(a.out, migrate.FormatSummary(sum))
}

func runClassify(ctx context.Context, a *app) error {
	reg, err := a.loadRegistry()
	if err != nil {
		return err
	}
	sum, err := a.runner.TopClusters(ctx, reg)
	if err != nil {
		return err
	}
	a.report(sum)
	return nil
}

func runAssignMisc(ctx context.Context, a *app) error {
	reg, err := a.loadRegistry()
	if err != nil {
		return err
	}
	sum, err := a.runner.AssignFallback(ctx, reg)
	if err != nil {
		return err
	}
	a.report(sum)
	return nil
}

func runIngestText(ctx context.Context, a *app) error {
	reader, err := ingest.NewReader()
	if err != nil {
		return err
	}
	sum, err := a.runner.IngestFullText(ctx, reader)
	if err != nil {
		return err
	}
	a.report(sum)
	return nil
}

func runAll(ctx context.Context, a *app) error {
	for _, run := range []passFunc{runClassify, runAssignMisc, runIngestText} {
		if err := run(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
