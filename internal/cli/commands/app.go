package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/cli/config"
	"github.com/querylint/querylint/internal/cli/ui"
	"github.com/querylint/querylint/internal/entitytree"
	"github.com/querylint/querylint/internal/metadata"
	"github.com/querylint/querylint/internal/metrics"
	"github.com/querylint/querylint/internal/query"
	"github.com/querylint/querylint/internal/schema"
	"github.com/querylint/querylint/internal/sizecheck"
	"github.com/querylint/querylint/internal/tooling"
)

// globalOptions holds the persistent flags of the root command
type globalOptions struct {
	configPath string
	logLevel   string
	noColor    bool
}

// app wires configuration into the analysis components a command needs
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     metadata.Store
	resolver  *metadata.Resolver
	metrics   *metrics.Collector
	validator *tooling.OversizedRecordValidator
	api       *tooling.API

	closers []io.Closer
}

// appOptions adjusts how the app is assembled
type appOptions struct {
	// schemaDir serves metadata from JSON files instead of the schema service
	schemaDir string
}

// reportedError has already been shown to the user
type reportedError struct {
	error
}

func (e *reportedError) Unwrap() error {
	return e.error
}

func newApp(cmd *cobra.Command, global *globalOptions, opts appOptions) (*app, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err.Error(), global.noColor))
		return nil, &reportedError{err}
	}
	if global.logLevel != "" {
		cfg.Log.Level = global.logLevel
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewCollector()}

	// Offline metadata never enters the shared cache
	if opts.schemaDir == "" {
		if a.store, err = a.openStore(); err != nil {
			return nil, err
		}
	}

	service, err := a.openService(opts.schemaDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.resolver = metadata.NewResolver(metadata.Options{
		Service:  service,
		Store:    a.store,
		MaxAge:   cfg.Cache.MaxAge,
		Logger:   logger.Named("metadata"),
		Recorder: a.metrics,
	})
	a.validator = tooling.NewOversizedRecordValidator(
		entitytree.NewBuilder(query.DefaultMarkers(), logger.Named("entitytree")),
		sizecheck.NewEngine(a.resolver, logger.Named("sizecheck")),
		logger.Named("validator"),
	)
	a.api = tooling.NewAPI(
		tooling.WithValidators(a.validator),
		tooling.WithAnalyzer(a.validator),
		tooling.WithRecorder(a.metrics),
		tooling.WithLogger(logger.Named("tooling")),
	)

	return a, nil
}

// newLogger builds a production logger writing to stderr so stdout stays
// free for command output and LSP traffic.
func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = atomicLevel
	zapConfig.Encoding = "console"
	zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func (a *app) openStore() (metadata.Store, error) {
	switch a.cfg.Cache.Backend {
	case config.BackendRedis:
		store, err := metadata.NewRedisStore(metadata.RedisConfig{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			Prefix:   a.cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return metadata.NewFileStore(a.cfg.Cache.Dir)
	}
}

// openService returns nil when no schema source is configured; the resolver
// then treats every lookup as unauthorized.
func (a *app) openService(schemaDir string) (metadata.SchemaService, error) {
	if schemaDir != "" {
		return metadata.LoadStaticService(schemaDir)
	}
	if a.cfg.Schema.URL == "" {
		a.logger.Info("no schema url configured; size checks are disabled")
		return nil, nil
	}
	return schema.NewClient(schema.Config{
		BaseURL: a.cfg.Schema.URL,
		Token:   a.cfg.Schema.Token,
		Timeout: a.cfg.Schema.Timeout,
	}, a.logger.Named("schema"))
}

// Close releases open connections and flushes the logger
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("error closing resource", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
