package app

import (
	"context"
	"fmt"
	"log/slog"

	"rowgraph/internal/config"
	"rowgraph/internal/dbexec"
	"rowgraph/internal/logging"
	"rowgraph/internal/observability"
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider feeding it. The logger becomes the slog default.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Log.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Debug("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, telemetryConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func telemetryConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		MetricsFile:      cfg.Observability.MetricsFile,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.DiffMetrics, *observability.HydrationMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(telemetryConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, nil, err
	}

	diffMetrics, err := observability.InitDiffMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	hydrationMetrics, err := observability.InitHydrationMetrics()
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Debug("OpenTelemetry metrics initialized",
		slog.String("metrics_file", cfg.Observability.MetricsFile),
	)
	return meterProvider, diffMetrics, hydrationMetrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Debug("initializing OpenTelemetry tracing",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(ctx, telemetryConfig(cfg, tracesConfig))
}

// openDatabase opens and pings the configured database.
func openDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dbexec.Handle, error) {
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to database",
		slog.String("driver", string(dialect)),
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Database),
		slog.Bool("dsn_present", cfg.Database.ConnectionString != ""),
	)

	handle, err := dbexec.Open(dialect, cfg.Database.DSN(), cfg.OpenOptions(), logger.Logger)
	if err != nil {
		return nil, err
	}
	if err := handle.Ping(ctx, cfg.Database.ConnectionTimeout); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	return handle, nil
}
