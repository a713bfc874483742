package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	// Drivers for the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"rowgraph/internal/sqlutil"
)

// OpenOptions controls database handle instrumentation and pooling.
type OpenOptions struct {
	Tracing      bool
	Metrics      bool
	SQLCommenter bool
	MaxOpen      int
	MaxIdle      int
	MaxLifetime  time.Duration
}

// Handle is an open database with its optional stats registration.
type Handle struct {
	DB      *sql.DB
	Dialect sqlutil.Dialect
	stats   interface{ Unregister() error }
}

// Close unregisters stats metrics and closes the database.
func (h *Handle) Close() error {
	if h.stats != nil {
		_ = h.stats.Unregister()
	}
	return h.DB.Close()
}

// Open opens a database for the dialect. When tracing or metrics are enabled
// the handle is wrapped with otelsql.
func Open(dialect sqlutil.Dialect, dsn string, opts OpenOptions, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver := dialect.DriverName()

	if !opts.Tracing && !opts.Metrics {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
		}
		configurePool(db, opts)
		return &Handle{DB: db, Dialect: dialect}, nil
	}

	system := dbSystem(dialect)
	otelOpts := []otelsql.Option{otelsql.WithAttributes(system)}
	if opts.Tracing {
		otelOpts = append(otelOpts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
		if opts.SQLCommenter {
			otelOpts = append(otelOpts, otelsql.WithSQLCommenter(true))
		}
	} else if opts.SQLCommenter {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open(driver, dsn, otelOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	configurePool(db, opts)

	h := &Handle{DB: db, Dialect: dialect}
	if opts.Metrics {
		h.stats, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Debug("database instrumentation enabled",
		slog.String("dialect", string(dialect)),
		slog.Bool("metrics", opts.Metrics),
		slog.Bool("tracing", opts.Tracing),
	)
	return h, nil
}

// Ping verifies the connection within timeout.
func (h *Handle) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := h.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", h.Dialect, err)
	}
	return nil
}

func configurePool(db *sql.DB, opts OpenOptions) {
	if opts.MaxOpen > 0 {
		db.SetMaxOpenConns(opts.MaxOpen)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}
	if opts.MaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.MaxLifetime)
	}
}

func dbSystem(dialect sqlutil.Dialect) attribute.KeyValue {
	switch dialect {
	case sqlutil.SQLite:
		return semconv.DBSystemSqlite
	case sqlutil.Postgres:
		return semconv.DBSystemPostgreSQL
	default:
		return semconv.DBSystemMySQL
	}
}
