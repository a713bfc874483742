// Package schemasource loads schema snapshots from documents, object storage
// and live databases.
package schemasource

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"rowgraph/internal/dbexec"
	"rowgraph/internal/naming"
	"rowgraph/internal/schemadiff"
	"rowgraph/internal/schemafilter"
	"rowgraph/internal/schemanaming"
)

// Source produces one snapshot.
type Source interface {
	Load(ctx context.Context) (schemadiff.Snapshot, error)
	// Location identifies the source in logs and errors. Credentials are
	// never included.
	Location() string
}

// Config controls how locations are opened and how loaded snapshots are
// post-processed.
type Config struct {
	Filter   schemafilter.Config `mapstructure:"filter"`
	Naming   naming.Config       `mapstructure:"naming"`
	S3       S3Config            `mapstructure:"s3"`
	Database dbexec.OpenOptions  `mapstructure:"-"`
}

// Loader opens locations and loads snapshots from them.
type Loader struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	s3Client S3API
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithS3Client sets the client used for s3:// locations instead of one built
// from the S3 config.
func WithS3Client(client S3API) Option {
	return func(l *Loader) { l.s3Client = client }
}

// NewLoader creates a Loader.
func NewLoader(cfg Config, opts ...Option) *Loader {
	l := &Loader{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Open returns the source for a location. Locations are file or directory
// paths (optionally file://), s3://bucket/key, or mysql://, sqlite:// and
// postgres:// database URLs.
func (l *Loader) Open(ctx context.Context, location string) (Source, error) {
	namer := naming.New(l.cfg.Naming, l.logger)
	scheme, _, hasScheme := strings.Cut(location, "://")
	if !hasScheme {
		return NewFileSource(location, namer), nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		return NewFileSource(strings.TrimPrefix(location, scheme+"://"), namer), nil
	case "s3":
		client, err := l.s3(ctx)
		if err != nil {
			return nil, err
		}
		return NewS3Source(client, location, namer)
	case "mysql", "tidb", "mariadb", "sqlite", "sqlite3", "postgres", "postgresql":
		return NewDatabaseSource(location, l.cfg.Database, l.logger)
	default:
		return nil, fmt.Errorf("unsupported schema location scheme %q", scheme)
	}
}

func (l *Loader) s3(ctx context.Context) (S3API, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.s3Client != nil {
		return l.s3Client, nil
	}
	client, err := NewS3Client(ctx, l.cfg.S3)
	if err != nil {
		return nil, err
	}
	l.s3Client = client
	return client, nil
}

// Load opens the location and loads its snapshot. Table filters are applied
// and tables without a class get one derived from their name. Every error is
// a *SourceError or *NotFoundError naming the location.
func (l *Loader) Load(ctx context.Context, location string) (schemadiff.Snapshot, error) {
	ctx, span := otel.Tracer("rowgraph/schemasource").Start(ctx, "schemasource.load")
	defer span.End()

	src, err := l.Open(ctx, location)
	if err != nil {
		err = wrap(location, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return schemadiff.Snapshot{}, err
	}
	span.SetAttributes(attribute.String("schemasource.location", src.Location()))

	snapshot, err := src.Load(ctx)
	if err != nil {
		err = wrap(src.Location(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return schemadiff.Snapshot{}, err
	}

	schemafilter.Apply(&snapshot, l.cfg.Filter)
	schemanaming.Apply(&snapshot, naming.New(l.cfg.Naming, l.logger))
	if snapshot.Name == "" {
		snapshot.Name = src.Location()
	}

	span.SetAttributes(attribute.Int("schemasource.tables", len(snapshot.Tables)))
	l.logger.Debug("schema snapshot loaded",
		slog.String("location", src.Location()),
		slog.Int("tables", len(snapshot.Tables)),
	)
	return snapshot, nil
}

// LoadPair loads the "from" and "to" snapshots concurrently. A failure on
// either side cancels the other and is returned.
func (l *Loader) LoadPair(ctx context.Context, from, to string) (schemadiff.Snapshot, schemadiff.Snapshot, error) {
	var fromSnapshot, toSnapshot schemadiff.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fromSnapshot, err = l.Load(gctx, from)
		return err
	})
	g.Go(func() error {
		var err error
		toSnapshot, err = l.Load(gctx, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return schemadiff.Snapshot{}, schemadiff.Snapshot{}, err
	}
	return fromSnapshot, toSnapshot, nil
}
