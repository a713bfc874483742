package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"rowgraph/internal/dbexec"
	"rowgraph/internal/sqlutil"
)

// Dialect returns the SQL dialect of the configured driver.
func (d *DatabaseConfig) Dialect() (sqlutil.Dialect, error) {
	return sqlutil.ParseDialect(d.Driver)
}

// DSN returns the data source name for the configured driver.
// If ConnectionString is set it is used as given, except that MySQL DSNs
// always get parseTime so DATETIME columns scan into time.Time.
func (d *DatabaseConfig) DSN() string {
	dialect, err := d.Dialect()
	if err != nil {
		return d.ConnectionString
	}

	switch dialect {
	case sqlutil.SQLite:
		if d.ConnectionString != "" {
			return d.ConnectionString
		}
		return d.Database
	case sqlutil.Postgres:
		if d.ConnectionString != "" {
			return d.ConnectionString
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.Database,
		}
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else if d.User != "" {
			u.User = url.User(d.User)
		}
		return u.String()
	default:
		if d.ConnectionString != "" {
			dsn := d.ConnectionString
			if !strings.Contains(dsn, "parseTime") {
				if strings.Contains(dsn, "?") {
					dsn += "&parseTime=true"
				} else {
					dsn += "?parseTime=true"
				}
			}
			return dsn
		}
		cfg := mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN()
	}
}

// OpenOptions returns the pool and instrumentation settings for dbexec.Open.
func (c *Config) OpenOptions() dbexec.OpenOptions {
	return dbexec.OpenOptions{
		Tracing:      c.Observability.TracingEnabled,
		Metrics:      c.Observability.MetricsEnabled,
		SQLCommenter: c.Observability.SQLCommenterEnabled,
		MaxOpen:      c.Database.Pool.MaxOpen,
		MaxIdle:      c.Database.Pool.MaxIdle,
		MaxLifetime:  c.Database.Pool.MaxLifetime,
	}
}
