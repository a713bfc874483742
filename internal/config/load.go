package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"rowgraph/internal/schemadiff"
)

// EnvPrefix prefixes environment variables: ROWGRAPH_DIFF_FORMAT sets diff.format.
const EnvPrefix = "ROWGRAPH"

// Load loads configuration with the following precedence:
// 1. Explicit overrides (v.Set) – password and DSN files, interactive prompt
// 2. Command line flags that were set
// 3. Environment variables
// 4. Config file
// 5. Default values
//
// fs must have been set up with DefineFlags and parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("rowgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/rowgraph/")
		v.AddConfigPath("$HOME/.rowgraph")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(fs, v)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	if v.GetString("database.dsn") == "" && v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" || f.Name == "help" {
			return
		}
		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags registers every configuration flag on fs using the canonical
// dotted snake_case keys.
func DefineFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Config file path")

	fs.String("database.driver", "", "Database driver (mysql, postgres, sqlite)")
	fs.String("database.dsn", "", "Complete driver DSN")
	fs.String("database.dsn_file", "", "Path to file containing the database DSN (use @- for stdin)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing the database password (use @- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for the database password")
	fs.String("database.database", "", "Database name, or file path for sqlite")
	fs.Int("database.pool.max_open", 0, "Maximum open connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections")
	fs.Duration("database.pool.max_lifetime", 0, "Maximum connection lifetime")
	fs.Duration("database.connection_timeout", 0, "Timeout for the initial connection check")

	fs.StringSlice("hydrate.metadata", nil, "Class mapping documents")
	fs.String("hydrate.query", "", "Query document (SQL and result set mapping)")
	fs.String("hydrate.format", "", "Output format (json, yaml)")
	fs.String("hydrate.output", "", "Write the result to a file instead of stdout")
	fs.Bool("hydrate.partial_objects", false, "Skip association initialization")
	fs.Bool("hydrate.refresh", false, "Overwrite fields of already managed entities")
	fs.Bool("hydrate.defer_eager", false, "Run eager loads after the row loop")
	fs.Bool("hydrate.eager_loading", false, "Load associations declared eager with follow-up queries")
	fs.Duration("hydrate.timeout", 0, "Timeout for the whole hydrate run")

	fs.String("diff.from", "", "Location of the current schema")
	fs.String("diff.to", "", "Location of the target schema")
	fs.String("diff.format", "", "Change set format (json, yaml, msgpack)")
	fs.String("diff.output", "", "Write the change set to a file instead of stdout")
	fs.String("diff.from_prefix", "", "Class prefix stripped from the current schema")
	fs.String("diff.to_prefix", "", "Class prefix stripped from the target schema")
	fs.StringSlice("diff.ignore_tables", nil, "Tables left out of the diff")
	fs.Bool("diff.fail_on_changes", false, "Exit with status 2 when changes are found")
	fs.Bool("diff.watch", false, "Re-run the diff when local schema files change")
	fs.Duration("diff.watch_debounce", 0, "Quiet period before a watched change re-runs the diff")
	fs.StringSlice("diff.filters.allow_tables", nil, "Table globs to include")
	fs.StringSlice("diff.filters.deny_tables", nil, "Table globs to exclude")
	fs.String("diff.s3.region", "", "S3 region")
	fs.String("diff.s3.endpoint", "", "S3 endpoint override")
	fs.Bool("diff.s3.path_style", false, "Use path-style S3 addressing")

	fs.String("log.level", "", "Log level (debug, info, warn, error)")
	fs.String("log.format", "", "Log format (json, text)")
	fs.Bool("log.exports_enabled", false, "Enable OTLP log export")

	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.String("observability.metrics_file", "", "Prometheus textfile written on exit")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.Bool("observability.sqlcommenter_enabled", false, "Inject trace context into SQL queries")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.pool.max_open", 10)
	v.SetDefault("database.pool.max_idle", 2)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 10*time.Second)

	v.SetDefault("hydrate.metadata", []string{})
	v.SetDefault("hydrate.query", "")
	v.SetDefault("hydrate.format", "json")
	v.SetDefault("hydrate.output", "")
	v.SetDefault("hydrate.partial_objects", false)
	v.SetDefault("hydrate.refresh", false)
	v.SetDefault("hydrate.defer_eager", false)
	v.SetDefault("hydrate.eager_loading", true)
	v.SetDefault("hydrate.timeout", 0)

	v.SetDefault("diff.from", "")
	v.SetDefault("diff.to", "")
	v.SetDefault("diff.format", "json")
	v.SetDefault("diff.output", "")
	v.SetDefault("diff.from_prefix", schemadiff.DefaultFromPrefix)
	v.SetDefault("diff.to_prefix", schemadiff.DefaultToPrefix)
	v.SetDefault("diff.ignore_tables", []string{schemadiff.DefaultMigrationTable})
	v.SetDefault("diff.fail_on_changes", false)
	v.SetDefault("diff.watch", false)
	v.SetDefault("diff.watch_debounce", 250*time.Millisecond)
	v.SetDefault("diff.filters.allow_tables", []string{})
	v.SetDefault("diff.filters.deny_tables", []string{})
	v.SetDefault("diff.filters.allow_columns", map[string][]string{})
	v.SetDefault("diff.filters.deny_columns", map[string][]string{})
	v.SetDefault("diff.naming.plural_overrides", map[string]string{})
	v.SetDefault("diff.naming.singular_overrides", map[string]string{})
	v.SetDefault("diff.naming.class_overrides", map[string]string{})
	v.SetDefault("diff.s3.region", "")
	v.SetDefault("diff.s3.endpoint", "")
	v.SetDefault("diff.s3.path_style", false)
	v.SetDefault("diff.s3.access_key_id", "")
	v.SetDefault("diff.s3.secret_access_key", "")
	v.SetDefault("diff.s3.session_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.exports_enabled", false)

	v.SetDefault("observability.service_name", "rowgraph")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.metrics_file", "")
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sqlcommenter_enabled", false)

	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

// promptPassword prompts for a password without echo. The prompt goes to
// stderr so stdout stays free for command output.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error
	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"database.dsn_file",
		"database.password_file",
	}
	var stdinKeys []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			stdinKeys = append(stdinKeys, key)
		}
	}
	if len(stdinKeys) > 1 {
		return fmt.Errorf("only one file-backed setting may read from stdin (@-): %s", strings.Join(stdinKeys, ", "))
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
