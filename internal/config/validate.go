package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"rowgraph/internal/naming"
	"rowgraph/internal/render"
	"rowgraph/internal/schemadiff"
	"rowgraph/internal/schemafilter"
	"rowgraph/internal/sqlutil"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Command names accepted by ValidateCommand.
const (
	CommandDiff    = "diff"
	CommandHydrate = "hydrate"
)

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Hydrate.validate(result)
	c.Diff.validate(result)
	c.Log.validate(result)
	c.Observability.validate(result)

	return result
}

// ValidateCommand runs Validate and adds the checks that only matter for the
// named command, such as required inputs. The database section is only
// checked for hydrate.
func (c *Config) ValidateCommand(command string) *ValidationResult {
	result := &ValidationResult{}
	switch command {
	case CommandDiff:
		c.Diff.validate(result)
		c.Diff.validateInputs(result)
	case CommandHydrate:
		c.Database.validate(result)
		c.Hydrate.validate(result)
		c.Hydrate.validateInputs(result)
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "command",
			Message: fmt.Sprintf("unknown command %q", command),
			Hint:    "valid commands are: diff, hydrate",
		})
	}
	c.Log.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	dialect, err := d.Dialect()
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.driver",
			Message: err.Error(),
			Hint:    "valid values are: mysql, postgres, sqlite",
		})
		return
	}

	if dialect == sqlutil.SQLite {
		if d.ConnectionString == "" && strings.TrimSpace(d.Database) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.database",
				Message: "sqlite requires a database file path",
				Hint:    "set database.database to the file path or database.dsn",
			})
		}
	} else if d.ConnectionString == "" {
		if strings.TrimSpace(d.Host) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.host",
				Message: "host cannot be empty",
			})
		}
		if d.Port < 1 || d.Port > 65535 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
			})
		}
	}

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "max_open cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "max_idle cannot be negative",
		})
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: "max_idle is greater than max_open",
			Hint:    "idle connections will be limited to max_open",
		})
	}
	if d.ConnectionTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.connection_timeout",
			Message: "connection_timeout cannot be negative",
		})
	}
}

func (h *HydrateConfig) validate(result *ValidationResult) {
	if _, err := render.ParseFormat(h.Format); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hydrate.format",
			Message: err.Error(),
			Hint:    "valid values are: json, yaml",
		})
	}
	if h.Timeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hydrate.timeout",
			Message: "timeout cannot be negative",
		})
	}
	if h.PartialObjects && h.EagerLoading {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "hydrate.partial_objects",
			Message: "partial_objects skips association initialization",
			Hint:    "eager loading has no effect for partial objects",
		})
	}
}

func (h *HydrateConfig) validateInputs(result *ValidationResult) {
	if strings.TrimSpace(h.Query) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hydrate.query",
			Message: "query document is required",
		})
	}
	if len(h.Metadata) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "hydrate.metadata",
			Message: "at least one class mapping document is required",
		})
	}
}

func (d *DiffConfig) validate(result *ValidationResult) {
	if _, err := schemadiff.ParseFormat(d.Format); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "diff.format",
			Message: err.Error(),
			Hint:    "valid values are: json, yaml, msgpack",
		})
	}
	if d.WatchDebounce < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "diff.watch_debounce",
			Message: "watch_debounce cannot be negative",
		})
	}
	for _, table := range d.IgnoreTables {
		if strings.TrimSpace(table) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "diff.ignore_tables",
				Message: "table name cannot be empty",
			})
		}
	}
	validateSchemaFilters(result, d.Filters)
	validateNamingConfig(result, d.Naming)
}

func (d *DiffConfig) validateInputs(result *ValidationResult) {
	if strings.TrimSpace(d.From) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "diff.from",
			Message: "location of the current schema is required",
		})
	}
	if strings.TrimSpace(d.To) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "diff.to",
			Message: "location of the target schema is required",
		})
	}
	if d.Watch && !IsLocalLocation(d.From) && !IsLocalLocation(d.To) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "diff.watch",
			Message: "watch mode needs at least one local file or directory location",
			Hint:    "database and s3 locations cannot be watched",
		})
	}
}

// IsLocalLocation reports whether a schema location is a file or directory
// path rather than an s3 or database URL.
func IsLocalLocation(location string) bool {
	location = strings.TrimSpace(location)
	if location == "" {
		return false
	}
	scheme, _, ok := strings.Cut(location, "://")
	return !ok || strings.EqualFold(scheme, "file")
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "diff.filters.allow_tables", filters.AllowTables)
	validateGlobList(result, "diff.filters.deny_tables", filters.DenyTables)
	validatePatternMap(result, "diff.filters.allow_columns", filters.AllowColumns)
	validatePatternMap(result, "diff.filters.deny_columns", filters.DenyColumns)
}

var pascalCaseClassPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for tableName, className := range cfg.ClassOverrides {
		tableName = strings.TrimSpace(tableName)
		className = strings.TrimSpace(className)
		if tableName == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "diff.naming.class_overrides",
				Message: "table name cannot be empty",
			})
			continue
		}
		if className == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "diff.naming.class_overrides",
				Message: fmt.Sprintf("class override for table %q cannot be empty", tableName),
			})
			continue
		}
		if !pascalCaseClassPattern.MatchString(className) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "diff.naming.class_overrides",
				Message: fmt.Sprintf("class override %q for table %q must be PascalCase", className, tableName),
			})
		}
	}
	validateWordOverrides(result, "diff.naming.plural_overrides", cfg.PluralOverrides)
	validateWordOverrides(result, "diff.naming.singular_overrides", cfg.SingularOverrides)
}

func validateWordOverrides(result *ValidationResult, field string, overrides map[string]string) {
	for from, to := range overrides {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("override %q -> %q has an empty side", from, to),
			})
		}
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		if strings.TrimSpace(tablePattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "table pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "probe"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err),
			})
		}
		for _, columnPattern := range columnPatterns {
			if strings.TrimSpace(columnPattern) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern),
				})
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), "probe"); err != nil {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err),
				})
			}
		}
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: "glob pattern cannot be empty",
			})
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid glob pattern %q: %v", pattern, err),
			})
		}
	}
}

func (l *LogConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(l.Level)] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid log level %q", l.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(l.Format)] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid log format %q", l.Format),
			Hint:    "valid values are: json, text",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside 0.0-1.0", o.TraceSampleRatio),
		})
	}
	if o.MetricsFile != "" && !o.MetricsEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.metrics_file",
			Message: "metrics_file is set but metrics are disabled",
			Hint:    "set observability.metrics_enabled to write the file",
		})
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".endpoint",
			Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			Hint:    "use host:port or a full URL",
		})
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
