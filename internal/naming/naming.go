package naming

import (
	"log/slog"
	"strings"
	"unicode"
)

// Namer provides the name transformations used when building snapshots from
// live databases and when filling in table names for class-keyed documents.
// A Namer is not safe for concurrent use; give each snapshot its own.
type Namer struct {
	config  Config
	logger  *slog.Logger
	classes *classNames
}

// New creates a Namer. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:  cfg,
		logger:  logger,
		classes: newClassNames(logger),
	}
}

// Default returns a Namer without overrides.
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset forgets the class names claimed so far.
func (n *Namer) Reset() {
	n.classes = newClassNames(n.logger)
}

// ClassName converts a table name to a class name (singular PascalCase).
// Example: "user_profiles" -> "UserProfile"
func (n *Namer) ClassName(tableName string) string {
	if override, ok := lookup(n.config.ClassOverrides, tableName); ok {
		return override
	}
	parts := strings.Split(tableName, "_")
	last := len(parts) - 1
	for last > 0 && parts[last] == "" {
		last--
	}
	parts[last] = n.Singularize(parts[last])
	return toPascalCase(strings.Join(parts, "_"))
}

// TableName converts a class name to a table name (plural snake_case).
// Example: "UserProfile" -> "user_profiles"
func (n *Namer) TableName(className string) string {
	parts := strings.Split(toSnakeCase(className), "_")
	last := len(parts) - 1
	parts[last] = n.Pluralize(parts[last])
	return strings.Join(parts, "_")
}

// RegisterClass derives the class name for a table. When an earlier table of
// the snapshot already produced that name, as "user" and "users" do, the
// result gets a numeric suffix.
func (n *Namer) RegisterClass(tableName string) string {
	return n.classes.claim(n.ClassName(tableName), tableName)
}

func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toSnakeCase splits PascalCase and camelCase words; acronyms stay together.
func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
