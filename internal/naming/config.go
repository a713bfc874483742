// Package naming derives class names from table names and back for schema
// snapshots, with inflection overrides and per-snapshot collision suffixes.
package naming

// Config holds naming overrides. Keys match case-insensitively.
type Config struct {
	// PluralOverrides maps a singular word to its plural, e.g. {"person": "people"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
	// SingularOverrides maps a plural word to its singular, e.g. {"data": "datum"}.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
	// ClassOverrides maps a table name to a class name, e.g. {"tbl_user": "Member"}.
	ClassOverrides map[string]string `mapstructure:"class_overrides"`
}

// DefaultConfig returns a Config with empty override maps.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   map[string]string{},
		SingularOverrides: map[string]string{},
		ClassOverrides:    map[string]string{},
	}
}
