package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize returns the plural of word. Overrides match case-insensitively.
func (n *Namer) Pluralize(word string) string {
	return inflect(word, n.config.PluralOverrides, inflection.Plural)
}

// Singularize returns the singular of word. Overrides match case-insensitively.
func (n *Namer) Singularize(word string) string {
	return inflect(word, n.config.SingularOverrides, inflection.Singular)
}

func inflect(word string, overrides map[string]string, fallback func(string) string) string {
	if override, ok := lookup(overrides, word); ok {
		return override
	}
	return fallback(word)
}

// lookup finds key in m exactly, then ignoring case. Config maps decoded by
// viper arrive with lower-cased keys.
func lookup(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	v, ok := m[strings.ToLower(key)]
	return v, ok
}
