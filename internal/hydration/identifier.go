package hydration

import (
	"fmt"
	"strings"
)

var tokenEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// identityKeys accumulates the identity token of every alias of one row.
// Each identifier value is appended as '|' followed by the escaped value, in
// column order, so equal tokens mean equal identifier tuples.
type identityKeys map[string]*strings.Builder

func (k identityKeys) add(alias string, value any) {
	b, ok := k[alias]
	if !ok {
		b = &strings.Builder{}
		k[alias] = b
	}
	b.WriteByte('|')
	b.WriteString(tokenEscaper.Replace(tokenString(value)))
}

func (k identityKeys) token(alias string) string {
	if b, ok := k[alias]; ok {
		return b.String()
	}
	return ""
}

// identityToken builds the token of a full identifier tuple.
func identityToken(values []any) string {
	keys := identityKeys{}
	for _, v := range values {
		keys.add("", v)
	}
	return keys.token("")
}

func tokenString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(value)
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}
