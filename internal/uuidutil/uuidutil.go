// Package uuidutil normalizes UUID column values read from the database.
package uuidutil

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseString parses common UUID string formats and returns a normalized lower-case UUID.
func ParseString(raw string) (uuid.UUID, string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid UUID value %q", raw)
	}
	return parsed, parsed.String(), nil
}

// ParseBytes parses RFC-order UUID bytes and returns a normalized lower-case UUID.
func ParseBytes(raw []byte) (uuid.UUID, string, error) {
	parsed, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid UUID bytes: want 16, got %d", len(raw))
	}
	return parsed, parsed.String(), nil
}

// Canonical returns the lower-case hyphenated form of a UUID column value.
// A 16 byte slice is read as binary(16) storage; other byte slices are
// treated as text.
func Canonical(value any) (string, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v.String(), nil
	case [16]byte:
		return uuid.UUID(v).String(), nil
	case []byte:
		if len(v) == 16 {
			_, canonical, err := ParseBytes(v)
			return canonical, err
		}
		_, canonical, err := ParseString(string(v))
		return canonical, err
	case string:
		_, canonical, err := ParseString(v)
		return canonical, err
	default:
		return "", fmt.Errorf("cannot convert %T to uuid", value)
	}
}
