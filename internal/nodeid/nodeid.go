// Package nodeid encodes and decodes opaque entity IDs built from a class name
// and identifier values.
package nodeid

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"rowgraph/internal/metadata"
)

// Encode marshals the class name and identifier values into a base64-encoded JSON array.
func Encode(className string, idValues ...any) string {
	payload := make([]any, 0, len(idValues)+1)
	payload = append(payload, className)
	payload = append(payload, idValues...)
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses an encoded ID and returns the class name and raw identifier
// values. Numbers are returned as json.Number so large integers survive.
func Decode(id string) (string, []any, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return "", nil, fmt.Errorf("invalid id: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload []any
	if err := dec.Decode(&payload); err != nil {
		return "", nil, fmt.Errorf("invalid id: %w", err)
	}
	if len(payload) < 2 {
		return "", nil, errors.New("invalid id: missing class or identifier values")
	}
	className, ok := payload[0].(string)
	if !ok || className == "" {
		return "", nil, errors.New("invalid id: missing class name")
	}
	return className, payload[1:], nil
}

// ParseIdentifier converts decoded identifier values into the Go types of
// the class's identifier fields, so they can be used for identity map lookups.
func ParseIdentifier(class *metadata.ClassMetadata, raw []any) ([]any, error) {
	if len(raw) != len(class.IdentifierFields) {
		return nil, fmt.Errorf("class %s has %d identifier fields, id carries %d values",
			class.Name, len(class.IdentifierFields), len(raw))
	}
	values := make([]any, len(raw))
	for i, field := range class.IdentifierFields {
		if raw[i] == nil {
			return nil, fmt.Errorf("missing identifier value for %s.%s", class.Name, field)
		}
		typ := ""
		if fm, ok := class.Fields[field]; ok {
			typ = fm.Type
		}
		value := raw[i]
		if n, ok := value.(json.Number); ok {
			value = n.String()
		}
		converted, err := metadata.ConvertValue(typ, value)
		if err != nil {
			return nil, fmt.Errorf("invalid identifier value for %s.%s: %w", class.Name, field, err)
		}
		values[i] = converted
	}
	return values, nil
}
