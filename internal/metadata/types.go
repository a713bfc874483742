package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rowgraph/internal/sqltype"
	"rowgraph/internal/uuidutil"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// ConvertValue converts a raw column value into the Go value of a mapped field
// type. The type may be a field type name or any SQL declaration such as
// "varchar(255)" or "bigint unsigned". Unknown or empty types pass the value
// through. Binary columns keep their bytes; every other []byte is read as text.
func ConvertValue(typ string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	category := sqltype.CategoryOf(typ)
	switch category {
	case sqltype.CategoryUUID:
		return uuidutil.Canonical(value)
	case sqltype.CategoryBinary:
		return value, nil
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}

	switch category {
	case sqltype.CategoryInteger:
		return toInt64(value)
	case sqltype.CategoryFloat:
		return toFloat64(value)
	case sqltype.CategoryBoolean:
		return toBool(value)
	case sqltype.CategoryString, sqltype.CategoryDecimal:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	case sqltype.CategoryTime:
		return toTime(typ, value)
	default:
		return value, nil
	}
}

func toInt64(value any) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", v, err)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", value)
	}
}

func toFloat64(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", v, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to float", value)
	}
}

func toBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q: %w", v, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

func toTime(typ string, value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{dateTimeLayout, time.RFC3339Nano, time.DateOnly} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("invalid %s %q", typ, v)
	default:
		return nil, fmt.Errorf("cannot convert %T to %s", value, typ)
	}
}
