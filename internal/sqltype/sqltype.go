// Package sqltype parses SQL column type declarations into canonical names and
// maps them to value categories. Schema diffs compare the canonical names;
// hydration converts column values by category.
package sqltype

import (
	"strconv"
	"strings"
)

// Category is the kind of Go value a column type converts to.
type Category int

const (
	// CategoryUnknown passes values through unchanged.
	CategoryUnknown Category = iota
	CategoryString
	CategoryInteger
	CategoryFloat
	// CategoryDecimal keeps fixed-point values as strings so no precision is lost.
	CategoryDecimal
	CategoryBoolean
	CategoryTime
	CategoryJSON
	CategoryBinary
	CategoryUUID
)

// String returns the field type name used in mapping documents.
func (c Category) String() string {
	switch c {
	case CategoryString:
		return "string"
	case CategoryInteger:
		return "integer"
	case CategoryFloat:
		return "float"
	case CategoryDecimal:
		return "decimal"
	case CategoryBoolean:
		return "boolean"
	case CategoryTime:
		return "datetime"
	case CategoryJSON:
		return "json"
	case CategoryBinary:
		return "binary"
	case CategoryUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// Declaration is a parsed column type such as "decimal(10,2)" or
// "int unsigned".
type Declaration struct {
	// Base is the lower-case canonical type name without size arguments.
	Base     string
	Args     []int
	Unsigned bool
}

var aliases = map[string]string{
	"int":                         "integer",
	"int4":                        "integer",
	"mediumint":                   "integer",
	"serial":                      "integer",
	"int8":                        "bigint",
	"bigserial":                   "bigint",
	"int2":                        "smallint",
	"tinyint":                     "smallint",
	"varchar":                     "string",
	"character varying":           "string",
	"nvarchar":                    "string",
	"character":                   "char",
	"tinytext":                    "text",
	"mediumtext":                  "text",
	"longtext":                    "text",
	"clob":                        "text",
	"bool":                        "boolean",
	"float8":                      "double",
	"double precision":            "double",
	"real":                        "float",
	"float4":                      "float",
	"numeric":                     "decimal",
	"datetime":                    "timestamp",
	"timestamp without time zone": "timestamp",
	"timestamptz":                 "timestamp with time zone",
	"longblob":                    "blob",
	"mediumblob":                  "blob",
	"bytea":                       "blob",
}

var categories = map[string]Category{
	"integer":                  CategoryInteger,
	"bigint":                   CategoryInteger,
	"smallint":                 CategoryInteger,
	"bit":                      CategoryInteger,
	"year":                     CategoryInteger,
	"float":                    CategoryFloat,
	"double":                   CategoryFloat,
	"decimal":                  CategoryDecimal,
	"boolean":                  CategoryBoolean,
	"string":                   CategoryString,
	"char":                     CategoryString,
	"text":                     CategoryString,
	"enum":                     CategoryString,
	"set":                      CategoryString,
	"time":                     CategoryString,
	"date":                     CategoryTime,
	"timestamp":                CategoryTime,
	"timestamp with time zone": CategoryTime,
	"json":                     CategoryJSON,
	"jsonb":                    CategoryJSON,
	"blob":                     CategoryBinary,
	"tinyblob":                 CategoryBinary,
	"binary":                   CategoryBinary,
	"varbinary":                CategoryBinary,
	"uuid":                     CategoryUUID,
}

// Parse lowercases typ, moves "(a,b)" size arguments into Args, strips a
// trailing "unsigned" and resolves dialect aliases. Declarations whose
// arguments are not numbers, such as enum('a','b'), keep them in Base.
func Parse(typ string) Declaration {
	base, args := split(typ)
	d := Declaration{Args: args}
	if strings.HasSuffix(base, " unsigned") {
		base = strings.TrimSuffix(base, " unsigned")
		d.Unsigned = true
	}
	d.Base = Canonical(base)
	return d
}

// Canonical returns the canonical name for a lower-case base type.
func Canonical(base string) string {
	if alias, ok := aliases[base]; ok {
		return alias
	}
	return base
}

// CategoryOf returns the value category of a type declaration.
func CategoryOf(typ string) Category {
	d := Parse(typ)
	if c, ok := categories[d.Base]; ok {
		return c
	}
	// enum('a','b') and set(...) keep their literal arguments in Base.
	if open := strings.IndexByte(d.Base, '('); open > 0 {
		if c, ok := categories[Canonical(strings.TrimSpace(d.Base[:open]))]; ok {
			return c
		}
	}
	return CategoryUnknown
}

func split(typ string) (string, []int) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	open := strings.IndexByte(typ, '(')
	if open < 0 {
		return strings.Join(strings.Fields(typ), " "), nil
	}
	closing := strings.IndexByte(typ[open:], ')')
	if closing < 0 {
		return strings.Join(strings.Fields(typ), " "), nil
	}
	base := strings.TrimSpace(typ[:open]) + " " + strings.TrimSpace(typ[open+closing+1:])
	var args []int
	for _, part := range strings.Split(typ[open+1:open+closing], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return strings.Join(strings.Fields(typ), " "), nil
		}
		args = append(args, n)
	}
	return strings.Join(strings.Fields(base), " "), args
}
