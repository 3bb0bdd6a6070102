package schema

import (
	"fmt"
	"strings"
)

// Type is the semantic type of a column.
type Type uint8

// Column types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeLong
	TypeDecimal
	TypeFloat
	TypeString
	TypeText
	TypeDate
	TypeDateTime
	TypeDateTimeTZ
	TypeTime
	TypeInterval
	TypeBinary
	TypeUUID
	TypeJSON
	TypeEnum
	TypeReference
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:    "invalid",
	TypeBool:       "bool",
	TypeInt:        "int",
	TypeLong:       "long",
	TypeDecimal:    "decimal",
	TypeFloat:      "float",
	TypeString:     "string",
	TypeText:       "text",
	TypeDate:       "date",
	TypeDateTime:   "datetime",
	TypeDateTimeTZ: "datetime_tz",
	TypeTime:       "time",
	TypeInterval:   "interval",
	TypeBinary:     "binary",
	TypeUUID:       "uuid",
	TypeJSON:       "json",
	TypeEnum:       "enum",
	TypeReference:  "reference",
}

// String returns the type name.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Valid reports if the type is a known column type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// Numeric reports if the type holds a number.
func (t Type) Numeric() bool {
	switch t {
	case TypeInt, TypeLong, TypeDecimal, TypeFloat:
		return true
	}
	return false
}

// Textual reports if the type holds a string.
func (t Type) Textual() bool {
	return t == TypeString || t == TypeText || t == TypeEnum
}

// ParseType returns the Type named by s.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t := TypeBool; t < endTypes; t++ {
		if typeNames[t] == s {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("schema: unknown column type %q", s)
}
