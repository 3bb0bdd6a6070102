package sql

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/orb"
	"github.com/syssam/orb/query"
	"github.com/syssam/orb/schema"
)

// timeLayouts are the text forms of date and time values returned by
// drivers that do not parse them.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Encode converts v to the driver value stored in column col and checks it
// against the column constraints.
func (c *Compiler) Encode(col *schema.Column, v any) (any, error) {
	return c.encode(col, v, true)
}

func (c *Compiler) encode(col *schema.Column, v any, validate bool) (any, error) {
	if id, ok := v.(query.Identifier); ok {
		v = id.ID()
	}
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case schema.TypeReference:
		target, err := c.refTarget(col)
		if err != nil {
			return nil, err
		}
		return c.encode(target, v, validate)
	case schema.TypeUUID:
		switch u := v.(type) {
		case uuid.UUID:
			return u.String(), nil
		case string:
			parsed, err := uuid.Parse(u)
			if err != nil {
				return nil, orb.NewValidationError(col.Name, err)
			}
			return parsed.String(), nil
		}
	case schema.TypeInterval:
		if d, ok := v.(time.Duration); ok {
			return int64(d), nil
		}
	case schema.TypeTime:
		if t, ok := v.(time.Time); ok {
			return t.Format("15:04:05"), nil
		}
	case schema.TypeJSON:
		switch v.(type) {
		case string, []byte, json.RawMessage:
			return v, nil
		}
		if _, ok := v.(driver.Valuer); ok {
			return v, nil
		}
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, orb.NewValidationError(col.Name, err)
		}
		return string(buf), nil
	case schema.TypeEnum:
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if validate && len(col.Enum) > 0 && !slices.Contains(col.Enum, s) {
			return nil, orb.NewValidationError(col.Name, fmt.Errorf("%q is not one of %v", s, col.Enum))
		}
		return s, nil
	case schema.TypeString:
		if s, ok := v.(string); ok && validate && col.Size > 0 && len([]rune(s)) > col.Size {
			return nil, orb.NewValidationError(col.Name, fmt.Errorf("value exceeds %d characters", col.Size))
		}
	case schema.TypeBool:
		if _, ok := v.(bool); !ok && validate {
			return nil, orb.NewValidationError(col.Name, fmt.Errorf("expect bool, got %T", v))
		}
	}
	return v, nil
}

// Decode converts a driver value read from column col to its Go form:
// bool, int, int64, float64, string, time.Time, time.Duration, []byte,
// uuid.UUID or the decoded JSON document. Decimals decode to their string
// form.
func (c *Compiler) Decode(col *schema.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && col.Type != schema.TypeBinary && col.Type != schema.TypeUUID {
		v = string(b)
	}
	switch col.Type {
	case schema.TypeReference:
		target, err := c.refTarget(col)
		if err != nil {
			return nil, err
		}
		return c.Decode(target, v)
	case schema.TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case string:
			if x == "t" || x == "f" {
				return x == "t", nil
			}
			return strconv.ParseBool(x)
		}
	case schema.TypeInt:
		n, err := toInt64(v)
		return int(n), err
	case schema.TypeLong:
		return toInt64(v)
	case schema.TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case schema.TypeDecimal:
		switch x := v.(type) {
		case string:
			return x, nil
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		}
	case schema.TypeString, schema.TypeText, schema.TypeEnum:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case schema.TypeDate, schema.TypeDateTime, schema.TypeDateTimeTZ:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return parseTime(col, x)
		}
	case schema.TypeTime:
		switch x := v.(type) {
		case time.Time:
			return x.Format("15:04:05"), nil
		case string:
			return x, nil
		}
	case schema.TypeInterval:
		n, err := toInt64(v)
		return time.Duration(n), err
	case schema.TypeBinary:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	case schema.TypeUUID:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case string:
			return uuid.Parse(x)
		case []byte:
			if len(x) == 16 {
				return uuid.FromBytes(x)
			}
			return uuid.ParseBytes(x)
		}
	case schema.TypeJSON:
		var doc any
		switch x := v.(type) {
		case string:
			if err := json.Unmarshal([]byte(x), &doc); err != nil {
				return nil, fmt.Errorf("dialect/sql: decode %s: %w", col, err)
			}
			return doc, nil
		case []byte:
			if err := json.Unmarshal(x, &doc); err != nil {
				return nil, fmt.Errorf("dialect/sql: decode %s: %w", col, err)
			}
			return doc, nil
		}
	}
	return v, nil
}

// DecodeRow decodes the values of one row read through the given fields.
func (c *Compiler) DecodeRow(fields []*query.Field, row []any) (map[string]any, error) {
	if len(row) != len(fields) {
		return nil, fmt.Errorf("dialect/sql: row has %d values, want %d", len(row), len(fields))
	}
	out := make(map[string]any, len(fields))
	for i, f := range fields {
		v, err := c.Decode(f.Column, row[i])
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

// refTarget returns the column a reference points at.
func (c *Compiler) refTarget(col *schema.Column) (*schema.Column, error) {
	target, err := c.sys.Resolve(col.RefSchema)
	if err != nil {
		return nil, err
	}
	if col.RefColumn == "" {
		if k := target.Key(); k != nil {
			return k, nil
		}
		return nil, orb.NewColumnNotFoundError(target.Name, schema.DefaultKey)
	}
	rc, _, ok := target.Lookup(col.RefColumn)
	if !ok {
		return nil, orb.NewColumnNotFoundError(target.Name, col.RefColumn)
	}
	if rc == col {
		return nil, errors.New("dialect/sql: reference points at itself")
	}
	return rc, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("dialect/sql: cannot convert %T to an integer", v)
}

func parseTime(col *schema.Column, s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("dialect/sql: decode %s: invalid time %q", col, s)
}
