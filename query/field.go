package query

import "time"

// Number is the constraint of NumberField values.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// StringField is a typed path over a string column. Generated model code
// declares one per column, so predicates are written without string paths.
//
// Usage:
//
//	var Username = query.StringField("username")
//	q := Username.EQ("alice")
//	q = Username.ContainsFold("ali")
type StringField string

// Name returns the column path.
func (f StringField) Name() string { return string(f) }

// EQ returns a case sensitive equality predicate.
func (f StringField) EQ(v string) *Query { return Q(string(f)).Is(v).CaseSensitive(true) }

// NEQ returns a case sensitive inequality predicate.
func (f StringField) NEQ(v string) *Query { return Q(string(f)).IsNot(v).CaseSensitive(true) }

// EqualFold returns a case insensitive equality predicate.
func (f StringField) EqualFold(v string) *Query { return Q(string(f)).Is(v) }

// In returns a set membership predicate.
func (f StringField) In(vs ...string) *Query { return Q(string(f)).IsIn(vs).CaseSensitive(true) }

// NotIn returns a set exclusion predicate.
func (f StringField) NotIn(vs ...string) *Query { return Q(string(f)).IsNotIn(vs).CaseSensitive(true) }

// GT returns a predicate that checks if the column is greater than v.
func (f StringField) GT(v string) *Query { return Q(string(f)).GreaterThan(v) }

// GTE returns a predicate that checks if the column is greater than or equal to v.
func (f StringField) GTE(v string) *Query { return Q(string(f)).GreaterThanOrEqual(v) }

// LT returns a predicate that checks if the column is less than v.
func (f StringField) LT(v string) *Query { return Q(string(f)).LessThan(v) }

// LTE returns a predicate that checks if the column is less than or equal to v.
func (f StringField) LTE(v string) *Query { return Q(string(f)).LessThanOrEqual(v) }

// Contains returns a case sensitive substring predicate.
func (f StringField) Contains(v string) *Query { return Q(string(f)).Contains(v).CaseSensitive(true) }

// ContainsFold returns a case insensitive substring predicate.
func (f StringField) ContainsFold(v string) *Query { return Q(string(f)).Contains(v) }

// HasPrefix returns a case sensitive prefix predicate.
func (f StringField) HasPrefix(v string) *Query { return Q(string(f)).Startswith(v).CaseSensitive(true) }

// HasSuffix returns a case sensitive suffix predicate.
func (f StringField) HasSuffix(v string) *Query { return Q(string(f)).Endswith(v).CaseSensitive(true) }

// IsNull returns a predicate that checks if the column is NULL.
func (f StringField) IsNull() *Query { return Q(string(f)).IsNull() }

// NotNull returns a predicate that checks if the column is not NULL.
func (f StringField) NotNull() *Query { return Q(string(f)).NotNull() }

// NumberField is a typed path over a numeric column.
type NumberField[T Number] string

// Name returns the column path.
func (f NumberField[T]) Name() string { return string(f) }

// EQ returns a predicate that checks if the column equals v.
func (f NumberField[T]) EQ(v T) *Query { return Q(string(f)).Is(v) }

// NEQ returns a predicate that checks if the column does not equal v.
func (f NumberField[T]) NEQ(v T) *Query { return Q(string(f)).IsNot(v) }

// In returns a set membership predicate.
func (f NumberField[T]) In(vs ...T) *Query { return Q(string(f)).IsIn(vs) }

// NotIn returns a set exclusion predicate.
func (f NumberField[T]) NotIn(vs ...T) *Query { return Q(string(f)).IsNotIn(vs) }

// GT returns a predicate that checks if the column is greater than v.
func (f NumberField[T]) GT(v T) *Query { return Q(string(f)).GreaterThan(v) }

// GTE returns a predicate that checks if the column is greater than or equal to v.
func (f NumberField[T]) GTE(v T) *Query { return Q(string(f)).GreaterThanOrEqual(v) }

// LT returns a predicate that checks if the column is less than v.
func (f NumberField[T]) LT(v T) *Query { return Q(string(f)).LessThan(v) }

// LTE returns a predicate that checks if the column is less than or equal to v.
func (f NumberField[T]) LTE(v T) *Query { return Q(string(f)).LessThanOrEqual(v) }

// Between returns a range predicate, bounds included.
func (f NumberField[T]) Between(low, high T) *Query { return Q(string(f)).Between(low, high) }

// IsNull returns a predicate that checks if the column is NULL.
func (f NumberField[T]) IsNull() *Query { return Q(string(f)).IsNull() }

// NotNull returns a predicate that checks if the column is not NULL.
func (f NumberField[T]) NotNull() *Query { return Q(string(f)).NotNull() }

// BoolField is a typed path over a boolean column.
type BoolField string

// Name returns the column path.
func (f BoolField) Name() string { return string(f) }

// EQ returns a predicate that checks if the column equals v.
func (f BoolField) EQ(v bool) *Query { return Q(string(f)).Is(v) }

// NEQ returns a predicate that checks if the column does not equal v.
func (f BoolField) NEQ(v bool) *Query { return Q(string(f)).IsNot(v) }

// IsNull returns a predicate that checks if the column is NULL.
func (f BoolField) IsNull() *Query { return Q(string(f)).IsNull() }

// NotNull returns a predicate that checks if the column is not NULL.
func (f BoolField) NotNull() *Query { return Q(string(f)).NotNull() }

// TimeField is a typed path over a temporal column.
type TimeField string

// Name returns the column path.
func (f TimeField) Name() string { return string(f) }

// EQ returns a predicate that checks if the column equals v.
func (f TimeField) EQ(v time.Time) *Query { return Q(string(f)).Is(v) }

// NEQ returns a predicate that checks if the column does not equal v.
func (f TimeField) NEQ(v time.Time) *Query { return Q(string(f)).IsNot(v) }

// Before returns a predicate that checks if the column is before v.
func (f TimeField) Before(v time.Time) *Query { return Q(string(f)).Before(v) }

// After returns a predicate that checks if the column is after v.
func (f TimeField) After(v time.Time) *Query { return Q(string(f)).After(v) }

// Between returns a range predicate, bounds included.
func (f TimeField) Between(low, high time.Time) *Query { return Q(string(f)).Between(low, high) }

// IsNull returns a predicate that checks if the column is NULL.
func (f TimeField) IsNull() *Query { return Q(string(f)).IsNull() }

// NotNull returns a predicate that checks if the column is not NULL.
func (f TimeField) NotNull() *Query { return Q(string(f)).NotNull() }

// EnumField is a typed path over an enumerated column.
type EnumField[T ~string] string

// Name returns the column path.
func (f EnumField[T]) Name() string { return string(f) }

// EQ returns a predicate that checks if the column equals v.
func (f EnumField[T]) EQ(v T) *Query { return Q(string(f)).Is(string(v)).CaseSensitive(true) }

// NEQ returns a predicate that checks if the column does not equal v.
func (f EnumField[T]) NEQ(v T) *Query { return Q(string(f)).IsNot(string(v)).CaseSensitive(true) }

// In returns a set membership predicate.
func (f EnumField[T]) In(vs ...T) *Query {
	return Q(string(f)).IsIn(enumValues(vs)).CaseSensitive(true)
}

// NotIn returns a set exclusion predicate.
func (f EnumField[T]) NotIn(vs ...T) *Query {
	return Q(string(f)).IsNotIn(enumValues(vs)).CaseSensitive(true)
}

func enumValues[T ~string](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

// RefField is a typed path over a reference column. Values are keys or
// records implementing Identifier.
type RefField string

// Name returns the column path.
func (f RefField) Name() string { return string(f) }

// EQ returns a predicate that checks if the reference points at v.
func (f RefField) EQ(v any) *Query { return Q(string(f)).Is(v) }

// NEQ returns a predicate that checks if the reference does not point at v.
func (f RefField) NEQ(v any) *Query { return Q(string(f)).IsNot(v) }

// In returns a set membership predicate.
func (f RefField) In(vs ...any) *Query { return Q(string(f)).In(vs...) }

// IsNull returns a predicate that checks if the reference is unset.
func (f RefField) IsNull() *Query { return Q(string(f)).IsNull() }

// NotNull returns a predicate that checks if the reference is set.
func (f RefField) NotNull() *Query { return Q(string(f)).NotNull() }

// Path returns a path through the reference, for predicates on the target.
func (f RefField) Path(name string) string { return string(f) + "." + name }
