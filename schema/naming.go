package schema

import (
	"strings"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TableName returns the default storage table for a schema name:
// the pluralized snake case form ("GroupUser" -> "group_users").
func TableName(name string) string {
	return inflect.Underscore(inflect.Pluralize(name))
}

// FieldName returns the default storage field for a column name
// ("firstName" -> "first_name").
func FieldName(name string) string {
	return inflect.Underscore(name)
}

// Label returns the display title of a column name
// ("first_name" -> "First Name").
func Label(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(inflect.Underscore(name), "_", " "))
}
