// Package field provides fluent builders for schema columns.
//
// Column names are the names used in query paths; storage fields default to
// their snake case form:
//
//	field.String("firstName")       // field: first_name
//	field.Reference("owner", "User") // field: owner_id
//
// # Column Types
//
//	field.Bool("active")
//	field.Int("rank")
//	field.Long("views")
//	field.Decimal("price", 10, 2)
//	field.Float("ratio")
//	field.String("name").Size(64)
//	field.Text("body")
//	field.Date("born_on")
//	field.DateTime("created_at")
//	field.DateTimeTZ("seen_at")
//	field.Time("opens_at")
//	field.Interval("duration")
//	field.Binary("blob")
//	field.UUID("token")
//	field.JSON("meta")
//	field.Enum("status", "draft", "published")
//	field.Reference("author", "User")
//
// # Options
//
//	field.String("email").
//	    Required().           // NOT NULL, checked on insert
//	    Unique().             // unique constraint
//	    Default("unknown").   // literal default
//	    Label("E-mail")       // display label
//
// Flags that only the model layer interprets (I18n, Private, ReadOnly,
// Virtual) are carried on the column unchanged.
package field
