// Package schema describes persisted entity types: columns, indexes,
// relationship collectors and single-parent inheritance, registered into a
// System.
//
// Schemas are declared once, at startup, through a Builder:
//
//	sys := schema.NewSystem()
//	err := sys.Define(
//	    schema.Define("Group").Fields(field.String("name").Required().Unique()),
//	    schema.Define("User").
//	        Fields(field.String("username").Required().Unique()).
//	        Edges(edge.Pipe("groups", "GroupUser", "user", "group")),
//	    schema.Define("GroupUser").Table("group_user").Fields(
//	        field.Reference("user", "User").OnDelete(schema.Cascade),
//	        field.Reference("group", "Group").OnDelete(schema.Cascade),
//	    ),
//	)
//	if err == nil {
//	    err = sys.Validate()
//	}
//
// Validate runs every cross-schema check eagerly (inheritance cycles,
// duplicate columns across a chain, dangling reference or collector targets)
// so that a registry that validated never fails lookups at query time.
//
// # Relationships
//
// A Reference is a column holding the key of another schema. A ReverseLookup
// is the inverse of a Reference and a Pipe is a many-to-many relation through
// a junction schema with two references. All three implement Relation.
//
// # Inheritance
//
// A schema may inherit from one parent. Strategy decides the storage:
// SharedKey gives every schema of the chain its own table joined on the key,
// Native relies on backend table inheritance. Auto picks Native only when
// the registry was told the dialect supports it (SetNativeInheritance).
//
// # Polymorphism
//
// A Polymorphic column stores the concrete schema name of each row.
// System.Concrete and System.Construct use it together with the registered
// Factory functions to materialize rows as their concrete type.
package schema
