// Package edge provides builders for the collectors of a schema: reverse
// lookups and pipes. References are columns and are declared with
// field.Reference.
//
//	// Post.author -> User; User.posts is its inverse.
//	edge.Lookup("posts", "Post", "author").Remove(schema.Delete)
//
//	// User <-> Group through the GroupUser junction.
//	edge.Pipe("groups", "GroupUser", "user", "group")
package edge
