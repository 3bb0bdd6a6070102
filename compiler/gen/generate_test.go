package gen

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orb/schema"
	"github.com/syssam/orb/schema/edge"
	schemafield "github.com/syssam/orb/schema/field"
)

func newSystem(t *testing.T) *schema.System {
	t.Helper()
	sys := schema.NewSystem()
	require.NoError(t, sys.Define(
		schema.Define("User").
			Fields(
				schemafield.String("username").Required().Unique(),
				schemafield.String("kind").Polymorphic(),
				schemafield.String("password_hash").Private(),
				schemafield.DateTime("created_at").Required(),
				schemafield.JSON("settings"),
			).
			Edges(edge.Lookup("posts", "Post", "author")),
		schema.Define("Post").
			Fields(
				schemafield.String("title").Required(),
				schemafield.Reference("author", "User"),
				schemafield.Binary("cover"),
			),
		schema.Define("Token").
			UUIDKey().
			Fields(schemafield.Interval("ttl")),
		schema.Define("Employee").
			Inherits("User").
			Strategy(schema.SharedKey).
			Fields(schemafield.Decimal("salary", 10, 2)),
	))
	return sys
}

func render(t *testing.T, g *Generator, name string) string {
	t.Helper()
	f, err := g.Render(g.sys.MustResolve(name))
	require.NoError(t, err)
	return fmt.Sprintf("%#v", f)
}

func TestRender(t *testing.T) {
	g, err := New(newSystem(t), WithTarget(t.TempDir()), WithPackage("model"))
	require.NoError(t, err)

	src := render(t, g, "User")
	for _, want := range []string{
		`(?m)^package model$`,
		`type User struct`,
		`ID\s+int64\s+` + "`" + `json:"id" orb:"id"` + "`",
		`Username\s+string\s+` + "`" + `json:"username" orb:"username"` + "`",
		`Kind\s+\*string\s+` + "`" + `json:"kind,omitempty" orb:"kind"` + "`",
		`PasswordHash\s+\*string\s+` + "`" + `json:"-" orb:"password_hash"` + "`",
		`CreatedAt\s+time\.Time`,
		`Settings\s+any`,
		`UserSchema\s+= "User"`,
		`UserColumnPasswordHash\s+= "password_hash"`,
		`UserRelationPosts\s+= "posts"`,
		`func NewUser\(values map\[string\]any\) \*User`,
		`if v, ok := values\["kind"\]\.\(string\); ok \{\s+u\.Kind = &v`,
		`u\.Settings = values\["settings"\]`,
		`func \(u \*User\) Values\(\) map\[string\]any`,
		`if u\.ID != 0 \{\s+values\["id"\] = u\.ID`,
		`if u\.Kind != nil \{\s+values\["kind"\] = \*u\.Kind`,
		`values\["username"\] = u\.Username`,
	} {
		assert.Regexp(t, regexp.MustCompile(want), src)
	}

	src = render(t, g, "Post")
	assert.Regexp(t, `Author\s+\*int64`, src)
	assert.Regexp(t, `Cover\s+\[\]byte`, src)
	assert.Regexp(t, `if p\.Cover != nil \{\s+values\["cover"\] = p\.Cover`, src)
	assert.Regexp(t, `PostRelationAuthor\s+= "author"`, src)

	src = render(t, g, "Token")
	assert.Regexp(t, `"github.com/google/uuid"`, src)
	assert.Regexp(t, `ID\s+uuid\.UUID`, src)
	assert.Regexp(t, `if t\.ID != uuid\.Nil`, src)
	assert.Regexp(t, `TTL\s+\*time\.Duration`, src)

	src = render(t, g, "Employee")
	assert.Contains(t, src, "It inherits the columns of User.")
	assert.Regexp(t, `Username\s+string`, src)
	assert.Regexp(t, `Salary\s+\*string`, src)
	assert.Regexp(t, `EmployeeRelationPosts\s+= "posts"`, src)
}

func TestGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	g, err := New(newSystem(t), WithTarget(dir), WithWorkers(2), WithHeader("Code generated for tests. DO NOT EDIT."))
	require.NoError(t, err)
	assert.Equal(t, "model", g.Config().Package)

	paths, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "employee.go"),
		filepath.Join(dir, "orb.go"),
		filepath.Join(dir, "post.go"),
		filepath.Join(dir, "token.go"),
		filepath.Join(dir, "user.go"),
	}, paths)

	fset := token.NewFileSet()
	for _, p := range paths {
		f, err := parser.ParseFile(fset, p, nil, parser.ParseComments)
		require.NoError(t, err, p)
		assert.Equal(t, "model", f.Name.Name)
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Contains(t, string(b), "// Code generated for tests. DO NOT EDIT.")
	}
	b, err := os.ReadFile(filepath.Join(dir, RegistryFile))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"github.com/syssam/orb/schema"`)
	assert.Regexp(t, `sys\.RegisterFactory\(UserSchema, func\(_ \*schema\.Schema, values map\[string\]any\) \(any, error\) \{\s+return NewUser\(values\), nil`, string(b))
}

func TestGenerateCanceled(t *testing.T) {
	g, err := New(newSystem(t), WithTarget(t.TempDir()), WithWorkers(1))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPascal(t *testing.T) {
	for in, want := range map[string]string{
		"username":    "Username",
		"first_name":  "FirstName",
		"firstName":   "FirstName",
		"id":          "ID",
		"user_id":     "UserID",
		"avatar_url":  "AvatarURL",
		"GroupUser":   "GroupUser",
		"http_status": "HTTPStatus",
	} {
		assert.Equal(t, want, pascal(in), in)
	}
}
