package gen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/orb/schema"
)

// RegistryFile is the name of the file holding Register.
const RegistryFile = "orb.go"

// Generator renders the model types of a schema system.
type Generator struct {
	sys *schema.System
	cfg *Config
}

// New returns a Generator of the schemas of sys. The system is validated
// when it was not yet.
func New(sys *schema.System, opts ...Option) (*Generator, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	if !sys.Validated() {
		if err := sys.Validate(); err != nil {
			return nil, NewSchemaError("", "", "validate", err)
		}
	}
	return &Generator{sys: sys, cfg: cfg}, nil
}

// Config returns the generation config.
func (g *Generator) Config() *Config { return g.cfg }

// FileName returns the name of the file generated for sc ("GroupUser" ->
// "group_user.go").
func FileName(sc *schema.Schema) string {
	return inflect.Underscore(sc.Name) + ".go"
}

// Generate writes the files of every schema and the registry to the
// target directory and returns their paths, sorted.
func (g *Generator) Generate(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(g.cfg.Target, 0o755); err != nil {
		return nil, &GenerationError{File: g.cfg.Target, Cause: err}
	}
	schemas := g.sys.Schemas()
	paths := make([]string, len(schemas)+1)
	errg, ctx := errgroup.WithContext(ctx)
	errg.SetLimit(g.cfg.Workers)
	for i, sc := range schemas {
		errg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := g.Render(sc)
			if err != nil {
				return err
			}
			paths[i], err = g.writeFile(f, FileName(sc))
			return err
		})
	}
	errg.Go(func() error {
		var err error
		paths[len(schemas)], err = g.writeFile(g.Registry(), RegistryFile)
		return err
	})
	if err := errg.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// writeFile renders f into the named file of the target directory.
func (g *Generator) writeFile(f *jen.File, name string) (string, error) {
	path := filepath.Join(g.cfg.Target, name)
	out, err := os.Create(path)
	if err != nil {
		return "", &GenerationError{File: path, Cause: err}
	}
	defer out.Close()
	if err := f.Render(out); err != nil {
		return "", &GenerationError{File: path, Cause: err}
	}
	return path, nil
}

func (g *Generator) newFile() *jen.File {
	f := jen.NewFile(g.cfg.Package)
	if g.cfg.Header != "" {
		f.HeaderComment(g.cfg.Header)
	}
	return f
}

// Render returns the file of sc: its record struct, name constants,
// constructor and Values method.
func (g *Generator) Render(sc *schema.Schema) (*jen.File, error) {
	fs, err := fields(g.sys, sc)
	if err != nil {
		return nil, err
	}
	var (
		f    = g.newFile()
		name = pascal(sc.Name)
		recv = receiver(sc)
	)
	if recv == "v" {
		recv = "r"
	}

	doc := fmt.Sprintf("%s is a record of the %s schema.", name, sc.Name)
	if p := sc.Parent(); p != nil {
		doc += fmt.Sprintf(" It inherits the columns of %s.", p.Name)
	}
	f.Comment(doc)
	f.Type().Id(name).StructFunc(func(grp *jen.Group) {
		for _, fd := range fs {
			grp.Id(fd.Name).Add(fd.structType()).Tag(fd.tags())
		}
	})

	f.Commentf("Names of the %s schema, its columns and relations.", sc.Name)
	f.Const().DefsFunc(func(grp *jen.Group) {
		grp.Id(name + "Schema").Op("=").Lit(sc.Name)
		for _, fd := range fs {
			grp.Id(name + "Column" + fd.Name).Op("=").Lit(fd.col.Name)
		}
		for _, fd := range fs {
			if fd.col.IsReference() {
				grp.Id(name + "Relation" + fd.Name).Op("=").Lit(fd.col.Name)
			}
		}
		for cur := sc; cur != nil; cur = cur.Parent() {
			for _, r := range cur.Relations() {
				grp.Id(name + "Relation" + pascal(r.RelationName())).Op("=").Lit(r.RelationName())
			}
		}
	})

	f.Commentf("New%s returns the %s of decoded row values. Values of", name, name)
	f.Comment("another type are ignored.")
	f.Func().Id("New"+name).Params(jen.Id("values").Map(jen.String()).Id("any")).Op("*").Id(name).BlockFunc(func(grp *jen.Group) {
		grp.Id(recv).Op(":=").Op("&").Id(name).Values()
		for _, fd := range fs {
			key := jen.Id("values").Index(jen.Lit(fd.col.Name))
			if fd.dynamic {
				grp.Id(recv).Dot(fd.Name).Op("=").Add(key)
				continue
			}
			assign := jen.Id(recv).Dot(fd.Name).Op("=").Id("v")
			if fd.nullable {
				assign = jen.Id(recv).Dot(fd.Name).Op("=").Op("&").Id("v")
			}
			grp.If(jen.List(jen.Id("v"), jen.Id("ok")).Op(":=").Add(key).Assert(fd.typ), jen.Id("ok")).Block(assign)
		}
		grp.Return(jen.Id(recv))
	})

	key := sc.Key()
	f.Commentf("Values returns the column values of %s for inserts. Null", recv)
	if key != nil {
		f.Comment("columns and a zero key are omitted.")
	} else {
		f.Comment("columns are omitted.")
	}
	f.Func().Params(jen.Id(recv).Op("*").Id(name)).Id("Values").Params().Map(jen.String()).Id("any").BlockFunc(func(grp *jen.Group) {
		grp.Id("values").Op(":=").Make(jen.Map(jen.String()).Id("any"), jen.Lit(len(fs)))
		for _, fd := range fs {
			if fd.col.Has(schema.Virtual) {
				continue
			}
			var (
				field = jen.Id(recv).Dot(fd.Name)
				set   = jen.Id("values").Index(jen.Lit(fd.col.Name)).Op("=")
			)
			switch {
			case fd.col == key && fd.zero != nil:
				grp.If(jen.Id(recv).Dot(fd.Name).Op("!=").Add(fd.zero)).Block(set.Add(field))
			case fd.nullable:
				grp.If(jen.Id(recv).Dot(fd.Name).Op("!=").Nil()).Block(set.Op("*").Add(field))
			case fd.dynamic, fd.col.Type == schema.TypeBinary:
				grp.If(jen.Id(recv).Dot(fd.Name).Op("!=").Nil()).Block(set.Add(field))
			default:
				grp.Add(set.Add(field))
			}
		}
		grp.Return(jen.Id("values"))
	})
	return f, nil
}

// Registry returns the file of Register, which installs the constructor
// of every generated type as the factory of its schema.
func (g *Generator) Registry() *jen.File {
	f := g.newFile()
	f.Comment("Register installs the constructors of the generated types as")
	f.Comment("factories of sys. Rows read by the engine materialize as pointers")
	f.Comment("to these types.")
	f.Func().Id("Register").Params(jen.Id("sys").Op("*").Qual(schemaPkg, "System")).BlockFunc(func(grp *jen.Group) {
		for _, sc := range g.sys.Schemas() {
			name := pascal(sc.Name)
			grp.Id("sys").Dot("RegisterFactory").Call(
				jen.Id(name+"Schema"),
				jen.Func().Params(
					jen.Id("_").Op("*").Qual(schemaPkg, "Schema"),
					jen.Id("values").Map(jen.String()).Id("any"),
				).Params(jen.Id("any"), jen.Error()).Block(
					jen.Return(jen.Id("New"+name).Call(jen.Id("values")), jen.Nil()),
				),
			)
		}
	})
	return f
}
