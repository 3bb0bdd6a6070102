// Package gen generates Go model types from a schema system.
//
// Every schema produces one file holding its record struct, the constants
// of its column and relation names, a constructor from decoded row values
// and the reverse Values method used for inserts. A shared file registers
// the constructors as factories of the system, so the engine materializes
// rows into the generated types:
//
//	g, err := gen.New(sys, gen.WithTarget("./model"), gen.WithPackage("model"))
//	if err != nil {
//		return err
//	}
//	files, err := g.Generate(ctx)
//
// Files are rendered with jennifer, which tracks imports and formats the
// output, and written in parallel.
package gen
