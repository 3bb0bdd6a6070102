package gen

import (
	"errors"
	"go/token"
	"path/filepath"
	"runtime"
)

// DefaultHeader is the comment at the top of every generated file.
const DefaultHeader = "Code generated by orb. DO NOT EDIT."

// Config configures code generation.
type Config struct {
	// Target is the output directory.
	Target string
	// Package is the name of the generated package. Defaults to the base
	// name of Target.
	Package string
	// Header is the comment at the top of each file.
	Header string
	// Workers bounds the files rendered at once.
	Workers int
}

// Option configures code generation.
type Option func(*Config) error

// WithTarget sets the output directory.
func WithTarget(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return NewConfigError("Target", nil, "target directory cannot be empty")
		}
		c.Target = dir
		return nil
	}
}

// WithPackage sets the name of the generated package.
func WithPackage(pkg string) Option {
	return func(c *Config) error {
		if !token.IsIdentifier(pkg) {
			return NewConfigError("Package", pkg, "package must be a Go identifier")
		}
		c.Package = pkg
		return nil
	}
}

// WithHeader sets the file header comment.
func WithHeader(header string) Option {
	return func(c *Config) error {
		c.Header = header
		return nil
	}
}

// WithWorkers sets the number of parallel workers.
func WithWorkers(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return NewConfigError("Workers", n, "workers must be positive")
		}
		c.Workers = n
		return nil
	}
}

// Apply applies options to the config and collects all errors.
func (c *Config) Apply(opts ...Option) error {
	var errs []error
	for _, opt := range opts {
		if err := opt(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewConfig creates a Config with the given options and fills in the
// defaults.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{Header: DefaultHeader, Workers: runtime.GOMAXPROCS(0)}
	if err := c.Apply(opts...); err != nil {
		return nil, err
	}
	if c.Target == "" {
		return nil, NewConfigError("Target", nil, "missing target directory")
	}
	if c.Package == "" {
		pkg := filepath.Base(filepath.Clean(c.Target))
		if !token.IsIdentifier(pkg) {
			return nil, NewConfigError("Package", pkg, "target directory is not a package name; use WithPackage")
		}
		c.Package = pkg
	}
	return c, nil
}
