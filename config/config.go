// Package config loads the YAML configuration of an orb deployment and
// builds the components it describes.
//
//	database:
//	  driver: pgx
//	  dsn: ${DATABASE_URL}
//	  pool_size: 20
//	  statement_timeout: 5s
//	cache:
//	  backend: redis
//	  ttl: 1m
//	  redis:
//	    addr: localhost:6379
//	log:
//	  level: debug
//	schemas: schemas.yaml
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/syssam/orb/dialect"
	"github.com/syssam/orb/pool"
	"github.com/syssam/orb/schema"
)

// Config is the root of the configuration file.
type Config struct {
	Database Database `yaml:"database" validate:"required"`
	Cache    Cache    `yaml:"cache"`
	Log      Log      `yaml:"log"`
	// Schemas is the path of the YAML schema definitions, relative to the
	// configuration file.
	Schemas string `yaml:"schemas"`
}

// Database configures the connection, the pool and the compiler.
type Database struct {
	// Dialect defaults to the dialect of Driver.
	Dialect string `yaml:"dialect" validate:"omitempty,oneof=postgres sqlite mysql"`
	// Driver is the database/sql driver name: postgres, pgx, sqlite or mysql.
	Driver    string `yaml:"driver" validate:"required,oneof=postgres pgx sqlite mysql"`
	DSN       string `yaml:"dsn" validate:"required"`
	Namespace string `yaml:"namespace"`
	PoolSize  int    `yaml:"pool_size" validate:"gte=0"`
	IdleMax   int    `yaml:"idle_max" validate:"gte=0"`
	// Retries of a lost connection. Zero selects the default, a negative
	// value disables retries.
	Retries          int           `yaml:"retries"`
	Backoff          time.Duration `yaml:"backoff" validate:"gte=0"`
	StatementTimeout time.Duration `yaml:"statement_timeout" validate:"gte=0"`
	BatchSize        int           `yaml:"batch_size" validate:"gte=0"`
	// Inheritance is the storage of Auto inheritance chains: auto,
	// shared_key or native.
	Inheritance string `yaml:"inheritance" validate:"omitempty,oneof=auto shared_key native"`
}

// Cache configures the record cache.
type Cache struct {
	Backend  string        `yaml:"backend" validate:"omitempty,oneof=none memory redis"`
	Size     int           `yaml:"size" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
	Disabled []string      `yaml:"disabled"`
	Redis    Redis         `yaml:"redis"`
}

// Redis is the server of the redis cache backend.
type Redis struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0,lte=15"`
	Prefix   string `yaml:"prefix"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Load reads the configuration file at path. The schemas path is resolved
// against the directory of the file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if c.Schemas != "" && !filepath.IsAbs(c.Schemas) {
		c.Schemas = filepath.Join(filepath.Dir(path), c.Schemas)
	}
	return c, nil
}

// Parse decodes a configuration document. ${NAME} references are replaced
// by the environment variable NAME before decoding; unknown keys are
// errors.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(b)))))
	dec.KnownFields(true)
	c := &Config{}
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	c.defaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) defaults() {
	db := &c.Database
	if db.Dialect == "" && db.Driver != "" {
		if name, err := dialect.Name(db.Driver); err == nil {
			db.Dialect = name
		}
	}
	if db.PoolSize == 0 {
		db.PoolSize = pool.DefaultMaxSize
	}
	if db.Retries == 0 {
		db.Retries = pool.DefaultRetries
	}
	if db.Backoff == 0 {
		db.Backoff = pool.DefaultBackoff
	}
	if db.Inheritance == "" {
		db.Inheritance = schema.Auto.String()
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "none"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateDatabase, Database{})
	v.RegisterStructValidation(validateCache, Cache{})
	return v
}

// validateDatabase checks that the driver opens the declared dialect.
func validateDatabase(sl validator.StructLevel) {
	db := sl.Current().Interface().(Database)
	name, err := dialect.Name(db.Driver)
	if err == nil && db.Dialect != "" && name != db.Dialect {
		sl.ReportError(db.Dialect, "dialect", "Dialect", "driver_dialect", db.Driver)
	}
}

// validateCache checks that a redis backend names its server.
func validateCache(sl validator.StructLevel) {
	c := sl.Current().Interface().(Cache)
	if c.Backend == "redis" && c.Redis.Addr == "" {
		sl.ReportError(c.Redis.Addr, "redis.addr", "Redis.Addr", "required_with_redis", "")
	}
}

// Validate checks the configuration. Field errors are reported by their
// YAML path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		path := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch {
		case fe.Param() != "":
			msgs[i] = fmt.Sprintf("%s: failed %q (%s)", path, fe.Tag(), fe.Param())
		default:
			msgs[i] = fmt.Sprintf("%s: failed %q", path, fe.Tag())
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
