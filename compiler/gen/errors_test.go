package gen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaError(t *testing.T) {
	t.Run("Error message with all fields", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := NewSchemaError("User", "email", "invalid format", cause)
		assert.Equal(t, "orb: schema error on User column email: invalid format: underlying error", err.Error())
	})
	t.Run("Error message with schema only", func(t *testing.T) {
		err := &SchemaError{Schema: "User"}
		assert.Equal(t, "orb: schema error on User", err.Error())
	})
	t.Run("Unwrap returns cause", func(t *testing.T) {
		cause := errors.New("root cause")
		err := NewSchemaError("User", "", "", cause)
		assert.True(t, errors.Is(err, cause))
		assert.True(t, errors.Is(err, ErrInvalidSchema))
		assert.True(t, IsSchemaError(err))
		assert.False(t, IsSchemaError(cause))
	})
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("Workers", -1, "workers must be positive")
	assert.Equal(t, `orb: config error for "Workers" (value: -1): workers must be positive`, err.Error())
	assert.Equal(t, `orb: config error for "Target": missing`, NewConfigError("Target", nil, "missing").Error())
	assert.True(t, errors.Is(err, ErrMissingConfig))
	assert.True(t, IsConfigError(err))
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("disk full")
	err := &GenerationError{File: "model/user.go", Cause: cause}
	assert.Equal(t, "orb: generate model/user.go: disk full", err.Error())
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	assert.True(t, errors.Is(err, cause))
}
