package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrInvalidArgument(t *testing.T) {
	err := &ErrInvalidArgument{Name: "step", Value: 0}
	assert.Equal(t, `value "0" is invalid for argument "step"`, err.Error())

	err.Message = "must be positive"
	assert.Equal(t, `value "0" is invalid for argument "step"; must be positive`, err.Error())
}

func TestErrNotFound(t *testing.T) {
	assert.Equal(t, `plugin "FabFoo" not found`, (&ErrNotFound{Type: "plugin", Value: "FabFoo"}).Error())
	assert.Equal(t, `resource "x" not found; check plugins_dir`,
		(&ErrNotFound{Value: "x", Message: "check plugins_dir"}).Error())
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("scan seed: %w", &ErrInvalidArgument{Name: "step", Value: -1})

	var invalid *ErrInvalidArgument
	assert.True(t, errors.As(wrapped, &invalid))
	assert.Equal(t, "step", invalid.Name)
}
