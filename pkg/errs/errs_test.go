package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/luxfi/ruth/pkg/errs"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsKind(t *testing.T) {
	base := errors.New("boom")
	err := errs.New(errs.StoreError, "collector.Submit", base)

	assert.True(t, errors.Is(err, errs.IsKind(errs.StoreError)))
	assert.False(t, errors.Is(err, errs.IsKind(errs.CodecError)))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "collector.Submit")
	assert.Contains(t, err.Error(), "boom")
}

func TestErrorWithoutWrapped(t *testing.T) {
	err := errs.New(errs.ConfigError, "oracle.NewCursor", nil)
	assert.Equal(t, fmt.Sprintf("%s: %s", "oracle.NewCursor", errs.ConfigError), err.Error())
}
