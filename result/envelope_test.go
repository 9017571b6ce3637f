package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOkCarriesValue(t *testing.T) {
	e := Ok(42)
	assert.True(t, e.Success())
	assert.False(t, e.Failure())
	assert.Equal(t, 42, e.Value())
	assert.Equal(t, "", e.Error())
}

func TestErrCarriesMessage(t *testing.T) {
	e := Err[int]("boom")
	assert.False(t, e.Success())
	assert.True(t, e.Failure())
	assert.Equal(t, 0, e.Value())
	assert.Equal(t, "boom", e.Error())
}

func TestZeroValueIsFailure(t *testing.T) {
	var e Envelope[string]
	assert.True(t, e.Failure())
	assert.Equal(t, "", e.Error())
}
