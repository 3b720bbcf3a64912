package assert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThat(t *testing.T) {
	assert.NotPanics(t, func() { That(true, "never") })

	if Enabled {
		assert.Panics(t, func() { That(false, "value %d", 1) })
	} else {
		assert.NotPanics(t, func() { That(false, "value %d", 1) })
	}
}
