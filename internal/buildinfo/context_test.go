package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentDefaults(t *testing.T) {
	ctx := Current()
	assert.NotEmpty(t, ctx.Version)
	assert.NotEmpty(t, ctx.BuildDate)
}
