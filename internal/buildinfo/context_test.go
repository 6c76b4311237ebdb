package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextFallsBackToUnknown(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.GetVersion())
	assert.Equal(t, UnknownValue, nilCtx.GetBuildDate())

	assert.Equal(t, "unknown (built unknown)", (&Context{}).String())
	assert.Equal(t, "v0.3.1 (built 2026-10-01)", (&Context{Version: "v0.3.1", BuildDate: "2026-10-01"}).String())
}
