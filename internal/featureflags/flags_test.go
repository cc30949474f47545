package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetEnabled(t *testing.T) {
	flags := FromMap(map[string]string{
		"FLAG_SEED_DEMO":       " Yes ",
		"FLAG_WEB_UI_DISABLED": "0",
	})

	assert.True(t, flags.Enabled(SeedDemo))
	assert.False(t, flags.Enabled(WebUIDisabled))
	assert.False(t, flags.Enabled("missing"))
}

func TestEnabledReadsEnvironment(t *testing.T) {
	t.Setenv("FLAG_WEB_UI_DISABLED", "on")
	assert.True(t, Enabled(WebUIDisabled))

	t.Setenv("FLAG_WEB_UI_DISABLED", "nope")
	assert.False(t, Enabled(WebUIDisabled))
}
