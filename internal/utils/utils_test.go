package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "+15550001111", NormalizeAddress(" whatsapp:+15550001111 "))
	assert.Equal(t, "@alice:example.org", NormalizeAddress("@alice:example.org"))
	assert.Empty(t, NormalizeAddress("   "))
}

func TestNormalizeInput(t *testing.T) {
	assert.Equal(t, "no drink", NormalizeInput("  No   DRINK \n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "he...", Truncate("hello", 2))
	assert.Equal(t, "pí...", Truncate("pízza", 2))
}

func TestGeneratePairingCode(t *testing.T) {
	code, err := GeneratePairingCode()
	require.NoError(t, err)
	assert.Regexp(t, `^\d{3}-\d{3}$`, code)
}
