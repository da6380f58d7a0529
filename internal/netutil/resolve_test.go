package netutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHostPassesThroughIPLiteral(t *testing.T) {
	got, err := NormalizeHost("192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", got)
}

func TestNormalizeHostPassesThroughASCII(t *testing.T) {
	got, err := NormalizeHost("example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", got)
}

func TestNormalizeHostConvertsUnicodeToPunycode(t *testing.T) {
	got, err := NormalizeHost("müller.example")
	require.NoError(t, err)
	assert.Equal(t, "xn--mller-kva.example", got)
}
