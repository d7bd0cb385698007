package util

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestKeyGenerator_Generate(t *testing.T) {
	gen := NewKeyGenerator(nil)
	seen := make(map[string]struct{})

	for i := 0; i < 200; i++ {
		key, err := gen.Generate()
		require.NoError(t, err)
		assert.True(t, IsValidLicenseKey(key), "key %q does not match the canonical format", key)
		seen[key] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestKeyGenerator_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x00, 0x10, 0x83, 0x10, 0x51, 0x87}, 20)

	first, err := NewKeyGenerator(bytes.NewReader(seed)).Generate()
	require.NoError(t, err)
	second, err := NewKeyGenerator(bytes.NewReader(seed)).Generate()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, IsValidLicenseKey(first))
}

func TestKeyGenerator_SkipsStrippedCharacters(t *testing.T) {
	// 0xFF bytes encode almost entirely to "/" and "=", so the generator
	// must keep drawing until enough usable characters arrive.
	seed := append(bytes.Repeat([]byte{0xFF}, 16), bytes.Repeat([]byte{0x00, 0x10, 0x83}, 20)...)

	key, err := NewKeyGenerator(bytes.NewReader(seed)).Generate()
	require.NoError(t, err)
	assert.True(t, IsValidLicenseKey(key))
}

func TestKeyGenerator_ReaderError(t *testing.T) {
	_, err := NewKeyGenerator(failingReader{}).Generate()
	assert.ErrorContains(t, err, "entropy exhausted")
}

func TestNormalizeLicenseKey(t *testing.T) {
	assert.Equal(t, "ABCD-EFGH-1234-5678", NormalizeLicenseKey("  abcd-efgh-1234-5678\n"))
}

func TestIsValidLicenseKey(t *testing.T) {
	assert.True(t, IsValidLicenseKey("ABCD-EFGH-1234-5678"))
	assert.False(t, IsValidLicenseKey("abcd-efgh-1234-5678"))
	assert.False(t, IsValidLicenseKey("ABCD-EFGH-1234"))
	assert.False(t, IsValidLicenseKey("ABCDEFGH12345678"))
	assert.False(t, IsValidLicenseKey("ABCD-EFGH-1234-567+"))
}
