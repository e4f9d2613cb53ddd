package cachestore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressPayload_RoundTrip(t *testing.T) {
	original := []byte(strings.Repeat("redundant redundant ", 200))

	compressed, saved, err := compressPayload(original)
	require.NoError(t, err)
	assert.Positive(t, saved)
	assert.Less(t, len(compressed), len(original))

	restored, err := decompressPayload(compressed, algorithmGzip)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestDecompressPayload_UnknownAlgorithm(t *testing.T) {
	_, err := decompressPayload([]byte("whatever"), "zstd")
	assert.Error(t, err)
}

func TestDecompressPayload_CorruptData(t *testing.T) {
	_, err := decompressPayload([]byte("not gzip at all"), algorithmGzip)
	assert.Error(t, err)
}
