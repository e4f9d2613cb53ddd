package keystrategy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{name: "identical", a: "ab12cd34ef56ab78", b: "ab12cd34ef56ab78", expected: 100},
		{name: "fully inverted", a: "0000", b: "ffff", expected: 0},
		{name: "half bits differ", a: "00", b: "0f", expected: 50},
		{name: "length mismatch", a: "abcd", b: "abc", expected: 0},
		{name: "empty", a: "", b: "", expected: 0},
		{name: "invalid hex", a: "zzzz", b: "0000", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Similarity(tt.a, tt.b), 0.001)
		})
	}
}

// 属性：相似度对称、有界，自身相似度恒为 100
func TestProperty_SimilarityInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	hexGen := gen.RegexMatch(`[0-9a-f]{16}`)

	properties.Property("similarity is symmetric", prop.ForAll(
		func(a, b string) bool {
			return Similarity(a, b) == Similarity(b, a)
		},
		hexGen, hexGen,
	))

	properties.Property("similarity is bounded to [0,100]", prop.ForAll(
		func(a, b string) bool {
			s := Similarity(a, b)
			return s >= 0 && s <= 100
		},
		hexGen, hexGen,
	))

	properties.Property("self similarity is 100", prop.ForAll(
		func(a string) bool {
			return Similarity(a, a) == 100
		},
		hexGen,
	))

	properties.TestingRun(t)
}

func TestPerceptualHash(t *testing.T) {
	data := pngBytes(t)

	hash, err := perceptualHash(data)
	require.NoError(t, err)
	assert.Len(t, hash, imageHashLen)

	// 相同字节产生相同哈希
	hash2, err := perceptualHash(data)
	require.NoError(t, err)
	assert.Equal(t, hash, hash2)
}

func TestPerceptualHash_CorruptImage(t *testing.T) {
	_, err := perceptualHash([]byte("not an image"))
	assert.Error(t, err)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	return testPNG(t, 64, 64)
}
