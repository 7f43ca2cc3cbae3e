package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandKeywords_KnownTokenIncludesNameVariants(t *testing.T) {
	keywords := ExpandKeywords("btc")
	assert.Contains(t, keywords, "$btc")
	assert.Contains(t, keywords, "btc")
	assert.Contains(t, keywords, "bitcoin")
}

func TestExpandKeywords_UnknownTokenFallsBackToCashtagAndSymbol(t *testing.T) {
	keywords := ExpandKeywords("XYZ")
	assert.Equal(t, []string{"$XYZ", "XYZ"}, keywords)
}
