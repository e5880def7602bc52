package colorutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassColor(t *testing.T) {
	tests := []struct {
		label int
		want  string
	}{
		{4, "#00BFFF"},
		{6, "#00FF00"},
		{8, "#FF6B6B"},
		{10, "#FFD700"},
		{0, "#808080"},
		{-1, "#808080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Hex(ClassColor(tt.label)), "label %d", tt.label)
	}

	// Unknown labels still get a stable, distinct colour.
	assert.Equal(t, ClassColor(12), ClassColor(12))
	assert.NotEqual(t, Unclassified, ClassColor(12))
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#FF6B6B")
	require.NoError(t, err)
	assert.Equal(t, ClassColor(8), c)

	c, err = ParseHex("00bfff")
	require.NoError(t, err)
	assert.Equal(t, ClassColor(4), c)

	_, err = ParseHex("#12345")
	assert.Error(t, err)
	_, err = ParseHex("#GGGGGG")
	assert.Error(t, err)
}
