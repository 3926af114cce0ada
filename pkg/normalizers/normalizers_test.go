package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Chess Club", "chess club"},
		{"strips punctuation", "Kids' Chess-Club!", "kids chess club"},
		{"collapses whitespace", "chess   club", "chess club"},
		{"trims edges", "  chess club  ", "chess club"},
		{"keeps digits", "Chess 101", "chess 101"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"abbreviates street", "123 Main Street", "123 main st"},
		{"strips periods", "123 Main St.", "123 main st"},
		{"same place two ways", "456 Ocean Avenue, Apt 2", "456 ocean ave apt 2"},
		{"compass points", "789 North Park Boulevard", "789 n park blvd"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.input))
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "4155551234", NormalizePhone("(415) 555-1234"))
	assert.Equal(t, "", NormalizePhone("no digits"))
}

func TestRegistry(t *testing.T) {
	fn, ok := Get("nname")
	assert.True(t, ok)
	assert.Equal(t, "chess club", fn("Chess Club!"))

	_, ok = Get("missing")
	assert.False(t, ok)

	// unknown normalizer leaves the value untouched
	assert.Equal(t, "Raw Value", Apply("Raw Value", "missing"))

	assert.Equal(t, "chess club", ApplyChain("  Chess Club  ", "trim", "nname"))
}
