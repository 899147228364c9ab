package search_test

import (
	"testing"

	"github.com/reviewstudio/studio/internal/search"
	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 100},
		{"abc", "", 0},
		{"test", "test", 100},
		{"test", "tset", 75},
		{"this is a test", "this is a test!", 200.0 * 14 / 29},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, search.Ratio(tt.a, tt.b), 1e-9, "Ratio(%q, %q)", tt.a, tt.b)
	}
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"both empty", "", "", 100},
		{"one empty", "", "abc", 0},
		{"substring", "abc", "xxabcxx", 100},
		{"argument order", "xxabcxx", "abc", 100},
		{"suffix punctuation", "this is a test", "this is a test!", 100},
		{"right edge window", "fuzzy", "wuzzy", 200.0 * 4 / 9},
		{"no overlap", "abc", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, search.PartialRatio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestPartialRatio_Unicode(t *testing.T) {
	assert.Equal(t, 100.0, search.PartialRatio("café", "le café noir"))
}
