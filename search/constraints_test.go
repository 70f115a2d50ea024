package search

import (
	"encoding/json"
	"testing"

	"github.com/poiesic/advisor/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreferences(t *testing.T) {
	tests := []struct {
		name    string
		prefs   map[string]any
		want    Constraints
		wantErr error
	}{
		{name: "nil", prefs: nil, want: Constraints{}},
		{name: "ceiling only defaults floor", prefs: map[string]any{"price_max": 1500.0},
			want: Constraints{PriceMin: ptr(0), PriceMax: ptr(1500)}},
		{name: "floor only", prefs: map[string]any{"price_min": 800},
			want: Constraints{PriceMin: ptr(800)}},
		{name: "price strings", prefs: map[string]any{"price_min": "$1,000", "price_max": "2,000.50"},
			want: Constraints{PriceMin: ptr(1000), PriceMax: ptr(2000.5)}},
		{name: "json number", prefs: map[string]any{"price_max": json.Number("1200")},
			want: Constraints{PriceMin: ptr(0), PriceMax: ptr(1200)}},
		{name: "blank price ignored", prefs: map[string]any{"price_max": "  "}, want: Constraints{}},
		{name: "string filters trimmed", prefs: map[string]any{"vendor": " Dell ", "gpu": "RTX", "family": "XPS"},
			want: Constraints{Vendor: "Dell", GPU: "RTX", Family: "XPS"}},
		{name: "malformed price", prefs: map[string]any{"price_max": "cheap"}, wantErr: core.ErrInput},
		{name: "unsupported type", prefs: map[string]any{"price_min": []int{1}}, wantErr: core.ErrInput},
		{name: "negative price", prefs: map[string]any{"price_min": -5}, wantErr: core.ErrInput},
		{name: "inverted range", prefs: map[string]any{"price_min": 2000, "price_max": 1000}, wantErr: core.ErrInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePreferences(tt.prefs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstraints_WithCeiling(t *testing.T) {
	c := Constraints{Vendor: "Acme"}.WithCeiling(1400)
	require.True(t, c.HasCeiling())
	assert.Equal(t, 1400.0, *c.PriceMax)
	assert.Equal(t, 0.0, *c.PriceMin)

	floor := 500.0
	c = Constraints{PriceMin: &floor}.WithCeiling(900)
	assert.Equal(t, 500.0, *c.PriceMin)
}

func TestConstraints_Allows(t *testing.T) {
	item := core.Item{Vendor: "Lenovo", GPU: "NVIDIA RTX 4070", Family: "Legion", Price: 1500}

	assert.True(t, Constraints{}.Allows(item))
	assert.True(t, Constraints{PriceMax: ptr(1500)}.Allows(item))
	assert.False(t, Constraints{PriceMax: ptr(1499.99)}.Allows(item))
	assert.True(t, Constraints{PriceMin: ptr(1500)}.Allows(item))
	assert.False(t, Constraints{PriceMin: ptr(1500.01)}.Allows(item))
	assert.True(t, Constraints{GPU: "rtx"}.Allows(item))
	assert.False(t, Constraints{Family: "yoga"}.Allows(item))
}

func TestConstraints_AppliedEmpty(t *testing.T) {
	assert.Empty(t, Constraints{}.Applied())
}
