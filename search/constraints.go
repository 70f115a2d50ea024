package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/advisor/core"
)

// Preference keys understood by ParsePreferences.
const (
	PrefPriceMin = "price_min"
	PrefPriceMax = "price_max"
	PrefVendor   = "vendor"
	PrefGPU      = "gpu"
	PrefFamily   = "family"
)

// Applied filter keys reported in Result.AppliedFilters.
const (
	FilterPriceRange = "price_range"
	FilterVendor     = "vendor"
	FilterGPU        = "gpu"
	FilterFamily     = "family"
)

// Constraints is the hard gate applied before scoring. Zero values disable a
// filter. String filters are matched as case-insensitive substrings.
type Constraints struct {
	PriceMin *float64
	PriceMax *float64
	Vendor   string
	GPU      string
	Family   string
}

// PriceRange is the applied price filter. Max is nil when no ceiling applies.
type PriceRange struct {
	Min float64  `json:"min"`
	Max *float64 `json:"max"`
}

// HasCeiling reports whether an explicit price ceiling is set.
func (c Constraints) HasCeiling() bool {
	return c.PriceMax != nil
}

// WithCeiling returns a copy of c with the given price ceiling. The floor
// defaults to 0 when unset.
func (c Constraints) WithCeiling(ceiling float64) Constraints {
	c.PriceMax = &ceiling
	if c.PriceMin == nil {
		floor := 0.0
		c.PriceMin = &floor
	}
	return c
}

// Allows reports whether item passes every active filter. The floor is
// inclusive; only prices strictly above the ceiling are excluded.
func (c Constraints) Allows(item core.Item) bool {
	if c.PriceMin != nil && item.Price < *c.PriceMin {
		return false
	}
	if c.PriceMax != nil && item.Price > *c.PriceMax {
		return false
	}
	if c.Vendor != "" && !containsFold(item.Vendor, c.Vendor) {
		return false
	}
	if c.GPU != "" && !containsFold(item.GPU, c.GPU) {
		return false
	}
	if c.Family != "" && !containsFold(item.Family, c.Family) {
		return false
	}
	return true
}

// Applied describes the filters that are active, keyed by filter name.
func (c Constraints) Applied() map[string]any {
	applied := make(map[string]any)
	if c.PriceMin != nil || c.PriceMax != nil {
		pr := PriceRange{Max: c.PriceMax}
		if c.PriceMin != nil {
			pr.Min = *c.PriceMin
		}
		applied[FilterPriceRange] = pr
	}
	if c.Vendor != "" {
		applied[FilterVendor] = strings.ToLower(c.Vendor)
	}
	if c.GPU != "" {
		applied[FilterGPU] = strings.ToLower(c.GPU)
	}
	if c.Family != "" {
		applied[FilterFamily] = strings.ToLower(c.Family)
	}
	return applied
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// ParsePreferences converts caller preferences into Constraints. Prices may be
// numbers or price strings such as "$1,500". Empty values are ignored. The
// floor defaults to 0 when only a ceiling is given. Malformed or inverted
// price values are reported as core.ErrInput.
func ParsePreferences(prefs map[string]any) (Constraints, error) {
	var c Constraints
	if len(prefs) == 0 {
		return c, nil
	}

	floor, hasFloor, err := priceValue(prefs[PrefPriceMin])
	if err != nil {
		return c, fmt.Errorf("%w: %s: %w", core.ErrInput, PrefPriceMin, err)
	}
	ceiling, hasCeiling, err := priceValue(prefs[PrefPriceMax])
	if err != nil {
		return c, fmt.Errorf("%w: %s: %w", core.ErrInput, PrefPriceMax, err)
	}
	if hasFloor || hasCeiling {
		c.PriceMin = &floor
		if hasCeiling {
			if ceiling < floor {
				return Constraints{}, fmt.Errorf("%w: price_min %.2f exceeds price_max %.2f", core.ErrInput, floor, ceiling)
			}
			c.PriceMax = &ceiling
		}
	}

	c.Vendor = stringValue(prefs[PrefVendor])
	c.GPU = stringValue(prefs[PrefGPU])
	c.Family = stringValue(prefs[PrefFamily])
	return c, nil
}

// priceValue returns the price and whether one was supplied.
func priceValue(v any) (float64, bool, error) {
	var price float64
	switch val := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		price = val
	case float32:
		price = float64(val)
	case int:
		price = float64(val)
	case int64:
		price = float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q", core.ErrInvalidPrice, val)
		}
		price = f
	case string:
		if strings.TrimSpace(val) == "" {
			return 0, false, nil
		}
		f, err := core.ParsePrice(val)
		if err != nil {
			return 0, false, err
		}
		price = f
	default:
		return 0, false, fmt.Errorf("%w: unsupported type %T", core.ErrInvalidPrice, v)
	}
	if price < 0 {
		return 0, false, core.ErrNegativePrice
	}
	return price, true, nil
}

func stringValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
