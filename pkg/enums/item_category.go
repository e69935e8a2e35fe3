package enums

import (
	"fmt"
	"strings"
)

// ItemCategory classifies a stock keeping unit.
type ItemCategory string

const (
	ItemCategoryTShirt   ItemCategory = "T-Shirt"
	ItemCategoryJacket   ItemCategory = "Jacket"
	ItemCategoryCap      ItemCategory = "Cap"
	ItemCategoryTrousers ItemCategory = "Trousers"
	ItemCategoryUniform  ItemCategory = "Uniform"
)

var validItemCategories = []ItemCategory{
	ItemCategoryTShirt,
	ItemCategoryJacket,
	ItemCategoryCap,
	ItemCategoryTrousers,
	ItemCategoryUniform,
}

// ItemCategories returns every known category in display order.
func ItemCategories() []ItemCategory {
	out := make([]ItemCategory, len(validItemCategories))
	copy(out, validItemCategories)
	return out
}

// String implements fmt.Stringer.
func (c ItemCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ItemCategory.
func (c ItemCategory) IsValid() bool {
	for _, candidate := range validItemCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseItemCategory converts raw input into an ItemCategory. Matching ignores case.
func ParseItemCategory(value string) (ItemCategory, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range validItemCategories {
		if strings.EqualFold(string(candidate), trimmed) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid item category %q", value)
}
