package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"servicehub/internal/domain/entity"
)

func ids(listings []*entity.Listing) []string {
	out := []string{}
	for _, l := range listings {
		out = append(out, l.ID)
	}
	return out
}

func TestSearchListings(t *testing.T) {
	listings := []*entity.Listing{
		{ID: "a", Title: "React app", Skills: "react, typescript", Category: entity.CategoryWebDevelopment, HourlyRate: 35, ExperienceLevel: entity.ExperienceExpert},
		{ID: "b", Title: "Logo", Description: "Brand identity", Category: entity.CategoryGraphicDesign, HourlyRate: 70, ExperienceLevel: entity.ExperienceBeginner},
		{ID: "c", Title: "Translation", Category: entity.CategoryTranslation, HourlyRate: 140.5, ExperienceLevel: entity.ExperienceExpert},
		{ID: "d", Title: "Cheap", Category: entity.CategoryOther, HourlyRate: 5},
	}

	tests := []struct {
		name   string
		filter ListingFilter
		want   []string
	}{
		{"no filter", ListingFilter{}, []string{"a", "b", "c", "d"}},
		{"text matches skills case-insensitively", ListingFilter{Query: "TYPESCRIPT"}, []string{"a"}},
		{"text matches description", ListingFilter{Query: "brand"}, []string{"b"}},
		{"category", ListingFilter{Category: entity.CategoryGraphicDesign}, []string{"b"}},
		{"all category", ListingFilter{Category: "all"}, []string{"a", "b", "c", "d"}},
		{"experience", ListingFilter{Experience: entity.ExperienceExpert}, []string{"a", "c"}},
		{"budget band includes both ends", ListingFilter{PriceRange: PriceBandBudget}, []string{"a"}},
		{"standard band excludes its lower bound", ListingFilter{PriceRange: PriceBandStandard}, []string{"b"}},
		{"premium band", ListingFilter{PriceRange: PriceBandPremium}, []string{}},
		{"expert band", ListingFilter{PriceRange: PriceBandExpert}, []string{"c"}},
		{"combined", ListingFilter{Query: "r", Experience: entity.ExperienceExpert, PriceRange: PriceBandBudget}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(SearchListings(listings, tt.filter)))
		})
	}
}
