package usecase

import (
	"strings"

	"servicehub/internal/domain/entity"
)

// Price bands accepted by ListingFilter.PriceRange.
const (
	PriceBandBudget   = "7-35"
	PriceBandStandard = "35-70"
	PriceBandPremium  = "70-140"
	PriceBandExpert   = "140+"
)

type ListingFilter struct {
	Query      string `query:"q"`
	Category   string `query:"category"`
	Experience string `query:"experience"`
	PriceRange string `query:"price"`
}

// SearchListings filters listings without touching the store. Empty or "all"
// filter fields match everything.
func SearchListings(listings []*entity.Listing, filter ListingFilter) []*entity.Listing {
	text := strings.ToLower(strings.TrimSpace(filter.Query))
	result := make([]*entity.Listing, 0, len(listings))

	for _, l := range listings {
		if text != "" && !matchesText(l, text) {
			continue
		}
		if !matchesOption(filter.Category, l.Category) {
			continue
		}
		if !matchesOption(filter.Experience, l.ExperienceLevel) {
			continue
		}
		if !inPriceBand(filter.PriceRange, l.HourlyRate) {
			continue
		}
		result = append(result, l)
	}
	return result
}

func matchesText(l *entity.Listing, text string) bool {
	for _, field := range []string{l.Title, l.Description, l.Skills, l.Category} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

func matchesOption(want, have string) bool {
	return want == "" || want == "all" || want == have
}

func inPriceBand(band string, rate float64) bool {
	switch band {
	case "", "all":
		return true
	case PriceBandBudget:
		return rate >= 7 && rate <= 35
	case PriceBandStandard:
		return rate > 35 && rate <= 70
	case PriceBandPremium:
		return rate > 70 && rate <= 140
	case PriceBandExpert:
		return rate > 140
	default:
		return true
	}
}
