package usecase

import (
	"github.com/shopspring/decimal"

	"servicehub/internal/domain/entity"
)

// ComputeReviewStats aggregates reviews. The average is rounded to one decimal
// and the distribution always carries keys 1 through 5.
func ComputeReviewStats(reviews []*entity.Review) entity.ReviewStats {
	stats := entity.ReviewStats{
		RatingDistribution: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0},
	}
	if len(reviews) == 0 {
		return stats
	}

	sum := 0
	for _, r := range reviews {
		sum += r.Rating
		if _, ok := stats.RatingDistribution[r.Rating]; ok {
			stats.RatingDistribution[r.Rating]++
		}
	}

	stats.TotalReviews = len(reviews)
	avg := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(len(reviews)))).Round(1)
	stats.AverageRating = avg.InexactFloat64()
	return stats
}
