package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"servicehub/internal/domain/entity"
)

func TestComputeReviewStats(t *testing.T) {
	reviews := []*entity.Review{{Rating: 5}, {Rating: 5}, {Rating: 4}, {Rating: 3}}

	stats := ComputeReviewStats(reviews)

	assert.Equal(t, 4, stats.TotalReviews)
	assert.Equal(t, 4.3, stats.AverageRating)
	assert.Equal(t, map[int]int{5: 2, 4: 1, 3: 1, 2: 0, 1: 0}, stats.RatingDistribution)
}

func TestComputeReviewStatsEmpty(t *testing.T) {
	stats := ComputeReviewStats(nil)

	assert.Zero(t, stats.TotalReviews)
	assert.Zero(t, stats.AverageRating)
	assert.Len(t, stats.RatingDistribution, 5)
}
