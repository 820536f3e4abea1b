package handler

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/usecase"
	"servicehub/pkg/response"
)

type ReviewHandler struct{}

func NewReviewHandler() *ReviewHandler {
	return &ReviewHandler{}
}

// ListingReviews fetches a listing's reviews with their aggregate.
func (h *ReviewHandler) ListingReviews(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	listingID := c.Param("id")
	reviews, err := s.Reviews.FetchListingReviews(c.Request().Context(), listingID)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"reviews": reviews,
		"stats":   s.Reviews.ReviewStats(listingID),
	})
}

// Eligibility reports whether the caller may review the listing, judged
// from reviews already loaded.
func (h *ReviewHandler) Eligibility(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	listingID := c.Param("id")
	return response.Success(c, map[string]interface{}{
		"can_review": s.Reviews.CanReview(listingID, c.QueryParam("provider_id")),
		"fetched":    s.Reviews.HasFetched(listingID),
	})
}

func (h *ReviewHandler) Written(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	reviews, err := s.Reviews.FetchUserReviews(c.Request().Context())
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, reviews)
}

func (h *ReviewHandler) Received(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	reviews, err := s.Reviews.FetchReceivedReviews(c.Request().Context())
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, reviews)
}

func (h *ReviewHandler) Create(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	var input usecase.CreateReviewInput
	if err := bindAndValidate(c, &input); err != nil {
		return response.Error(c, err)
	}

	review, err := s.Reviews.CreateReview(c.Request().Context(), input)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, review)
}

func (h *ReviewHandler) Update(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	var input usecase.UpdateReviewInput
	if err := bindAndValidate(c, &input); err != nil {
		return response.Error(c, err)
	}

	review, err := s.Reviews.UpdateReview(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, review)
}

func (h *ReviewHandler) Delete(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := s.Reviews.DeleteReview(c.Request().Context(), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}
