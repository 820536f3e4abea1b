package handler

import (
	"github.com/labstack/echo/v4"

	"servicehub/internal/usecase"
	"servicehub/pkg/errors"
	"servicehub/pkg/response"
	"servicehub/pkg/utils"
)

type ListingHandler struct{}

func NewListingHandler() *ListingHandler {
	return &ListingHandler{}
}

// Browse lists every user's listings, filtered and paginated.
func (h *ListingHandler) Browse(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	var filter usecase.ListingFilter
	if err := c.Bind(&filter); err != nil {
		return response.Error(c, errors.BadRequest("Invalid filter", err))
	}

	listings, err := s.Listings.FetchAllListings(c.Request().Context())
	if err != nil {
		return response.Error(c, err)
	}

	matched := usecase.SearchListings(listings, filter)
	page := utils.GetPaginationParams(c)
	return response.Paginated(c, utils.Paginate(matched, page), int64(len(matched)), page.Page, page.PageSize)
}

func (h *ListingHandler) Mine(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, s.Listings.Listings())
}

func (h *ListingHandler) RefreshMine(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := s.Listings.RefreshListings(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, s.Listings.Listings())
}

func (h *ListingHandler) Get(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	listing, err := s.Listings.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, listing)
}

func (h *ListingHandler) Create(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}

	var input usecase.CreateListingInput
	if err := bindAndValidate(c, &input); err != nil {
		return response.Error(c, err)
	}

	listing, err := s.Listings.CreateListing(c.Request().Context(), input)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, listing)
}

func (h *ListingHandler) Delete(c echo.Context) error {
	s, err := currentSession(c)
	if err != nil {
		return response.Error(c, err)
	}
	if err := s.Listings.DeleteListing(c.Request().Context(), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}
