package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"peerpulse-backend/internal/common"
	"peerpulse-backend/internal/lifecycle"
	"peerpulse-backend/internal/models"
	"peerpulse-backend/internal/store"

	"github.com/labstack/echo/v4"
)

// getAuthenticatedUser returns the user named by the request's JWT.
// Returns nil and false if the user is not authenticated or not found.
func getAuthenticatedUser(c echo.Context, s *common.ServerState) (*models.User, bool) {
	email, err := s.JwtIssuer.GetUserEmail(c)
	if err != nil {
		return nil, false
	}

	user, err := s.Store.GetUserByEmail(c.Request().Context(), email)
	if err != nil {
		return nil, false
	}

	return user, true
}

// errorResponse maps store and lifecycle errors to HTTP responses
func errorResponse(c echo.Context, err error) error {
	var validationErr *lifecycle.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"message": "Invalid form",
			"fields":  validationErr.Fields,
		})
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrNotReviewee):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrDuplicateEmail),
		errors.Is(err, store.ErrRequestNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalid),
		errors.Is(err, store.ErrNoPeers),
		errors.Is(err, store.ErrSelfRequest),
		errors.Is(err, store.ErrDuplicatePeer),
		errors.Is(err, store.ErrReviewerMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	c.Logger().Errorf("Request failed: %v", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong")
}

// quarterParam reads ?quarter=, defaulting to the current quarter
func quarterParam(c echo.Context, s *common.ServerState) string {
	if q := strings.TrimSpace(c.QueryParam("quarter")); q != "" {
		return q
	}
	return s.Lifecycle.CurrentQuarter()
}

func idParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}
