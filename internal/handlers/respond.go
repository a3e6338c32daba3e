package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/stwalsh4118/landb/internal/errors"
	"github.com/stwalsh4118/landb/internal/services"
)

// bindQuery binds query parameters into req and writes a 400 on failure.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return false
		}
		apierrors.BadRequest(c, "Invalid query parameters", nil)
		return false
	}
	return true
}

// int64Param parses a numeric path parameter and writes a 400 on failure.
func int64Param(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		apierrors.BadRequest(c, "Invalid "+name, map[string]interface{}{name: raw})
		return 0, false
	}
	return v, true
}

// serviceError maps service errors to responses. notFound is the message
// used for ErrLandNotFound, failure the one for unexpected errors.
func serviceError(c *gin.Context, err error, notFound, failure string) {
	var throttled *services.ThrottledError
	switch {
	case errors.Is(err, services.ErrInvalidIsland),
		errors.Is(err, services.ErrInvalidPadding),
		errors.Is(err, services.ErrOwnerRequired):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, services.ErrLandNotFound):
		apierrors.NotFound(c, notFound)
	case errors.Is(err, services.ErrNoSnapshot):
		apierrors.SnapshotUnavailable(c, "No land snapshot has been fetched yet")
	case errors.As(err, &throttled):
		apierrors.TooManyRequests(c, "Refresh throttled", throttled.NextAllowedAt)
	case errors.Is(err, services.ErrReadOnly):
		apierrors.Conflict(c, "Land store is read-only")
	case errors.Is(err, services.ErrRefreshFailed):
		apierrors.BadGateway(c, "Failed to fetch lands from the registry", err)
	default:
		apierrors.InternalServerError(c, failure, err)
	}
}
