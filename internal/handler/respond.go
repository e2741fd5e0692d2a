package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noa1020/Finance-master/internal/coordinator"
	"github.com/noa1020/Finance-master/internal/storage"
	"github.com/noa1020/Finance-master/internal/validation"
)

type errorResponse struct {
	Message string                  `json:"message"`
	Details []validation.FieldError `json:"details,omitempty"`
}

// respondError maps domain errors onto HTTP statuses. Ownership failures
// are reported as 404 so the existence of another user's record is never
// confirmed. A store failure maps to 503: the service is degraded, the
// request was not necessarily wrong.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalid):
		c.JSON(http.StatusBadRequest, errorResponse{Message: err.Error()})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, coordinator.ErrForbidden):
		c.JSON(http.StatusNotFound, errorResponse{Message: "Not found"})
	case errors.Is(err, storage.ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorResponse{Message: err.Error()})
	case errors.Is(err, storage.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Message: "Service degraded, try again later"})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Message: "Internal error"})
	}
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Message: message})
}

func respondValidationErrors(c *gin.Context, fieldErrors []validation.FieldError) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Message: "Invalid request data",
		Details: fieldErrors,
	})
}
