package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

type Handler interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrLinkNotFound), errors.Is(err, entity.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrLinkExists):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInvalidShortCode),
		errors.Is(err, entity.ErrInvalidURL),
		errors.Is(err, entity.ErrNothingToUpdate),
		errors.Is(err, entity.ErrUnknownReportKind),
		errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNoTransport), errors.Is(err, entity.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := errorStatus(err)
	_ = c.Error(err)
	if code == http.StatusInternalServerError {
		c.JSON(code, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// queryInt reads a positive integer query parameter, def when absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", entity.ErrInvalidInput, name)
	}
	return v, nil
}
