package controllers

import (
	"errors"
	"net/http"

	"github.com/osvaldoandrade/dossier/internal/services"
	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"

	"github.com/gin-gonic/gin"
)

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, services.ErrUploadNotFound),
		errors.Is(err, services.ErrResultNotFound),
		errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrWorkTypeNotRequested):
		return http.StatusConflict
	case errors.Is(err, services.ErrPipelineDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &verr), errors.Is(err, services.ErrInvalidUpload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
}

func workTypeParam(c *gin.Context) (domain.WorkType, bool) {
	wt, err := domain.ParseWorkType(c.Param("workType"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return "", false
	}
	return wt, true
}
