package controllers

import (
	"net/http"
	"strings"

	"github.com/osvaldoandrade/dossier/internal/services"

	"github.com/gin-gonic/gin"
)

type getStatusController struct{ svc services.ResultsService }

func NewGetStatusController(svc services.ResultsService) *getStatusController {
	return &getStatusController{svc: svc}
}

// Handle answers GET /status/:workType?upload_id=.
func (h *getStatusController) Handle(c *gin.Context) {
	wt, ok := workTypeParam(c)
	if !ok {
		return
	}
	uploadID := strings.TrimSpace(c.Query("upload_id"))
	if uploadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload_id is required"})
		return
	}
	st, err := h.svc.Status(c.Request.Context(), wt, uploadID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
