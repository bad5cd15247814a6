package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/dossier/internal/middleware"
	"github.com/osvaldoandrade/dossier/internal/services"
	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/gin-gonic/gin"
)

type submitUploadController struct{ svc services.UploadService }

func NewSubmitUploadController(svc services.UploadService) *submitUploadController {
	return &submitUploadController{svc: svc}
}

func (h *submitUploadController) Handle(c *gin.Context) {
	var req domain.SubmitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	u, err := h.svc.Submit(c.Request.Context(), req)
	if err != nil {
		if errorStatus(err) == http.StatusInternalServerError {
			middleware.Logger(c).Error("submit upload failed", "err", err)
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, u)
}
