package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/dossier/internal/services"

	"github.com/gin-gonic/gin"
)

type getUploadController struct{ svc services.UploadService }

func NewGetUploadController(svc services.UploadService) *getUploadController {
	return &getUploadController{svc: svc}
}

func (h *getUploadController) Handle(c *gin.Context) {
	u, err := h.svc.Get(c.Request.Context(), c.Param("uploadId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
