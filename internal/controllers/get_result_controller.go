package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/dossier/internal/services"

	"github.com/gin-gonic/gin"
)

type getResultController struct{ svc services.ResultsService }

func NewGetResultController(s services.ResultsService) *getResultController {
	return &getResultController{svc: s}
}

// Handle answers GET /results/:workType/:uploadId with the stored record.
func (h *getResultController) Handle(c *gin.Context) {
	wt, ok := workTypeParam(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), wt, c.Param("uploadId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleByRequest answers GET /requests/:requestId.
func (h *getResultController) HandleByRequest(c *gin.Context) {
	rec, err := h.svc.GetByRequest(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
