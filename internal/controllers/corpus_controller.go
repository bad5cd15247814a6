package controllers

import (
	"net/http"
	"strings"

	"github.com/osvaldoandrade/dossier/internal/corpus"
	"github.com/osvaldoandrade/dossier/internal/middleware"

	"github.com/gin-gonic/gin"
)

type corpusController struct{ registry *corpus.Registry }

func NewCorpusController(r *corpus.Registry) *corpusController {
	return &corpusController{registry: r}
}

type putCorpusReq struct {
	ResourceName string `json:"resource_name" binding:"required"`
}

func (h *corpusController) Put(c *gin.Context) {
	var req putCorpusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource_name is required"})
		return
	}
	if !corpus.IsResourceName(strings.TrimSpace(req.ResourceName)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource_name must look like projects/{p}/locations/{l}/ragCorpora/{id}"})
		return
	}
	h2, err := h.registry.Register(c.Request.Context(), c.Param("subject"), req.ResourceName)
	if err != nil {
		middleware.Logger(c).Error("register corpus failed", "subject", c.Param("subject"), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h2)
}

func (h *corpusController) Get(c *gin.Context) {
	got, err := h.registry.Get(c.Request.Context(), c.Param("subject"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

func (h *corpusController) List(c *gin.Context) {
	all, err := h.registry.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corpora": all})
}
