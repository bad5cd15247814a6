package controllers

import (
	"net/http"

	"github.com/osvaldoandrade/dossier/internal/catalog"

	"github.com/gin-gonic/gin"
)

type catalogController struct{}

func NewCatalogController() *catalogController { return &catalogController{} }

// Handle lists the sections of a work type in delivery order. Directives are
// included only when ?subject= is given to interpolate them.
func (h *catalogController) Handle(c *gin.Context) {
	wt, ok := workTypeParam(c)
	if !ok {
		return
	}
	subject := c.Query("subject")
	specs, err := catalog.SectionsFor(wt, subject)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if subject == "" {
		for i := range specs {
			specs[i].Directive = ""
		}
	}
	c.JSON(http.StatusOK, gin.H{"work_type": wt, "sections": specs})
}
