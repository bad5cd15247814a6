package app

import (
	"net/http"

	"github.com/osvaldoandrade/dossier/internal/controllers"
	"github.com/osvaldoandrade/dossier/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", func(c *gin.Context) {
		if err := app.Persistence.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1/dossier")
	producer := v1.Group("", middleware.AuthMiddleware(app.ProducerValidator, app.Config))
	{
		producer.POST("/uploads", middleware.RateLimitProducer(app.RateLimiter, app.Config), controllers.NewSubmitUploadController(app.Uploads).Handle)
		producer.GET("/uploads/:uploadId", controllers.NewGetUploadController(app.Uploads).Handle)

		producer.GET("/status/:workType", controllers.NewGetStatusController(app.Results).Handle)
		results := controllers.NewGetResultController(app.Results)
		producer.GET("/results/:workType/:uploadId", results.Handle)
		producer.GET("/requests/:requestId", results.HandleByRequest)

		producer.GET("/catalog/:workType", controllers.NewCatalogController().Handle)

		corpora := controllers.NewCorpusController(app.Corpora)
		producer.GET("/corpora", corpora.List)
		producer.GET("/corpora/:subject", corpora.Get)

		admin := producer.Group("", middleware.RequireAdmin())
		admin.PUT("/corpora/:subject", corpora.Put)
	}
}
