package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/helpdesk-micro/tracker-service/api"
	"github.com/helpdesk-micro/tracker-service/internal/handler"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func New(ticketHandler *handler.TicketHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type"},
	}))

	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)

	r.GET("/swagger", func(c *gin.Context) { c.Redirect(http.StatusFound, "/swagger/") })
	r.GET("/swagger/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = "/swagger/index.html"
			c.Request.RequestURI = "/swagger/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	apiGroup := r.Group("/api")
	{
		tickets := apiGroup.Group("/tickets")
		tickets.POST("", ticketHandler.Create)
		tickets.GET("", ticketHandler.List)
		tickets.GET("/export", ticketHandler.Export)
		tickets.GET("/:id", ticketHandler.Get)
		tickets.PATCH("/:id", ticketHandler.Update)
		tickets.POST("/:id/classify", handler.RateLimit(10), ticketHandler.Classify)

		apiGroup.GET("/stats", handler.RateLimit(30), ticketHandler.Stats)
	}

	return r
}
