package api

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"samsar/server/config"
)

func SetupRoutes(router *gin.Engine, handler *Handler, allowedOrigins []string, logger *logrus.Logger) {
	router.Use(gin.Recovery(), RequestLogger(logger), corsMiddleware(allowedOrigins), VisitorMiddleware())

	router.GET("/healthz", handler.Health)

	api := router.Group("/api")
	{
		api.GET("/cache", handler.CacheSnapshot)

		sections := api.Group("/sections/:section")
		sections.GET("/categories", handler.GetCategories)
		sections.GET("/view", handler.GetView)
		sections.POST("/select", handler.Select)
		sections.POST("/navigate", handler.Navigate)
		sections.POST("/sort", handler.SetSort)
		sections.POST("/window", handler.SetWindow)
		sections.POST("/refresh", handler.Refresh)

		api.POST("/interactions", handler.RecordInteraction)
		api.GET("/onboarding", handler.GetOnboarding)
		api.POST("/onboarding", handler.MarkOnboarding)
		api.GET("/featured", handler.GetFeatured)
		api.GET("/records/:section/:category/:id", handler.GetRecord)
	}

	router.GET("/sections/:section", handler.SectionPage)
	router.GET("/details/:section/:category/:id", handler.DetailPage)

	// Links built for the static site: /details.html?category=..&id=..
	router.GET("/details.html", detailByQuery(handler, config.SectionProperties))
	router.GET("/request-details.html", detailByQuery(handler, config.SectionRequests))
}

func detailByQuery(handler *Handler, section string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Params = append(c.Params,
			gin.Param{Key: "section", Value: section},
			gin.Param{Key: "category", Value: c.Query("category")},
			gin.Param{Key: "id", Value: c.Query("id")},
		)
		handler.DetailPage(c)
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Accept", "Content-Type"},
		MaxAge:       5 * time.Minute,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		// The visitor cookie only travels with explicitly trusted origins
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
