package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, handler *Handler, auth gin.HandlerFunc) {
	router.GET("/healthz", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	{
		v1.POST("/intake", handler.CreateIntake)
		v1.GET("/intake", handler.ListIntakes)
		v1.GET("/intake/search", handler.SearchIntakes)
		v1.GET("/intake/:id", handler.GetIntake)
		v1.PATCH("/intake/:id/steps", handler.SubmitStep)

		v1.GET("/enrollment/eligibility", handler.CheckEligibility)
	}
}
