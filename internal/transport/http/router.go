package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewRouter(server *SlotsServer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	server.RegisterRoutes(v1)

	return r
}
