package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(roomController *RoomController, brokerController *BrokerController, allowedOrigins []string) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	if roomController != nil {
		router.GET("/ws", roomController.Relay)

		rooms := router.Group("/api/rooms")
		rooms.POST("", roomController.CreateRoom)
		rooms.GET("/:roomID", roomController.GetRoom)
	}

	if brokerController != nil {
		router.GET("/broker", brokerController.Serve)
	}

	return router
}
