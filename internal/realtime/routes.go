package realtime

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/service"
)

// RegisterRoutes mounts the socket.io endpoint on the engine root.
func RegisterRoutes(r gin.IRoutes, hub *Hub) {
	handler := gin.WrapH(hub.Handler())
	r.Any("/socket.io", handler)
	r.Any("/socket.io/*any", handler)
}

// Stats reports connected clients for the lecturer dashboard.
func Stats(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"dashboard": hub.ClientCount(service.TopicDashboard),
			"total":     hub.ClientCount(""),
			"dropped":   hub.Dropped(),
		})
	}
}
