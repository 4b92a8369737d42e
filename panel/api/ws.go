package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /ws?token=  —— 连接器/活动/消息/系统事件推送（见 notify.Hub）。
// 浏览器 WebSocket 带不了 Authorization 头，token 走查询串。
func (s *Server) serveWS(c *gin.Context) {
	if _, err := s.parseToken(c.Query("token")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	s.App.Hub.Serve(c.Writer, c.Request)
}
