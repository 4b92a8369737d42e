package api

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smspanel/panel/common"
)

/********** Router **********/
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	// 中间件：Recovery + 日志
	r.Use(gin.Recovery(), gin.Logger())

	/********** 业务 API **********/
	api := r.Group("/api")
	{
		api.POST("/login", s.login)
	}

	r.GET("/ws", s.serveWS)

	auth := api.Group("/")
	auth.Use(s.AuthRequired())
	{
		auth.GET("/me", s.me)
		auth.PUT("/me/password", s.changePassword)

		auth.GET("/systemInfo", s.systemInfo)

		auth.GET("/filter", s.listFilter)
		auth.GET("/filter/:id", s.getFilter)

		auth.GET("/route", s.listRoute)
		auth.GET("/route/:id", s.getRoute)
		auth.POST("/route/test", s.testRoute)

		auth.GET("/connector", s.listConnector)
		auth.GET("/connector/:id", s.getConnector)
		auth.GET("/connector/gateway/status", s.gatewayStatus)

		auth.GET("/contact", s.listContact)
		auth.GET("/contact/:id", s.getContact)

		auth.GET("/template", s.listTemplate)
		auth.GET("/template/:id", s.getTemplate)

		auth.GET("/campaign", s.listCampaign)
		auth.GET("/campaign/:id", s.getCampaign)

		auth.GET("/message", s.listMessage)
	}

	admin := auth.Group("/")
	admin.Use(AdminOnly())
	{
		admin.POST("/filter", s.createFilter)
		admin.PUT("/filter/:id", s.updateFilter)
		admin.DELETE("/filter/:id", s.deleteFilter)

		admin.POST("/route", s.createRoute)
		admin.PUT("/route/:id", s.updateRoute)
		admin.DELETE("/route/:id", s.deleteRoute)
		admin.PUT("/route/reorder", s.reorderRoute)

		admin.POST("/connector", s.createConnector)
		admin.PUT("/connector/:id", s.updateConnector)
		admin.DELETE("/connector/:id", s.deleteConnector)
		admin.POST("/connector/:id/start", s.startConnector)
		admin.POST("/connector/:id/stop", s.stopConnector)

		admin.POST("/contact", s.createContact)
		admin.PUT("/contact/:id", s.updateContact)
		admin.DELETE("/contact/:id", s.deleteContact)
		admin.POST("/contact/import", s.importContact)

		admin.POST("/template", s.createTemplate)
		admin.PUT("/template/:id", s.updateTemplate)
		admin.DELETE("/template/:id", s.deleteTemplate)

		admin.POST("/campaign", s.createCampaign)
		admin.PUT("/campaign/:id", s.updateCampaign)
		admin.DELETE("/campaign/:id", s.deleteCampaign)
		admin.POST("/campaign/:id/start", s.startCampaign)
		admin.POST("/campaign/:id/pause", s.pauseCampaign)
		admin.POST("/campaign/:id/cancel", s.cancelCampaign)

		admin.POST("/message/send", s.sendMessage)

		admin.GET("/user", s.listUser)
		admin.POST("/user", s.createUser)
		admin.PUT("/user/:id", s.updateUser)
		admin.DELETE("/user/:id", s.deleteUser)
	}

	/********** 前端静态资源（Vue dist） **********/
	base := distBase()

	// 一般 Vite/Vue3 的静态资源放在 /assets 下，给它做静态目录映射
	r.Static("/assets", filepath.Join(base, "assets"))
	// 常见静态文件
	r.StaticFile("/favicon.ico", filepath.Join(base, "favicon.ico"))
	r.StaticFile("/robots.txt", filepath.Join(base, "robots.txt"))
	// 可选：如果有 manifest 等
	r.StaticFile("/manifest.webmanifest", filepath.Join(base, "manifest.webmanifest"))

	// 其余非 /api/** 的路径全部回退到 index.html（支持前端路由）
	r.NoRoute(func(c *gin.Context) {
		// 若是 /api 打头但没匹配到具体路由，返回 JSON 404，而不是把 index.html 返回给前端
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.URL.Path == "/api" || strings.HasPrefix(c.Request.URL.Path, "/ws/") || c.Request.URL.Path == "/ws" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found", "time": time.Now().UnixMilli()})
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead:
			c.Header("Cache-Control", "no-cache")
			c.File(filepath.Join(base, "index.html"))
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "not found", "time": time.Now().UnixMilli()})
		}
	})

	return r
}

func distBase() string {
	if common.IsDesktop() {
		return "./html"
	}
	return "/var/html/smspanel"
}
