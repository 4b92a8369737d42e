package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"smspanel/panel/app"
	"smspanel/panel/common/bruteguard"
	"smspanel/panel/db/dao"
)

type Server struct {
	Guard *bruteguard.Guard
	App   *app.App
}

func New(app *app.App) *Server {
	return &Server{App: app, Guard: app.Guard}
}

// 统一错误出口：校验错 400、冲突 409、不存在 404，其余 500
func fail(c *gin.Context, err error) {
	var ve *dao.ValidationError
	var ce *dao.ConflictError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, gin.H{"error": ce.Msg})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return 0, false
	}
	return id, true
}
