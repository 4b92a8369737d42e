package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smspanel/panel/common"
	"smspanel/panel/model"
)

/******** 操作员账号管理（admin） ********/

// GET /api/user?q=&page=&size=
func (s *Server) listUser(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	page, size := common.GetPage(c)
	offset := (page - 1) * size

	base := s.App.MasterDB.GormDataSource.Model(&model.User{})
	if q != "" {
		base = base.Where("username LIKE ?", "%"+q+"%")
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var list []model.User
	if err := base.Select("id, username, status, create_date_time, update_date_time").
		Order("id ASC").Limit(size).Offset(offset).Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": total, "page": page, "size": size})
}

// POST /api/user  {username,password,status}
func (s *Server) createUser(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Status   string `json:"status"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u := strings.TrimSpace(req.Username)
	p := req.Password
	if len(u) < 2 || len(u) > 32 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username length must be between 2 and 32 characters"})
		return
	}
	if len(p) < 6 || len(p) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password length must be between 6 and 64 characters"})
		return
	}
	st := strings.ToLower(strings.TrimSpace(req.Status))
	if st == "" {
		st = model.StatusEnabled
	}
	if st != model.StatusEnabled && st != model.StatusDisabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be enabled/disabled"})
		return
	}

	g := s.App.MasterDB.GormDataSource
	var n int64
	if err := g.Model(&model.User{}).Where("username = ?", u).Count(&n).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if n > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		return
	}

	m := model.User{
		Username:       u,
		Password:       p,
		PasswordSha256: common.HashUP(p),
		Status:         st,
	}
	if err := g.Create(&m).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": m.Id, "username": m.Username, "status": m.Status})
}

// PUT /api/user/:id  {password?,status?}
func (s *Server) updateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
		Status   string `json:"status"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	up := map[string]any{}
	if req.Password != "" {
		if len(req.Password) < 6 || len(req.Password) > 64 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password length must be between 6 and 64 characters"})
			return
		}
		up["password"] = req.Password
		up["password_sha256"] = common.HashUP(req.Password)
	}
	if req.Status != "" {
		st := strings.ToLower(strings.TrimSpace(req.Status))
		if st != model.StatusEnabled && st != model.StatusDisabled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be enabled/disabled"})
			return
		}
		// 管理员账号不许停用
		if st == model.StatusDisabled && common.IsAdminID(s.App.Cfg.Admin.AdminIDs, id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot disable admin"})
			return
		}
		up["status"] = st
	}
	if len(up) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	res := s.App.MasterDB.GormDataSource.Model(&model.User{}).Where("id = ?", id).Updates(up)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DELETE /api/user/:id
func (s *Server) deleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if common.IsAdminID(s.App.Cfg.Admin.AdminIDs, id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete admin"})
		return
	}
	res := s.App.MasterDB.GormDataSource.Delete(&model.User{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
