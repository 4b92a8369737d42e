package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smspanel/panel/common"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

type templateDTO struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (d *templateDTO) toModel() *model.Template {
	t := &model.Template{
		Name:        strings.TrimSpace(d.Name),
		Content:     d.Content,
		Description: d.Description,
		IsActive:    true,
	}
	if d.IsActive != nil {
		t.IsActive = *d.IsActive
	}
	return t
}

// GET /api/template?page=&size=
func (s *Server) listTemplate(c *gin.Context) {
	page, size := common.GetPage(c)
	offset := (page - 1) * size

	list, total, err := dao.ListTemplates(s.App.MasterDB.GormDataSource, offset, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": total, "page": page, "size": size})
}

// GET /api/template/:id
func (s *Server) getTemplate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	t, err := dao.GetTemplateById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// POST /api/template
func (s *Server) createTemplate(c *gin.Context) {
	var d templateDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t := d.toModel()
	if err := dao.CreateTemplate(s.App.MasterDB.GormDataSource, t); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// PUT /api/template/:id
func (s *Server) updateTemplate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var d templateDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t := d.toModel()
	t.Id = id
	if err := dao.UpdateTemplate(s.App.MasterDB.GormDataSource, t); err != nil {
		fail(c, err)
		return
	}
	out, err := dao.GetTemplateById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/template/:id  —— 被未完结 campaign 引用时 409
func (s *Server) deleteTemplate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := dao.DeleteTemplate(s.App.MasterDB.GormDataSource, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
