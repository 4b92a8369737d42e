package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smspanel/panel/common"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

/******** DTO ********/

// is_case_sensitive / is_active 用指针区分「未传」与「传 false」，未传取默认
type filterDTO struct {
	Fid             string `json:"fid"`
	Type            string `json:"type"`
	Parameter       string `json:"parameter"`
	Value           string `json:"value"`
	IsRegex         bool   `json:"is_regex"`
	IsCaseSensitive *bool  `json:"is_case_sensitive"`
	Negate          bool   `json:"negate"`
	IsActive        *bool  `json:"is_active"`
	Description     string `json:"description"`
}

func (d *filterDTO) toModel() *model.Filter {
	f := &model.Filter{
		Fid:             strings.TrimSpace(d.Fid),
		Type:            strings.ToLower(strings.TrimSpace(d.Type)),
		Parameter:       strings.TrimSpace(d.Parameter),
		Value:           d.Value,
		IsRegex:         d.IsRegex,
		IsCaseSensitive: true,
		Negate:          d.Negate,
		IsActive:        true,
		Description:     d.Description,
	}
	if d.IsCaseSensitive != nil {
		f.IsCaseSensitive = *d.IsCaseSensitive
	}
	if d.IsActive != nil {
		f.IsActive = *d.IsActive
	}
	return f
}

/******** Handlers ********/

// GET /api/filter?type=&page=&size=
func (s *Server) listFilter(c *gin.Context) {
	typ := strings.ToLower(strings.TrimSpace(c.Query("type")))
	page, size := common.GetPage(c)
	offset := (page - 1) * size

	list, total, err := dao.ListFilters(s.App.MasterDB.GormDataSource, typ, offset, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": total, "page": page, "size": size})
}

// GET /api/filter/:id
func (s *Server) getFilter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	f, err := dao.GetFilterById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// POST /api/filter
func (s *Server) createFilter(c *gin.Context) {
	var d filterDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := d.toModel()
	if err := dao.CreateFilter(s.App.MasterDB.GormDataSource, f); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// PUT /api/filter/:id
func (s *Server) updateFilter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var d filterDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f := d.toModel()
	f.Id = id
	if err := dao.UpdateFilter(s.App.MasterDB.GormDataSource, f); err != nil {
		fail(c, err)
		return
	}
	out, err := dao.GetFilterById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/filter/:id
func (s *Server) deleteFilter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := dao.DeleteFilter(s.App.MasterDB.GormDataSource, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
