package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smspanel/panel/core/routing"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

/******** DTO ********/

type routeDTO struct {
	Ord                 int     `json:"ord"` // 0 或缺省 = 追加到末尾
	Type                string  `json:"type"`
	ConnectorId         int64   `json:"connector_id"`
	FailoverConnectorId int64   `json:"failover_connector_id"`
	Rate                float64 `json:"rate"`
	Filters             []int64 `json:"filters"`
	IsActive            *bool   `json:"is_active"`
	Description         string  `json:"description"`
}

func (d *routeDTO) toModel() *model.Route {
	r := &model.Route{
		Ord:                 d.Ord,
		Type:                strings.ToLower(strings.TrimSpace(d.Type)),
		ConnectorId:         d.ConnectorId,
		FailoverConnectorId: d.FailoverConnectorId,
		Rate:                d.Rate,
		Filters:             model.Int64List(d.Filters),
		IsActive:            true,
		Description:         d.Description,
	}
	if d.IsActive != nil {
		r.IsActive = *d.IsActive
	}
	return r
}

/******** Handlers ********/

// GET /api/route  —— 全量按 ord 升序，不分页（路由表就是一张有序小表）
func (s *Server) listRoute(c *gin.Context) {
	list, err := dao.ListRoutes(s.App.MasterDB.GormDataSource)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": len(list)})
}

// GET /api/route/:id
func (s *Server) getRoute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := dao.GetRouteById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// POST /api/route
func (s *Server) createRoute(c *gin.Context) {
	var d routeDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r := d.toModel()
	if err := dao.CreateRoute(s.App.MasterDB.GormDataSource, r); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// PUT /api/route/:id  —— 只改内容字段，ord 走 /route/reorder
func (s *Server) updateRoute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var d routeDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r := d.toModel()
	r.Id = id
	if err := dao.UpdateRoute(s.App.MasterDB.GormDataSource, r); err != nil {
		fail(c, err)
		return
	}
	out, err := dao.GetRouteById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/route/:id
func (s *Server) deleteRoute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := dao.DeleteRoute(s.App.MasterDB.GormDataSource, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PUT /api/route/reorder  {"order":[id,id,...]}  全量换序：
// 必须恰好覆盖现有全部路由 id，位置即新 ord（1 起）。
func (s *Server) reorderRoute(c *gin.Context) {
	var req struct {
		Order []int64 `json:"order"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Order) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order required"})
		return
	}
	order := make(map[int64]int, len(req.Order))
	for i, id := range req.Order {
		order[id] = i + 1
	}
	if len(order) != len(req.Order) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duplicate id in order"})
		return
	}
	if err := dao.ReorderRoutes(s.App.MasterDB.GormDataSource, order); err != nil {
		fail(c, err)
		return
	}
	list, err := dao.ListRoutes(s.App.MasterDB.GormDataSource)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": len(list)})
}

// POST /api/route/test  —— 不真发，对一条样例消息解释整张路由表
func (s *Server) testRoute(c *gin.Context) {
	var msg routing.Message
	if err := c.BindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev, err := routing.NewEvaluator(s.App.MasterDB.GormDataSource)
	if err != nil {
		fail(c, err)
		return
	}
	dec, traces := ev.Explain(&msg)

	// 全表范围内命中过的 active 过滤器（去重，保持首次出现顺序）
	seen := map[string]struct{}{}
	matched := make([]string, 0)
	for _, rt := range traces {
		for _, ft := range rt.Filters {
			if !ft.Active || !ft.Matched {
				continue
			}
			if _, ok := seen[ft.Fid]; ok {
				continue
			}
			seen[ft.Fid] = struct{}{}
			matched = append(matched, ft.Fid)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"decision":        dec,
		"routes":          traces,
		"matched_filters": matched,
	})
}
