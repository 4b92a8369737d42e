package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smspanel/panel/common"
	"smspanel/panel/common/logx"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

var apiConnLog = logx.New(logx.WithPrefix("api.connector"))

/******** DTO ********/

type connectorDTO struct {
	Cid              string `json:"cid"`
	Label            string `json:"label"`
	Host             string `json:"host"`
	Port             int    `json:"port"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	SystemId         string `json:"system_id"`
	BindType         string `json:"bind_type"`
	SubmitThroughput int    `json:"submit_throughput"`
	IsEnabled        *bool  `json:"is_enabled"`
	Description      string `json:"description"`
}

func (d *connectorDTO) toModel() *model.Connector {
	m := &model.Connector{
		Cid:              strings.TrimSpace(d.Cid),
		Label:            strings.TrimSpace(d.Label),
		Host:             strings.TrimSpace(d.Host),
		Port:             d.Port,
		Username:         d.Username,
		Password:         d.Password,
		SystemId:         d.SystemId,
		BindType:         strings.ToLower(strings.TrimSpace(d.BindType)),
		SubmitThroughput: d.SubmitThroughput,
		IsEnabled:        true,
		Description:      d.Description,
	}
	if d.IsEnabled != nil {
		m.IsEnabled = *d.IsEnabled
	}
	return m
}

/******** Handlers ********/

// GET /api/connector?page=&size=
func (s *Server) listConnector(c *gin.Context) {
	page, size := common.GetPage(c)
	offset := (page - 1) * size

	list, total, err := dao.ListConnectors(s.App.MasterDB.GormDataSource, offset, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": total, "page": page, "size": size})
}

// GET /api/connector/:id
func (s *Server) getConnector(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := dao.GetConnectorById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// POST /api/connector
func (s *Server) createConnector(c *gin.Context) {
	var d connectorDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := d.toModel()
	m.Status = model.ConnStopped
	if err := dao.CreateConnector(s.App.MasterDB.GormDataSource, m); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// PUT /api/connector/:id
func (s *Server) updateConnector(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var d connectorDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m := d.toModel()
	m.Id = id
	if err := dao.UpdateConnector(s.App.MasterDB.GormDataSource, m); err != nil {
		fail(c, err)
		return
	}
	out, err := dao.GetConnectorById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/connector/:id
func (s *Server) deleteConnector(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := dao.DeleteConnector(s.App.MasterDB.GormDataSource, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/connector/:id/start | stop  —— 转发给网关管理 API，
// 实际状态由轮询同步回来，这里只回「指令已受理」。
func (s *Server) startConnector(c *gin.Context) { s.switchConnector(c, true) }
func (s *Server) stopConnector(c *gin.Context)  { s.switchConnector(c, false) }

func (s *Server) switchConnector(c *gin.Context, up bool) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if !s.App.Gateway.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gateway not configured"})
		return
	}
	m, err := dao.GetConnectorById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	if up && !m.IsEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connector disabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	if up {
		err = s.App.Gateway.StartConnector(ctx, m.Cid)
	} else {
		err = s.App.Gateway.StopConnector(ctx, m.Cid)
	}
	if err != nil {
		apiConnLog.Warnf("connector %s switch(up=%v) failed: %v", m.Cid, up, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	want := model.ConnStarting
	if !up {
		want = model.ConnStopped
	}
	_ = dao.SyncConnectorStatus(s.App.MasterDB.GormDataSource, m.Cid, want, "")
	c.JSON(http.StatusOK, gin.H{"ok": true, "cid": m.Cid, "status": want})
}

// GET /api/connector/gateway/status  —— 直查网关的实时状态
func (s *Server) gatewayStatus(c *gin.Context) {
	if !s.App.Gateway.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gateway not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	list, err := s.App.Gateway.Status(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": len(list)})
}
