package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smspanel/panel/common"
	"smspanel/panel/common/ttime"
	"smspanel/panel/core/notify"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

/******** DTO ********/

type campaignDTO struct {
	Name           string   `json:"name"`
	TemplateId     int64    `json:"template_id"`
	MessageContent string   `json:"message_content"`
	SenderId       string   `json:"sender_id"`
	Groups         []string `json:"groups"`
	Throughput     int      `json:"throughput"`
	Description    string   `json:"description"`

	ScheduledAt *ttime.TimeFormat `json:"scheduled_at"`
}

func (d *campaignDTO) toModel() *model.Campaign {
	return &model.Campaign{
		Name:           strings.TrimSpace(d.Name),
		TemplateId:     d.TemplateId,
		MessageContent: d.MessageContent,
		SenderId:       strings.TrimSpace(d.SenderId),
		Groups:         model.StringList(d.Groups),
		Throughput:     d.Throughput,
		Description:    d.Description,
		ScheduledAt:    d.ScheduledAt,
	}
}

/******** Handlers ********/

// GET /api/campaign?status=&page=&size=
func (s *Server) listCampaign(c *gin.Context) {
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	page, size := common.GetPage(c)
	offset := (page - 1) * size

	list, total, err := dao.ListCampaigns(s.App.MasterDB.GormDataSource, status, offset, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list, "total": total, "page": page, "size": size})
}

// GET /api/campaign/:id
func (s *Server) getCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cp, err := dao.GetCampaignById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// POST /api/campaign  —— 新建即 draft；带了未来的 scheduled_at 则 scheduled
func (s *Server) createCampaign(c *gin.Context) {
	var d campaignDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cp := d.toModel()
	cp.Status = model.CampaignDraft
	if cp.ScheduledAt != nil {
		cp.Status = model.CampaignScheduled
	}
	if err := dao.CreateCampaign(s.App.MasterDB.GormDataSource, cp); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// PUT /api/campaign/:id  —— 只有 draft / scheduled 可改
func (s *Server) updateCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var d campaignDTO
	if err := c.BindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cp := d.toModel()
	cp.Id = id
	if err := dao.UpdateCampaign(s.App.MasterDB.GormDataSource, cp); err != nil {
		fail(c, err)
		return
	}
	out, err := dao.GetCampaignById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DELETE /api/campaign/:id  —— running / paused 先停再删
func (s *Server) deleteCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := dao.DeleteCampaign(s.App.MasterDB.GormDataSource, id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/campaign/:id/start
// draft 且 scheduled_at 在未来 -> scheduled（到点由 runner 拉起）；
// 否则 -> running（含 paused 恢复）。
func (s *Server) startCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cur, err := dao.GetCampaignById(s.App.MasterDB.GormDataSource, id)
	if err != nil {
		fail(c, err)
		return
	}
	to := model.CampaignRunning
	if cur.Status == model.CampaignDraft && cur.ScheduledAt != nil &&
		cur.ScheduledAt.Time.After(time.Now()) {
		to = model.CampaignScheduled
	}
	s.transitionCampaign(c, id, to)
}

// POST /api/campaign/:id/pause
func (s *Server) pauseCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.transitionCampaign(c, id, model.CampaignPaused)
}

// POST /api/campaign/:id/cancel
func (s *Server) cancelCampaign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s.transitionCampaign(c, id, model.CampaignCancelled)
}

func (s *Server) transitionCampaign(c *gin.Context, id int64, to string) {
	cp, err := dao.TransitionCampaign(s.App.MasterDB.GormDataSource, id, to)
	if err != nil {
		fail(c, err)
		return
	}
	s.App.Hub.Broadcast(notify.ChanCampaigns, to, map[string]any{"id": cp.Id, "name": cp.Name})
	c.JSON(http.StatusOK, cp)
}
