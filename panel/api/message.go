package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"smspanel/panel/common"
	"smspanel/panel/common/logx"
	"smspanel/panel/core/gateway"
	"smspanel/panel/core/notify"
	"smspanel/panel/core/routing"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

var apiMsgLog = logx.New(logx.WithPrefix("api.message"))

/******** 单发 ********/

// POST /api/message/send
// 走正式路由评估 + 网关提交，不依赖 campaign；流水照记。
func (s *Server) sendMessage(c *gin.Context) {
	var msg routing.Message
	if err := c.BindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, ok := common.NormalizePhone(msg.To)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be E.164"})
		return
	}
	msg.To = to
	if strings.TrimSpace(msg.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content required"})
		return
	}
	if !s.App.Gateway.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gateway not configured"})
		return
	}

	g := s.App.MasterDB.GormDataSource
	ev, err := routing.NewEvaluator(g)
	if err != nil {
		fail(c, err)
		return
	}
	dec := ev.Evaluate(&msg)

	day := time.Now().Format("20060102")
	ml := model.MessageLog{
		Time:          time.Now().UnixMilli(),
		RouteId:       dec.RouteId,
		FromAddr:      msg.From,
		ToAddr:        msg.To,
		ContentLength: len(msg.Content),
		Cost:          dec.Rate,
	}

	if !dec.Matched {
		ml.Status = model.MsgRejected
		ml.Error = "no route matched"
		s.App.AppendMessageLog(day, ml)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no route matched", "decision": dec})
		return
	}

	conn, err := s.usableConnector(g, dec)
	if err != nil {
		ml.Status = model.MsgFailed
		ml.Error = err.Error()
		s.App.AppendMessageLog(day, ml)
		fail(c, err)
		return
	}
	ml.ConnectorCid = conn.Cid

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	res, err := s.App.Gateway.Submit(ctx, gateway.SubmitRequest{
		Cid:     conn.Cid,
		From:    msg.From,
		To:      msg.To,
		Content: msg.Content,
	})
	if err != nil {
		ml.Status = model.MsgFailed
		ml.Error = err.Error()
	} else {
		ml.Status = model.MsgSubmitted
	}
	s.App.AppendMessageLog(day, ml)

	okSend := ml.Status == model.MsgSubmitted
	if err := dao.BumpRouteStats(g, dec.RouteId, okSend, dec.Rate); err != nil {
		apiMsgLog.Warnf("bump route stats: %v", err)
	}
	if err := dao.BumpConnectorStats(g, conn.Cid, okSend); err != nil {
		apiMsgLog.Warnf("bump connector stats: %v", err)
	}
	s.App.Sink.Submit(dec.RouteId, conn.Cid, ml.Status, dec.Rate)
	s.App.Hub.Broadcast(notify.ChanMessages, ml.Status, map[string]any{
		"to": ml.ToAddr, "route_id": ml.RouteId, "cid": ml.ConnectorCid,
	})

	if !okSend {
		c.JSON(http.StatusBadGateway, gin.H{"error": ml.Error, "decision": dec})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message_id": res.MessageId,
		"status":     ml.Status,
		"decision":   dec,
		"connector":  conn.Cid,
	})
}

// 主连接器不可用时按路由的 failover 顶上
func (s *Server) usableConnector(g *gorm.DB, dec routing.Decision) (*model.Connector, error) {
	conn, err := dao.GetConnectorById(g, dec.ConnectorId)
	if err != nil {
		return nil, err
	}
	if conn.IsUsable() {
		return conn, nil
	}
	if dec.FailoverConnectorId > 0 {
		fo, err := dao.GetConnectorById(g, dec.FailoverConnectorId)
		if err == nil && fo.IsUsable() {
			return fo, nil
		}
	}
	return nil, fmt.Errorf("connector %s not usable (status %s)", conn.Cid, conn.Status)
}

/******** 流水查询（按日分表 UNION） ********/

// 支持筛选：campaign_id, route_id, connector_cid, to, status,
// start(毫秒), end(毫秒), page, size
func (s *Server) listMessage(c *gin.Context) {
	if s.App.LogDB == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable log disabled"})
		return
	}

	page, size := common.GetPage(c)

	// --- 时间范围（毫秒），默认今天；超过 7 天 => 报错 ---
	startMs, _ := strconv.ParseInt(c.DefaultQuery("start", "0"), 10, 64)
	endMs, _ := strconv.ParseInt(c.DefaultQuery("end", "0"), 10, 64)
	if startMs <= 0 || endMs <= 0 || endMs < startMs {
		now := time.Now()
		begin := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		startMs = begin.UnixMilli()
		endMs = begin.Add(24*time.Hour - time.Millisecond).UnixMilli()
	}
	start := time.UnixMilli(startMs).In(time.Local)
	end := time.UnixMilli(endMs).In(time.Local)

	const maxRange = 7 * 24 * time.Hour
	if end.Sub(start) > maxRange {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "time_range_exceeds_limit",
			"message":    "The time range cannot exceed 7 days",
			"limit_days": 7,
		})
		return
	}

	// --- 分表集合 ---
	allTables := collectLogTablesByRange(start, end)
	existTables := filterExistingTablesGorm(s.App.LogDB.GormDataSource, allTables)
	if len(existTables) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"list": []any{}, "total": 0, "page": 1, "size": size,
			"sum_cost": 0,
		})
		return
	}

	// --- 参数解析 ---
	campaignID, _ := strconv.ParseInt(strings.TrimSpace(c.Query("campaign_id")), 10, 64)
	routeID, _ := strconv.ParseInt(strings.TrimSpace(c.Query("route_id")), 10, 64)
	cid := strings.TrimSpace(c.Query("connector_cid"))
	toAddr := strings.TrimSpace(c.Query("to"))
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))

	// --- WHERE（每个分表子查询共享） ---
	whereParts := []string{"time BETWEEN ? AND ?"}
	args := []any{start.UnixMilli(), end.UnixMilli()}

	if campaignID > 0 {
		whereParts = append(whereParts, "campaign_id = ?")
		args = append(args, campaignID)
	}
	if routeID > 0 {
		whereParts = append(whereParts, "route_id = ?")
		args = append(args, routeID)
	}
	if cid != "" {
		whereParts = append(whereParts, "connector_cid = ?")
		args = append(args, cid)
	}
	if toAddr != "" {
		whereParts = append(whereParts, "to_addr LIKE ?")
		args = append(args, "%"+toAddr+"%")
	}
	if status != "" {
		if status != model.MsgSubmitted && status != model.MsgFailed && status != model.MsgRejected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be submitted/failed/rejected"})
			return
		}
		whereParts = append(whereParts, "status = ?")
		args = append(args, status)
	}
	whereSQL := " WHERE " + strings.Join(whereParts, " AND ")

	// --- 统一列 ---
	const selectCols = "id, time, campaign_id, route_id, connector_cid, from_addr, to_addr, content_length, status, cost, error"

	// --- UNION ALL（按日分表）---
	unions := make([]string, 0, len(existTables))
	for _, t := range existTables {
		unions = append(unions, fmt.Sprintf(
			"SELECT %s FROM `%s`%s",
			selectCols, t, whereSQL,
		))
	}
	unionSQL := strings.Join(unions, " UNION ALL ")
	unionArgs := replicateArgs(args, len(unions))

	// --- 统计总数 ---
	countSQL := fmt.Sprintf("SELECT COUNT(1) AS total FROM ( %s ) AS allrows", unionSQL)
	var total int64
	if err := s.App.LogDB.GormDataSource.Raw(countSQL, unionArgs...).Scan(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	// --- 费用汇总（与列表同口径）---
	sumSQL := fmt.Sprintf(
		"SELECT COALESCE(SUM(cost),0) AS sum_cost FROM ( %s ) AS allrows",
		unionSQL,
	)
	var sum struct{ SumCost float64 }
	if err := s.App.LogDB.GormDataSource.Raw(sumSQL, unionArgs...).Scan(&sum).Error; err != nil {
		sum.SumCost = 0
	}

	if total == 0 {
		c.JSON(http.StatusOK, gin.H{
			"list":     []any{},
			"total":    0,
			"page":     1,
			"size":     size,
			"sum_cost": sum.SumCost,
		})
		return
	}

	// --- 纠正页码，避免越界 ---
	maxPage := int((total + int64(size) - 1) / int64(size))
	if page > maxPage {
		page = maxPage
	}
	offset := (page - 1) * size
	if offset < 0 {
		offset = 0
	}

	// --- 列表：time DESC, id DESC ---
	querySQL := fmt.Sprintf(
		"SELECT * FROM ( %s ) AS allrows ORDER BY time DESC, id DESC LIMIT ? OFFSET ?",
		unionSQL,
	)
	qArgs := append(unionArgs, size, offset)

	var rows []model.MessageLog
	if err := s.App.LogDB.GormDataSource.Raw(querySQL, qArgs...).Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": err.Error(),
		})
		return
	}

	type outRow struct {
		ID            int64   `json:"id"`
		Time          int64   `json:"time"`
		CampaignId    int64   `json:"campaign_id"`
		RouteId       int64   `json:"route_id"`
		ConnectorCid  string  `json:"connector_cid"`
		FromAddr      string  `json:"from_addr"`
		ToAddr        string  `json:"to_addr"`
		ContentLength int     `json:"content_length"`
		Status        string  `json:"status"`
		Cost          float64 `json:"cost"`
		Error         string  `json:"error"`
	}
	outs := make([]outRow, 0, len(rows))
	for _, r := range rows {
		outs = append(outs, outRow{
			ID:            r.Id,
			Time:          r.Time,
			CampaignId:    r.CampaignId,
			RouteId:       r.RouteId,
			ConnectorCid:  r.ConnectorCid,
			FromAddr:      r.FromAddr,
			ToAddr:        r.ToAddr,
			ContentLength: r.ContentLength,
			Status:        r.Status,
			Cost:          r.Cost,
			Error:         r.Error,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"list":     outs,
		"total":    total,
		"page":     page,
		"size":     size,
		"sum_cost": sum.SumCost,
	})
}

/******** helpers ********/

// 生成 start..end（含）之间每天的表名
func collectLogTablesByRange(start, end time.Time) []string {
	var out []string
	for d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()); !d.After(end); d = d.Add(24 * time.Hour) {
		out = append(out, model.MessageLogTable(d.Format("20060102")))
	}
	return out
}

// 过滤存在的分表（GORM Migrator）
func filterExistingTablesGorm(db *gorm.DB, tables []string) []string {
	var existed []string
	for _, t := range tables {
		if db.Migrator().HasTable(t) {
			existed = append(existed, t)
		}
	}
	return existed
}

// 把一组参数复制 times 次（UNION 的每个子查询要一份相同参数）
func replicateArgs(args []any, times int) []any {
	out := make([]any, 0, len(args)*times)
	for i := 0; i < times; i++ {
		out = append(out, args...)
	}
	return out
}
