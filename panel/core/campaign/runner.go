package campaign

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"gorm.io/gorm"
	"smspanel/panel/common"
	"smspanel/panel/common/logx"
	"smspanel/panel/core/gateway"
	"smspanel/panel/core/metrics"
	"smspanel/panel/core/notify"
	"smspanel/panel/core/routing"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

var runLog = logx.New(logx.WithPrefix("campaign"))

// LogFunc：一条发送流水的落库出口（走批量聚合器）
type LogFunc func(day string, l model.MessageLog)

// Runner：活动调度器。tick 负责两件事：到点的 scheduled 活动转 running，
// running 但没有驱动协程的活动补一个驱动。每个活动一个协程，
// 发送节奏由活动自己的 throughput（每分钟）整形。
type Runner struct {
	db    *gorm.DB
	gw    *gateway.Client
	hub   *notify.Hub
	sink  *metrics.Sink
	logFn LogFunc
	tick  time.Duration

	mu      sync.Mutex
	driving map[int64]struct{} // 已有驱动协程的活动

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(db *gorm.DB, gw *gateway.Client, hub *notify.Hub, sink *metrics.Sink, logFn LogFunc) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		db:      db,
		gw:      gw,
		hub:     hub,
		sink:    sink,
		logFn:   logFn,
		tick:    5 * time.Second,
		driving: make(map[int64]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
	runLog.Infof("runner started (tick=%s)", r.tick)
}

func (r *Runner) Shutdown() {
	r.cancel()
	r.wg.Wait()
	runLog.Infof("runner stopped")
}

func (r *Runner) loop() {
	defer r.wg.Done()
	tk := time.NewTicker(r.tick)
	defer tk.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-tk.C:
			r.promoteDue()
			r.driveRunning()
		}
	}
}

// promoteDue：scheduled 且到点 -> running
func (r *Runner) promoteDue() {
	now := time.Now().Format("2006-01-02 15:04:05")
	due, err := dao.ListDueScheduled(r.db, now)
	if err != nil {
		runLog.Errorf("list due scheduled: %v", err)
		return
	}
	for _, cp := range due {
		if _, err := dao.TransitionCampaign(r.db, cp.Id, model.CampaignRunning); err != nil {
			runLog.Errorf("[campaign %d] promote: %v", cp.Id, err)
			continue
		}
		runLog.Infof("[campaign %d] %s due -> running", cp.Id, cp.Name)
		r.hub.Broadcast(notify.ChanCampaigns, "started", map[string]any{"id": cp.Id, "name": cp.Name})
	}
}

func (r *Runner) driveRunning() {
	running, _, err := dao.ListCampaigns(r.db, model.CampaignRunning, 0, 0)
	if err != nil {
		runLog.Errorf("list running: %v", err)
		return
	}
	for _, cp := range running {
		r.mu.Lock()
		_, busy := r.driving[cp.Id]
		if !busy {
			r.driving[cp.Id] = struct{}{}
		}
		r.mu.Unlock()
		if busy {
			continue
		}
		r.wg.Add(1)
		go func(id int64) {
			defer r.wg.Done()
			defer func() {
				r.mu.Lock()
				delete(r.driving, id)
				r.mu.Unlock()
			}()
			r.drive(id)
		}(cp.Id)
	}
}

// drive：把一个 running 活动推进到终态（或暂停/关停为止）。
// 暂停只是退出驱动协程；恢复后下一次 tick 会重新驱动，
// 依赖 message_log 去重已发过的号码。
func (r *Runner) drive(id int64) {
	cp, err := dao.GetCampaignById(r.db, id)
	if err != nil {
		runLog.Errorf("[campaign %d] load: %v", id, err)
		return
	}
	content := cp.MessageContent
	if cp.TemplateId > 0 {
		tpl, err := dao.GetTemplateById(r.db, cp.TemplateId)
		if err != nil {
			r.fail(id, "template missing")
			return
		}
		content = tpl.Content
	}

	recipients, err := dao.ExpandGroups(r.db, cp.Groups)
	if err != nil {
		runLog.Errorf("[campaign %d] expand groups: %v", id, err)
		return
	}
	if err := dao.SetCampaignTotalRecipients(r.db, id, int64(len(recipients))); err != nil {
		runLog.Errorf("[campaign %d] set recipients: %v", id, err)
	}
	if len(recipients) == 0 {
		r.finish(id, model.CampaignCompleted)
		return
	}

	// 断点续跑：跳过已经发过的（重新快照一遍进度）
	sent, _ := r.sentSoFar(cp)
	runLog.Infof("[campaign %d] %s driving: recipients=%d already_sent=%d", id, cp.Name, len(recipients), len(sent))

	// 整形：throughput 是每分钟
	lim := common.MkShaper(float64(cp.Throughput)/60.0, 1)

	ev, err := routing.NewEvaluator(r.db)
	if err != nil {
		runLog.Errorf("[campaign %d] routing snapshot: %v", id, err)
		return
	}
	connectors, err := r.connectorIndex()
	if err != nil {
		runLog.Errorf("[campaign %d] connectors: %v", id, err)
		return
	}

	var nSent, nFailed int64
	for _, ct := range recipients {
		if _, dup := sent[ct.PhoneNumber]; dup {
			continue
		}

		// 每条消息前看一眼状态：paused/cancelled 立即让路
		cur, err := dao.GetCampaignById(r.db, id)
		if err != nil || cur.Status != model.CampaignRunning {
			runLog.Infof("[campaign %d] yield (status=%v)", id, statusOf(cur, err))
			return
		}
		if lim != nil {
			if err := lim.Wait(r.ctx); err != nil {
				return // 关停
			}
		} else if r.ctx.Err() != nil {
			return
		}

		msg := &routing.Message{
			From:    cp.SenderId,
			To:      ct.PhoneNumber,
			Content: Render(content, &ct),
			Tags:    map[string]string{"campaign": cp.Name},
		}
		ok := r.sendOne(cp, ev, connectors, msg)
		if ok {
			nSent++
		} else {
			nFailed++
		}
	}

	// 计数已在 sendOne 逐条回写，这里只负责终态
	r.finish(id, model.CampaignCompleted)
	runLog.Infof("[campaign %d] done: sent=%d failed=%d", id, nSent, nFailed)
}

// sendOne：路由 -> 选连接器（failover）-> 网关提交 -> 流水/计数/打点
func (r *Runner) sendOne(cp *model.Campaign, ev *routing.Evaluator, conns map[int64]model.Connector, msg *routing.Message) bool {
	day := time.Now().Format("20060102")
	ml := model.MessageLog{
		Time:          time.Now().UnixMilli(),
		CampaignId:    cp.Id,
		FromAddr:      msg.From,
		ToAddr:        msg.To,
		ContentLength: len(msg.Content),
	}

	dec := ev.Evaluate(msg)
	if !dec.Matched {
		ml.Status = model.MsgRejected
		ml.Error = "no matching route"
		r.logFn(day, ml)
		_ = dao.BumpCampaignStats(r.db, cp.Id, 0, 1, 0)
		return false
	}
	ml.RouteId = dec.RouteId

	conn, connErr := pickConnector(dec, conns)
	if connErr != nil {
		ml.Status = model.MsgFailed
		ml.Error = connErr.Error()
		r.logFn(day, ml)
		_ = dao.BumpRouteStats(r.db, dec.RouteId, false, 0)
		_ = dao.BumpCampaignStats(r.db, cp.Id, 0, 1, 0)
		return false
	}
	ml.ConnectorCid = conn.Cid

	ctx, cancel := context.WithTimeout(r.ctx, 15*time.Second)
	res, err := r.gw.Submit(ctx, gateway.SubmitRequest{
		Cid: conn.Cid, From: msg.From, To: msg.To, Content: msg.Content,
	})
	cancel()

	ok := err == nil && res.Error == ""
	if ok {
		ml.Status = model.MsgSubmitted
		ml.Cost = dec.Rate
	} else {
		ml.Status = model.MsgFailed
		if err != nil {
			ml.Error = err.Error()
		} else {
			ml.Error = res.Error
		}
	}
	r.logFn(day, ml)
	_ = dao.BumpRouteStats(r.db, dec.RouteId, ok, dec.Rate)
	_ = dao.BumpConnectorStats(r.db, conn.Cid, ok)
	if ok {
		_ = dao.BumpCampaignStats(r.db, cp.Id, 1, 0, dec.Rate)
	} else {
		_ = dao.BumpCampaignStats(r.db, cp.Id, 0, 1, 0)
	}
	r.sink.Submit(dec.RouteId, conn.Cid, ml.Status, ml.Cost)
	r.hub.Broadcast(notify.ChanMessages, ml.Status, map[string]any{
		"campaign_id": cp.Id, "to": msg.To, "route_id": dec.RouteId, "connector": conn.Cid,
	})
	return ok
}

// pickConnector：主用可用就用主用；failover 路由在主用不可用时切备用
func pickConnector(dec routing.Decision, conns map[int64]model.Connector) (*model.Connector, error) {
	primary, ok := conns[dec.ConnectorId]
	if ok && primary.IsUsable() {
		return &primary, nil
	}
	if dec.FailoverConnectorId > 0 {
		if fb, ok := conns[dec.FailoverConnectorId]; ok && fb.IsUsable() {
			runLog.Warnf("route %d: primary connector unusable, failing over to %s", dec.RouteId, fb.Cid)
			return &fb, nil
		}
	}
	if !ok {
		return nil, errors.New("route connector missing")
	}
	return nil, errors.New("no usable connector (primary " + primary.Status + ")")
}

func (r *Runner) connectorIndex() (map[int64]model.Connector, error) {
	list, _, err := dao.ListConnectors(r.db, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]model.Connector, len(list))
	for _, c := range list {
		out[c.Id] = c
	}
	return out, nil
}

// sentSoFar：从当日流水恢复该活动已提交的号码（暂停恢复时去重用）。
// 只看当天：跨天恢复的活动重发少量头部消息可以接受，流水表按日分表，
// 全量翻旧表不划算。
func (r *Runner) sentSoFar(cp *model.Campaign) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	day := time.Now().Format("20060102")
	tbl := model.MessageLogTable(day)
	if !r.db.Migrator().HasTable(tbl) {
		return out, nil
	}
	var rows []struct{ ToAddr string }
	if err := r.db.Table(tbl).Select("to_addr").
		Where("campaign_id = ? AND status = ?", cp.Id, model.MsgSubmitted).
		Scan(&rows).Error; err != nil {
		return out, err
	}
	for _, x := range rows {
		out[x.ToAddr] = struct{}{}
	}
	return out, nil
}

func (r *Runner) finish(id int64, status string) {
	if _, err := dao.TransitionCampaign(r.db, id, status); err != nil {
		runLog.Errorf("[campaign %d] finish %s: %v", id, status, err)
		return
	}
	r.hub.Broadcast(notify.ChanCampaigns, status, map[string]any{"id": id})
}

func (r *Runner) fail(id int64, reason string) {
	runLog.Errorf("[campaign %d] failed: %s", id, reason)
	r.finish(id, model.CampaignFailed)
}

func statusOf(cp *model.Campaign, err error) string {
	if err != nil {
		return "load-error"
	}
	return cp.Status
}

/* -------------------- 模板渲染 -------------------- */

var rePlaceholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render：{{first_name}} 等占位符替换为联系人字段；自定义字段优先于同名
// 内建字段，查不到替换为空串
func Render(tpl string, ct *model.Contact) string {
	return rePlaceholder.ReplaceAllStringFunc(tpl, func(m string) string {
		key := rePlaceholder.FindStringSubmatch(m)[1]
		if v, ok := ct.Custom[key]; ok {
			return v
		}
		switch key {
		case "first_name":
			return ct.FirstName
		case "last_name":
			return ct.LastName
		case "phone_number":
			return ct.PhoneNumber
		case "email":
			return ct.Email
		default:
			return ""
		}
	})
}
