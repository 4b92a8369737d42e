package app

import (
	"context"
	"fmt"
	"time"

	"smspanel/panel/common/bruteguard"
	"smspanel/panel/common/config"
	"smspanel/panel/common/logx"
	"smspanel/panel/core/campaign"
	"smspanel/panel/core/gateway"
	"smspanel/panel/core/metrics"
	"smspanel/panel/core/notify"
	"smspanel/panel/db"
	"smspanel/panel/db/dao"
	"smspanel/panel/model"
)

var log = logx.New(logx.WithPrefix("app"))

type App struct {
	Cfg     *config.Config
	CfgPath string

	MasterDB *db.DB
	LogDB    *db.DB
	Day      string

	MsgAggregator *dao.MessageLogAggregator
	Guard         *bruteguard.Guard
	Gateway       *gateway.Client
	Hub           *notify.Hub
	Sink          *metrics.Sink
	Runner        *campaign.Runner

	Ctx    context.Context
	Cancel context.CancelFunc

	Log *logx.Logger
}

func New(cfgPath string) (*App, error) {
	cfg, cfgP, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	a := &App{
		Cfg:     cfg,
		CfgPath: cfgP,
		Log:     log,
	}
	logx.SetLevelString(a.Cfg.Logging.Level)
	a.Log.Infof("config loaded from %s", cfgP)

	// master 库
	master := cfg.DB.Master
	a.Log.Debugf("opening master db: driver=%s", master.Driver)
	masterDB, err := db.OpenGorm(master.Driver, master.DSN, master.Pool)
	if err != nil {
		return nil, fmt.Errorf("open master db: %w", err)
	}
	if err := db.MigrateMasterSQL(masterDB.GormDataSource, masterDB.Driver); err != nil {
		return nil, fmt.Errorf("migrate master: %w", err)
	}
	a.MasterDB = masterDB
	a.Log.Infof("master db connected (driver=%s)", master.Driver)

	// 流水库（可与 master 分开部署）
	if cfg.DB.Log.Enable {
		logCfg := cfg.DB.Log
		a.Log.Debugf("opening log db: driver=%s", logCfg.Driver)
		logDB, err := db.OpenGorm(logCfg.Driver, logCfg.DSN, logCfg.Pool)
		if err != nil {
			return nil, fmt.Errorf("open log db: %w", err)
		}
		day := time.Now().Format("20060102")
		if err := db.EnsureMessageLogTable(logDB, day); err != nil {
			return nil, fmt.Errorf("ensure message log table for %s: %w", day, err)
		}
		a.Day = day
		a.LogDB = logDB
		a.MsgAggregator = dao.NewMessageLogAggregator(
			a.LogDB.GormDataSource,
			a.LogDB.Driver,
			model.MessageLogTable,
			func(d string) error { return db.EnsureMessageLogTable(a.LogDB, d) },
			1*time.Second,
			1000,
		)
		a.MsgAggregator.Start()
		a.Log.Infof("log db connected (driver=%s), message aggregator started (batch=1000, flush=1s, day=%s)", logCfg.Driver, day)
	} else {
		a.Log.Infof("log db disabled")
	}

	// 暴力防护
	a.Guard = bruteguard.New(bruteguard.Config{
		Window:      10 * time.Minute,
		MaxFails:    5,
		Cooldown:    30 * time.Minute,
		BaseBackoff: 3 * time.Second,
		MaxBackoff:  1 * time.Minute,
		GCInterval:  1 * time.Minute,
		AliveFor:    12 * time.Hour,
	})
	a.Log.Infof("bruteguard ready (maxFails=%d, cooldown=%s)", 5, 30*time.Minute)

	// 网关客户端（未配置时 Configured()=false，相关接口报错即可）
	a.Gateway = gateway.NewClient(cfg.Gateway)
	if a.Gateway.Configured() {
		a.Log.Infof("gateway client ready (%s)", cfg.Gateway.BaseURL)
	} else {
		a.Log.Warnf("gateway not configured, connectors run config-only")
	}

	a.Hub = notify.NewHub()
	a.Sink = metrics.NewSink(cfg.Influx)
	a.Runner = campaign.NewRunner(a.MasterDB.GormDataSource, a.Gateway, a.Hub, a.Sink, a.AppendMessageLog)

	return a, nil
}

// AppendMessageLog：流水统一出口；流水库没开就只进内存日志
func (a *App) AppendMessageLog(day string, l model.MessageLog) {
	if a.MsgAggregator == nil {
		a.Log.Debugf("message log dropped (log db disabled): to=%s status=%s", l.ToAddr, l.Status)
		return
	}
	a.MsgAggregator.AddMessageLogAsync(day, l)
}

/* -------------------- 启动 & 状态轮询 -------------------- */

func (a *App) Start() error {
	a.Ctx, a.Cancel = context.WithCancel(context.Background())
	a.Runner.Start()
	if a.Gateway.Configured() {
		interval := time.Duration(a.Cfg.Gateway.PollIntervalSec) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		go a.pollConnectorStatus(interval)
		a.Log.Infof("connector status poller started (interval=%s)", interval)
	}
	return nil
}

// pollConnectorStatus：周期从网关拉连接器状态，回写 DB 并推送页面。
// 状态以网关为准，面板从不自己猜。
func (a *App) pollConnectorStatus(interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()

	last := make(map[string]string)
	for {
		select {
		case <-a.Ctx.Done():
			a.Log.Debugf("status poller exit")
			return
		case <-tk.C:
			ctx, cancel := context.WithTimeout(a.Ctx, 15*time.Second)
			sts, err := a.Gateway.Status(ctx)
			cancel()
			if err != nil {
				a.Log.Warnf("gateway status poll failed: %v", err)
				continue
			}
			for _, st := range sts {
				if err := dao.SyncConnectorStatus(a.MasterDB.GormDataSource, st.Cid, st.Status, st.LastError); err != nil {
					a.Log.Errorf("sync connector %s: %v", st.Cid, err)
					continue
				}
				a.Sink.ConnectorStatus(st.Cid, st.Status)
				// 只在状态翻转时推送，避免页面被心跳刷屏
				if last[st.Cid] != st.Status {
					a.Log.Infof("connector %s: %s -> %s", st.Cid, last[st.Cid], st.Status)
					a.Hub.Broadcast(notify.ChanConnectors, "status", map[string]any{
						"cid": st.Cid, "status": st.Status, "last_error": st.LastError,
					})
					last[st.Cid] = st.Status
				}
			}
		}
	}
}

/* -------------------- 关闭 -------------------- */

func (a *App) Stop() error {
	if a.Cancel != nil {
		a.Cancel()
	}
	if a.Runner != nil {
		a.Runner.Shutdown()
	}
	if a.MsgAggregator != nil {
		a.MsgAggregator.Shutdown()
		a.Log.Infof("message aggregator stopped")
	}
	if a.Hub != nil {
		a.Hub.Shutdown()
	}
	if a.Sink != nil {
		a.Sink.Close()
	}
	a.Log.Infof("app stopped")
	return nil
}
