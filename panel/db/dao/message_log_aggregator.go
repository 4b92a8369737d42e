package dao

import (
	"context"
	"smspanel/panel/common/logx"
	"smspanel/panel/model"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

var daoMsgLogAggregatorLog = logx.New(logx.WithPrefix("dao.message_log_aggregator"))

// MessageLogAggregator：发送流水的批量落库器。流水量大（活动跑起来
// 每秒可达连接器吞吐上限），逐条 INSERT 会拖垮 SQLite，这里攒批写。
type MessageLogAggregator struct {
	db         *gorm.DB
	driver     string
	tableFunc  func(day string) string // e.g. model.MessageLogTable
	flushEvery time.Duration
	maxBatch   int

	inCh   chan msgItem
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 分表存在性：本地缓存 + singleflight 抑制并发 ensure
	ensuredDays sync.Map // map[string]struct{}
	sf          singleflight.Group

	// 外部注入：确保某个 day 的日志表存在（建表+索引）
	ensure func(day string) error
}

type msgItem struct {
	day string
	log model.MessageLog
}

func NewMessageLogAggregator(
	db *gorm.DB, driver string,
	tableFunc func(day string) string,
	ensureTable func(day string) error,
	flushEvery time.Duration, maxBatch int,
) *MessageLogAggregator {
	if flushEvery <= 0 {
		flushEvery = 700 * time.Millisecond
	}
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &MessageLogAggregator{
		db:         db,
		driver:     strings.ToLower(driver),
		tableFunc:  tableFunc,
		ensure:     ensureTable,
		flushEvery: flushEvery,
		maxBatch:   maxBatch,
		inCh:       make(chan msgItem, maxBatch),
		ctx:        ctx,
		cancel:     cancel,
	}
	daoMsgLogAggregatorLog.Infof("init flushEvery=%v maxBatch=%d driver=%s", a.flushEvery, a.maxBatch, a.driver)
	return a
}

func (a *MessageLogAggregator) Start() {
	a.wg.Add(1)
	go a.worker()
	daoMsgLogAggregatorLog.Infof("started")
}

func (a *MessageLogAggregator) Shutdown() {
	daoMsgLogAggregatorLog.Infof("shutdown begin")
	a.cancel()
	a.wg.Wait()
	daoMsgLogAggregatorLog.Infof("shutdown done")
}

// Append：严格 FIFO；在入队前先确保当日分表存在（并发去重，失败留给 flush 再试）
func (a *MessageLogAggregator) AddMessageLogAsync(day string, log model.MessageLog) {
	// 预 ensure（失败不阻塞写入，flush 再补一次）
	if err := a.ensureOnce(day); err != nil {
		daoMsgLogAggregatorLog.Debugf("ensure pre-add failed day=%s err=%v (will retry in flush)", day, err)
	}

	select {
	case <-a.ctx.Done():
		// 丢弃（已关停）
		return
	case a.inCh <- msgItem{day: day, log: log}:
	}
}

func (a *MessageLogAggregator) worker() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.flushEvery)
	defer ticker.Stop()

	buf := make([]msgItem, 0, a.maxBatch)

	flush := func() {
		n := len(buf)
		if n == 0 {
			return
		}
		daoMsgLogAggregatorLog.Debugf("flush begin size=%d", n)

		// 1) 按到达顺序分组，并记录 day 的出现顺序（避免 map 随机顺序）
		byDay := make(map[string][]model.MessageLog, 4)
		daysOrder := make([]string, 0, 4)
		for _, it := range buf {
			if _, ok := byDay[it.day]; !ok {
				daysOrder = append(daysOrder, it.day)
			}
			byDay[it.day] = append(byDay[it.day], it.log)
		}

		// 2) 逐 day 处理：ensure -> 批量写；失败的进入 next，保留原始顺序
		next := make([]msgItem, 0, n)
		totalOK := 0
		for _, day := range daysOrder {
			logs := byDay[day]

			if err := a.ensureOnce(day); err != nil {
				// ensure 失败：该 day 的日志全部回队尾
				daoMsgLogAggregatorLog.Warnf("ensure failed day=%s err=%v (defer to next flush, count=%d)", day, err, len(logs))
				for _, l := range logs {
					next = append(next, msgItem{day: day, log: l})
				}
				continue
			}

			if err := a.batchInsert(day, logs); err != nil {
				daoMsgLogAggregatorLog.Errorf("batch insert failed day=%s err=%v (defer to next flush, count=%d)", day, err, len(logs))
				for _, l := range logs {
					next = append(next, msgItem{day: day, log: l})
				}
				continue
			}

			totalOK += len(logs)
			daoMsgLogAggregatorLog.Debugf("batch inserted day=%s count=%d", day, len(logs))
		}

		if len(next) > 0 {
			// 有失败/未写成功的，保留到下一轮
			daoMsgLogAggregatorLog.Warnf("flush partial: ok=%d pending=%d", totalOK, len(next))
			buf = next
		} else {
			// 全部成功，清空
			daoMsgLogAggregatorLog.Debugf("flush ok: written=%d", totalOK)
			buf = buf[:0]
		}
	}

	for {
		select {
		case <-a.ctx.Done():
			flush()
			if len(buf) > 0 {
				// 还有未写成功的（例如 DB 宕机），此时进程将退出，提示一下
				daoMsgLogAggregatorLog.Errorf("drop %d pending log(s) on shutdown (DB unavailable?)", len(buf))
			}
			return

		case it := <-a.inCh:
			buf = append(buf, it)
			if len(buf) >= a.maxBatch {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// ensureOnce：只对同一个 day 做一次建表；并发时 singleflight 抑制重复
func (a *MessageLogAggregator) ensureOnce(day string) error {
	if _, ok := a.ensuredDays.Load(day); ok {
		return nil
	}
	_, err, _ := a.sf.Do(day, func() (any, error) {
		// double-check
		if _, ok := a.ensuredDays.Load(day); ok {
			return nil, nil
		}
		if err := a.ensure(day); err != nil {
			return nil, err
		}
		a.ensuredDays.Store(day, struct{}{})
		daoMsgLogAggregatorLog.Debugf("ensure ok day=%s table=%s", day, a.tableFunc(day))
		return nil, nil
	})
	return err
}

// 返回错误，由调用方决定是否回队重试
func (a *MessageLogAggregator) batchInsert(day string, logs []model.MessageLog) error {
	if len(logs) == 0 {
		return nil
	}
	tbl := a.tableFunc(day)

	cols := "time,campaign_id,route_id,connector_cid,from_addr,to_addr,content_length,status,cost,error"

	switch a.driver {
	case "mysql", "sqlite", "sqlite3":
		var sb strings.Builder
		sb.WriteString("INSERT INTO ")
		if a.driver == "mysql" {
			sb.WriteString("`" + tbl + "`")
		} else {
			sb.WriteString(tbl)
		}
		sb.WriteString(" (")
		sb.WriteString(cols)
		sb.WriteString(") VALUES ")

		args := make([]any, 0, len(logs)*10)
		for i, l := range logs {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?,?,?,?,?,?,?,?,?,?)")
			args = append(args,
				l.Time, l.CampaignId, l.RouteId, l.ConnectorCid,
				l.FromAddr, l.ToAddr, l.ContentLength, l.Status, l.Cost, l.Error,
			)
		}
		return a.db.Exec(sb.String(), args...).Error

	default:
		for _, l := range logs {
			if err := a.db.Table(tbl).Create(&l).Error; err != nil {
				return err
			}
		}
		return nil
	}
}
