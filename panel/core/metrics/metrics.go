package metrics

import (
	"crypto/tls"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"smspanel/panel/common/config"
	"smspanel/panel/common/logx"
)

var mLog = logx.New(logx.WithPrefix("metrics"))

// Sink：发送指标出口。未配置 InfluxDB 时是 no-op，业务路径不判空。
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPI // 非阻塞批量写
}

func NewSink(cfg config.InfluxDB2Config) *Sink {
	if cfg.BaseURL == "" || cfg.Token == "" {
		mLog.Infof("influxdb not configured, metrics disabled")
		return &Sink{}
	}
	c := influxdb2.NewClientWithOptions(cfg.BaseURL, cfg.Token,
		influxdb2.DefaultOptions().SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}))
	s := &Sink{client: c, write: c.WriteAPI(cfg.Org, cfg.Bucket)}
	go func() {
		for err := range s.write.Errors() {
			mLog.Warnf("influx write: %v", err)
		}
	}()
	mLog.Infof("influxdb sink ready (org=%s bucket=%s)", cfg.Org, cfg.Bucket)
	return s
}

// Submit：一次发送结果打点
func (s *Sink) Submit(routeId int64, cid, status string, cost float64) {
	if s.write == nil {
		return
	}
	p := influxdb2.NewPoint("sms_submit",
		map[string]string{"connector": cid, "status": status},
		map[string]any{"route_id": routeId, "cost": cost},
		time.Now())
	s.write.WritePoint(p)
}

// ConnectorStatus：轮询到的连接器状态打点
func (s *Sink) ConnectorStatus(cid, status string) {
	if s.write == nil {
		return
	}
	up := 0
	if status == "started" || status == "bound" {
		up = 1
	}
	p := influxdb2.NewPoint("connector_status",
		map[string]string{"connector": cid, "status": status},
		map[string]any{"up": up},
		time.Now())
	s.write.WritePoint(p)
}

func (s *Sink) Close() {
	if s.client != nil {
		s.write.Flush()
		s.client.Close()
	}
}
