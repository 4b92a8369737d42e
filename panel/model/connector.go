package model

import (
	"smspanel/panel/common/ttime"
)

// 网关上报的连接器状态（网关为准，面板不臆造）
const (
	ConnStopped  = "stopped"
	ConnStarting = "starting"
	ConnStarted  = "started"
	ConnBound    = "bound"
	ConnUnbound  = "unbound"
	ConnError    = "error"
)

const (
	BindTransceiver = "transceiver"
	BindTransmitter = "transmitter"
	BindReceiver    = "receiver"
)

// Connector：出站 SMPP 连接器配置。实际绑定由外部网关执行，
// status/last_error 由状态轮询从网关同步回来。
type Connector struct {
	Id               int64  `gorm:"column:id"`
	Cid              string `gorm:"column:cid"`
	Label            string `gorm:"column:label"`
	Host             string `gorm:"column:host"`
	Port             int    `gorm:"column:port"`
	Username         string `gorm:"column:username"`
	Password         string `gorm:"column:password"`
	SystemId         string `gorm:"column:system_id"`
	BindType         string `gorm:"column:bind_type"`
	SubmitThroughput int    `gorm:"column:submit_throughput"` // 每秒
	Status           string `gorm:"column:status"`
	IsEnabled        bool   `gorm:"column:is_enabled"`
	LastError        string `gorm:"column:last_error"`
	Description      string `gorm:"column:description"`

	TotalSent   int64 `gorm:"column:total_sent"`
	TotalFailed int64 `gorm:"column:total_failed"`

	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time"`
}

func (Connector) TableName() string { return "connector" }

// 可用于发送：启用且网关侧处于已启动/已绑定
func (c *Connector) IsUsable() bool {
	return c.IsEnabled && (c.Status == ConnStarted || c.Status == ConnBound)
}
