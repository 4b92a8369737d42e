package model

import (
	"smspanel/panel/common/ttime"
)

const (
	RouteDefault  = "default"
	RouteStaticMT = "static_mt"
	RouteRandomRR = "random_round_robin"
	RouteFailover = "failover"
)

// Route：有序路由规则。ord 为评估优先级，全表 1..N 连续且唯一；
// filters 为 Filter id 的有序集合，全部命中（AND）才算路由命中。
type Route struct {
	Id                  int64     `gorm:"column:id"`
	Ord                 int       `gorm:"column:ord"`
	Type                string    `gorm:"column:type"`
	ConnectorId         int64     `gorm:"column:connector_id"`
	FailoverConnectorId int64     `gorm:"column:failover_connector_id"`
	Rate                float64   `gorm:"column:rate"`
	Filters             Int64List `gorm:"column:filters"`
	IsActive            bool      `gorm:"column:is_active"`
	Description         string    `gorm:"column:description"`

	// 统计
	MessagesRouted int64   `gorm:"column:messages_routed"`
	MessagesFailed int64   `gorm:"column:messages_failed"`
	TotalCost      float64 `gorm:"column:total_cost"`

	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time"`
}

func (Route) TableName() string { return "route" }
