package model

import "fmt"

const (
	MsgSubmitted = "submitted"
	MsgFailed    = "failed"
	MsgRejected  = "rejected" // 无路由命中
)

// MessageLog：发送流水，按日分表（见 db.EnsureMessageLogTable）。
type MessageLog struct {
	Id            int64   `gorm:"column:id"`
	Time          int64   `gorm:"column:time"` // 毫秒
	CampaignId    int64   `gorm:"column:campaign_id"`
	RouteId       int64   `gorm:"column:route_id"`
	ConnectorCid  string  `gorm:"column:connector_cid"`
	FromAddr      string  `gorm:"column:from_addr"`
	ToAddr        string  `gorm:"column:to_addr"`
	ContentLength int     `gorm:"column:content_length"`
	Status        string  `gorm:"column:status"`
	Cost          float64 `gorm:"column:cost"`
	Error         string  `gorm:"column:error"`
}

func MessageLogTable(day string) string {
	return fmt.Sprintf("message_log_%s", day) // e.g. 20260829
}
