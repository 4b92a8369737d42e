package model

import (
	"smspanel/panel/common/ttime"
)

const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignRunning   = "running"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
	CampaignFailed    = "failed"
)

type Campaign struct {
	Id             int64      `gorm:"column:id"`
	Name           string     `gorm:"column:name"`
	TemplateId     int64      `gorm:"column:template_id"` // 0 = 直接用 message_content
	MessageContent string     `gorm:"column:message_content"`
	SenderId       string     `gorm:"column:sender_id"`
	Groups         StringList `gorm:"column:groups_list"`
	Throughput     int        `gorm:"column:throughput"` // 每分钟
	Status         string     `gorm:"column:status"`
	Description    string     `gorm:"column:description"`

	ScheduledAt *ttime.TimeFormat `gorm:"column:scheduled_at"`
	StartedAt   *ttime.TimeFormat `gorm:"column:started_at"`
	CompletedAt *ttime.TimeFormat `gorm:"column:completed_at"`

	// 统计
	TotalRecipients int64   `gorm:"column:total_recipients"`
	Sent            int64   `gorm:"column:sent"`
	Failed          int64   `gorm:"column:failed"`
	TotalCost       float64 `gorm:"column:total_cost"`

	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time"`
}

func (Campaign) TableName() string { return "campaign" }
