package model

import (
	"smspanel/panel/common/ttime"
)

// Template：消息模板。content 里的 {{first_name}} 等占位符
// 在发送时用联系人字段替换；未知占位符替换为空串。
type Template struct {
	Id          int64  `gorm:"column:id"`
	Name        string `gorm:"column:name"`
	Content     string `gorm:"column:content"`
	Description string `gorm:"column:description"`
	IsActive    bool   `gorm:"column:is_active"`

	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time"`
}

func (Template) TableName() string { return "template" }
