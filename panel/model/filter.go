package model

import (
	"smspanel/panel/common/ttime"
)

const (
	FilterDestination = "destination"
	FilterSource      = "source"
	FilterShortCode   = "short_code"
	FilterContent     = "content"
	FilterTag         = "tag"
	FilterUser        = "user"
)

// Filter：可复用的消息谓词。value 在 is_regex 时为正则（建/改时校验），
// 否则按子串包含匹配。
type Filter struct {
	Id              int64  `gorm:"column:id"`
	Fid             string `gorm:"column:fid"`
	Type            string `gorm:"column:type"`
	Parameter       string `gorm:"column:parameter"`
	Value           string `gorm:"column:value"`
	IsRegex         bool   `gorm:"column:is_regex"`
	IsCaseSensitive bool   `gorm:"column:is_case_sensitive"`
	Negate          bool   `gorm:"column:negate"`
	IsActive        bool   `gorm:"column:is_active"`
	Description     string `gorm:"column:description"`

	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time"`
}

func (Filter) TableName() string { return "filter" }
