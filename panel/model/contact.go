package model

import (
	"smspanel/panel/common/ttime"
)

const (
	ContactActive   = "active"
	ContactOptedOut = "opted_out"
	ContactBlocked  = "blocked"
)

type Contact struct {
	Id          int64      `gorm:"column:id"`
	PhoneNumber string     `gorm:"column:phone_number"` // E.164
	FirstName   string     `gorm:"column:first_name"`
	LastName    string     `gorm:"column:last_name"`
	Email       string     `gorm:"column:email"`
	Groups      StringList `gorm:"column:groups_list"`
	Custom      StringMap  `gorm:"column:custom_fields"` // 模板占位符可引用
	Status      string     `gorm:"column:status"`

	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time"`
}

func (Contact) TableName() string { return "contact" }
