package model

import (
	"smspanel/panel/common/ttime"
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

type User struct {
	Id             int64             `gorm:"column:id"`
	Username       string            `gorm:"column:username"`
	Password       string            `gorm:"column:password"`
	PasswordSha256 string            `gorm:"column:password_sha256"`
	Status         string            `gorm:"column:status"`
	CreateDateTime *ttime.TimeFormat `gorm:"column:create_date_time"`
	UpdateDateTime *ttime.TimeFormat `gorm:"column:update_date_time"`
}

func (User) TableName() string { return "user" }
