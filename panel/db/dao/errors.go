package dao

import "fmt"

// 业务错误分三类：校验失败（400）、找不到（404，直接用 gorm.ErrRecordNotFound）、
// 冲突（409）。API 层用 errors.As 翻译成状态码。

type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}
