package collector

import (
	"errors"
	"strings"
)

// 外部调用失败的分类，统一用 errors.Is 判断
var (
	ErrNetwork   = errors.New("network error")
	ErrDataShape = errors.New("unexpected data shape")
	ErrAuth      = errors.New("missing or invalid credentials")
	ErrParse     = errors.New("parse error")
)

// ErrorKind 返回错误所属的分类名，供前端展示错误徽标
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrDataShape):
		return "data"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "unknown"
	}
}

// errorMessage 将 errors.Join 产生的多行错误压成一行
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
