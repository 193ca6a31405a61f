package db

import (
	"time"

	"gorm.io/gorm"
)

// AccessToken 为 API 调用方提供 Bearer 凭证，与会话登录并存。
// Token 使用随机 UUID，撤销通过删除记录实现。
type AccessToken struct {
	gorm.Model
	UserID     uint   `gorm:"index;not null"`
	User       User   `gorm:"constraint:OnDelete:CASCADE"`
	Token      string `gorm:"size:64;uniqueIndex;not null"`
	LastUsedAt *time.Time
}

// TableName 自定义表名以保持命名一致。
func (AccessToken) TableName() string {
	return "access_tokens"
}
