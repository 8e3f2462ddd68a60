package storage

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AppState 简单的键值状态表，例如最近一次推送的头条、最近一次行情快照
type AppState struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"index" json:"updatedAt"`
}

// GetState 读取状态，不做过期判断
func (s *Store) GetState(key string) (string, time.Time, bool) {
	var st AppState
	silent := s.DB.Session(&gorm.Session{Logger: s.DB.Logger.LogMode(logger.Silent)})
	if err := silent.Where("key = ?", key).First(&st).Error; err != nil {
		return "", time.Time{}, false
	}
	return st.Value, st.UpdatedAt, true
}

// SaveState 写入或更新状态
func (s *Store) SaveState(key, value string) error {
	st := AppState{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.DB.Save(&st).Error
}

// ListStates 返回所有状态，按更新时间倒序
func (s *Store) ListStates() ([]AppState, error) {
	var list []AppState
	err := s.DB.Order("updated_at DESC").Find(&list).Error
	return list, err
}
