package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/MarketEye/internal/processor"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 列表缓存 5 分钟，减轻每次打开页面时的 DB 压力
const listCacheTTL = 5 * time.Minute

// Headline 归档的新闻头条
type Headline struct {
	ID              string            `gorm:"primaryKey;size:40" json:"id"`
	Title           string            `gorm:"size:512" json:"title"`
	TranslatedTitle string            `gorm:"size:512" json:"translatedTitle"`
	URL             string            `gorm:"size:1024;uniqueIndex" json:"url"`
	Source          string            `gorm:"size:64;index" json:"source"`
	Category        string            `gorm:"size:16;index" json:"category"` // MACRO / INDEX / STOCK
	PublishedAt     time.Time         `gorm:"index" json:"publishedAt"`
	PublishedDate   string            `gorm:"size:10;index" json:"publishedDate"` // 首尔时区日期 YYYY-MM-DD
	ExtraData       datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Headline{}, &Favorite{}, &AppState{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// 首尔时区，用于日期展示与筛选
var locSeoul *time.Location

func init() {
	locSeoul, _ = time.LoadLocation("Asia/Seoul")
	if locSeoul == nil {
		locSeoul = time.FixedZone("KST", 9*3600)
	}
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度（例如 varchar(512)）
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// SaveHeadlines 保存一批头条，以 URL 作为幂等键；已存在时更新译文与分类。
// 插入失败立即返回，更新失败记录后继续处理其余条目。
func (s *Store) SaveHeadlines(items []processor.ProcessedHeadline) error {
	var errs []error
	for _, it := range items {
		pubDate := it.PublishedAt.In(locSeoul).Format("2006-01-02")
		title := truncateRunesDB(toValidUTF8(it.Title), 512)
		translated := truncateRunesDB(toValidUTF8(it.TranslatedTitle), 512)
		url := it.URL
		if url == "" {
			url = "urn:sha1:" + it.ID
		}
		h := &Headline{
			ID:              it.ID,
			Title:           title,
			TranslatedTitle: translated,
			URL:             url,
			Source:          it.Source,
			Category:        it.Category,
			PublishedAt:     it.PublishedAt,
			PublishedDate:   pubDate,
			ExtraData:       datatypes.JSONMap(it.RawData),
		}

		if err := s.DB.Where("url = ?", url).FirstOrCreate(h).Error; err != nil {
			return err
		}
		updates := map[string]any{"title": title, "category": it.Category}
		if translated != "" {
			updates["translated_title"] = translated
		}
		if err := s.DB.Model(h).Updates(updates).Error; err != nil {
			log.Printf("storage: update headline %s: %v", url, err)
			errs = append(errs, fmt.Errorf("update headline %s: %w", url, err))
		}
	}
	return errors.Join(errs...)
}

// ListHeadlines 按可选日期返回归档头条（最新在前），并使用 Redis 做简单缓存
func (s *Store) ListHeadlines(ctx context.Context, date string, limit int) ([]Headline, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	cacheKey := fmt.Sprintf("headlines:list:%s:%d", date, limit)

	var list []Headline
	if s.GetJSON(ctx, cacheKey, &list) {
		return list, nil
	}

	db := s.DB.WithContext(ctx).Model(&Headline{})
	if date != "" {
		db = db.Where("published_date = ?", date)
	}
	if err := db.Order("published_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}

	if len(list) > 0 {
		s.SetJSON(ctx, cacheKey, list, listCacheTTL)
	}
	return list, nil
}

// ListHeadlineDates 返回有归档数据的日期列表（倒序）
func (s *Store) ListHeadlineDates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 365 {
		limit = 31
	}
	cacheKey := fmt.Sprintf("headlines:dates:%d", limit)
	var dates []string
	if s.GetJSON(ctx, cacheKey, &dates) {
		return dates, nil
	}

	var rows []struct{ D string }
	err := s.DB.WithContext(ctx).
		Raw(`SELECT DISTINCT published_date AS d FROM headlines WHERE published_date <> '' ORDER BY d DESC LIMIT ?`, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	dates = make([]string, 0, len(rows))
	for _, r := range rows {
		dates = append(dates, r.D)
	}
	if len(dates) > 0 {
		s.SetJSON(ctx, cacheKey, dates, listCacheTTL)
	}
	return dates, nil
}

// GetJSON 读取 Redis 缓存；未配置 Redis、未命中或解码失败时返回 false
func (s *Store) GetJSON(ctx context.Context, key string, out any) bool {
	if s == nil || s.Redis == nil {
		return false
	}
	bs, err := s.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(bs, out) == nil
}

// SetJSON 写入 Redis 缓存，失败只记录日志
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if s == nil || s.Redis == nil {
		return
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, key, bs, ttl).Err(); err != nil {
		log.Printf("warn: redis set %s: %v", key, err)
	}
}

// DeleteCache 主动失效某个缓存键
func (s *Store) DeleteCache(ctx context.Context, keys ...string) {
	if s == nil || s.Redis == nil || len(keys) == 0 {
		return
	}
	_ = s.Redis.Del(ctx, keys...).Err()
}
