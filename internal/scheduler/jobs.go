package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/LJTian/MarketEye/internal/dashboard"
	"github.com/LJTian/MarketEye/internal/news"
	"github.com/LJTian/MarketEye/internal/processor"
	"github.com/LJTian/MarketEye/internal/storage"
)

const LatestSnapshotKey = "snapshot:latest"

var errNoHeadlines = errors.New("no headlines selected")

type NewsSource interface {
	Top(ctx context.Context) []news.Item
}

type HeadlineStore interface {
	SaveHeadlines(items []processor.ProcessedHeadline) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration)
}

type Broadcaster interface {
	Broadcast(typ string, data any)
}

type Notifier interface {
	Send(ctx context.Context, items []news.Item) (bool, error)
}

// NewsJob 聚合 → 归档 → 写缓存 → 推送
type NewsJob struct {
	News        NewsSource
	Processor   *processor.SimpleProcessor
	Store       HeadlineStore
	Broadcaster Broadcaster
	Notifier    Notifier
	Now         func() time.Time
}

func (j *NewsJob) Run(ctx context.Context) error {
	items := j.News.Top(ctx)
	if len(items) == 0 {
		return errNoHeadlines
	}

	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	var errs []error
	if j.Store != nil {
		processed := j.Processor.Process(items, now)
		if err := j.Store.SaveHeadlines(processed); err != nil {
			errs = append(errs, fmt.Errorf("save headlines: %w", err))
		}
		j.Store.SetJSON(ctx, news.CacheKey, items, news.CacheTTL)
		log.Printf("news: selected=%d saved=%d", len(items), len(processed))
	}
	if j.Broadcaster != nil {
		j.Broadcaster.Broadcast("news", items)
	}
	if j.Notifier != nil {
		if _, err := j.Notifier.Send(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type SnapshotSource interface {
	Snapshot(ctx context.Context) dashboard.Snapshot
}

type SnapshotWriter interface {
	Append(row storage.SnapshotRow) error
}

// SnapshotJob 泡菜溢价 + 恐惧贪婪指数 → CSV 日志 → 状态表 → 推送
type SnapshotJob struct {
	Source      SnapshotSource
	Log         SnapshotWriter
	State       StateWriter
	Broadcaster Broadcaster
}

func (j *SnapshotJob) Run(ctx context.Context) error {
	snap := j.Source.Snapshot(ctx)
	if snap.Kimchi.Error != "" {
		return fmt.Errorf("kimchi premium: %s", snap.Kimchi.Error)
	}
	row := SnapshotRow(snap)

	var errs []error
	if j.Log != nil {
		if err := j.Log.Append(row); err != nil {
			errs = append(errs, fmt.Errorf("append snapshot log: %w", err))
		}
	}
	if j.State != nil {
		if b, err := json.Marshal(row); err == nil {
			if err := j.State.SaveState(LatestSnapshotKey, string(b)); err != nil {
				errs = append(errs, fmt.Errorf("save latest snapshot: %w", err))
			}
		}
	}
	if j.Broadcaster != nil {
		j.Broadcaster.Broadcast("snapshot", row)
	}
	log.Printf("snapshot: premium=%.2f%% fx=%.0f", row.PremiumPercent, row.FXRate)
	return errors.Join(errs...)
}

// SnapshotRow 恐惧贪婪指数取不到时留空
func SnapshotRow(snap dashboard.Snapshot) storage.SnapshotRow {
	row := storage.SnapshotRow{
		Timestamp:      snap.Time,
		GlobalUSD:      snap.Kimchi.GlobalUSD,
		LocalKRW:       snap.Kimchi.LocalKRW,
		PremiumPercent: snap.Kimchi.PremiumPercent,
		FXRate:         snap.Kimchi.FXRate,
	}
	if snap.FearGreed.Error == "" && snap.FearGreed.Classification != "" {
		v := snap.FearGreed.Value
		row.FearGreed = &v
	}
	return row
}
