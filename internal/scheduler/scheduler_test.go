package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/MarketEye/internal/collector"
	"github.com/LJTian/MarketEye/internal/dashboard"
	"github.com/LJTian/MarketEye/internal/news"
	"github.com/LJTian/MarketEye/internal/processor"
	"github.com/LJTian/MarketEye/internal/storage"
)

type memState struct {
	mu sync.Mutex
	m  map[string]string
}

func (s *memState) SaveState(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.m[key] = value
	return nil
}

func (s *memState) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key]
}

func TestNewRejectsBadCronSpec(t *testing.T) {
	if _, err := New(nil, Job{Name: "bad", CronSpec: "not a cron", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestRunOnceIsolatesJobs(t *testing.T) {
	state := &memState{}
	var ran []string
	s, err := New(state,
		Job{Name: "panics", CronSpec: "@every 1h", Run: func(context.Context) error { panic("boom") }},
		Job{Name: "fails", CronSpec: "@every 1h", Run: func(context.Context) error { return errors.New("upstream down") }},
		Job{Name: "works", CronSpec: "@every 1h", Run: func(context.Context) error { ran = append(ran, "works"); return nil }},
	)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.RunOnce()

	if len(ran) != 1 {
		t.Fatalf("healthy job did not run after failing ones")
	}
	if v := state.get("job:panics:last_run"); !strings.Contains(v, "error: panic: boom") {
		t.Fatalf("panics state = %q", v)
	}
	if v := state.get("job:fails:last_run"); !strings.Contains(v, "upstream down") {
		t.Fatalf("fails state = %q", v)
	}
	if v := state.get("job:works:last_run"); !strings.HasSuffix(v, " ok") {
		t.Fatalf("works state = %q", v)
	}
}

type fakeNews struct{ items []news.Item }

func (f fakeNews) Top(context.Context) []news.Item { return f.items }

type fakeHeadlineStore struct {
	saved   []processor.ProcessedHeadline
	cached  map[string]any
	saveErr error
}

func (f *fakeHeadlineStore) SaveHeadlines(items []processor.ProcessedHeadline) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, items...)
	return nil
}

func (f *fakeHeadlineStore) SetJSON(_ context.Context, key string, v any, _ time.Duration) {
	if f.cached == nil {
		f.cached = map[string]any{}
	}
	f.cached[key] = v
}

type recorder struct{ types []string }

func (r *recorder) Broadcast(typ string, _ any) { r.types = append(r.types, typ) }

type fakeNotifier struct{ calls int }

func (n *fakeNotifier) Send(context.Context, []news.Item) (bool, error) {
	n.calls++
	return true, nil
}

func TestNewsJob(t *testing.T) {
	items := []news.Item{
		{Title: "Fed holds rates", Link: "https://x/1", Source: "CNBC", Category: news.CategoryMacro, HoursAgo: 1},
		{Title: "Apple beats", Link: "https://x/2", Source: "Yahoo", Category: news.CategoryStock, HoursAgo: 2},
	}
	store := &fakeHeadlineStore{}
	rec := &recorder{}
	notifier := &fakeNotifier{}
	job := &NewsJob{
		News:        fakeNews{items: items},
		Processor:   processor.NewSimpleProcessor(),
		Store:       store,
		Broadcaster: rec,
		Notifier:    notifier,
		Now:         func() time.Time { return time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC) },
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(store.saved) != 2 {
		t.Fatalf("saved = %d, want 2", len(store.saved))
	}
	if _, ok := store.cached[news.CacheKey]; !ok {
		t.Fatalf("news cache not written")
	}
	if len(rec.types) != 1 || rec.types[0] != "news" {
		t.Fatalf("broadcasts = %v", rec.types)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d", notifier.calls)
	}

	// 归档失败时仍然写缓存和推送，错误返回给调度器记录
	store.saveErr = errors.New("db down")
	if err := job.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected save error, got %v", err)
	}
	if notifier.calls != 2 {
		t.Fatalf("notifier should still be called, calls = %d", notifier.calls)
	}
}

func TestNewsJobWithoutHeadlines(t *testing.T) {
	job := &NewsJob{News: fakeNews{}, Processor: processor.NewSimpleProcessor()}
	if err := job.Run(context.Background()); !errors.Is(err, errNoHeadlines) {
		t.Fatalf("err = %v, want errNoHeadlines", err)
	}
}

type fakeSnapshots struct{ snap dashboard.Snapshot }

func (f fakeSnapshots) Snapshot(context.Context) dashboard.Snapshot { return f.snap }

type memLog struct{ rows []storage.SnapshotRow }

func (m *memLog) Append(row storage.SnapshotRow) error {
	m.rows = append(m.rows, row)
	return nil
}

func TestSnapshotJob(t *testing.T) {
	snap := dashboard.Snapshot{
		Time:      time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Kimchi:    collector.KimchiPremium{GlobalUSD: 70000, LocalKRW: 105000000, FXRate: 1400, PremiumPercent: 7.14},
		FearGreed: collector.SentimentScore{Value: 72, Classification: "Greed"},
	}
	log := &memLog{}
	state := &memState{}
	rec := &recorder{}
	job := &SnapshotJob{Source: fakeSnapshots{snap: snap}, Log: log, State: state, Broadcaster: rec}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(log.rows) != 1 || log.rows[0].FearGreed == nil || *log.rows[0].FearGreed != 72 {
		t.Fatalf("unexpected rows: %+v", log.rows)
	}
	if !strings.Contains(state.get(LatestSnapshotKey), `"premiumPercent":7.14`) {
		t.Fatalf("latest snapshot state = %q", state.get(LatestSnapshotKey))
	}
	if len(rec.types) != 1 || rec.types[0] != "snapshot" {
		t.Fatalf("broadcasts = %v", rec.types)
	}
}

func TestSnapshotJobSkipsFailedPremium(t *testing.T) {
	log := &memLog{}
	job := &SnapshotJob{
		Source: fakeSnapshots{snap: dashboard.Snapshot{Kimchi: collector.KimchiPremium{Error: "network error"}}},
		Log:    log,
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(log.rows) != 0 {
		t.Fatalf("failed snapshot must not be logged")
	}
}

func TestSnapshotRowLeavesFearGreedEmptyOnError(t *testing.T) {
	row := SnapshotRow(dashboard.Snapshot{FearGreed: collector.SentimentScore{Error: "x", Classification: "Unknown"}})
	if row.FearGreed != nil {
		t.Fatalf("FearGreed should be nil")
	}
}
