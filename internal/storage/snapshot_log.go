package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var snapshotHeader = []string{"timestamp", "global_usd", "local_krw", "premium_percent", "fx_rate", "fear_greed"}

// SnapshotRow 一次行情快照；FearGreed 为空时写入空字符串
type SnapshotRow struct {
	Timestamp      time.Time `json:"timestamp"`
	GlobalUSD      float64   `json:"globalUsd"`
	LocalKRW       float64   `json:"localKrw"`
	PremiumPercent float64   `json:"premiumPercent"`
	FXRate         float64   `json:"fxRate"`
	FearGreed      *int      `json:"fearGreed,omitempty"`
}

// SnapshotLog 只追加的 CSV 快照日志，文件首次创建时写表头
type SnapshotLog struct {
	Path string
	mu   sync.Mutex
}

func NewSnapshotLog(path string) *SnapshotLog {
	return &SnapshotLog{Path: path}
}

func (l *SnapshotLog) Append(row SnapshotRow) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(snapshotHeader); err != nil {
			return err
		}
	}
	if err := w.Write(row.record()); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Tail 返回最近 n 条快照（时间正序）；文件不存在时返回空
func (l *SnapshotLog) Tail(n int) ([]SnapshotRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows []SnapshotRow
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && len(rec) > 0 && rec[0] == snapshotHeader[0] {
			continue
		}
		row, err := parseSnapshotRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("snapshot log line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}

func (r SnapshotRow) record() []string {
	fg := ""
	if r.FearGreed != nil {
		fg = strconv.Itoa(*r.FearGreed)
	}
	return []string{
		r.Timestamp.Format(time.RFC3339),
		strconv.FormatFloat(r.GlobalUSD, 'f', -1, 64),
		strconv.FormatFloat(r.LocalKRW, 'f', -1, 64),
		strconv.FormatFloat(r.PremiumPercent, 'f', 4, 64),
		strconv.FormatFloat(r.FXRate, 'f', -1, 64),
		fg,
	}
}

func parseSnapshotRecord(rec []string) (SnapshotRow, error) {
	var row SnapshotRow
	if len(rec) < 5 {
		return row, fmt.Errorf("want at least 5 fields, got %d", len(rec))
	}
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return row, err
	}
	row.Timestamp = ts
	nums := []*float64{&row.GlobalUSD, &row.LocalKRW, &row.PremiumPercent, &row.FXRate}
	for i, dst := range nums {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return row, err
		}
		*dst = v
	}
	if len(rec) > 5 && rec[5] != "" {
		v, err := strconv.Atoi(rec[5])
		if err != nil {
			return row, err
		}
		row.FearGreed = &v
	}
	return row, nil
}
