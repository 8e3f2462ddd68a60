package pricecache

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/LJTian/MarketEye/internal/collector"

	_ "modernc.org/sqlite"
)

// Store 日线本地存储，主键 (code, day)
type Store struct {
	DB *sql.DB
}

// OpenStore 打开（或创建）sqlite 数据库；path 可以是 ":memory:"
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite 只允许单写；:memory: 时每个连接都是独立的库
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
			log.Printf("pricecache: failed to set WAL mode: %v", err)
		}
		if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
			log.Printf("pricecache: failed to set synchronous mode: %v", err)
		}
	}

	s := &Store{DB: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) createTables() error {
	// SQLite types: REAL for float64, TEXT for string
	query := `
		CREATE TABLE IF NOT EXISTS daily_bars (
			code TEXT NOT NULL,
			day TEXT NOT NULL,
			open REAL,
			high REAL,
			low REAL,
			close REAL NOT NULL,
			volume REAL,
			PRIMARY KEY (code, day)
		);
	`
	if _, err := s.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create daily_bars: %w", err)
	}
	return nil
}

// Upsert 批量写入日线，同一天的记录被覆盖
func (s *Store) Upsert(ctx context.Context, code string, candles []collector.Candle) (err error) {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_bars (code, day, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code, day) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if c.Time == "" || c.Close <= 0 {
			continue
		}
		if _, err = stmt.ExecContext(ctx, code, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("upsert %s %s: %w", code, c.Time, err)
		}
	}
	return tx.Commit()
}

// Range 返回 day >= from 的日线（日期升序）
func (s *Store) Range(ctx context.Context, code, from string) ([]collector.Candle, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT day, open, high, low, close, volume
		FROM daily_bars
		WHERE code = ? AND day >= ?
		ORDER BY day ASC
	`, code, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collector.Candle
	for rows.Next() {
		var c collector.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Bounds 返回某代码已存储的最早与最新日期；没有数据时 ok 为 false
func (s *Store) Bounds(ctx context.Context, code string) (first, last string, ok bool, err error) {
	var f, l sql.NullString
	err = s.DB.QueryRowContext(ctx,
		`SELECT MIN(day), MAX(day) FROM daily_bars WHERE code = ?`, code,
	).Scan(&f, &l)
	if err != nil {
		return "", "", false, err
	}
	if !f.Valid || !l.Valid {
		return "", "", false, nil
	}
	return f.String, l.String, true, nil
}

// Codes 返回已缓存的代码数量
func (s *Store) Codes(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT code) FROM daily_bars`).Scan(&n)
	return n, err
}
