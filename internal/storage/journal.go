package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var ErrEmptyEntry = errors.New("empty journal entry")

// Journal 纯文本投资日志，每条记录前带时间戳分隔
type Journal struct {
	Path string
	Now  func() time.Time
	mu   sync.Mutex
}

func NewJournal(path string) *Journal {
	return &Journal{Path: path, Now: time.Now}
}

// Read 返回日志全文，文件不存在时返回空字符串
func (j *Journal) Read() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.read()
}

func (j *Journal) read() (string, error) {
	b, err := os.ReadFile(j.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(b), err
}

// Append 追加一条记录，格式为 "\n\n---\n**[YYYY-MM-DD HH:MM]**\n内容"
func (j *Journal) Append(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return ErrEmptyEntry
	}
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.Path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "\n\n---\n**[%s]**\n%s", now.Format("2006-01-02 15:04"), entry)
	return err
}

// Tail 返回日志末尾最多 n 个字符
func (j *Journal) Tail(n int) (string, error) {
	s, err := j.Read()
	if err != nil || n <= 0 {
		return s, err
	}
	rs := []rune(s)
	if len(rs) <= n {
		return s, nil
	}
	return string(rs[len(rs)-n:]), nil
}
