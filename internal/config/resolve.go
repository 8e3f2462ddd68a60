package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// CredentialKeys 需要在诊断接口中展示来源的密钥
var CredentialKeys = []string{"GEMINI_API_KEY", "FRED_API_KEY", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"}

// Source 一个有名字的配置来源
type Source struct {
	Name   string
	Lookup func(key string) (string, bool)
}

// Resolve 按顺序查找 key，返回第一个有效值及其来源。
// 值会去掉首尾空白与引号；空串和 "None" 视为未配置。
func Resolve(key string, sources ...Source) (string, string) {
	for _, s := range sources {
		if s.Lookup == nil {
			continue
		}
		raw, ok := s.Lookup(key)
		if !ok {
			continue
		}
		if v := clean(raw); v != "" {
			return v, s.Name
		}
	}
	return "", ""
}

func clean(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, `"'`)
	v = strings.TrimSpace(v)
	if v == "None" {
		return ""
	}
	return v
}

// DefaultSources 环境变量 → .env 文件 → secrets.yaml
func DefaultSources(envFile, secretsFile string) []Source {
	sources := []Source{EnvSource()}
	if s, err := DotenvSource(envFile); err == nil {
		sources = append(sources, s)
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: read %s: %v", envFile, err)
	}
	if s, err := YAMLSource(secretsFile); err == nil {
		sources = append(sources, s)
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: read %s: %v", secretsFile, err)
	}
	return sources
}

func EnvSource() Source {
	return Source{Name: "env", Lookup: os.LookupEnv}
}

// MapSource 内存中的覆盖值，例如单次请求带来的临时密钥
func MapSource(name string, m map[string]string) Source {
	return Source{Name: name, Lookup: func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}}
}

// SessionSource 单次会话（请求头）带来的临时密钥，优先级最高
func SessionSource(overrides map[string]string) Source {
	return MapSource("session", overrides)
}

// DotenvSource 读取 .env 文件，不修改进程环境变量
func DotenvSource(path string) (Source, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		return Source{}, err
	}
	return MapSource("dotenv", m), nil
}

// YAMLSource 读取扁平的 key: value 密钥文件
func YAMLSource(path string) (Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Source{}, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Source{}, err
	}
	m := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			m[k] = val
		case nil:
		default:
			b, err := yaml.Marshal(val)
			if err != nil {
				continue
			}
			m[k] = strings.TrimSpace(string(b))
		}
	}
	return MapSource("secrets", m), nil
}
