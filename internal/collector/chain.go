package collector

import (
	"context"
	"errors"
	"fmt"
)

// Provider 是降级链中的一个数据源
type Provider[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

var errNoProviders = errors.New("no providers configured")

// FirstSuccess 依次尝试各个数据源，返回第一个成功的结果及其名称；
// 全部失败时返回合并后的错误。ctx 取消后不再尝试后续数据源。
func FirstSuccess[T any](ctx context.Context, providers ...Provider[T]) (T, string, error) {
	var zero T
	if len(providers) == 0 {
		return zero, "", errNoProviders
	}

	errs := make([]error, 0, len(providers))
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrNetwork, err))
			break
		}
		v, err := callProvider(ctx, p)
		if err == nil {
			return v, p.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
	}
	return zero, "", errors.Join(errs...)
}

// callProvider 隔离单个数据源的 panic，保证后续数据源仍会被尝试
func callProvider[T any](ctx context.Context, p Provider[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: provider panic: %v", ErrDataShape, r)
		}
	}()
	return p.Fetch(ctx)
}
