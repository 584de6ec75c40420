package client

import "github.com/aegis-sign/custody/pkg/apierrors"

// Outcome 是单次调用的结果，Value 与 Err 二者恰有其一有效。
type Outcome[T any] struct {
	Value T
	Err   *apierrors.Error
}

// OK 报告调用是否成功。
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Unwrap 转换为 (T, error)；失败时返回零值。
func (o Outcome[T]) Unwrap() (T, error) {
	if o.Err != nil {
		var zero T
		return zero, o.Err
	}
	return o.Value, nil
}

func succeeded[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

func failed[T any](err *apierrors.Error) Outcome[T] { return Outcome[T]{Err: err} }
