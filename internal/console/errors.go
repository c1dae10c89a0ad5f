package console

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrActionInFlight は同じ操作が実行中の場合に返される。
var ErrActionInFlight = errors.New("action already in flight")

// AuthError は認証プロバイダー呼び出しの失敗を表す。
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError はデータプロバイダーからの取得失敗を表す。
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TimeoutError は待機上限に達してフォールバックした場合のエラー。
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Is はcontext.DeadlineExceededとの比較を許可する。
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}
