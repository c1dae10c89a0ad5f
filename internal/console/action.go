package console

import "sync/atomic"

// Action はサインイン等の操作が実行中かどうかを操作元ローカルで示す。
// グローバルなReadinessには影響しない。
type Action struct {
	inFlight atomic.Bool
}

// InFlight は操作が実行中かどうかを返す。
func (a *Action) InFlight() bool {
	return a.inFlight.Load()
}

// Run はfnを実行する。実行中の場合はfnを呼ばずErrActionInFlightを返す。
func (a *Action) Run(fn func() error) error {
	if !a.inFlight.CompareAndSwap(false, true) {
		return ErrActionInFlight
	}
	defer a.inFlight.Store(false)
	return fn()
}
