package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/prmconsole/internal/model"
)

// DefaultSettingsFetchTimeout は設定取得の上限の既定値。
const DefaultSettingsFetchTimeout = 15 * time.Second

// SettingsState はSettingsLoaderのスナップショット。
// Readyになった後のSettingsは常に非nil。
type SettingsState struct {
	Settings *model.AppSettings
	Ready    bool
	Err      error
}

// SettingsLoader はIdentityに依存しない全体設定を取得する。
// 取得失敗・タイムアウト・未登録のいずれでも既定の設定に置き換える。
type SettingsLoader struct {
	data    DataProvider
	timeout time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	state  SettingsState
	closed bool

	subs listeners[SettingsState]
}

// NewSettingsLoader はSettingsLoaderを生成する。
func NewSettingsLoader(data DataProvider, timeout time.Duration) *SettingsLoader {
	if timeout <= 0 {
		timeout = DefaultSettingsFetchTimeout
	}
	return &SettingsLoader{data: data, timeout: timeout}
}

// Load は設定の取得を開始する。返されるチャネルは結果の適用後にcloseされる。
// 再取得中も直前の状態は保持される。
func (l *SettingsLoader) Load(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(done)
		return done
	}
	l.gen++
	gen := l.gen
	if l.cancel != nil {
		l.cancel()
	}
	fetchCtx, cancel := context.WithTimeout(ctx, l.timeout)
	l.cancel = cancel
	l.mu.Unlock()

	go func() {
		defer close(done)
		// 成功時もタイマーを解放する
		defer cancel()

		state, ok := l.race(ctx, fetchCtx)
		if !ok {
			return
		}

		l.mu.Lock()
		if l.closed || gen != l.gen {
			l.mu.Unlock()
			slog.Debug("discarding stale settings result")
			return
		}
		l.state = state
		l.cancel = nil
		l.mu.Unlock()

		if state.Err != nil {
			slog.Warn("settings fetch failed, using defaults",
				slog.String("error", state.Err.Error()),
			)
		}
		l.subs.emit(state)
	}()

	return done
}

type settingsOutcome struct {
	settings *model.AppSettings
	err      error
}

// race は取得とタイムアウトを競わせる。呼び出し元がキャンセルした場合はokがfalse。
func (l *SettingsLoader) race(parent, fetchCtx context.Context) (SettingsState, bool) {
	out := make(chan settingsOutcome, 1)
	go func() {
		s, err := l.fetch(fetchCtx)
		out <- settingsOutcome{settings: s, err: err}
	}()

	select {
	case o := <-out:
		if o.err != nil && parent.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return l.timedOut(), true
		}
		if o.err != nil && parent.Err() != nil {
			return SettingsState{}, false
		}
		return settle(o.settings, o.err), true
	case <-fetchCtx.Done():
		if parent.Err() != nil {
			return SettingsState{}, false
		}
		return l.timedOut(), true
	}
}

func (l *SettingsLoader) fetch(ctx context.Context) (s *model.AppSettings, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return l.data.FetchSettings(ctx)
}

func (l *SettingsLoader) timedOut() SettingsState {
	return SettingsState{
		Settings: model.DefaultAppSettings(),
		Ready:    true,
		Err:      &TimeoutError{Op: "settings", After: l.timeout},
	}
}

// settle は取得結果を状態に変換する。
//
//	成功       -> 取得した設定, エラーなし
//	未登録     -> 既定の設定,   エラーなし
//	取得エラー -> 既定の設定,   *FetchError
func settle(s *model.AppSettings, err error) SettingsState {
	if err != nil {
		return SettingsState{
			Settings: model.DefaultAppSettings(),
			Ready:    true,
			Err:      &FetchError{Op: "settings", Err: err},
		}
	}
	if s == nil {
		return SettingsState{Settings: model.DefaultAppSettings(), Ready: true}
	}
	return SettingsState{Settings: s, Ready: true}
}

// Snapshot は現在の状態を返す。
func (l *SettingsLoader) Snapshot() SettingsState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Subscribe は状態変化の通知先を登録し、解除関数を返す。
func (l *SettingsLoader) Subscribe(fn func(SettingsState)) func() {
	return l.subs.add(fn)
}

// Close は取得中の処理をキャンセルし、以降の結果を破棄する。
func (l *SettingsLoader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.gen++
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.subs.clear()
}
