package console

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/prmconsole/internal/model"
)

// ProfileKind はプロフィール取得結果の種別。
type ProfileKind int

const (
	// ProfileNone はまだ結果がないことを表す
	ProfileNone ProfileKind = iota
	ProfileOk
	ProfileNotFound
	ProfileFailed
)

func (k ProfileKind) String() string {
	switch k {
	case ProfileOk:
		return "ok"
	case ProfileNotFound:
		return "not_found"
	case ProfileFailed:
		return "failed"
	default:
		return "none"
	}
}

// ProfileResult はプロフィール取得結果。Kindに応じてProfileかErrのどちらかが入る。
type ProfileResult struct {
	Kind    ProfileKind
	Profile *model.Profile
	Err     *FetchError
}

// Ok は取得成功の結果を返す。
func Ok(p *model.Profile) ProfileResult {
	return ProfileResult{Kind: ProfileOk, Profile: p}
}

// NotFound はプロフィールが存在しない結果を返す。
func NotFound() ProfileResult {
	return ProfileResult{Kind: ProfileNotFound}
}

// Failed は取得失敗の結果を返す。
func Failed(err *FetchError) ProfileResult {
	return ProfileResult{Kind: ProfileFailed, Err: err}
}

// ProfileState はProfileLoaderのスナップショット。
type ProfileState struct {
	// IdentityID は結果（または取得中のリクエスト）が対応するIdentity
	IdentityID string
	Loading    bool
	Result     ProfileResult
}

// ProfileLoader はIdentityに対応するプロフィールを取得する。
// 取得ごとに世代番号を振り、現在の世代でない結果は破棄する。
type ProfileLoader struct {
	data DataProvider

	base       context.Context
	cancelBase context.CancelFunc

	mu          sync.Mutex
	gen         uint64
	cancelFetch context.CancelFunc
	state       ProfileState
	closed      bool

	subs listeners[ProfileState]
}

// NewProfileLoader はProfileLoaderを生成する。
func NewProfileLoader(data DataProvider) *ProfileLoader {
	base, cancel := context.WithCancel(context.Background())
	return &ProfileLoader{data: data, base: base, cancelBase: cancel}
}

// Load はidentityIDのプロフィール取得を開始する。
// 返されるチャネルは取得が終わると（結果が破棄された場合も）closeされる。
func (l *ProfileLoader) Load(ctx context.Context, identityID string) <-chan struct{} {
	done := make(chan struct{})

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(done)
		return done
	}
	l.gen++
	gen := l.gen
	if l.cancelFetch != nil {
		l.cancelFetch()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	l.cancelFetch = cancel
	l.state = ProfileState{IdentityID: identityID, Loading: true}
	snapshot := l.state
	l.mu.Unlock()

	l.subs.emit(snapshot)

	go func() {
		defer close(done)
		defer cancel()

		result := l.fetch(fetchCtx, identityID)

		l.mu.Lock()
		if l.closed || gen != l.gen {
			l.mu.Unlock()
			slog.Debug("discarding stale profile result",
				slog.String("user_id", identityID),
				slog.String("result", result.Kind.String()),
			)
			return
		}
		l.state = ProfileState{IdentityID: identityID, Result: result}
		l.cancelFetch = nil
		snapshot := l.state
		l.mu.Unlock()

		if result.Kind == ProfileFailed {
			slog.Warn("profile fetch failed",
				slog.String("user_id", identityID),
				slog.String("error", result.Err.Error()),
			)
		}
		l.subs.emit(snapshot)
	}()

	return done
}

func (l *ProfileLoader) fetch(ctx context.Context, identityID string) (result ProfileResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(&FetchError{Op: "profile", Err: fmt.Errorf("provider panic: %v", r)})
		}
	}()
	p, err := l.data.FetchProfile(ctx, identityID)
	if err != nil {
		return Failed(&FetchError{Op: "profile", Err: err})
	}
	if p == nil {
		return NotFound()
	}
	return Ok(p)
}

// Reload はLoaderの寿命に紐づくcontextでidentityIDを取得し直す。
func (l *ProfileLoader) Reload(identityID string) <-chan struct{} {
	return l.Load(l.base, identityID)
}

// Clear はIdentityが存在しない状態にする。取得中の結果は破棄される。
func (l *ProfileLoader) Clear() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.gen++
	if l.cancelFetch != nil {
		l.cancelFetch()
		l.cancelFetch = nil
	}
	l.state = ProfileState{}
	l.mu.Unlock()

	l.subs.emit(ProfileState{})
}

// Track はSessionStoreのIdentity変化に追従してLoadまたはClearを呼ぶ。
// 登録時点の状態にも即座に適用する。解除関数を返す。
func (l *ProfileLoader) Track(store *SessionStore) func() {
	var (
		mu      sync.Mutex
		applied bool
		current string
	)
	apply := func(sess *Session) {
		mu.Lock()
		defer mu.Unlock()

		id := ""
		if sess != nil {
			id = sess.Identity.ID
		}
		// トークン更新など同じIdentityのイベントでは再取得しない
		if applied && id == current {
			return
		}
		applied = true
		current = id

		if id == "" {
			l.Clear()
			return
		}
		l.Reload(id)
	}

	unsubscribe := store.Subscribe(apply)
	apply(store.GetSession())
	return unsubscribe
}

// Snapshot は現在の状態を返す。
func (l *ProfileLoader) Snapshot() ProfileState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Subscribe は状態変化の通知先を登録し、解除関数を返す。
func (l *ProfileLoader) Subscribe(fn func(ProfileState)) func() {
	return l.subs.add(fn)
}

// Close は取得中の処理をキャンセルし、以降の結果をすべて破棄する。
func (l *ProfileLoader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.gen++
	l.mu.Unlock()

	l.cancelBase()
	l.subs.clear()
}
