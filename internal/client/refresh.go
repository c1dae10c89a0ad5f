package client

import (
	"context"
	"log/slog"
	"time"
)

const (
	// refreshMargin は期限の何秒前にリフレッシュするか。
	refreshMargin = time.Minute
	// refreshRetry はリフレッシュ失敗時の再試行間隔。
	refreshRetry = 30 * time.Second
)

// StartAutoRefresh はアクセストークンの期限前に自動でリフレッシュする。
// ctxがキャンセルされるまでブロックする。
func (c *Client) StartAutoRefresh(ctx context.Context) {
	c.logger.Info("auto refresh started")
	defer c.logger.Info("auto refresh stopped")

	timer := time.NewTimer(c.nextRefreshIn())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.changed:
			resetTimer(timer, c.nextRefreshIn())
		case <-timer.C:
			wait := c.nextRefreshIn()
			if wait > 0 {
				timer.Reset(wait)
				continue
			}
			if _, err := c.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("token refresh failed", slog.String("error", err.Error()))
				// 失敗してセッションが消えた場合は次の変化まで待つ
				timer.Reset(c.retryIn())
				continue
			}
			timer.Reset(c.nextRefreshIn())
		}
	}
}

// nextRefreshIn は次のリフレッシュまでの時間を返す。セッションがなければ長時間待つ。
func (c *Client) nextRefreshIn() time.Duration {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return time.Hour
	}
	d := sess.ExpiresAt.Add(-refreshMargin).Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

func (c *Client) retryIn() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return time.Hour
	}
	return refreshRetry
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
