// Package client はPRMコンソールAPIのHTTPクライアントを提供する。
// console.AuthProvider と console.DataProvider を実装する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/prmconsole/internal/console"
	"github.com/hitoshi/prmconsole/internal/model"
)

const (
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20
	// expirySkew はアクセストークンを期限切れとみなす余裕。
	expirySkew = 30 * time.Second
	userAgent  = "prmconsole-cli/1.0"
)

// ErrNoSession はログインしていない状態で認証が必要な操作を行った場合に返される。
var ErrNoSession = errors.New("no active session")

// Client はAPIのクライアント。
// トークンはTokenStoreに永続化し、状態変化を購読者に通知する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	tokens     TokenStore
	now        func() time.Time

	mu       sync.Mutex
	session  *console.Session
	restored bool
	subs     map[int]func(console.AuthEvent)
	nextSub  int
	// セッション変化を自動リフレッシュに知らせる
	changed chan struct{}

	// リフレッシュを1本に絞る
	refreshMu sync.Mutex
	// セッション更新と購読者への通知を直列化する
	emitMu sync.Mutex
}

// New はClientの新しいインスタンスを生成する。
func New(baseURL string, httpClient *http.Client, tokens TokenStore, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		tokens:     tokens,
		now:        time.Now,
		subs:       map[int]func(console.AuthEvent){},
		changed:    make(chan struct{}, 1),
	}
}

// errorBody はAPIの統一エラーフォーマット。
type errorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusError はAPIエラーフォーマット以外のエラーレスポンスを表す。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// do はリクエストを送信する。bodyがnilでなければJSONとして送る。
// 2xx以外はdecodeErrorで変換したエラーを返し、レスポンスはcloseする。
func (c *Client) do(ctx context.Context, method, path, accessToken string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("API request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return resp, decodeError(resp)
	}
	return resp, nil
}

// decodeError はエラーレスポンスを*model.APIErrorまたは*StatusErrorに変換する。
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		return &model.APIError{
			Code:     body.Code,
			Message:  body.Message,
			Category: body.Category,
			Action:   body.Action,
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
}

// decodeJSON はレスポンスボディをdstにデコードしてcloseする。
func decodeJSON(resp *http.Response, dst any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// discard はボディを読み捨ててcloseする。
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	resp.Body.Close()
}

// statusOf はエラーが持つHTTPステータスを返す。不明な場合は0。
func statusOf(resp *http.Response, err error) int {
	if resp != nil {
		return resp.StatusCode
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
