// Package security はURL検証とテキストのサニタイズを提供する。
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard はユーザーが登録する外部URL（アバター・ロゴ）の検証を行う。
type URLGuard interface {
	// ValidateURL はURLを静的に検証する。DNS解決は行わない。
	ValidateURL(rawURL string) error

	// Probe はURLへHEADリクエストを送り、到達可能かを確認する。
	// 接続先IPの検証はsafeurlのDialerで行われる。
	Probe(ctx context.Context, rawURL string) error
}

// maxURLLength は登録可能なURLの最大長。
const maxURLLength = 2048

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はパッケージ初期化時にパースされる拒否対象のネットワーク範囲。
var blockedNetworks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // メタデータIPを含む
		"100.64.0.0/10",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, network)
	}
}

// ErrBlockedDestination は内部ネットワーク向けURLを拒否した場合のエラー。
type ErrBlockedDestination struct {
	Host string
}

func (e *ErrBlockedDestination) Error() string {
	return fmt.Sprintf("blocked destination: %s", e.Host)
}

// urlGuard はURLGuardの実装。
type urlGuard struct {
	client *http.Client
}

// NewURLGuard はURLGuardを生成する。timeoutはProbeのHTTPタイムアウト。
func NewURLGuard(timeout time.Duration) *urlGuard {
	return &urlGuard{client: NewSafeClient(timeout)}
}

// NewSafeClient はプライベートIP等への接続を拒否するHTTPクライアントを生成する。
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

// ValidateURL はスキーム・ホスト・IPアドレスを検証する。
// 内部ネットワーク向けの場合は*ErrBlockedDestinationを返す。
func (g *urlGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("URL too long: %d > %d", len(rawURL), maxURLLength)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL")
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return &ErrBlockedDestination{Host: host}
			}
		}
		return nil
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".internal") {
		return &ErrBlockedDestination{Host: host}
	}
	return nil
}

// Probe はValidateURLを通過したURLへHEADリクエストを送る。
// 2xx/3xx以外のステータスはエラーとする。
func (g *urlGuard) Probe(ctx context.Context, rawURL string) error {
	if err := g.ValidateURL(rawURL); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("User-Agent", "prmconsole/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to probe URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
