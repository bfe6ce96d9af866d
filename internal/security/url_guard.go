// Package security はアプリケーションのセキュリティ機能を提供する。
// 記事取り込み時のSSRF防止と、HTML・ユーザー入力のサニタイズを含む。
package security

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrResponseTooLarge はレスポンスボディが上限を超えた場合のエラー。
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// URLGuard は外部URLへのアクセスを安全に行うためのインターフェース。
// 記事取り込み元の登録時とフェッチ時に使用される。
type URLGuard interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// レスポンスボディはmaxResponseSizeバイトまでに制限される。
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client

	// ValidateURL はURLの安全性をDNS解決なしで事前に検証する。
	ValidateURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はValidateURLで拒否するネットワーク範囲。
// DNS解決後のIPはsafeurlのDialer側で検証される。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10", // キャリアグレードNAT
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// urlGuard はURLGuardの実装。
type urlGuard struct{}

// NewURLGuard はURLGuardの新しいインスタンスを生成する。
func NewURLGuard() URLGuard {
	return &urlGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
// DNS解決後にDialerのControlフックで拒否される。
func (g *urlGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	client.Transport = &limitTransport{base: client.Transport, max: maxResponseSize}
	return client
}

// ValidateURL はスキーム・ホスト・IPアドレスを静的に検証する。
func (g *urlGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// isBlockedHostname はlocalhostおよび内部用TLDのホスト名を拒否する。
func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	if lower == "localhost" {
		return true
	}
	for _, suffix := range []string{".localhost", ".internal", ".local"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// limitTransport はレスポンスボディのサイズを制限するRoundTripper。
type limitTransport struct {
	base http.RoundTripper
	max  int64
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil || t.max <= 0 {
		return resp, err
	}

	if resp.ContentLength > t.max {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content-length %d > %d", ErrResponseTooLarge, resp.ContentLength, t.max)
	}

	resp.Body = &limitedBody{r: io.LimitReader(resp.Body, t.max+1), closer: resp.Body, max: t.max}
	return resp, nil
}

// limitedBody は上限を超えて読み進めた時点でErrResponseTooLargeを返す。
type limitedBody struct {
	r      io.Reader
	closer io.Closer
	max    int64
	n      int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.n += int64(n)
	if b.n > b.max {
		return n, ErrResponseTooLarge
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.closer.Close()
}
