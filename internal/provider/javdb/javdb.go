package javdb

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/nfofetch/internal/domain"
	providerx "github.com/John-Robertt/nfofetch/internal/provider"
)

const (
	// DefaultMirror 是 javdb.com 主域名常见的可用镜像（主域名更容易 403/被墙）。
	DefaultMirror = "javdb565.com"

	detailPrefix = "/v/"
)

// Provider 实现 JavDB 详情页的抓取与 HTML 解析。
//
// 约束：
// - 只接受详情页 URL（/v/<id>），不做搜索
// - Fetch/Parse 不做缓存/重试（由上层统一控制）
// - Parse 必须是纯函数（依赖输入 html + pageURL）
type Provider struct {
	// Mirror 非空时，把 host 恰为 javdb.com 的 URL 改写到该镜像域名。
	Mirror string
	// Cookie 返回访问 pageURL 时使用的 Cookie（为空表示不带）。
	Cookie func(pageURL string) string
}

func (Provider) Name() string { return "javdb" }

// Supports：host 含 "javdb" 且 path 以 /v/ 开头。
func (Provider) Supports(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	return strings.Contains(host, "javdb") && strings.HasPrefix(u.Path, detailPrefix)
}

// Fetch 直接抓取详情页；Referer 固定为站点根，Cookie 由配置决定。
func (p Provider) Fetch(ctx context.Context, rawURL string, f providerx.PageFetcher) ([]byte, string, error) {
	if f == nil {
		return nil, "", errors.New("page fetcher 不能为空")
	}
	pageURL := p.rewriteHost(rawURL)
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", err
	}

	h := http.Header{}
	h.Set("Referer", u.Scheme+"://"+u.Host+"/")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "zh-CN,zh;q=0.7,en;q=0.5")
	h.Set("Upgrade-Insecure-Requests", "1")
	if p.Cookie != nil {
		if c := strings.TrimSpace(p.Cookie(pageURL)); c != "" {
			h.Set("Cookie", c)
		}
	}

	b, err := f.FetchPage(ctx, providerx.PageRequest{URL: pageURL, Header: h})
	return b, pageURL, err
}

func (p Provider) rewriteHost(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	mirror := strings.TrimSpace(p.Mirror)
	if mirror == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || strings.ToLower(u.Host) != "javdb.com" {
		return rawURL
	}
	u.Host = mirror
	return u.String()
}

// Parse 把 JavDB 详情页 HTML 解析为 MovieMetadata。
// 字段缺失不是错误：每个字段按候选策略依次尝试，全部落空则为缺失。
func (Provider) Parse(html []byte, pageURL string) (domain.MovieMetadata, error) {
	if len(html) == 0 {
		return domain.MovieMetadata{}, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.MovieMetadata{}, err
	}
	return extract(doc, strings.TrimSpace(pageURL)), nil
}
