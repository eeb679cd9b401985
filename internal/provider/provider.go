package provider

import (
	"context"
	"net/http"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

// Provider 把“站点变化”限制在 provider 包内部；核心流程只依赖统一接口与稳定的 MovieMetadata。
//
// 约束：
// - Supports 只看 URL，不做网络请求（选择失败时不应产生任何抓取）
// - Fetch 不做缓存、不做重试（cache 由上层统一实现；规格要求失败即终止）
// - Parse 必须是纯函数：相同输入 => 相同输出；字段缺失不是错误
type Provider interface {
	Name() string
	Supports(rawURL string) bool
	Fetch(ctx context.Context, rawURL string, f PageFetcher) (html []byte, pageURL string, err error)
	Parse(html []byte, pageURL string) (domain.MovieMetadata, error)
}

// PageRequest 描述一次详情页抓取（站点特有的 Header 由 provider 组装）。
type PageRequest struct {
	URL    string
	Header http.Header
}

// PageFetcher 是页面抓取的传输层：普通 HTTP（httpx）或无头浏览器（browser）。
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) ([]byte, error)
}
