package browser

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/John-Robertt/nfofetch/internal/infra/httpx"
	providerx "github.com/John-Robertt/nfofetch/internal/provider"
)

// chromedp 入口通过函数指针注入，测试中可以不启动真实浏览器。
var (
	execAllocator = chromedp.NewExecAllocator
	newContext    = chromedp.NewContext
	runResponse   = chromedp.RunResponse
	readHTML      = func(ctx context.Context) (string, error) {
		var html string
		err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
		return html, err
	}
)

type Options struct {
	UserAgent string
	Proxy     string
	// ExecPath 为空时由 chromedp 自动查找本机 Chrome/Chromium。
	ExecPath string
	Headless bool
	// Timeout 为 0 时与 HTTP 抓取一致（httpx.DefaultTimeout）。
	Timeout time.Duration
}

// Fetcher 用无头浏览器打开详情页并取回渲染后的 HTML，实现 provider.PageFetcher。
// 站点对纯 HTTP 客户端做指纹拦截时使用（fetch_mode=browser）。
type Fetcher struct {
	Opts Options
	Log  *slog.Logger
}

func (f Fetcher) FetchPage(ctx context.Context, req providerx.PageRequest) ([]byte, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, errors.New("url 不能为空")
	}
	log := f.Log
	if log == nil {
		log = slog.Default()
	}

	timeout := f.Opts.Timeout
	if timeout <= 0 {
		timeout = httpx.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, cancelAlloc := execAllocator(ctx, allocatorOptions(f.Opts)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := newContext(allocCtx)
	defer cancelBrowser()

	log.Debug("浏览器抓取页面", "url", req.URL, "headless", f.Opts.Headless)
	resp, err := runResponse(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extraHeaders(req.Header)),
		chromedp.Navigate(req.URL),
	)
	if err != nil {
		return nil, err
	}
	if resp != nil && (resp.Status < 200 || resp.Status >= 300) {
		loc, _ := resp.Headers["Location"].(string)
		return nil, &providerx.HTTPStatusError{URL: req.URL, StatusCode: int(resp.Status), Location: loc}
	}

	html, err := readHTML(browserCtx)
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

func allocatorOptions(o Options) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if p := strings.TrimSpace(o.Proxy); p != "" {
		opts = append(opts, chromedp.ProxyServer(p))
	}
	if p := strings.TrimSpace(o.ExecPath); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}
	return opts
}

// extraHeaders 把请求头转成 CDP 的附加头；User-Agent 由启动参数控制，这里跳过。
func extraHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for k, vs := range h {
		if len(vs) == 0 || http.CanonicalHeaderKey(k) == "User-Agent" {
			continue
		}
		out[http.CanonicalHeaderKey(k)] = strings.Join(vs, ", ")
	}
	return out
}
