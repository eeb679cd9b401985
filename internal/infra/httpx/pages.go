package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	providerx "github.com/John-Robertt/nfofetch/internal/provider"
)

// maxPageBytes 限制详情页大小，防止异常响应占满内存。
const maxPageBytes = 16 << 20

// Pages 用普通 HTTP GET 抓取详情页，实现 provider.PageFetcher。
type Pages struct {
	Client *http.Client
}

func (p Pages) FetchPage(ctx context.Context, req providerx.PageRequest) ([]byte, error) {
	if p.Client == nil {
		return nil, errors.New("http client 不能为空")
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}

	resp, err := p.Client.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &providerx.HTTPStatusError{URL: req.URL, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}
