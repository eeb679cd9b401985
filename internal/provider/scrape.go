package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

const (
	StageFetch = "fetch"
	StageParse = "parse"
)

// Error 是 provider 阶段的可追溯错误。
// 上层据此把失败归类为 fetch_failed / parse_failed，并写入结果。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StageOf 返回 err 所属阶段；不是 *Error 时返回空串。
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// FetchParse 用 p 抓取并解析 rawURL。
//
// 返回值：
// - meta：解析得到的元数据（SourceURL 已写入实际抓取的详情页 URL）
// - pageURL：实际抓取的详情页 URL（可能因镜像域名而与 rawURL 不同）
// - html：原始 HTML（用于 cache）
func FetchParse(ctx context.Context, p Provider, rawURL string, f PageFetcher) (meta domain.MovieMetadata, pageURL string, html []byte, err error) {
	if p == nil {
		return domain.MovieMetadata{}, "", nil, errors.New("provider 不能为空")
	}
	if strings.TrimSpace(rawURL) == "" {
		return domain.MovieMetadata{}, "", nil, errors.New("url 不能为空")
	}
	name := strings.ToLower(p.Name())

	html, pageURL, err = p.Fetch(ctx, rawURL, f)
	if err != nil {
		return domain.MovieMetadata{}, "", nil, &Error{Provider: name, Stage: StageFetch, Err: err}
	}

	meta, err = Parse(p, html, pageURL)
	if err != nil {
		return domain.MovieMetadata{}, "", nil, err
	}
	return meta, pageURL, html, nil
}

// Parse 在 p.Parse 之外统一补齐 SourceURL，并把错误包装为 parse 阶段。
// cache 命中时上层直接调用它（不再打网络）。
func Parse(p Provider, html []byte, pageURL string) (domain.MovieMetadata, error) {
	meta, err := p.Parse(html, pageURL)
	if err != nil {
		return domain.MovieMetadata{}, &Error{Provider: strings.ToLower(p.Name()), Stage: StageParse, Err: err}
	}
	meta.SourceURL = domain.OptString(pageURL)
	return meta, nil
}
