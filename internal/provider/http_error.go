package provider

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
// PageFetcher 可以返回该错误，让上层生成更可操作的 message。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d: %s location=%s", e.StatusCode, e.URL, loc)
}

// UnsupportedError 表示没有任何已注册 provider 能处理该 URL。
// 与抓取/解析失败严格区分：调用方据此分支“站点不支持”与“刮削失败”。
type UnsupportedError struct {
	URL string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("暂不支持该 URL：%s", e.URL)
}

// IsUnsupported 判断 err 是否为“站点不支持”。
func IsUnsupported(err error) bool {
	var e *UnsupportedError
	return errors.As(err, &e)
}
