package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/John-Robertt/nfofetch/internal/infra/fsx"
	"github.com/John-Robertt/nfofetch/internal/infra/imgx"
)

const maxImageBytes = 32 << 20

// Transform 在落盘前处理图片字节（例如转 JPEG、裁切封面）。
type Transform func([]byte) ([]byte, error)

// Downloader 把单个图片 URL 下载到目标路径。
//
// 约束：
// - 失败（传输错误/非 2xx/写盘失败）只记录日志并返回 false，从不向上抛错
// - 写入走临时文件 + rename，失败时不会留下半截文件
// - Limiter 非空时，每次请求前等待令牌（对图床礼貌限速）
type Downloader struct {
	Client  *http.Client
	Limiter *rate.Limiter
	Log     *slog.Logger
}

// Download 下载 rawURL 到 dest；非 JPEG 图片会被转为 JPEG。
func (d Downloader) Download(ctx context.Context, rawURL, dest string) bool {
	return d.DownloadWith(ctx, rawURL, dest, nil)
}

// DownloadWith 同 Download，但允许替换默认的 JPEG 归一化处理。
func (d Downloader) DownloadWith(ctx context.Context, rawURL, dest string, tf Transform) bool {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	b, err := d.fetch(ctx, rawURL)
	if err != nil {
		log.Warn("图片下载失败", "url", rawURL, "dest", dest, "err", err)
		return false
	}

	if tf == nil {
		tf = imgx.NormalizeJPEG
	}
	if out, err := tf(b); err != nil {
		// 无法解码时保留原始字节：宁可多一个文件，也不丢失下载结果。
		log.Debug("图片未转换，按原样写入", "url", rawURL, "err", err)
	} else {
		b = out
	}

	if err := fsx.WriteFileAtomicReplace(filepath.Dir(dest), filepath.Base(dest), b); err != nil {
		log.Warn("图片写入失败", "dest", dest, "err", err)
		return false
	}
	log.Debug("图片已保存", "url", rawURL, "dest", dest, "bytes", len(b))
	return true
}

func (d Downloader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if d.Client == nil {
		return nil, errors.New("http client 不能为空")
	}
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxImageBytes {
		return nil, fmt.Errorf("图片超过 %d 字节", maxImageBytes)
	}
	if len(b) == 0 {
		return nil, errors.New("响应为空")
	}
	return b, nil
}

// NewLimiter 按每秒请求数构造限速器；rps <= 0 表示不限速（返回 nil）。
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
