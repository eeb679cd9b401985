package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/John-Robertt/nfofetch/internal/infra/fsx"
)

// Store 提供 <dir>/pages/<provider>/ 下的详情页缓存读写。
//
// 约束：
// - 以用户给出的原始 URL 作为键（xxhash64，十六进制文件名）
// - MaxAge > 0 时，超过该时长的条目视为未命中
// - ReadOnly=true 时只允许读
type Store struct {
	Dir      string
	MaxAge   time.Duration
	ReadOnly bool

	now func() time.Time
}

// Page 是一条缓存记录；PageURL 是实际抓取的地址（镜像改写之后），解析时需要它补全相对链接。
type Page struct {
	URL       string    `json:"url"`
	PageURL   string    `json:"page_url"`
	FetchedAt time.Time `json:"fetched_at"`
	HTML      string    `json:"html"`
}

var ErrReadOnly = errors.New("cache: read-only")

func New(dir string, maxAge time.Duration, readOnly bool) Store {
	return Store{
		Dir:      filepath.Clean(strings.TrimSpace(dir)),
		MaxAge:   maxAge,
		ReadOnly: readOnly,
	}
}

// Key 返回 URL 对应的缓存键。
func Key(rawURL string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.TrimSpace(rawURL)), 16)
}

// PagePath 返回缓存文件的绝对路径。
func (s Store) PagePath(provider, rawURL string) (string, error) {
	p, err := cleanProvider(provider)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("url 不能为空")
	}
	return filepath.Join(s.Dir, "pages", p, Key(rawURL)+".json"), nil
}

// ReadPage 读取缓存；不存在或已过期时 ok=false 且 err=nil。
func (s Store) ReadPage(provider, rawURL string) (Page, bool, error) {
	path, err := s.PagePath(provider, rawURL)
	if err != nil {
		return Page{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Page{}, false, nil
		}
		return Page{}, false, err
	}

	var pg Page
	if err := json.Unmarshal(b, &pg); err != nil {
		return Page{}, false, fmt.Errorf("缓存文件损坏：%s：%w", path, err)
	}
	// xxhash 碰撞时以记录中的 URL 为准。
	if pg.URL != strings.TrimSpace(rawURL) {
		return Page{}, false, nil
	}
	if s.MaxAge > 0 && s.clock().Sub(pg.FetchedAt) > s.MaxAge {
		return Page{}, false, nil
	}
	return pg, true, nil
}

// WritePage 写入缓存（覆盖同键旧记录）。
func (s Store) WritePage(provider, rawURL, pageURL string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.PagePath(provider, rawURL)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Page{
		URL:       strings.TrimSpace(rawURL),
		PageURL:   pageURL,
		FetchedAt: s.clock().UTC(),
		HTML:      string(html),
	})
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func (s Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

var providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("provider 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !providerNameRE.MatchString(p) {
		return "", fmt.Errorf("非法 provider：%q", p)
	}
	return p, nil
}
