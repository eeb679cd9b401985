package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid

	EnvPrefix       = "NFOFETCH"
	DefaultFileName = "nfofetch.yaml"

	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"

	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:117.0) Gecko/20100101 Firefox/117.0"
	DefaultJavDBMirror = "javdb565.com"
	DefaultMaxExtra    = 8
	DefaultAddr        = ":8000"
)

// Config 是合并并做最小规范化后的最终配置（启动时构造一次，显式传递，不做全局单例）。
type Config struct {
	BaseDir    string
	OutputRoot string

	UserAgent string
	HTTPProxy string

	// JavDBCookie 显式 Cookie，优先级最高；Cookies 为按域名/站点名的兜底表。
	JavDBCookie string
	Cookies     map[string]string
	JavDBMirror string

	MaxExtraImages   int
	RenameFormat     string
	CleanExtrafanart bool
	CropPoster       bool
	ImageRPS         float64

	CacheDir string
	CacheTTL time.Duration
	// CacheReadOnly 为 true 时只读缓存，抓取结果不回写。
	CacheReadOnly bool

	FetchMode       string
	BrowserPath     string
	BrowserHeadless bool

	Addr string

	// File 是实际读取的配置文件路径；为空表示只用了默认值与环境变量。
	File string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：%v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load 读取配置。
//
// 来源优先级（固定）：环境变量 NFOFETCH_* > 配置文件 > 默认值。
// 配置文件发现规则：
// 1) file 非空：必须存在
// 2) 否则 NFOFETCH_CONFIG 非空：必须存在
// 3) 否则 <cwd>/nfofetch.yaml（可选）
func Load(cwd, file string) (Config, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	v := viper.New()
	setDefaults(v, cwdAbs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, required := strings.TrimSpace(file), true
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvPrefix + "_CONFIG"))
	}
	if path == "" {
		path, required = filepath.Join(cwdAbs, DefaultFileName), false
	}
	path = absFrom(cwdAbs, path)

	loaded := ""
	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
		loaded = path
	} else if required {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: path, Err: statErr}
	}

	return build(v, cwdAbs, loaded)
}

func setDefaults(v *viper.Viper, cwd string) {
	v.SetDefault("base_dir", cwd)
	v.SetDefault("output_root", "")
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("http_proxy", "")
	v.SetDefault("javdb_cookie", "")
	v.SetDefault("cookies", map[string]string{})
	v.SetDefault("javdb_mirror", DefaultJavDBMirror)
	v.SetDefault("max_extra_images", DefaultMaxExtra)
	v.SetDefault("rename_format", "")
	v.SetDefault("clean_extrafanart", false)
	v.SetDefault("crop_poster", false)
	v.SetDefault("image_rps", 0.0)
	v.SetDefault("cache_dir", "")
	v.SetDefault("cache_ttl", "0s")
	v.SetDefault("cache_readonly", false)
	v.SetDefault("fetch_mode", FetchModeHTTP)
	v.SetDefault("browser.path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("addr", DefaultAddr)
}

func build(v *viper.Viper, cwd, file string) (Config, error) {
	invalid := func(err error) (Config, error) {
		return Config{}, &Error{Code: ErrCodeInvalid, Path: file, Err: err}
	}

	baseDir, err := expandPath(cwd, v.GetString("base_dir"))
	if err != nil {
		return invalid(fmt.Errorf("base_dir 无效：%w", err))
	}
	outputRoot, err := expandPath(baseDir, v.GetString("output_root"))
	if err != nil {
		return invalid(fmt.Errorf("output_root 无效：%w", err))
	}
	if outputRoot == "" {
		outputRoot = filepath.Join(baseDir, "output")
	}
	cacheDir, err := expandPath(baseDir, v.GetString("cache_dir"))
	if err != nil {
		return invalid(fmt.Errorf("cache_dir 无效：%w", err))
	}

	proxy := strings.TrimSpace(v.GetString("http_proxy"))
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(fmt.Errorf("http_proxy 无效：%q", proxy))
		}
	}

	maxExtra := v.GetInt("max_extra_images")
	if maxExtra < 0 {
		return invalid(fmt.Errorf("max_extra_images 不能为负数：%d", maxExtra))
	}
	rps := v.GetFloat64("image_rps")
	if rps < 0 {
		return invalid(fmt.Errorf("image_rps 不能为负数：%v", rps))
	}
	ttl := v.GetDuration("cache_ttl")
	if ttl < 0 {
		return invalid(fmt.Errorf("cache_ttl 不能为负数：%v", ttl))
	}

	mode := strings.ToLower(strings.TrimSpace(v.GetString("fetch_mode")))
	switch mode {
	case FetchModeHTTP, FetchModeBrowser:
	default:
		return invalid(fmt.Errorf("fetch_mode 只能是 http 或 browser，实际是 %q", mode))
	}

	mirror := strings.ToLower(strings.TrimSpace(v.GetString("javdb_mirror")))
	if strings.ContainsAny(mirror, "/:") {
		return invalid(fmt.Errorf("javdb_mirror 只能是域名：%q", mirror))
	}

	cookies := map[string]string{}
	for k, c := range v.GetStringMapString("cookies") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.TrimSpace(c) != "" {
			cookies[k] = strings.TrimSpace(c)
		}
	}

	return Config{
		BaseDir:          baseDir,
		OutputRoot:       outputRoot,
		UserAgent:        strings.TrimSpace(v.GetString("user_agent")),
		HTTPProxy:        proxy,
		JavDBCookie:      strings.TrimSpace(v.GetString("javdb_cookie")),
		Cookies:          cookies,
		JavDBMirror:      mirror,
		MaxExtraImages:   maxExtra,
		RenameFormat:     strings.TrimSpace(v.GetString("rename_format")),
		CleanExtrafanart: v.GetBool("clean_extrafanart"),
		CropPoster:       v.GetBool("crop_poster"),
		ImageRPS:         rps,
		CacheDir:         cacheDir,
		CacheTTL:         ttl,
		CacheReadOnly:    v.GetBool("cache_readonly"),
		FetchMode:        mode,
		BrowserPath:      strings.TrimSpace(v.GetString("browser.path")),
		BrowserHeadless:  v.GetBool("browser.headless"),
		Addr:             strings.TrimSpace(v.GetString("addr")),
		File:             file,
	}, nil
}

// CookieFor 返回访问 rawURL 时使用的 Cookie。
//
// 优先级：显式 javdb_cookie > cookies 中的精确域名 > cookies 中被域名包含的站点名
// （例如 "javdb565.com" 命中 key "javdb"；多个命中时取更长的 key）。
func (c Config) CookieFor(rawURL string) string {
	if c.JavDBCookie != "" {
		return c.JavDBCookie
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return ""
	}
	if v, ok := c.Cookies[host]; ok {
		return v
	}

	keys := make([]string, 0, len(c.Cookies))
	for k := range c.Cookies {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if strings.Contains(host, k) {
			return c.Cookies[k]
		}
	}
	return ""
}

// ResolveVideoPath 把视频路径规范为 clean + absolute；支持 "~" 开头，相对路径以 base 为基准。
func ResolveVideoPath(base, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", errors.New("视频路径不能为空")
	}
	return expandPath(base, p)
}

// expandPath 以 base 为基准，把 p 变为 clean + absolute；p 为空时返回空串。
func expandPath(base, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	p, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	return absFrom(base, p), nil
}

func absFrom(base, p string) string {
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
