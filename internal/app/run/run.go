package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/nfofetch/internal/app/planner"
	"github.com/John-Robertt/nfofetch/internal/config"
	"github.com/John-Robertt/nfofetch/internal/domain"
	"github.com/John-Robertt/nfofetch/internal/infra/browser"
	"github.com/John-Robertt/nfofetch/internal/infra/cache"
	"github.com/John-Robertt/nfofetch/internal/infra/fsx"
	"github.com/John-Robertt/nfofetch/internal/infra/httpx"
	"github.com/John-Robertt/nfofetch/internal/infra/imgx"
	"github.com/John-Robertt/nfofetch/internal/nfo"
	"github.com/John-Robertt/nfofetch/internal/provider"
	"github.com/John-Robertt/nfofetch/internal/provider/javdb"
	"github.com/John-Robertt/nfofetch/internal/rename"
)

// Request 是一次“刮削并写入”的输入。
type Request struct {
	URL   string
	Video string
	// VideoBase 是相对 Video 路径的基准目录；为空时使用当前工作目录。
	VideoBase string

	PosterURL string
	FanartURL string

	// RenameFormat 为空时使用配置中的默认模板；两者都为空则不重命名。
	RenameFormat string
	// MaxExtra 为 nil 时使用配置值。
	MaxExtra *int
}

// Runner 持有一次进程生命周期内不变的依赖（注册表、抓取器、下载器、缓存）。
// 可被多个 goroutine 并发调用；同一影片目录上的写操作按目录串行。
type Runner struct {
	Registry provider.Registry
	Pages    provider.PageFetcher
	Images   httpx.Downloader
	// Cache 为 nil 表示不缓存详情页。
	Cache *cache.Store
	Log   *slog.Logger

	MaxExtra         int
	RenameFormat     string
	CleanExtrafanart bool
	CropPoster       bool
}

// New 按配置装配 Runner：javdb provider、HTTP 或浏览器抓取、图片下载器与可选缓存。
func New(cfg config.Config, log *slog.Logger) (*Runner, error) {
	if log == nil {
		log = slog.Default()
	}

	client, err := httpx.NewClient(cfg.HTTPProxy, cfg.UserAgent)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Err: fmt.Errorf("http_proxy 无效：%w", err)}
	}

	reg, err := provider.NewRegistry(javdb.Provider{Mirror: cfg.JavDBMirror, Cookie: cfg.CookieFor})
	if err != nil {
		return nil, err
	}

	var pages provider.PageFetcher = httpx.Pages{Client: client}
	if cfg.FetchMode == config.FetchModeBrowser {
		pages = browser.Fetcher{
			Opts: browser.Options{
				UserAgent: cfg.UserAgent,
				Proxy:     cfg.HTTPProxy,
				ExecPath:  cfg.BrowserPath,
				Headless:  cfg.BrowserHeadless,
			},
			Log: log,
		}
	}

	var store *cache.Store
	if cfg.CacheDir != "" {
		s := cache.New(cfg.CacheDir, cfg.CacheTTL, cfg.CacheReadOnly)
		store = &s
	}

	return &Runner{
		Registry: reg,
		Pages:    pages,
		Images: httpx.Downloader{
			Client:  client,
			Limiter: httpx.NewLimiter(cfg.ImageRPS),
			Log:     log,
		},
		Cache:            store,
		Log:              log,
		MaxExtra:         cfg.MaxExtraImages,
		RenameFormat:     cfg.RenameFormat,
		CleanExtrafanart: cfg.CleanExtrafanart,
		CropPoster:       cfg.CropPoster,
	}, nil
}

// Execute 完成一次刮削：校验视频 → 选择 provider → 抓取解析 → 重命名 → 写 NFO → 下载图片。
//
// 约束：
// - 致命错误（视频缺失/站点不支持/抓取解析失败/重命名失败/NFO 写入失败）立即返回 Success=false
// - 单张图片失败只让对应路径为空，不影响整体结果
// - obs 可以为 nil
func (r *Runner) Execute(ctx context.Context, req Request, obs Observer) domain.ScrapeResult {
	started := time.Now()
	log := r.logger().With("op", uuid.NewString())
	log.Info("开始刮削", "url", req.URL, "video", req.Video)

	if obs != nil {
		obs.OnStart(req)
	}
	res := r.execute(ctx, req, log, obs)
	if obs != nil {
		obs.OnDone(res, time.Since(started))
	}

	if res.Success {
		log.Info("刮削完成", "dir", res.MovieDir, "extras", len(res.ExtraImages), "dur", time.Since(started))
	} else {
		log.Warn("刮削失败", "error_code", res.ErrorCode, "msg", res.Message)
	}
	return res
}

func (r *Runner) execute(ctx context.Context, req Request, log *slog.Logger, obs Observer) domain.ScrapeResult {
	step := func(name string, fields map[string]any, since time.Time) {
		log.Debug("步骤完成", "step", name, "dur", time.Since(since))
		if obs != nil {
			obs.OnStepDone(name, fields, time.Since(since))
		}
	}

	// 1) 视频前置检查：任何抓取之前完成。
	t0 := time.Now()
	videoPath, err := resolveVideo(req)
	if err != nil {
		return domain.Failed(domain.ErrCodeVideoMissing, err.Error(), nil)
	}
	movieDir := filepath.Dir(videoPath)
	step(StepVideo, map[string]any{"path": videoPath}, t0)

	// 2) 选择 provider：不支持时不发起任何网络请求。
	t0 = time.Now()
	p, err := r.Registry.Select(strings.TrimSpace(req.URL))
	if err != nil {
		if provider.IsUnsupported(err) {
			return domain.Failed(domain.ErrCodeUnsupportedSource, err.Error(), nil)
		}
		return domain.Failed(domain.ErrCodeFetchFailed, fmt.Sprintf("选择站点失败：%v", err), nil)
	}
	step(StepSelect, map[string]any{"provider": p.Name()}, t0)

	// 3) 抓取 + 解析。
	t0 = time.Now()
	meta, cached, err := r.scrape(ctx, p, strings.TrimSpace(req.URL), log)
	if err != nil {
		if provider.StageOf(err) == provider.StageParse {
			return domain.Failed(domain.ErrCodeParseFailed, parseMessage(p.Name(), err), nil)
		}
		return domain.Failed(domain.ErrCodeFetchFailed, fetchMessage(p.Name(), err), nil)
	}
	step(StepScrape, map[string]any{"number": domain.Deref(meta.Number), "cached": cached}, t0)

	unlock := movieDirs.lock(movieDir)
	defer unlock()

	// 抓取期间同目录的其他请求可能已重命名/移走视频，持锁后再确认一次。
	if !isRegularFile(videoPath) {
		out := domain.Failed(domain.ErrCodeVideoMissing, fmt.Sprintf("视频文件不存在：%s", videoPath), &meta)
		out.MovieDir = movieDir
		return out
	}

	res := domain.ScrapeResult{
		Success:         true,
		Metadata:        &meta,
		MovieDir:        movieDir,
		VideoPath:       videoPath,
		ExtraImages:     []string{},
		ChosenPosterURL: strings.TrimSpace(req.PosterURL),
		ChosenFanartURL: strings.TrimSpace(req.FanartURL),
	}

	// 4) 重命名：失败则不再写任何产物。
	if format := r.renameFormat(req); format != "" {
		t0 = time.Now()
		renamed, err := rename.Dir(movieDir, meta, format)
		if err != nil {
			out := domain.Failed(domain.ErrCodeRenameFailed, fmt.Sprintf("重命名失败：%v", err), &meta)
			out.MovieDir = movieDir
			var re *rename.Error
			if errors.As(err, &re) {
				out.Renamed = re.Pending
			}
			return out
		}
		res.Renamed = renamed
		res.VideoPath = rename.Lookup(renamed, videoPath)
		step(StepRename, map[string]any{"files": len(renamed)}, t0)
	}

	// 5) NFO：提取成功即必须写出。
	t0 = time.Now()
	b, err := nfo.Render(meta)
	if err != nil {
		return failedAfterScrape(res, fmt.Sprintf("生成 NFO 失败：%v", err))
	}
	if err := fsx.WriteFileAtomicReplace(movieDir, nfo.FileName, b); err != nil {
		return failedAfterScrape(res, fmt.Sprintf("写入 NFO 失败：%v", err))
	}
	res.NFOPath = filepath.Join(movieDir, nfo.FileName)
	step(StepNFO, map[string]any{"bytes": len(b)}, t0)

	// 6) 图片：逐张串行下载，失败只影响该张。
	t0 = time.Now()
	plan := planner.PlanAssets(meta, movieDir, req.PosterURL, req.FanartURL, r.maxExtra(req))
	res.PosterPath, res.FanartPath, res.ExtraImages = r.writeAssets(ctx, plan, log)
	step(StepAssets, map[string]any{
		"poster": res.PosterPath != "",
		"fanart": res.FanartPath != "",
		"extras": len(res.ExtraImages),
	}, t0)

	return res
}

func (r *Runner) scrape(ctx context.Context, p provider.Provider, rawURL string, log *slog.Logger) (domain.MovieMetadata, bool, error) {
	name := strings.ToLower(p.Name())

	// 先尝试 cache，命中则不再打网络；坏缓存只记日志。
	if r.Cache != nil {
		pg, ok, err := r.Cache.ReadPage(name, rawURL)
		switch {
		case err != nil:
			log.Warn("读取页面缓存失败，改为联网抓取", "err", err)
		case ok:
			log.Debug("命中页面缓存", "page_url", pg.PageURL, "fetched_at", pg.FetchedAt)
			meta, err := provider.Parse(p, []byte(pg.HTML), pg.PageURL)
			return meta, true, err
		}
	}

	meta, pageURL, html, err := provider.FetchParse(ctx, p, rawURL, r.Pages)
	if err != nil {
		return domain.MovieMetadata{}, false, err
	}

	if r.Cache != nil {
		switch err := r.Cache.WritePage(name, rawURL, pageURL, html); {
		case errors.Is(err, cache.ErrReadOnly):
			log.Debug("页面缓存只读，跳过写入", "url", rawURL)
		case err != nil:
			log.Warn("写入页面缓存失败", "err", err)
		}
	}
	return meta, false, nil
}

func (r *Runner) writeAssets(ctx context.Context, plan planner.AssetPlan, log *slog.Logger) (poster, fanart string, extras []string) {
	extras = []string{}

	if plan.PosterURL != "" {
		var tf httpx.Transform
		if r.CropPoster {
			tf = imgx.PosterFromCoverRightHalf
		}
		if r.Images.DownloadWith(ctx, plan.PosterURL, plan.PosterPath, tf) {
			poster = plan.PosterPath
		}
	}

	fanartUsed := ""
	for _, u := range plan.FanartCandidates {
		if r.Images.Download(ctx, u, plan.FanartPath) {
			fanart, fanartUsed = plan.FanartPath, u
			break
		}
	}

	if r.CleanExtrafanart {
		n, err := fsx.RemoveMatching(plan.ExtraDir, planner.IsExtraName)
		if err != nil {
			log.Warn("清理 extrafanart 失败", "dir", plan.ExtraDir, "err", err)
		} else if n > 0 {
			log.Debug("已清理旧 extrafanart", "dir", plan.ExtraDir, "removed", n)
		}
	}
	if err := os.MkdirAll(plan.ExtraDir, 0o755); err != nil {
		log.Warn("创建 extrafanart 目录失败", "dir", plan.ExtraDir, "err", err)
		return poster, fanart, extras
	}

	// 编号只在成功时递增；上限按成功数计算。
	for _, u := range plan.ExtraSources(fanartUsed) {
		if len(extras) >= plan.MaxExtra {
			break
		}
		dest := filepath.Join(plan.ExtraDir, planner.ExtraName(len(extras)+1))
		if r.Images.Download(ctx, u, dest) {
			extras = append(extras, dest)
		}
	}
	return poster, fanart, extras
}

func (r *Runner) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Runner) renameFormat(req Request) string {
	if f := strings.TrimSpace(req.RenameFormat); f != "" {
		return f
	}
	return strings.TrimSpace(r.RenameFormat)
}

func (r *Runner) maxExtra(req Request) int {
	if req.MaxExtra != nil && *req.MaxExtra >= 0 {
		return *req.MaxExtra
	}
	return r.MaxExtra
}

func resolveVideo(req Request) (string, error) {
	base := strings.TrimSpace(req.VideoBase)
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		base = wd
	}
	p, err := config.ResolveVideoPath(base, req.Video)
	if err != nil {
		return "", err
	}
	if !isRegularFile(p) {
		return "", fmt.Errorf("视频文件不存在：%s", p)
	}
	return p, nil
}

func isRegularFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}

func failedAfterScrape(res domain.ScrapeResult, msg string) domain.ScrapeResult {
	out := domain.Failed(domain.ErrCodeIOFailed, msg, res.Metadata)
	out.MovieDir = res.MovieDir
	out.VideoPath = res.VideoPath
	out.Renamed = res.Renamed
	return out
}

// fetchMessage 保留原始错误文本，并对常见的反爬/限流状态码附加可操作提示。
func fetchMessage(providerName string, err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		err = pe.Err
	}
	msg := fmt.Sprintf("%s 抓取失败：%v", providerName, err)

	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		switch {
		case hs.StatusCode == 403 || hs.StatusCode == 429:
			return msg + "（可能触发反爬/限流，可配置 javdb_cookie、http_proxy 或 fetch_mode=browser）"
		case hs.StatusCode == 404:
			return msg + "（页面不存在或已下架）"
		case hs.StatusCode >= 300 && hs.StatusCode < 400 && strings.TrimSpace(hs.Location) != "":
			return msg + "（被重定向，可能需要登录 Cookie）"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return msg + "（超时，请检查网络或代理）"
	}
	return msg
}

func parseMessage(providerName string, err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		err = pe.Err
	}
	// 解析失败通常意味着返回了非详情页内容（例如验证页/空内容）。
	return fmt.Sprintf("%s 解析失败：%v", providerName, err)
}
