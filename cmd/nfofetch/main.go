package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/lepinkainen/humanlog"

	"github.com/John-Robertt/nfofetch/internal/app/run"
	"github.com/John-Robertt/nfofetch/internal/config"
	"github.com/John-Robertt/nfofetch/internal/domain"
	"github.com/John-Robertt/nfofetch/internal/server"
)

// CLI 是 nfofetch 的完整命令结构。
type CLI struct {
	Config  string `help:"配置文件路径（YAML）；未指定时依次尝试 NFOFETCH_CONFIG 与 ./nfofetch.yaml"`
	Verbose bool   `short:"v" help:"输出调试日志"`

	Scrape ScrapeCmd `cmd:"" help:"根据影片页面 URL 为本地已有视频生成 movie.nfo 与图片（输出到视频所在目录）"`
	Serve  ServeCmd  `cmd:"" help:"启动 HTTP 服务（POST /api/scrape）"`
}

type ScrapeCmd struct {
	URL          string `name:"url" required:"" help:"影片页面 URL，例如 https://javdb.com/v/82ebmO"`
	Video        string `name:"video" required:"" help:"本地已有视频文件路径"`
	RenameFormat string `name:"rename-format" placeholder:"FMT" help:"重命名模板，留空则不重命名；占位符：{id} {year} {date} {actor} {title} {vr} {idx}；例如 [{actor}][{date}]{id}"`
	PosterURL    string `name:"poster-url" help:"指定封面图 URL（优先于页面封面）"`
	FanartURL    string `name:"fanart-url" help:"指定背景图 URL（优先于第一张剧照）"`
	MaxExtra     int    `name:"max-extra" default:"-1" help:"extrafanart 最多张数；-1 表示使用配置值"`
	JSON         bool   `name:"json" help:"stdout 只输出一个 ScrapeResult JSON"`
}

type ServeCmd struct {
	Addr string `help:"监听地址；为空时使用配置 addr（默认 :8000）"`
}

// app 是命令执行时共享的环境（配置只构造一次并显式传递）。
type app struct {
	cfg    config.Config
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer

	code int
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("nfofetch"),
		kong.Description("刮削影片元数据，生成 Jellyfin/Kodi 兼容的 movie.nfo、poster.jpg、fanart.jpg 与 extrafanart/。"),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		fmt.Fprintf(stderr, "初始化命令行失败：%v\n", err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n", err)
		return 2
	}

	// .env 可选：只在存在时加载，且不覆盖已有环境变量。
	envErr := godotenv.Load()

	log := initLogging(stderr, cli.Verbose)
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn("读取 .env 失败", "err", envErr)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cfg, err := config.Load(cwd, cli.Config)
	if err != nil {
		a := &app{log: log, stdout: stdout, stderr: stderr}
		a.emit(domain.Failed(config.Code(err), err.Error(), nil), cli.Scrape.JSON)
		return 1
	}
	if cfg.File != "" {
		log.Debug("已读取配置文件", "path", cfg.File)
	}

	a := &app{cfg: cfg, log: log, stdout: stdout, stderr: stderr}
	if err := kctx.Run(a); err != nil {
		log.Error("命令失败", "err", err)
		return 1
	}
	return a.code
}

func initLogging(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(w, &humanlog.Options{
		Level: level,
	})
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func (c *ScrapeCmd) Run(a *app) error {
	runner, err := run.New(a.cfg, a.log)
	if err != nil {
		a.emit(domain.Failed(domain.ErrCodeConfigInvalid, err.Error(), nil), c.JSON)
		a.code = 1
		return nil
	}

	req := run.Request{
		URL:          c.URL,
		Video:        c.Video,
		PosterURL:    c.PosterURL,
		FanartURL:    c.FanartURL,
		RenameFormat: c.RenameFormat,
	}
	if c.MaxExtra >= 0 {
		n := c.MaxExtra
		req.MaxExtra = &n
	}

	var obs run.Observer
	if w, ok := pickProgressWriter(a.stdout, a.stderr, c.JSON); ok {
		obs = newProgressUI(w, a.cfg)
	}

	res := runner.Execute(context.Background(), req, obs)
	a.emit(res, c.JSON)
	if !res.Success {
		a.code = 1
	}
	return nil
}

func (c *ServeCmd) Run(a *app) error {
	runner, err := run.New(a.cfg, a.log)
	if err != nil {
		return err
	}
	addr := c.Addr
	if addr == "" {
		addr = a.cfg.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := server.NewHandler(runner, a.cfg.OutputRoot, a.log)
	a.log.Info("相对视频路径以 output_root 为基准", "output_root", a.cfg.OutputRoot)
	return server.ListenAndServe(ctx, addr, h.Router(), a.log)
}

// emit 输出最终结果：
// - stdout 是 TTY 且未指定 --json：人类可读摘要（失败写 stderr）
// - 否则 stdout 必须且仅输出一个 ScrapeResult JSON（摘要走 stderr）
func (a *app) emit(res domain.ScrapeResult, forceJSON bool) {
	if !forceJSON && isTTY(a.stdout) {
		if !res.Success {
			fmt.Fprintf(a.stderr, "刮削失败 %s：%s\n", res.ErrorCode, res.Message)
			return
		}
		fmt.Fprintln(a.stdout, "刮削成功")
		fmt.Fprintf(a.stdout, "影片目录: %s\n", res.MovieDir)
		fmt.Fprintf(a.stdout, "NFO 文件: %s\n", res.NFOPath)
		fmt.Fprintf(a.stdout, "视频: %s\n", res.VideoPath)
		if res.PosterPath != "" {
			fmt.Fprintf(a.stdout, "封面: %s\n", res.PosterPath)
		}
		if res.FanartPath != "" {
			fmt.Fprintf(a.stdout, "背景图: %s\n", res.FanartPath)
		}
		if len(res.ExtraImages) > 0 {
			fmt.Fprintf(a.stdout, "剧照: %d 张，位于 extrafanart/ 目录下\n", len(res.ExtraImages))
		}
		if len(res.Renamed) > 0 {
			fmt.Fprintf(a.stdout, "重命名: %d 个视频文件\n", len(res.Renamed))
		}
		return
	}

	_ = json.NewEncoder(a.stdout).Encode(res)
	if res.Success {
		fmt.Fprintf(a.stderr, "完成：dir=%s extras=%d\n", res.MovieDir, len(res.ExtraImages))
	} else {
		fmt.Fprintf(a.stderr, "失败：%s %s\n", res.ErrorCode, res.Message)
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer, jsonOut bool) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 仅重定向 stderr 时 stdout 仍是 TTY：退化输出到 stdout（--json 时不允许）。
	if !jsonOut && isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}
