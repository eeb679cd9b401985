package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/nfofetch/internal/app/run"
	"github.com/John-Robertt/nfofetch/internal/config"
	"github.com/John-Robertt/nfofetch/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的步骤进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：某一步长时间未完成（例如图片下载）时定期输出一行
type progressUI struct {
	w   io.Writer
	cfg config.Config

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time
	lastStep    string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, cfg config.Config) *progressUI {
	return &progressUI{
		w:                  w,
		cfg:                cfg,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(req run.Request) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.lastStep = ""

	fmt.Fprintf(p.w, "[%s] nfofetch scrape\n", now.Format("15:04:05"))
	fmt.Fprintf(p.w, "  url: %s\n", truncate(req.URL, 120))
	fmt.Fprintf(p.w, "  video: %s\n", req.Video)
	fmt.Fprintf(p.w, "  fetch_mode: %s\n", p.cfg.FetchMode)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(p.cfg.HTTPProxy))
	fmt.Fprintf(p.w, "  cookie: %s\n", onOff(p.cfg.JavDBCookie != "" || len(p.cfg.Cookies) > 0))
	if p.cfg.CacheDir != "" {
		fmt.Fprintf(p.w, "  cache: %s\n", p.cfg.CacheDir)
	}
	if f := strings.TrimSpace(req.RenameFormat); f != "" {
		fmt.Fprintf(p.w, "  rename_format: %s\n", f)
	} else if p.cfg.RenameFormat != "" {
		fmt.Fprintf(p.w, "  rename_format: %s (配置)\n", p.cfg.RenameFormat)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnStepDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case run.StepVideo:
		fmt.Fprintf(p.w, "视频: %v\n", fields["path"])
	case run.StepSelect:
		fmt.Fprintf(p.w, "站点: %v\n", fields["provider"])
	case run.StepScrape:
		src := "网络"
		if b, _ := fields["cached"].(bool); b {
			src = "缓存"
		}
		fmt.Fprintf(p.w, "抓取: number=%v 来源=%s (%s)\n", fields["number"], src, formatShortDuration(dur))
	case run.StepRename:
		fmt.Fprintf(p.w, "重命名: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case run.StepNFO:
		fmt.Fprintf(p.w, "NFO: bytes=%d\n", intField(fields, "bytes"))
	case run.StepAssets:
		fmt.Fprintf(p.w, "图片: poster=%s fanart=%s extras=%d (%s)\n",
			yesNo(fields["poster"]), yesNo(fields["fanart"]), intField(fields, "extras"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知步骤也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastStep = name
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnDone(res domain.ScrapeResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.Success {
		fmt.Fprintf(p.w, "\n完成 (%s)\n", formatShortDuration(dur))
	} else {
		fmt.Fprintf(p.w, "\n失败 %s: %s (%s)\n", res.ErrorCode, truncate(res.Message, 160), formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()

	// 结束后停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进行中: 下一步=%s elapsed=%s\n", nextStep(p.lastStep), formatElapsed(time.Since(p.startedAt)))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

// nextStep 返回 last 之后正在进行的步骤名（用于 keepalive 提示）。
func nextStep(last string) string {
	switch last {
	case "":
		return run.StepVideo
	case run.StepVideo:
		return run.StepSelect
	case run.StepSelect:
		return run.StepScrape
	case run.StepScrape, run.StepRename:
		return run.StepNFO
	default:
		return run.StepAssets
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func yesNo(v any) string {
	if b, _ := v.(bool); b {
		return "yes"
	}
	return "no"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
