package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/John-Robertt/nfofetch/internal/app/run"
	"github.com/John-Robertt/nfofetch/internal/domain"
)

// maxBodyBytes 限制请求体大小（请求只含几个 URL/路径字段）。
const maxBodyBytes = 1 << 20

// Scraper 是 HTTP 层依赖的执行入口（*run.Runner 实现它）。
type Scraper interface {
	Execute(ctx context.Context, req run.Request, obs run.Observer) domain.ScrapeResult
}

type scrapeRequest struct {
	URL          string `json:"url"`
	Video        string `json:"video"`
	PosterURL    string `json:"poster_url"`
	FanartURL    string `json:"fanart_url"`
	RenameFormat string `json:"rename_format"`
	MaxExtra     *int   `json:"max_extra"`
}

// Handler 暴露刮削接口；相对的 video 路径以 VideoBase（output_root）为基准。
type Handler struct {
	scraper   Scraper
	videoBase string
	log       *slog.Logger
}

func NewHandler(s Scraper, videoBase string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{scraper: s, videoBase: videoBase, log: log}
}

// Router 返回带 CORS 的完整路由。
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/health", h.health)
	r.Post("/api/scrape", h.scrape)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})
	return c.Handler(r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) scrape(w http.ResponseWriter, r *http.Request) {
	var in scrapeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeResult(w, domain.Failed(domain.ErrCodeInvalidRequest, "请求体不是合法 JSON："+err.Error(), nil))
		return
	}
	if strings.TrimSpace(in.URL) == "" || strings.TrimSpace(in.Video) == "" {
		writeResult(w, domain.Failed(domain.ErrCodeInvalidRequest, "url 与 video 均不能为空", nil))
		return
	}

	res := h.scraper.Execute(r.Context(), run.Request{
		URL:          in.URL,
		Video:        in.Video,
		VideoBase:    h.videoBase,
		PosterURL:    in.PosterURL,
		FanartURL:    in.FanartURL,
		RenameFormat: in.RenameFormat,
		MaxExtra:     in.MaxExtra,
	}, nil)
	writeResult(w, res)
}

// StatusFor 把结果映射为 HTTP 状态码：前置条件/不支持 400，抓取失败 502，其余失败 500。
func StatusFor(res domain.ScrapeResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.ErrorCode {
	case domain.ErrCodeVideoMissing, domain.ErrCodeUnsupportedSource, domain.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case domain.ErrCodeFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, res domain.ScrapeResult) {
	writeJSON(w, StatusFor(res), res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(started),
		)
	})
}

// ListenAndServe 启动 HTTP 服务，ctx 取消后优雅关闭。
func ListenAndServe(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP 服务已启动", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("HTTP 服务正在关闭")
		return srv.Shutdown(shutdownCtx)
	}
}
