package domain

const (
	ErrCodeVideoMissing      = "video_missing"
	ErrCodeUnsupportedSource = "unsupported_source"
	ErrCodeFetchFailed       = "fetch_failed"
	ErrCodeParseFailed       = "parse_failed"
	ErrCodeRenameFailed      = "rename_failed"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeInvalidRequest    = "invalid_request"
)

// ScrapeResult 是一次顶层操作（CLI / HTTP 调用）对外稳定的结果结构。
//
// 约束：
// - Success=false 时 Message/ErrorCode 必须非空
// - 资源路径为空表示该产物缺失（例如 poster 下载失败），不是错误
type ScrapeResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	Metadata *MovieMetadata `json:"metadata,omitempty"`

	MovieDir    string        `json:"movie_dir,omitempty"`
	NFOPath     string        `json:"nfo_path,omitempty"`
	VideoPath   string        `json:"video_path,omitempty"`
	PosterPath  string        `json:"poster_path,omitempty"`
	FanartPath  string        `json:"fanart_path,omitempty"`
	ExtraImages []string      `json:"extra_images"`
	Renamed     []RenamedFile `json:"renamed,omitempty"`

	// 用户选择的封面/背景图源 URL，原样回显给 UI。
	ChosenPosterURL string `json:"chosen_poster_url,omitempty"`
	ChosenFanartURL string `json:"chosen_fanart_url,omitempty"`
}

type RenamedFile struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Failed 构造失败结果；meta 可以为 nil（例如还没开始刮削）。
func Failed(code, msg string, meta *MovieMetadata) ScrapeResult {
	return ScrapeResult{
		Success:     false,
		Message:     msg,
		ErrorCode:   code,
		Metadata:    meta,
		ExtraImages: []string{},
	}
}
