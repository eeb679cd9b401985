package domain

import "strings"

// MovieMetadata 是 provider 解析得到的结构化元数据。
//
// 约束：
// - 构造一次后只读：nfo/planner/rename 都只读取，不回写
// - 可选标量一律用指针表示“缺失”（nil），不用空串/0 冒充 unknown
// - 列表字段保持插入顺序且无重复；缺失时为空切片而不是 nil
type MovieMetadata struct {
	Title         string   `json:"title"`
	OriginalTitle *string  `json:"original_title,omitempty"`
	Number        *string  `json:"number,omitempty"`
	Plot          *string  `json:"plot,omitempty"`
	Year          *int     `json:"year,omitempty"`
	Premiered     *string  `json:"premiered,omitempty"`   // YYYY-MM-DD
	ReleaseDate   *string  `json:"releasedate,omitempty"` // YYYY-MM-DD
	Runtime       *int     `json:"runtime,omitempty"`     // 分钟
	Genres        []string `json:"genres"`
	Tags          []string `json:"tags"`
	Actors        []Actor  `json:"actors"`
	Studio        *string  `json:"studio,omitempty"`
	Label         *string  `json:"label,omitempty"`
	Series        *string  `json:"series,omitempty"`
	Directors     []string `json:"directors"`
	Rating        *float64 `json:"rating,omitempty"`

	// Posters 第一张为主封面；Art 为剧照/预览图。
	Posters []string `json:"posters"`
	Art     []string `json:"art"`

	SourceURL *string `json:"source_url,omitempty"`
}

type Actor struct {
	Name  string  `json:"name"`
	Role  *string `json:"role,omitempty"`
	Thumb *string `json:"thumb,omitempty"`
}

// IsVR 判断是否为 VR 作品：番号、任一 genre 或任一 tag 含 "VR"（忽略大小写）。
func (m MovieMetadata) IsVR() bool {
	if strings.Contains(strings.ToUpper(Deref(m.Number)), "VR") {
		return true
	}
	for _, g := range m.Genres {
		if strings.Contains(strings.ToUpper(g), "VR") {
			return true
		}
	}
	for _, t := range m.Tags {
		if strings.Contains(strings.ToUpper(t), "VR") {
			return true
		}
	}
	return false
}

// Date 返回 premiered，缺失时回退 releasedate；都缺失时返回空串。
func (m MovieMetadata) Date() string {
	if s := Deref(m.Premiered); s != "" {
		return s
	}
	return Deref(m.ReleaseDate)
}

// FirstActor 返回第一位演员名；没有演员时返回空串。
func (m MovieMetadata) FirstActor() string {
	if len(m.Actors) == 0 {
		return ""
	}
	return m.Actors[0].Name
}

// OptString 去掉首尾空白；结果为空时返回 nil（表示缺失）。
func OptString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref 读取可选字符串；nil 视为空串。
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
