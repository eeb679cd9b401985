package nfo

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

// FileName 是写入影片目录的 NFO 文件名。
const FileName = "movie.nfo"

// movie 的字段顺序即输出顺序；所有字段缺失时整体省略，不输出空元素。
type movie struct {
	XMLName xml.Name `xml:"movie"`

	Title         string `xml:"title,omitempty"`
	OriginalTitle string `xml:"originaltitle,omitempty"`
	SortTitle     string `xml:"sorttitle,omitempty"`
	Plot          string `xml:"plot,omitempty"`
	Year          *int   `xml:"year,omitempty"`
	ReleaseDate   string `xml:"releasedate,omitempty"`
	Premiered     string `xml:"premiered,omitempty"`
	Runtime       *int   `xml:"runtime,omitempty"`
	ID            string `xml:"id,omitempty"`
	Studio        string `xml:"studio,omitempty"`
	Label         string `xml:"label,omitempty"`
	Series        string `xml:"series,omitempty"`
	Rating        string `xml:"rating,omitempty"`

	Tags      []string `xml:"tag,omitempty"`
	Genres    []string `xml:"genre,omitempty"`
	Directors []string `xml:"director,omitempty"`
	Actors    []actor  `xml:"actor,omitempty"`

	Thumb string `xml:"thumb,omitempty"`
}

type actor struct {
	Name  string `xml:"name"`
	Role  string `xml:"role,omitempty"`
	Thumb string `xml:"thumb,omitempty"`
}

// Render 把 MovieMetadata 转成 Kodi/Jellyfin/Emby 可读取的 NFO（XML）。
//
// 规则：
// - 缺失/空白字段整体省略
// - rating 固定保留一位小数（8 → 8.0，7.666 → 7.7）
// - sorttitle 优先番号，缺失时回退 title
// - 顶层 thumb 为第一张封面 URL
func Render(meta domain.MovieMetadata) ([]byte, error) {
	number := trim(meta.Number)
	sortTitle := number
	if sortTitle == "" {
		sortTitle = strings.TrimSpace(meta.Title)
	}

	m := movie{
		Title:         strings.TrimSpace(meta.Title),
		OriginalTitle: trim(meta.OriginalTitle),
		SortTitle:     sortTitle,
		Plot:          trim(meta.Plot),
		Year:          meta.Year,
		ReleaseDate:   trim(meta.ReleaseDate),
		Premiered:     trim(meta.Premiered),
		Runtime:       meta.Runtime,
		ID:            number,
		Studio:        trim(meta.Studio),
		Label:         trim(meta.Label),
		Series:        trim(meta.Series),

		Tags:      normList(meta.Tags),
		Genres:    normList(meta.Genres),
		Directors: normList(meta.Directors),
	}
	if meta.Rating != nil {
		m.Rating = strconv.FormatFloat(*meta.Rating, 'f', 1, 64)
	}
	for _, a := range meta.Actors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		m.Actors = append(m.Actors, actor{Name: name, Role: trim(a.Role), Thumb: trim(a.Thumb)})
	}
	if len(meta.Posters) > 0 {
		m.Thumb = strings.TrimSpace(meta.Posters[0])
	}

	b, err := xml.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	// 约定：输出带 standalone="yes" 的 XML 头，便于与常见刮削器产物兼容。
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	b = append([]byte(header), b...)
	return append(b, '\n'), nil
}

func trim(p *string) string { return strings.TrimSpace(domain.Deref(p)) }

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
