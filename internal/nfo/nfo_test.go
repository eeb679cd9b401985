package nfo

import (
	"encoding/xml"
	"regexp"
	"strings"
	"testing"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

type movieOut struct {
	Title         string   `xml:"title"`
	OriginalTitle string   `xml:"originaltitle"`
	SortTitle     string   `xml:"sorttitle"`
	Plot          string   `xml:"plot"`
	Year          int      `xml:"year"`
	ReleaseDate   string   `xml:"releasedate"`
	Premiered     string   `xml:"premiered"`
	Runtime       int      `xml:"runtime"`
	ID            string   `xml:"id"`
	Studio        string   `xml:"studio"`
	Label         string   `xml:"label"`
	Series        string   `xml:"series"`
	Rating        string   `xml:"rating"`
	Tags          []string `xml:"tag"`
	Genres        []string `xml:"genre"`
	Directors     []string `xml:"director"`
	Thumb         string   `xml:"thumb"`
	Actors        []struct {
		Name  string `xml:"name"`
		Role  string `xml:"role"`
		Thumb string `xml:"thumb"`
	} `xml:"actor"`
}

func ptr[T any](v T) *T { return &v }

func fullMeta() domain.MovieMetadata {
	return domain.MovieMetadata{
		Title:         "ABC-123 Sample & <Title>",
		OriginalTitle: ptr("原題"),
		Number:        ptr("ABC-123"),
		Plot:          ptr("plot text"),
		Year:          ptr(2024),
		Premiered:     ptr("2024-03-01"),
		ReleaseDate:   ptr("2024-03-01"),
		Runtime:       ptr(120),
		Genres:        []string{"z", "x", "x"},
		Tags:          []string{"t1"},
		Actors:        []domain.Actor{{Name: "Jane", Role: ptr("Lead"), Thumb: ptr("https://img.test/jane.jpg")}, {Name: "Amy"}},
		Studio:        ptr("Studio"),
		Label:         ptr("Label"),
		Series:        ptr("Series"),
		Directors:     []string{"Dir"},
		Rating:        ptr(7.666),
		Posters:       []string{"https://img.test/cover.jpg", "https://img.test/cover2.jpg"},
		Art:           []string{"https://img.test/a.jpg"},
	}
}

func TestRender_RoundTrip(t *testing.T) {
	meta := fullMeta()
	b, err := Render(meta)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.HasPrefix(string(b), `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>`) {
		t.Fatalf("缺少 XML 头：%q", string(b)[:40])
	}

	var out movieOut
	if err := xml.Unmarshal(b, &out); err != nil {
		t.Fatalf("xml.Unmarshal 失败：%v", err)
	}
	if out.Title != meta.Title || out.ID != "ABC-123" || out.SortTitle != "ABC-123" {
		t.Fatalf("title/id/sorttitle 不一致：%q %q %q", out.Title, out.ID, out.SortTitle)
	}
	if out.Year != 2024 || out.Studio != "Studio" || out.Runtime != 120 {
		t.Fatalf("year/studio/runtime 不一致：%d %q %d", out.Year, out.Studio, out.Runtime)
	}
	if out.Rating != "7.7" {
		t.Fatalf("期望 rating=7.7，实际=%q", out.Rating)
	}
	if len(out.Genres) != 2 || out.Genres[0] != "z" || out.Genres[1] != "x" {
		t.Fatalf("genres 未按输入顺序去重：%v", out.Genres)
	}
	if len(out.Actors) != 2 || out.Actors[0].Role != "Lead" || out.Actors[0].Thumb != "https://img.test/jane.jpg" || out.Actors[1].Name != "Amy" {
		t.Fatalf("actors 不一致：%+v", out.Actors)
	}
	if out.Thumb != "https://img.test/cover.jpg" {
		t.Fatalf("顶层 thumb 应为第一张封面：%q", out.Thumb)
	}
}

func TestRender_ElementOrder(t *testing.T) {
	b, err := Render(fullMeta())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	s := string(b)
	order := []string{
		"<title>", "<originaltitle>", "<sorttitle>", "<plot>", "<year>", "<releasedate>",
		"<premiered>", "<runtime>", "<id>", "<studio>", "<label>", "<series>", "<rating>",
		"<tag>", "<genre>", "<director>", "<actor>", "\n  <thumb>",
	}
	last := -1
	for _, tag := range order {
		i := strings.Index(s, tag)
		if i < 0 {
			t.Fatalf("缺少元素 %q：\n%s", tag, s)
		}
		if i <= last {
			t.Fatalf("元素 %q 顺序不正确：\n%s", tag, s)
		}
		last = i
	}
}

func TestRender_OmitsAbsentFields(t *testing.T) {
	b, err := Render(domain.MovieMetadata{
		Title:   "Only Title",
		Genres:  []string{" "},
		Actors:  []domain.Actor{{Name: ""}},
		Posters: []string{},
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	s := string(b)
	for _, tag := range []string{"<originaltitle", "<plot", "<year", "<releasedate", "<premiered", "<runtime", "<id", "<studio", "<label", "<series", "<rating", "<tag", "<genre", "<director", "<actor", "<thumb"} {
		if strings.Contains(s, tag) {
			t.Fatalf("缺失字段不应输出 %s：\n%s", tag, s)
		}
	}
	if regexp.MustCompile(`<(\w+)></(\w+)>|<\w+/>`).MatchString(s) {
		t.Fatalf("不应输出空元素：\n%s", s)
	}
	// 没有番号时 sorttitle 回退 title。
	if !strings.Contains(s, "<sorttitle>Only Title</sorttitle>") {
		t.Fatalf("sorttitle 未回退到 title：\n%s", s)
	}
}

func TestRender_RatingAlwaysOneDecimal(t *testing.T) {
	cases := map[float64]string{
		8:     "8.0",
		7.666: "7.7",
		4.47:  "4.5",
		0:     "0.0",
		10:    "10.0",
	}
	for in, want := range cases {
		b, err := Render(domain.MovieMetadata{Title: "x", Rating: ptr(in)})
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		if !strings.Contains(string(b), "<rating>"+want+"</rating>") {
			t.Fatalf("rating=%v 期望输出 %s：\n%s", in, want, b)
		}
	}
}
