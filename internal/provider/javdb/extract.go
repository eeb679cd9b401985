package javdb

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/nfofetch/internal/code"
	"github.com/John-Robertt/nfofetch/internal/domain"
)

const unknownTitle = "Unknown Title"

var (
	dateRE   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	intRE    = regexp.MustCompile(`\d+`)
	numberRE = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// 宽松扫描的候选节点：新版 panel-block，旧版 panel-item / 表格行。
const looseBlocks = "div.panel-block, div.panel-item, tr"

var (
	titleSelectors = []string{
		"div.video-detail h2.title strong.current-title",
		"h2.title",
		"h2.video-title",
		"div.video-title h2",
		"main h2",
		"h2",
	}
	plotSelectors = []string{
		"div.description",
		"div.synopsis",
		"section#introduction",
		"p.description",
	}
	posterFallbackSelectors = []string{
		"div.video-cover img",
		"div.cover img",
		"img.video-cover",
	}
	artFallbackSelectors = []string{
		"div.sample-images img",
		"div.preview-images img",
		"div.screenshots img",
	}
	genreExtraSelectors = "a.category, a.tag, span.category a, div.tags a"

	dateKeywords    = []string{"發行日期", "发行日期", "上市日期", "日期", "Release Date"}
	runtimeLabels   = []string{"時長", "时长", "Duration"}
	runtimeKeywords = []string{"時長", "时长", "分鐘", "分鍾", "分钟", "min"}
	ratingKeywords  = []string{"評分", "评分", "Rating"}
)

// firstOf 依次尝试候选策略，返回第一个成功的结果。
// 单个策略返回 ok=false 表示落空，交给下一个。
func firstOf[T any](doc *goquery.Document, chain ...func(*goquery.Document) (T, bool)) (T, bool) {
	for _, s := range chain {
		if v, ok := s(doc); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func extract(doc *goquery.Document, pageURL string) domain.MovieMetadata {
	mainTitle, hasTitle := firstOf(doc, textAt(titleSelectors...))
	number, hasNumber := firstOf(doc,
		numberFromPanel,
		func(*goquery.Document) (string, bool) { return code.FromTitle(mainTitle) },
	)

	meta := domain.MovieMetadata{
		Title:         compositeTitle(number, hasNumber, mainTitle, hasTitle),
		OriginalTitle: domain.OptString(normSpace(doc.Find("h2.title span.origin-title").First().Text())),
		Genres:        genres(doc),
		Tags:          []string{},
		Actors:        actors(doc),
		Directors:     panelLinks(doc, "導演", "导演", "Director"),
		Posters:       []string{},
		Art:           []string{},
	}
	if hasNumber {
		meta.Number = &number
	}

	if d, ok := firstOf(doc, dateIn); ok {
		meta.Premiered = &d
		meta.ReleaseDate = &d
		meta.Year = yearOf(d)
	}
	if n, ok := firstOf(doc, runtimeFromPanel, runtimeLoose); ok {
		meta.Runtime = &n
	}
	if r, ok := firstOf(doc, ratingFromPanel, ratingLoose); ok {
		meta.Rating = &r
	}
	if p, ok := firstOf(doc, textAt(plotSelectors...)); ok {
		meta.Plot = &p
	}

	meta.Studio, meta.Label, meta.Series = companies(doc)

	if ps, ok := firstOf(doc, hrefsAt(pageURL, "div.column-video-cover a"), imgsAt(pageURL, posterFallbackSelectors...)); ok {
		meta.Posters = ps
	}
	if as, ok := firstOf(doc, hrefsAt(pageURL, "div.preview-images a.tile-item"), imgsAt(pageURL, artFallbackSelectors...)); ok {
		meta.Art = as
	}
	return meta
}

// compositeTitle：番号与标题都存在时总是 "番号 标题"，即使标题本身已带番号。
func compositeTitle(number string, hasNumber bool, mainTitle string, hasTitle bool) string {
	switch {
	case hasNumber && hasTitle:
		return number + " " + mainTitle
	case hasTitle:
		return mainTitle
	case hasNumber:
		return number
	default:
		return unknownTitle
	}
}

func textAt(selectors ...string) func(*goquery.Document) (string, bool) {
	return func(doc *goquery.Document) (string, bool) {
		for _, sel := range selectors {
			if t := normSpace(doc.Find(sel).First().Text()); t != "" {
				return t, true
			}
		}
		return "", false
	}
}

func hrefsAt(pageURL, sel string) func(*goquery.Document) ([]string, bool) {
	return func(doc *goquery.Document) ([]string, bool) {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			out = append(out, resolveURL(pageURL, href))
		})
		out = normList(out)
		return out, len(out) > 0
	}
}

// imgsAt 取第一个有结果的选择器；懒加载图片优先读 data-src。
func imgsAt(pageURL string, selectors ...string) func(*goquery.Document) ([]string, bool) {
	return func(doc *goquery.Document) ([]string, bool) {
		for _, sel := range selectors {
			var out []string
			doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				out = append(out, resolveURL(pageURL, imgSrc(s)))
			})
			if out = normList(out); len(out) > 0 {
				return out, true
			}
		}
		return nil, false
	}
}

func imgSrc(s *goquery.Selection) string {
	if v, ok := s.Attr("data-src"); ok && strings.TrimSpace(v) != "" {
		return v
	}
	v, _ := s.Attr("src")
	return v
}

func panelBlocks(doc *goquery.Document) *goquery.Selection {
	return doc.Find("nav.movie-panel-info div.panel-block")
}

func labelOf(block *goquery.Selection) string {
	return normHeader(block.Find("strong").First().Text())
}

func numberFromPanel(doc *goquery.Document) (string, bool) {
	var out string
	panelBlocks(doc).EachWithBreak(func(_ int, b *goquery.Selection) bool {
		if !containsAny(labelOf(b), "番號", "番号", "ID") {
			return true
		}
		if v, ok := b.Find("a.copy-to-clipboard").First().Attr("data-clipboard-text"); ok && strings.TrimSpace(v) != "" {
			out = strings.TrimSpace(v)
			return false
		}
		if v := normSpace(b.Find("span.value").First().Text()); v != "" {
			out = v
			return false
		}
		return true
	})
	return out, out != ""
}

func dateIn(doc *goquery.Document) (string, bool) {
	var out string
	doc.Find(looseBlocks).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := s.Text()
		if !containsAny(t, dateKeywords...) {
			return true
		}
		out = dateRE.FindString(t)
		return out == ""
	})
	return out, out != ""
}

func yearOf(date string) *int {
	y, _, _ := strings.Cut(date, "-")
	n, err := strconv.Atoi(y)
	if err != nil {
		return nil
	}
	return &n
}

func runtimeFromPanel(doc *goquery.Document) (int, bool) {
	n, found := 0, false
	panelBlocks(doc).EachWithBreak(func(_ int, b *goquery.Selection) bool {
		if !containsAny(labelOf(b), runtimeLabels...) {
			return true
		}
		n, found = firstInt(b.Find("span.value").First().Text())
		return !found
	})
	return n, found
}

func runtimeLoose(doc *goquery.Document) (int, bool) {
	n, found := 0, false
	doc.Find(looseBlocks).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := s.Text()
		if !containsAny(strings.ToLower(t), runtimeKeywords...) {
			return true
		}
		n, found = firstInt(t)
		return !found
	})
	return n, found
}

func ratingFromPanel(doc *goquery.Document) (float64, bool) {
	f, found := 0.0, false
	panelBlocks(doc).EachWithBreak(func(_ int, b *goquery.Selection) bool {
		if !containsAny(labelOf(b), ratingKeywords...) {
			return true
		}
		f, found = firstFloat(b.Find("span.value").First().Text())
		return !found
	})
	return f, found
}

// ratingLoose 在没有结构化评分块时兜底：取包含关键字的最内层节点，
// 只解析关键字之后的第一个数字。
func ratingLoose(doc *goquery.Document) (float64, bool) {
	const sel = "div.panel-block, div.panel-item, tr, section, div"
	f, found := 0.0, false
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := normSpace(s.Text())
		if keywordIndex(t, ratingKeywords) < 0 {
			return true
		}
		inner := s.Find(sel).FilterFunction(func(_ int, c *goquery.Selection) bool {
			return keywordIndex(normSpace(c.Text()), ratingKeywords) >= 0
		})
		if inner.Length() > 0 {
			return true
		}
		f, found = firstFloat(t[keywordIndex(t, ratingKeywords):])
		return false
	})
	return f, found
}

func genres(doc *goquery.Document) []string {
	out := panelLinks(doc, "類別", "类别", "Tags")
	doc.Find(genreExtraSelectors).Each(func(_ int, a *goquery.Selection) {
		out = append(out, normSpace(a.Text()))
	})
	return normList(out)
}

func actors(doc *goquery.Document) []domain.Actor {
	names := panelLinks(doc, "演員", "演员", "Actor")
	out := make([]domain.Actor, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Actor{Name: n})
	}
	return out
}

// panelLinks 收集标签匹配的 panel-block 中 span.value 下的所有链接文本。
func panelLinks(doc *goquery.Document, labels ...string) []string {
	var out []string
	panelBlocks(doc).Each(func(_ int, b *goquery.Selection) {
		if !containsAny(labelOf(b), labels...) {
			return
		}
		b.Find("span.value a").Each(func(_ int, a *goquery.Selection) {
			out = append(out, normSpace(a.Text()))
		})
	})
	return normList(out)
}

// companies 按标签识别片商/发行商/系列；每个字段取第一个非空值。
// 含 "日期" 的标签（如 發行日期）不是发行商，直接跳过。
func companies(doc *goquery.Document) (studio, label, series *string) {
	panelBlocks(doc).Each(func(_ int, b *goquery.Selection) {
		l := labelOf(b)
		if l == "" || strings.Contains(l, "日期") {
			return
		}
		v := normSpace(b.Find("span.value a").First().Text())
		if v == "" {
			v = normSpace(b.Find("span.value").First().Text())
		}
		switch {
		case containsAny(l, "片商", "Studio", "Maker"):
			if studio == nil {
				studio = domain.OptString(v)
			}
		case containsAny(l, "發行", "发行", "Label", "Publisher"):
			if label == nil {
				label = domain.OptString(v)
			}
		case containsAny(l, "系列", "Series"):
			if series == nil {
				series = domain.OptString(v)
			}
		}
	})
	return studio, label, series
}

// resolveURL 把相对链接补全为绝对 URL；"//host/x" 沿用页面的 scheme。
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	bu, err := url.Parse(base)
	if strings.HasPrefix(href, "//") {
		scheme := "https"
		if err == nil && bu.Scheme != "" {
			scheme = bu.Scheme
		}
		return scheme + ":" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func normHeader(s string) string {
	s = normSpace(s)
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}

func normList(in []string) []string {
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
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func keywordIndex(s string, keywords []string) int {
	for _, k := range keywords {
		if i := strings.Index(s, k); i >= 0 {
			return i
		}
	}
	return -1
}

func firstInt(s string) (int, bool) {
	for _, m := range intRE.FindAllString(s, -1) {
		if n, err := strconv.Atoi(m); err == nil {
			return n, true
		}
	}
	return 0, false
}

func firstFloat(s string) (float64, bool) {
	m := numberRE.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	return f, err == nil
}
