package planner

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

const (
	PosterName = "poster.jpg"
	FanartName = "fanart.jpg"
	ExtraDir   = "extrafanart"

	DefaultMaxExtra = 8
)

var extraNameRE = regexp.MustCompile(`^\d{2,}\.jpg$`)

// AssetPlan 是一个影片目录的图片下载计划（纯计算，不做任何 IO）。
type AssetPlan struct {
	Dir string

	// PosterURL 为空表示没有可用封面。
	PosterURL  string
	PosterPath string

	// FanartCandidates 按顺序尝试，第一个下载成功者胜出。
	FanartCandidates []string
	FanartPath       string

	ExtraDir string
	MaxExtra int

	posterOverride   string
	fanartOverride   string
	gallery          []string
	posterCandidates []string
}

// PlanAssets 基于元数据与用户选择的覆盖 URL 生成确定性的下载计划。
//
// 规则：
// - poster：覆盖 URL 优先，否则第一张封面
// - fanart 候选：覆盖 URL、第一张剧照、第一个封面候选（去重保持顺序）
// - maxExtra < 0 视为 0
func PlanAssets(meta domain.MovieMetadata, dir, posterOverride, fanartOverride string, maxExtra int) AssetPlan {
	posterOverride = strings.TrimSpace(posterOverride)
	fanartOverride = strings.TrimSpace(fanartOverride)
	if maxExtra < 0 {
		maxExtra = 0
	}

	posterCandidates := dedupe(append([]string{posterOverride}, meta.Posters...))
	gallery := dedupe(meta.Art)

	p := AssetPlan{
		Dir:              dir,
		PosterPath:       filepath.Join(dir, PosterName),
		FanartPath:       filepath.Join(dir, FanartName),
		ExtraDir:         filepath.Join(dir, ExtraDir),
		MaxExtra:         maxExtra,
		posterOverride:   posterOverride,
		fanartOverride:   fanartOverride,
		gallery:          gallery,
		posterCandidates: posterCandidates,
	}
	if len(posterCandidates) > 0 {
		p.PosterURL = posterCandidates[0]
	}

	fanart := []string{fanartOverride}
	if len(gallery) > 0 {
		fanart = append(fanart, gallery[0])
	}
	if len(posterCandidates) > 0 {
		fanart = append(fanart, posterCandidates[0])
	}
	p.FanartCandidates = dedupe(fanart)
	return p
}

// ExtraSources 返回 extrafanart 的候选 URL：全部剧照再加全部封面候选，
// 去掉已被 poster / 成功的 fanart / 两个覆盖 URL 占用的地址，去重保持顺序。
//
// fanartUsed 为实际下载成功的 fanart URL（失败时传空串）。
// 数量上限按“成功下载数”计算，由调用方执行。
func (p AssetPlan) ExtraSources(fanartUsed string) []string {
	consumed := map[string]struct{}{}
	for _, u := range []string{p.PosterURL, strings.TrimSpace(fanartUsed), p.posterOverride, p.fanartOverride} {
		if u != "" {
			consumed[u] = struct{}{}
		}
	}

	all := append(append([]string{}, p.gallery...), p.posterCandidates...)
	out := make([]string, 0, len(all))
	for _, u := range dedupe(all) {
		if _, ok := consumed[u]; ok {
			continue
		}
		out = append(out, u)
	}
	return out
}

// ExtraName 返回第 n 张（从 1 开始）extrafanart 的文件名，例如 01.jpg。
func ExtraName(n int) string { return fmt.Sprintf("%02d.jpg", n) }

// IsExtraName 判断文件名是否为 ExtraName 生成的编号图片。
func IsExtraName(name string) bool { return extraNameRE.MatchString(name) }

func dedupe(in []string) []string {
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
