package rename

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/nfofetch/internal/domain"
	"github.com/John-Robertt/nfofetch/internal/infra/fsx"
	"github.com/John-Robertt/nfofetch/internal/scan"
)

const (
	// DefaultFormat 是 UI/CLI 提示用的默认命名模板。
	DefaultFormat = "[{actor}][{date}]{id}"

	// TempPrefix 是两阶段重命名的临时文件名前缀。
	TempPrefix = "__nfofetch_tmp_"

	// 常见文件系统单文件名上限（字节）；另为 _2、_3 等冲突后缀预留 8 字节。
	maxNameBytes        = 255
	reservedSuffixBytes = 8

	vrTag = "180_LR"
)

const (
	PhasePrepare = "prepare"
	PhaseTemp    = "temp"
	PhaseFinal   = "final"
)

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// 通过可替换的函数指针，让测试能稳定模拟中途失败。
var renameFile = fsx.Rename

// Error 表示两阶段重命名失败。
//
// Pending 列出失败时仍停留在临时文件名上的文件（From=原路径，To=当前临时路径），
// 不做自动回滚，调用方可据此人工恢复。
type Error struct {
	Phase   string
	Pending []domain.RenamedFile
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s 阶段：%v", e.Phase, e.Err)
	if len(e.Pending) == 0 {
		return msg
	}
	names := make([]string, 0, len(e.Pending))
	for _, p := range e.Pending {
		names = append(names, filepath.Base(p.From)+" -> "+filepath.Base(p.To))
	}
	return msg + "（以下文件停留在临时文件名：" + strings.Join(names, ", ") + "）"
}

func (e *Error) Unwrap() error { return e.Err }

// Format 按模板生成新文件名（不含扩展名），结果已做 Sanitize。
//
// 占位符：{id} {year} {date} {actor} {title} {vr} {idx}；单遍替换，
// 替换值中出现的 "{...}" 不会被再次展开。
func Format(format string, meta domain.MovieMetadata, idx int) string {
	year := ""
	if meta.Year != nil {
		year = strconv.Itoa(*meta.Year)
	}
	vr := ""
	if meta.IsVR() {
		vr = vrTag
	}
	r := strings.NewReplacer(
		"{id}", domain.Deref(meta.Number),
		"{year}", year,
		"{date}", meta.Date(),
		"{actor}", meta.FirstActor(),
		"{title}", meta.Title,
		"{vr}", vr,
		"{idx}", strconv.Itoa(idx),
	)
	return Sanitize(r.Replace(format))
}

// Sanitize 把文件系统不允许的字符替换为 "_"，并去掉首尾空格与点；结果为空时返回 "_"。
func Sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, " .")
	if s == "" {
		return "_"
	}
	return s
}

// TruncateBytes 把 s 截断到不超过 limit 字节，且不会切断 UTF-8 多字节字符。
func TruncateBytes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// MaxBaseBytes 返回扩展名为 ext 时 base 允许的最大字节数（至少为 1）。
func MaxBaseBytes(ext string) int {
	return max(1, maxNameBytes-len(ext)-reservedSuffixBytes)
}

// BaseName 计算第 idx 个文件（从 1 开始）的最终 base：格式化后按字节截断。
// 截断可能重新露出结尾的空格或点，因此截断后再修剪一次。
func BaseName(format string, meta domain.MovieMetadata, idx int, ext string) string {
	base := TruncateBytes(Format(format, meta, idx), MaxBaseBytes(ext))
	base = strings.Trim(base, " .")
	if base == "" {
		return "_"
	}
	return base
}

type entry struct {
	src  string
	temp string
	base string
	ext  string
}

// Dir 按模板重命名 dir 下的全部视频文件，返回 原路径 -> 新路径。
//
// 两阶段：先全部改为 __nfofetch_tmp_{i}{ext}，再逐个改为最终名；
// 最终名已存在时追加 _2、_3…，从不覆盖已有文件。
// 临时文件名被批次外的文件占用时，在任何 rename 之前直接失败；
// 被批次内的文件占用时，先移走占用者。
func Dir(dir string, meta domain.MovieMetadata, format string) ([]domain.RenamedFile, error) {
	format = strings.TrimSpace(format)
	if format == "" {
		return nil, nil
	}

	files, err := scan.ListVideos(dir)
	if err != nil {
		return nil, &Error{Phase: PhasePrepare, Err: err}
	}
	if len(files) == 0 {
		return nil, nil
	}
	dir = filepath.Dir(files[0].AbsPath)

	plan := make([]entry, 0, len(files))
	for i, f := range files {
		idx := i + 1
		plan = append(plan, entry{
			src:  f.AbsPath,
			temp: filepath.Join(dir, TempPrefix+strconv.Itoa(idx)+f.Ext),
			base: BaseName(format, meta, idx, f.Ext),
			ext:  f.Ext,
		})
	}

	order, err := tempOrder(plan)
	if err != nil {
		return nil, &Error{Phase: PhasePrepare, Err: err}
	}

	done := make([]entry, 0, len(order))
	for _, e := range order {
		if err := renameFile(e.src, e.temp); err != nil {
			return nil, &Error{Phase: PhaseTemp, Pending: pending(done), Err: err}
		}
		done = append(done, e)
	}

	out := make([]domain.RenamedFile, 0, len(plan))
	for i, e := range plan {
		name, err := fsx.FreeName(dir, e.base, e.ext)
		if err != nil {
			return out, &Error{Phase: PhaseFinal, Pending: pending(plan[i:]), Err: err}
		}
		dst := filepath.Join(dir, name)
		if err := renameFile(e.temp, dst); err != nil {
			return out, &Error{Phase: PhaseFinal, Pending: pending(plan[i:]), Err: err}
		}
		out = append(out, domain.RenamedFile{From: e.src, To: dst})
	}
	return out, nil
}

// tempOrder 返回第一阶段的执行顺序（已是临时名的条目不参与）。
// 某条目的临时名恰好是批次内另一个文件的原名时，排在该文件之后；
// 互相占用形成环时无法安全改名，直接报错。
func tempOrder(plan []entry) ([]entry, error) {
	occupant := make(map[string]int, len(plan))
	var todo []int
	for i, e := range plan {
		if e.temp == e.src {
			continue
		}
		occupant[e.src] = i
		todo = append(todo, i)
	}

	for _, i := range todo {
		if _, inBatch := occupant[plan[i].temp]; inBatch {
			continue
		}
		ok, err := fsx.Exists(plan[i].temp)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, fmt.Errorf("临时文件名已被占用：%s", plan[i].temp)
		}
	}

	moved := make(map[int]bool, len(todo))
	order := make([]entry, 0, len(todo))
	for len(order) < len(todo) {
		progress := false
		for _, i := range todo {
			if moved[i] {
				continue
			}
			if j, ok := occupant[plan[i].temp]; ok && !moved[j] {
				continue
			}
			moved[i] = true
			order = append(order, plan[i])
			progress = true
		}
		if !progress {
			return nil, fmt.Errorf("临时文件名在批次内循环占用")
		}
	}
	return order, nil
}

func pending(plan []entry) []domain.RenamedFile {
	out := make([]domain.RenamedFile, 0, len(plan))
	for _, e := range plan {
		out = append(out, domain.RenamedFile{From: e.src, To: e.temp})
	}
	return out
}

// Lookup 在重命名结果中找到 path 的新路径；未被重命名时原样返回。
func Lookup(renamed []domain.RenamedFile, path string) string {
	for _, r := range renamed {
		if r.From == path {
			return r.To
		}
	}
	return path
}
