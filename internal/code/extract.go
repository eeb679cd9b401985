package code

import (
	"regexp"
	"strings"
)

// 标题中的番号片段：字母段 + 可选 '-' + 数字段（例如 IPVR-335、abp123）。
// 不做大小写规范化：按页面上的原样返回，避免“纠正”成站点并不存在的写法。
var titleRE = regexp.MustCompile(`[A-Za-z]{2,5}-?[0-9]{2,5}`)

// FromTitle 从标题中提取第一个形如番号的片段（结构化信息块缺失时的兜底）。
func FromTitle(title string) (string, bool) {
	m := titleRE.FindString(strings.TrimSpace(title))
	if m == "" {
		return "", false
	}
	return m, true
}
