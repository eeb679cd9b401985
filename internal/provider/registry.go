package provider

import (
	"fmt"
	"strings"
)

// Registry 是 provider 的只读注册表。
// 保留注册顺序：Select 按顺序取第一个 Supports 命中的 provider。
type Registry struct {
	ordered []Provider
}

func NewRegistry(providers ...Provider) (Registry, error) {
	seen := make(map[string]bool, len(providers))
	ordered := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			return Registry{}, fmt.Errorf("provider 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("provider.Name 不能为空")
		}
		if seen[name] {
			return Registry{}, fmt.Errorf("重复的 provider：%q", name)
		}
		seen[name] = true
		ordered = append(ordered, p)
	}
	return Registry{ordered: ordered}, nil
}

// Select 返回第一个支持 rawURL 的 provider；都不支持时返回 *UnsupportedError。
func (r Registry) Select(rawURL string) (Provider, error) {
	for _, p := range r.ordered {
		if p.Supports(rawURL) {
			return p, nil
		}
	}
	return nil, &UnsupportedError{URL: rawURL}
}
