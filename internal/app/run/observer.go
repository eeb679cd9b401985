package run

import (
	"time"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

// Observer 用于把“步骤进度/耗时/最终结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - Observer 的实现必须并发安全：HTTP 模式下多个请求可能共用一个实现
type Observer interface {
	// OnStart 在 Execute 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(req Request)
	// OnStepDone 在每个步骤结束时调用；失败的步骤不会触发。
	OnStepDone(name string, fields map[string]any, dur time.Duration)
	// OnDone 在得到最终结果后调用（成功或失败都会调用）。
	OnDone(res domain.ScrapeResult, dur time.Duration)
}

const (
	StepVideo  = "video"
	StepSelect = "select"
	StepScrape = "scrape"
	StepRename = "rename"
	StepNFO    = "nfo"
	StepAssets = "assets"
)
