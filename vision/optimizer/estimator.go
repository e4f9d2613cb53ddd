package optimizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// =============================================================================
// 🔢 提示词成本估算
// =============================================================================

// CostEstimator 用分词器估算 LLM 路由的提示词成本
// 编码表加载失败时退化为 len/4 的经验估算
type CostEstimator struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
}

// NewCostEstimator 创建估算器，编码表懒加载
func NewCostEstimator() *CostEstimator {
	return &CostEstimator{}
}

// CountTokens 估算文本的 token 数
func (e *CostEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		// cl100k_base 覆盖 gpt-4o 系；离线环境下加载可能失败
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.encoding = enc
		}
	})

	if e.encoding != nil {
		return len(e.encoding.Encode(text, nil, nil))
	}
	// 英文文本的经验值：约 4 字符一个 token
	return (len(text) + 3) / 4
}

// PromptCost 按千 token 单价估算提示词成本
func (e *CostEstimator) PromptCost(text string, costPerKiloToken float64) float64 {
	return float64(e.CountTokens(text)) / 1000.0 * costPerKiloToken
}
