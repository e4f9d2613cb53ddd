// 版权所有 2024 FrameSense Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 classifier 把自由文本问题映射到注册的问题类型。
// 纯函数式评分：同一输入永远得到同一分类结果。
package classifier

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🔍 问题分类器
// =============================================================================

// minConfidence 最高得分低于该阈值时回退到默认类型
const minConfidence = 0.5

// defaultConfidence 回退分类的固定置信度
const defaultConfidence = 0.3

// Classification 分类结果
type Classification struct {
	Type       vision.QuestionType `json:"type"`
	Confidence float64             `json:"confidence"`
	Reasoning  string              `json:"reasoning"`
}

// compiledType 带编译后正则的注册条目
type compiledType struct {
	qt       vision.QuestionType
	patterns []*regexp.Regexp
}

// Classifier 问题类型注册表与评分器
// 注册表支持运行时扩展，读多写少
type Classifier struct {
	mu        sync.RWMutex
	types     map[string]compiledType
	defaultID string
}

// New 创建带内置类型表的分类器
func New() *Classifier {
	c := &Classifier{
		types:     make(map[string]compiledType),
		defaultID: TypeDescribeScene,
	}
	for _, qt := range DefaultQuestionTypes() {
		// 内置表在这里注册，模式全部静态可编译
		if err := c.Register(qt); err != nil {
			panic(fmt.Sprintf("builtin question type %s: %v", qt.ID, err))
		}
	}
	return c
}

// Register 注册新问题类型，ID 重复返回 ErrDuplicateTypeID
func (c *Classifier) Register(qt vision.QuestionType) error {
	compiled := make([]*regexp.Regexp, 0, len(qt.Patterns))
	for _, p := range qt.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("compile pattern %q for type %s: %w", p, qt.ID, err)
		}
		compiled = append(compiled, re)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.types[qt.ID]; exists {
		return fmt.Errorf("question type %s: %w", qt.ID, vision.ErrDuplicateTypeID)
	}
	c.types[qt.ID] = compiledType{qt: qt, patterns: compiled}
	return nil
}

// Lookup 按 ID 返回已注册的问题类型
func (c *Classifier) Lookup(id string) (vision.QuestionType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.types[id]
	return ct.qt, ok
}

// Classify 对问题文本评分并返回最佳类型
// 每类得分 = (命中模式数 + 每个命中模式的特异性加成) / 该类模式总数；
// 最高分低于 0.5 时回退到默认"描述场景"类型，置信度固定 0.3
func (c *Classifier) Classify(question string) Classification {
	question = strings.TrimSpace(question)

	c.mu.RLock()
	defer c.mu.RUnlock()

	bestID := ""
	bestScore := 0.0

	// 按 ID 排序遍历保证平分时的确定性
	ids := make([]string, 0, len(c.types))
	for id := range c.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ct := c.types[id]
		if len(ct.patterns) == 0 {
			continue
		}

		score := 0.0
		for _, re := range ct.patterns {
			if re.MatchString(question) {
				// 更长的模式更特异，给予小幅加成
				score += 1.0 + specificityBonus(re.String())
			}
		}
		score /= float64(len(ct.patterns))

		if score > bestScore {
			bestScore = score
			bestID = id
		}
	}

	if bestID == "" || bestScore < minConfidence {
		def := c.types[c.defaultID]
		return Classification{
			Type:       def.qt,
			Confidence: defaultConfidence,
			Reasoning:  "no clear pattern match, defaulting to scene description",
		}
	}

	best := c.types[bestID]
	confidence := bestScore
	if confidence > 1.0 {
		confidence = 1.0
	}
	return Classification{
		Type:       best.qt,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("matched %s patterns with score %.2f", bestID, bestScore),
	}
}

// specificityBonus 模式越长越特异，加成上限 0.2
func specificityBonus(pattern string) float64 {
	bonus := float64(len(pattern)) / 200.0
	if bonus > 0.2 {
		bonus = 0.2
	}
	return bonus
}
