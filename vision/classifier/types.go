package classifier

import (
	"github.com/framesense/framesense/vision"
)

// 内置问题类型 ID
const (
	TypeReadText      = "READ_TEXT"
	TypeDescribeScene = "DESCRIBE_SCENE"
	TypeIdentifyFaces = "IDENTIFY_FACES"
	TypeQuickAnswer   = "QUICK_ANSWER"
	TypeExplainTopic  = "EXPLAIN_TOPIC"
	TypeTranslateText = "TRANSLATE_TEXT"
)

// 能力标签
const (
	CapOCR       = "ocr"
	CapVision    = "vision"
	CapFace      = "face_detection"
	CapReasoning = "reasoning"
	CapTranslate = "translation"
)

// DefaultQuestionTypes 返回内置问题类型表
// 每类 3 个模式：一个宽泛关键词模式加具体问句形态，常见问法能命中
// 其中两个以越过 0.5 的分类阈值；成本与默认服务对应服务策略表
func DefaultQuestionTypes() []vision.QuestionType {
	return []vision.QuestionType{
		{
			ID:                TypeReadText,
			CapabilityTags:    []string{CapOCR},
			MinimumTier:       vision.TierFree,
			EstimatedCost:     0.0,
			DefaultServiceID:  "OCR_RESULTS",
			FallbackServiceID: "VISION_ANALYSIS",
			Patterns: []string{
				`\b(say|says|read|text|words|written|transcribe|ocr)\b`,
				`what does (it|this|that) say`,
				`read (the |this |that )?(text|words|sign|label)`,
			},
		},
		{
			ID:                TypeDescribeScene,
			CapabilityTags:    []string{CapVision},
			MinimumTier:       vision.TierFree,
			EstimatedCost:     0.0,
			DefaultServiceID:  "VISION_ANALYSIS",
			FallbackServiceID: "LLM_VISION",
			Patterns: []string{
				`\b(describe|scene|looking at|see)\b`,
				`what (is|do you see|am i looking at)`,
				`what('s| is) (in|on) (the|this) (image|picture|screen|photo)`,
			},
		},
		{
			ID:                TypeIdentifyFaces,
			CapabilityTags:    []string{CapFace},
			MinimumTier:       vision.TierPro,
			EstimatedCost:     0.01,
			DefaultServiceID:  "FACE_DETECTION",
			FallbackServiceID: "VISION_ANALYSIS",
			Patterns: []string{
				`\b(face|faces|person|people)\b`,
				`who (is|are) (this|that|these|the)`,
				`how many (people|faces)`,
			},
		},
		{
			ID:                TypeQuickAnswer,
			CapabilityTags:    []string{CapVision},
			MinimumTier:       vision.TierFree,
			EstimatedCost:     0.0,
			DefaultServiceID:  "QUICK_ANSWERS",
			FallbackServiceID: "VISION_ANALYSIS",
			Patterns: []string{
				`\b(colou?r|count|number)\b`,
				`how many`,
				`is there (a|an|any)`,
			},
		},
		{
			ID:                TypeExplainTopic,
			CapabilityTags:    []string{CapVision, CapReasoning},
			MinimumTier:       vision.TierPremium,
			EstimatedCost:     0.04,
			DefaultServiceID:  "LLM_VISION",
			FallbackServiceID: "VISION_ANALYSIS",
			Patterns: []string{
				`\b(explain|analyze|analyse|summari[sz]e|understand)\b`,
				`why (does|is|do|are)`,
				`how does (this|it|that) work`,
			},
		},
		{
			ID:                TypeTranslateText,
			CapabilityTags:    []string{CapOCR, CapTranslate},
			MinimumTier:       vision.TierPro,
			EstimatedCost:     0.02,
			DefaultServiceID:  "LLM_VISION",
			FallbackServiceID: "OCR_RESULTS",
			Patterns: []string{
				`\btranslat(e|ion)\b`,
				`what does (this|it) mean in`,
				`in (english|chinese|spanish|french|japanese|german)`,
			},
		},
	}
}
