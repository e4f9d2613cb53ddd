package optimizer

// =============================================================================
// 🗺️ 替代路由表
// =============================================================================

// serviceSpeeds 每服务的静态速度常量（0-1，越高越快）
var serviceSpeeds = map[string]float64{
	"OCR_RESULTS":     0.9,
	"QUICK_ANSWERS":   0.9,
	"VISION_ANALYSIS": 0.7,
	"FACE_DETECTION":  0.8,
	"LLM_VISION":      0.4,
}

func defaultServiceSpeed(serviceID string) float64 {
	if s, ok := serviceSpeeds[serviceID]; ok {
		return s
	}
	return 0.5
}

// modelPromptRates LLM 模型的提示词千 token 单价（美元）
// 路由表里的 EstimatedCost 只含图像基价，提示词部分按实际问题折算
var modelPromptRates = map[string]float64{
	"gpt-4o":        0.0025,
	"gpt-4o-mini":   0.00015,
	"claude-sonnet": 0.003,
}

// DefaultRoutes 返回按问题类型组织的内置替代路由表
// 同一问题往往有多条能力足够的路径，价格与质量各异
func DefaultRoutes() map[string][]AlternativeRoute {
	return map[string][]AlternativeRoute{
		"READ_TEXT": {
			{ServiceID: "OCR_RESULTS", ModelID: "local-ocr", EstimatedCost: 0.0, Quality: 0.6, Speed: 0.9},
			{ServiceID: "VISION_ANALYSIS", ModelID: "vision-api-basic", EstimatedCost: 0.0, Quality: 0.65, Speed: 0.7},
			{ServiceID: "LLM_VISION", ModelID: "gpt-4o", EstimatedCost: 0.04, Quality: 0.92, Speed: 0.4},
		},
		"DESCRIBE_SCENE": {
			{ServiceID: "VISION_ANALYSIS", ModelID: "vision-api-basic", EstimatedCost: 0.0, Quality: 0.65, Speed: 0.7},
			{ServiceID: "LLM_VISION", ModelID: "gpt-4o-mini", EstimatedCost: 0.002, Quality: 0.72, Speed: 0.5},
			{ServiceID: "LLM_VISION", ModelID: "gpt-4o", EstimatedCost: 0.04, Quality: 0.92, Speed: 0.4},
		},
		"QUICK_ANSWER": {
			{ServiceID: "QUICK_ANSWERS", ModelID: "vision-api-basic", EstimatedCost: 0.0, Quality: 0.65, Speed: 0.9},
			{ServiceID: "LLM_VISION", ModelID: "gpt-4o-mini", EstimatedCost: 0.002, Quality: 0.72, Speed: 0.5},
		},
		"IDENTIFY_FACES": {
			{ServiceID: "FACE_DETECTION", ModelID: "face-detect-api", EstimatedCost: 0.01, Quality: 0.8, Speed: 0.8},
			{ServiceID: "VISION_ANALYSIS", ModelID: "vision-api-basic", EstimatedCost: 0.0, Quality: 0.5, Speed: 0.7},
		},
		"EXPLAIN_TOPIC": {
			{ServiceID: "LLM_VISION", ModelID: "claude-sonnet", EstimatedCost: 0.02, Quality: 0.88, Speed: 0.4},
			{ServiceID: "LLM_VISION", ModelID: "gpt-4o", EstimatedCost: 0.04, Quality: 0.92, Speed: 0.4},
		},
		"TRANSLATE_TEXT": {
			{ServiceID: "LLM_VISION", ModelID: "claude-sonnet", EstimatedCost: 0.02, Quality: 0.88, Speed: 0.4},
			{ServiceID: "OCR_RESULTS", ModelID: "local-ocr", EstimatedCost: 0.0, Quality: 0.4, Speed: 0.9},
		},
	}
}
