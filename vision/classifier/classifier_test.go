package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🧪 Classifier 测试
// =============================================================================

func TestClassifier_Classify(t *testing.T) {
	c := New()

	tests := []struct {
		name     string
		question string
		wantType string
	}{
		{"ocr question", "What does it say?", TypeReadText},
		{"describe question", "Describe what is in this image", TypeDescribeScene},
		{"face question", "Who is this person?", TypeIdentifyFaces},
		{"counting question", "How many items? Please count them", TypeQuickAnswer},
		{"reasoning question", "Why is this happening? Please explain", TypeExplainTopic},
		{"translation question", "Translate this, what does it mean in English?", TypeTranslateText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.question)
			assert.Equal(t, tt.wantType, result.Type.ID)
			assert.GreaterOrEqual(t, result.Confidence, 0.5)
			assert.NotEmpty(t, result.Reasoning)
		})
	}
}

func TestClassifier_FallbackToDefault(t *testing.T) {
	c := New()

	for _, question := range []string{"hello there", "", "zzz qqq"} {
		result := c.Classify(question)
		assert.Equal(t, TypeDescribeScene, result.Type.ID, question)
		assert.Equal(t, 0.3, result.Confidence, question)
		assert.Contains(t, result.Reasoning, "no clear pattern match")
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := New()

	first := c.Classify("What does the sign say? Read the text please")
	for i := 0; i < 10; i++ {
		again := c.Classify("What does the sign say? Read the text please")
		assert.Equal(t, first, again)
	}
}

func TestClassifier_CaseInsensitive(t *testing.T) {
	c := New()

	lower := c.Classify("what does it say?")
	upper := c.Classify("WHAT DOES IT SAY?")
	assert.Equal(t, lower.Type.ID, upper.Type.ID)
}

func TestClassifier_Register(t *testing.T) {
	c := New()

	custom := vision.QuestionType{
		ID:               "CHART_ANALYSIS",
		CapabilityTags:   []string{CapVision, CapReasoning},
		MinimumTier:      vision.TierPro,
		DefaultServiceID: "LLM_VISION",
		Patterns: []string{
			`\b(chart|graph|plot|axis)\b`,
			`what (is|does) (the|this) (chart|graph)`,
		},
	}
	require.NoError(t, c.Register(custom))

	result := c.Classify("What does this chart show? The graph axis is unlabeled")
	assert.Equal(t, "CHART_ANALYSIS", result.Type.ID)
}

func TestClassifier_RegisterDuplicate(t *testing.T) {
	c := New()

	err := c.Register(vision.QuestionType{ID: TypeReadText})
	assert.ErrorIs(t, err, vision.ErrDuplicateTypeID)
}

func TestClassifier_RegisterBadPattern(t *testing.T) {
	c := New()

	err := c.Register(vision.QuestionType{
		ID:       "BROKEN",
		Patterns: []string{`[unclosed`},
	})
	assert.Error(t, err)

	// 编译失败的类型不应进入注册表
	_, ok := c.Lookup("BROKEN")
	assert.False(t, ok)
}

func TestClassifier_Lookup(t *testing.T) {
	c := New()

	qt, ok := c.Lookup(TypeExplainTopic)
	require.True(t, ok)
	assert.Equal(t, vision.TierPremium, qt.MinimumTier)
	assert.Contains(t, qt.CapabilityTags, CapReasoning)

	_, ok = c.Lookup("NOPE")
	assert.False(t, ok)
}
