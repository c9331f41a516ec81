package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkpulse/parkpulse/internal/model"
)

func TestParseAIResult(t *testing.T) {
	tier, conf, rationale, err := parseAIResult(`{"tier": 1, "confidence": 0.9, "rationale": "headline coaster"}`)
	require.NoError(t, err)
	assert.Equal(t, model.Tier1, tier)
	assert.Equal(t, 0.9, conf)
	assert.Equal(t, "headline coaster", rationale)
}

func TestParseAIResult_CodeFences(t *testing.T) {
	tier, conf, _, err := parseAIResult("```json\n{\"tier\": 3, \"confidence\": 0.6, \"rationale\": \"small flat ride\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, model.Tier3, tier)
	assert.Equal(t, 0.6, conf)
}

func TestParseAIResult_Invalid(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "the attraction is probably tier 1"},
		{"tier out of range", `{"tier": 5, "confidence": 0.9}`},
		{"tier zero", `{"confidence": 0.9}`},
		{"confidence out of range", `{"tier": 2, "confidence": 1.4}`},
		{"negative confidence", `{"tier": 2, "confidence": -0.1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := parseAIResult(tt.text)
			assert.Error(t, err)
		})
	}
}
