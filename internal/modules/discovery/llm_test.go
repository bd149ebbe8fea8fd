package discovery

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
)

func TestNewLLMStrategy_DisabledWithoutKey(t *testing.T) {
	assert.Nil(t, NewLLMStrategy("", "", zerolog.Nop()))
	assert.NotNil(t, NewLLMStrategy("sk-test", "", zerolog.Nop()))
}

func TestParseLLMKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "plain array",
			text: `["sony wh-1000xm4", "makita td173d"]`,
			want: []string{"sony wh-1000xm4", "makita td173d"},
		},
		{
			name: "fenced with prose",
			text: "以下を提案します。\n```json\n[\"dyson v8\", \" gopro hero12 \"]\n```\nご確認ください。",
			want: []string{"dyson v8", "gopro hero12"},
		},
		{
			name: "no array",
			text: "キーワードを思いつきませんでした。",
			want: nil,
		},
		{
			name: "malformed json",
			text: `["unterminated`,
			want: nil,
		},
		{
			name: "blank entries dropped",
			text: `["", "  ", "nikon z6"]`,
			want: []string{"nikon z6"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLLMKeywords(tt.text))
		})
	}
}

func TestBuildLLMPrompt(t *testing.T) {
	assert.Empty(t, buildLLMPrompt(nil))
	assert.Empty(t, buildLLMPrompt(&Analysis{}))

	analysis := testAnalysis()
	analysis.TopKeywords = []*domain.WatchedKeyword{
		{Keyword: "sony headphones", PerformanceScore: 0.68, TotalDealsFound: 4},
	}
	prompt := buildLLMPrompt(analysis)
	assert.Contains(t, prompt, "12件")
	assert.Contains(t, prompt, "sony")
	assert.Contains(t, prompt, "sony headphones")
	assert.Contains(t, prompt, "JSON配列")
}
