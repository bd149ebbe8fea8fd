package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

const (
	confidenceLLM   = 0.50
	llmMaxKeywords  = 15
	llmMaxTokens    = 1024
	llmDefaultModel = "claude-3-5-haiku-latest"
)

const llmSystemPrompt = "あなたは中古品せどりのリサーチアシスタントです。" +
	"実績データから次に探すべきヤフオク検索キーワードを提案してください。" +
	"回答はJSON配列のみ、各要素はキーワード文字列1つ。説明文は不要です。"

// LLMStrategy asks a chat-completion model for keyword ideas based on the
// top performers. It is strictly best-effort: every failure path returns an
// empty list.
type LLMStrategy struct {
	client anthropic.Client
	model  string
	log    zerolog.Logger
}

// NewLLMStrategy creates the strategy. Returns nil when no API key is
// configured, and callers treat a nil strategy as disabled.
func NewLLMStrategy(apiKey, model string, log zerolog.Logger) *LLMStrategy {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = llmDefaultModel
	}
	return &LLMStrategy{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		log:    log.With().Str("component", "discovery-llm").Logger(),
	}
}

// Generate sends a performance summary and parses the returned JSON array.
func (s *LLMStrategy) Generate(ctx context.Context, analysis *Analysis) []Proposal {
	prompt := buildLLMPrompt(analysis)
	if prompt == "" {
		return nil
	}

	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: llmMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: llmSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("llm keyword request failed")
		return nil
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	keywords := parseLLMKeywords(text.String())
	proposals := make([]Proposal, 0, len(keywords))
	for _, kw := range keywords {
		proposals = append(proposals, Proposal{
			Keyword:    kw,
			Strategy:   "llm",
			Confidence: confidenceLLM,
			Reasoning:  "実績サマリーからのモデル提案",
		})
	}
	return proposals
}

func buildLLMPrompt(analysis *Analysis) string {
	if analysis == nil || analysis.TotalDeals == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "過去の実績: %d件の利益商品。\n", analysis.TotalDeals)
	if brands := analysis.ProfitableBrands(); len(brands) > 0 {
		fmt.Fprintf(&b, "利益の出たブランド: %s\n", strings.Join(brands, ", "))
	}
	if len(analysis.TypeTokens) > 0 {
		var tokens []string
		for i, ts := range analysis.TypeTokens {
			if i == 10 {
				break
			}
			tokens = append(tokens, ts.Token)
		}
		fmt.Fprintf(&b, "頻出カテゴリ語: %s\n", strings.Join(tokens, ", "))
	}
	for i, kw := range analysis.TopKeywords {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "実績キーワード: %s (スコア%.2f, %d件)\n", kw.Keyword, kw.PerformanceScore, kw.TotalDealsFound)
	}
	fmt.Fprintf(&b, "新しい検索キーワードを最大%d件、JSON配列で提案してください。", llmMaxKeywords)
	return b.String()
}

// parseLLMKeywords extracts the JSON array from the response, tolerating
// surrounding prose and markdown fences.
func parseLLMKeywords(text string) []string {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil
	}

	var keywords []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &keywords); err != nil {
		return nil
	}

	var out []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, kw)
		if len(out) == llmMaxKeywords {
			break
		}
	}
	return out
}
