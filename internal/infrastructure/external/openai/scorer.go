package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

// Config selects the model used for IA-assisted scoring
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration // Per-request deadline, zero means the caller's context only
}

// Scorer implements port.SectionScorer using the chat completions API
type Scorer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	prompts *PromptConfig
	logger  *zap.Logger
}

// scoreResponse is the JSON object the model is asked to return
type scoreResponse struct {
	Score          float64  `json:"score"`
	Result         string   `json:"result"`
	CriticalErrors []string `json:"critical_errors"`
	Warnings       []string `json:"warnings"`
	Reasoning      string   `json:"reasoning"`
}

// NewScorer creates a new OpenAI section scorer
func NewScorer(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Scorer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Scorer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		prompts: prompts,
		logger:  logger,
	}
}

// ScoreSection asks the model to grade the evidence summary of one section
func (s *Scorer) ScoreSection(ctx context.Context, req *port.SectionScoreRequest) (*port.SectionScoreResult, error) {
	s.logger.Debug("Scoring section",
		zap.String("audit_code", req.AuditCode),
		zap.String("section_id", string(req.SectionID)))

	p := &s.prompts.SectionScoring
	prompt, err := p.RenderUser(req)
	if err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: p.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		s.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var result scoreResponse
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Fallback: the model wrapped the object in prose or a code fence
		jsonStr := extractJSON(content)
		if jsonStr == "" || json.Unmarshal([]byte(jsonStr), &result) != nil {
			s.logger.Error("Failed to parse OpenAI response",
				zap.Error(err),
				zap.String("content", content))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	out := &port.SectionScoreResult{
		Score:          result.Score,
		Result:         resultFor(result),
		CriticalErrors: result.CriticalErrors,
		Warnings:       result.Warnings,
		Reasoning:      result.Reasoning,
	}

	s.logger.Info("Section scoring completed",
		zap.String("audit_code", req.AuditCode),
		zap.String("section_id", string(req.SectionID)),
		zap.Float64("score", out.Score),
		zap.String("result", string(out.Result)))

	return out, nil
}

// resultFor trusts the model's verdict when it names a known result and
// otherwise derives one from the findings it listed
func resultFor(r scoreResponse) entity.ValidationResult {
	if v := entity.ValidationResult(strings.ToLower(strings.TrimSpace(r.Result))); v.IsValid() {
		return v
	}
	switch {
	case len(r.CriticalErrors) > 0:
		return entity.ValidationFailed
	case len(r.Warnings) > 0:
		return entity.ValidationWithWarnings
	default:
		return entity.ValidationSuccess
	}
}

// extractJSON extracts the first balanced JSON object from content
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// findJSONEnd finds the end of JSON content starting at a given position
func findJSONEnd(content string, start int) int {
	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if char == '\\' {
			escapeNext = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}

// Verify interface compliance
var _ port.SectionScorer = (*Scorer)(nil)
