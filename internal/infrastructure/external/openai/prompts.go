package openai

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/site-audit/internal/application/port"
)

// SectionPrompt is the chat setup for grading one section.
type SectionPrompt struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`

	user *template.Template
}

// PromptConfig is the decoded prompts file.
type PromptConfig struct {
	SectionScoring SectionPrompt `yaml:"section_scoring"`
}

// LoadPrompts reads and compiles the prompts file at path.
func LoadPrompts(path string) (*PromptConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts decodes YAML prompts and compiles the user template.
func ParsePrompts(data []byte) (*PromptConfig, error) {
	var cfg PromptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	sp := &cfg.SectionScoring
	if strings.TrimSpace(sp.UserTemplate) == "" {
		return nil, fmt.Errorf("prompts: section_scoring.user_template is required")
	}
	tmpl, err := template.New("section_scoring").Option("missingkey=error").Parse(sp.UserTemplate)
	if err != nil {
		return nil, fmt.Errorf("prompts: invalid user_template: %w", err)
	}
	sp.user = tmpl
	return &cfg, nil
}

// RenderUser fills the user template with the section request.
func (p *SectionPrompt) RenderUser(req *port.SectionScoreRequest) (string, error) {
	if p.user == nil {
		return "", fmt.Errorf("prompts: section_scoring template not compiled")
	}
	var sb strings.Builder
	if err := p.user.Execute(&sb, req); err != nil {
		return "", fmt.Errorf("failed to render section prompt: %w", err)
	}
	return sb.String(), nil
}
