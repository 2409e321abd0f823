package analysis

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

type promptTemplate struct {
	BasePrompt string `yaml:"base_prompt"`
}

// PromptManager holds the analysis prompt loaded from the embedded
// template file.
type PromptManager struct {
	base string
}

func NewPromptManager() (*PromptManager, error) {
	data, err := templateFS.ReadFile("templates/analyze.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis template: %w", err)
	}

	var tmpl promptTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse analysis template: %w", err)
	}
	if strings.TrimSpace(tmpl.BasePrompt) == "" {
		return nil, fmt.Errorf("analysis template has no base_prompt")
	}

	return &PromptManager{base: tmpl.BasePrompt}, nil
}

// BuildPrompt substitutes the formatted diagram description into the
// template.
func (pm *PromptManager) BuildPrompt(diagram string) string {
	return strings.ReplaceAll(pm.base, "{{.Diagram}}", diagram)
}
