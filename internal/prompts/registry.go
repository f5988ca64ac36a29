package prompts

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry holds the prompt templates the application sends to serving
// endpoints, loaded from embedded YAML so deployments don't need prompt
// files on disk.
type Registry struct {
	prompts promptConfig
}

type promptConfig struct {
	System        string `yaml:"system_prompt"`
	Title         string `yaml:"title_prompt"`
	TitleMaxWords int    `yaml:"title_max_words"`
}

// NewRegistry creates a registry from the embedded YAML configuration.
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/prompts.yaml")
	if err != nil {
		return nil, fmt.Errorf("read prompts config: %w", err)
	}

	var cfg promptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal prompts config: %w", err)
	}

	if cfg.TitleMaxWords <= 0 {
		cfg.TitleMaxWords = 6
	}

	return &Registry{prompts: cfg}, nil
}

// SystemPrompt returns the assistant system prompt.
func (r *Registry) SystemPrompt() string {
	return strings.TrimSpace(r.prompts.System)
}

// TitlePrompt renders the title-generation prompt for a conversation excerpt.
func (r *Registry) TitlePrompt(conversation string) string {
	prompt := strings.ReplaceAll(r.prompts.Title, "{conversation}", conversation)
	return strings.TrimSpace(prompt)
}

// TitleMaxWords is the word cap applied to generated chat titles.
func (r *Registry) TitleMaxWords() int {
	return r.prompts.TitleMaxWords
}
