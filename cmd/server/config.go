package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tom-schwarz/APv3-frontend/internal/handlers"
	"github.com/tom-schwarz/APv3-frontend/internal/services"
	"gopkg.in/yaml.v3"
)

type titleGenConfig interface {
	titleGen(systemPrompt string, logger *slog.Logger) (handlers.TitleGenerator, error)
}

// BaseLLMConfig contains the common fields for all title generator configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port string `yaml:"port"`

	ChatAPIURL        string `yaml:"chatApiUrl"`
	DiffChatAPIURL    string `yaml:"diffChatApiUrl"`
	DocumentsAPIURL   string `yaml:"documentsApiUrl"`
	DocumentServerURL string `yaml:"documentServerUrl"`

	TitleGeneratorPrompt string         `yaml:"titleGeneratorPrompt"`
	TitleGenerator       titleGenConfig `yaml:"titleGenerator"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openaiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port                 string         `yaml:"port"`
		ChatAPIURL           string         `yaml:"chatApiUrl"`
		DiffChatAPIURL       string         `yaml:"diffChatApiUrl"`
		DocumentsAPIURL      string         `yaml:"documentsApiUrl"`
		DocumentServerURL    string         `yaml:"documentServerUrl"`
		TitleGeneratorPrompt string         `yaml:"titleGeneratorPrompt"`
		TitleGenerator       map[string]any `yaml:"titleGenerator"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.ChatAPIURL = rawConfig.ChatAPIURL
	c.DiffChatAPIURL = rawConfig.DiffChatAPIURL
	c.DocumentsAPIURL = rawConfig.DocumentsAPIURL
	c.DocumentServerURL = rawConfig.DocumentServerURL
	c.TitleGeneratorPrompt = rawConfig.TitleGeneratorPrompt

	// The title generator is optional; chats simply keep their default title without one.
	if len(rawConfig.TitleGenerator) == 0 {
		return nil
	}

	provider, ok := rawConfig.TitleGenerator["provider"].(string)
	if !ok {
		return fmt.Errorf("titleGenerator provider is required")
	}

	rawYAML, err := yaml.Marshal(rawConfig.TitleGenerator)
	if err != nil {
		return err
	}

	var tg titleGenConfig
	switch provider {
	case "ollama":
		tg = &ollamaConfig{}
	case "openai":
		tg = &openaiConfig{}
	default:
		return fmt.Errorf("unknown titleGenerator provider: %s", provider)
	}

	if err := yaml.Unmarshal(rawYAML, tg); err != nil {
		return err
	}

	c.TitleGenerator = tg

	return nil
}

func (c config) validate() error {
	if c.ChatAPIURL == "" {
		return fmt.Errorf("chatApiUrl is required")
	}
	if c.DiffChatAPIURL == "" {
		return fmt.Errorf("diffChatApiUrl is required")
	}
	if c.DocumentsAPIURL == "" {
		return fmt.Errorf("documentsApiUrl is required")
	}
	if c.DocumentServerURL == "" {
		return fmt.Errorf("documentServerUrl is required")
	}
	return nil
}

func (o ollamaConfig) titleGen(systemPrompt string, _ *slog.Logger) (handlers.TitleGenerator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, systemPrompt), nil
}

func (o openaiConfig) titleGen(systemPrompt string, logger *slog.Logger) (handlers.TitleGenerator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.Model, systemPrompt, logger), nil
}
