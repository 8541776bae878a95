// Package llm builds the OpenAI SDK client and carries the model settings
// used by the agent and the knowledge-base search.
package llm

import (
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	APIKey              string  `envconfig:"API_KEY" required:"true"`
	BaseURL             string  `split_words:"true"`
	Model               string  `split_words:"true" default:"gpt-4o-mini"`
	EmbeddingModel      string  `split_words:"true" default:"text-embedding-3-small"`
	Temperature         float64 `split_words:"true" default:"0.4"`
	MaxCompletionTokens int64   `split_words:"true" default:"1024"`
}

// NewClient creates an OpenAI SDK client.
func NewClient(cfg Config) (*openaisdk.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}

	client := openaisdk.NewClient(opts...)
	return &client, nil
}

func MustNew(cfg Config) *openaisdk.Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}
