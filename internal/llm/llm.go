package llm

import (
	"github.com/sashabaranov/go-openai"

	"github.com/ssergeev/membot/internal/config"
)

// NewClient creates an OpenAI-compatible completion client from the
// configured credentials and base URL.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
