package verdict

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/bodul/waifu100/internal/config"
)

const (
	defaultRegion = "europe-west1"
	defaultModel  = "gemini-2.5-flash"
)

// Client wraps the Google GenAI client.
type Client struct {
	client    *genai.Client
	modelName string
	logger    *zap.Logger
}

// NewClient creates a client. An API key selects the Gemini API backend;
// otherwise VertexAI is used with Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS).
func NewClient(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" && cfg.Project == "" {
		return nil, fmt.Errorf("gemini: neither api key nor project configured")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	cc := &genai.ClientConfig{
		Project:  cfg.Project,
		Location: region,
		Backend:  genai.BackendVertexAI,
	}
	if cfg.APIKey != "" {
		cc = &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{client: client, modelName: model, logger: logger}, nil
}

// Model returns the model name in use.
func (c *Client) Model() string { return c.modelName }
