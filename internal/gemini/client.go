package gemini

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"foodphotographer/internal/config"
)

// modelsAPI is the subset of genai.Models the client calls.
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Client talks to the Gemini API for menu extraction, photo generation and photo edits.
type Client struct {
	models     modelsAPI
	textModel  string
	imageModel string
	editModel  string
	timeout    time.Duration
	log        *zap.Logger
}

func New(ctx context.Context, cfg config.GeminiConfig, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, config.ErrMissingAPIKey
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout + 10*time.Second},
	})
	if err != nil {
		return nil, err
	}
	return newClient(gc.Models, cfg, log)
}

func newClient(models modelsAPI, cfg config.GeminiConfig, log *zap.Logger) (*Client, error) {
	if models == nil {
		return nil, errors.New("gemini models api is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		models:     models,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		editModel:  cfg.EditModel,
		timeout:    timeout,
		log:        log.Named("gemini"),
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
