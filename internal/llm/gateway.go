package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	httpclient "sql-agent-workers/internal/common/http"
)

type GatewayConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float64
}

// GatewayClient calls the GenAI gateway's generate endpoint.
type GatewayClient struct {
	config *GatewayConfig
	client *httpclient.Client
	logger Logger
}

func NewGatewayClient(config *GatewayConfig, log Logger) *GatewayClient {
	return &GatewayClient{
		config: config,
		client: httpclient.NewClient(config.Timeout, config.MaxRetries),
		logger: log,
	}
}

func (c *GatewayClient) Complete(ctx context.Context, prompt string) (string, error) {
	headers := map[string]string{}
	if c.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.config.APIKey
	}
	request := map[string]interface{}{
		"prompt":      prompt,
		"model":       c.config.Model,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
	}

	var apiResponse struct {
		Text string `json:"text"`
	}
	err := c.client.PostJSON(ctx, c.config.BaseURL+"/api/ai/generate", headers, request, &apiResponse)
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return "", ErrLLMTimeout
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMRequestFailed, err)
	}
	if strings.TrimSpace(apiResponse.Text) == "" {
		return "", ErrEmptyCompletion
	}

	c.logger.Debug("completion received", map[string]interface{}{
		"promptChars":     len(prompt),
		"completionChars": len(apiResponse.Text),
	})
	return apiResponse.Text, nil
}
