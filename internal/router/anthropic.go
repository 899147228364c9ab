package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/reviewstudio/studio/pkg/models"
)

// ── Anthropic Messages API ──────────────────────────────────

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicDriver struct {
	endpoint string
	client   *http.Client
}

func newAnthropicDriver(endpoint string, client *http.Client) *anthropicDriver {
	return &anthropicDriver{endpoint: endpoint, client: client}
}

func (d *anthropicDriver) Kind() models.ProviderKind { return models.ProviderAnthropic }

func (d *anthropicDriver) Generate(ctx context.Context, apiKey string, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(anthropicRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: req.UserPrompt}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, transportError(models.ProviderAnthropic, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, httpError(models.ProviderAnthropic, httpResp.StatusCode, respBody)
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, fmt.Errorf("anthropic: %w: decode response: %v", models.ErrProviderCall, err)
	}

	var content strings.Builder
	for _, c := range anthResp.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}
	if anthResp.StopReason == "refusal" {
		return nil, fmt.Errorf("anthropic: %w: %s", models.ErrPolicyRefusal, content.String())
	}

	return &models.GenerateResponse{
		ID:       anthResp.ID,
		Provider: models.ProviderAnthropic,
		Model:    req.Model,
		Content:  content.String(),
		Usage: models.TokenUsage{
			InputTokens:  anthResp.Usage.InputTokens,
			OutputTokens: anthResp.Usage.OutputTokens,
			TotalTokens:  anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens,
		},
	}, nil
}
