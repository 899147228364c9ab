package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/reviewstudio/studio/pkg/models"
)

// ── OpenAI-compatible chat completions (OpenAI, xAI) ────────

// chatMessage content is a string, or a []contentPart when a file rides along.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	File *filePart `json:"file,omitempty"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

type openAIDriver struct {
	kind     models.ProviderKind
	endpoint string
	client   *http.Client
}

func newOpenAIDriver(kind models.ProviderKind, endpoint string, client *http.Client) *openAIDriver {
	return &openAIDriver{kind: kind, endpoint: endpoint, client: client}
}

func (d *openAIDriver) Kind() models.ProviderKind { return d.kind }

// ReadsDocuments is true for OpenAI only; xAI's chat endpoint takes no files.
func (d *openAIDriver) ReadsDocuments() bool { return d.kind == models.ProviderOpenAI }

func (d *openAIDriver) Generate(ctx context.Context, apiKey string, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userContent(req)})

	body, err := json.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", d.kind, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", d.kind, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, transportError(d.kind, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, httpError(d.kind, httpResp.StatusCode, respBody)
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("%s: %w: decode response: %v", d.kind, models.ErrProviderCall, err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w: empty choices", d.kind, models.ErrProviderCall)
	}

	choice := oaiResp.Choices[0]
	if choice.FinishReason == "content_filter" || (choice.Message.Refusal != "" && choice.Message.Content == "") {
		return nil, fmt.Errorf("%s: %w: %s", d.kind, models.ErrPolicyRefusal, choice.Message.Refusal)
	}

	id := oaiResp.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &models.GenerateResponse{
		ID:       id,
		Provider: d.kind,
		Model:    req.Model,
		Content:  choice.Message.Content,
		Usage: models.TokenUsage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:  oaiResp.Usage.TotalTokens,
		},
	}, nil
}

func userContent(req *models.GenerateRequest) any {
	a := req.Attachment
	if a == nil {
		return req.UserPrompt
	}
	return []contentPart{
		{Type: "text", Text: req.UserPrompt},
		{Type: "file", File: &filePart{
			Filename: a.Name,
			FileData: "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data),
		}},
	}
}
