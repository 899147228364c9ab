package router

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/reviewstudio/studio/pkg/models"
	"google.golang.org/genai"
)

// ── Google Gemini (genai SDK) ───────────────────────────────

type geminiDriver struct {
	baseURL string
	client  *http.Client
}

func newGeminiDriver(baseURL string, client *http.Client) *geminiDriver {
	return &geminiDriver{baseURL: baseURL, client: client}
}

func (d *geminiDriver) Kind() models.ProviderKind { return models.ProviderGemini }

func (d *geminiDriver) ReadsDocuments() bool { return true }

func (d *geminiDriver) Generate(ctx context.Context, apiKey string, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: d.client,
	}
	if d.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: d.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	parts := []*genai.Part{genai.NewPartFromText(req.UserPrompt)}
	if a := req.Attachment; a != nil {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}
	resp, err := client.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, cfg)
	if err != nil {
		if isPolicyText(err.Error()) {
			return nil, fmt.Errorf("gemini: %w: %v", models.ErrPolicyRefusal, err)
		}
		return nil, transportError(models.ProviderGemini, err)
	}
	if err := geminiRefusal(resp); err != nil {
		return nil, err
	}

	out := &models.GenerateResponse{
		ID:       uuid.New().String(),
		Provider: models.ProviderGemini,
		Model:    req.Model,
		Content:  resp.Text(),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = models.TokenUsage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
			TotalTokens:  int64(u.TotalTokenCount),
		}
	}
	return out, nil
}

// geminiRefusal reports a blocked prompt or a candidate stopped for safety.
func geminiRefusal(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return fmt.Errorf("gemini: %w: empty response", models.ErrProviderCall)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return fmt.Errorf("gemini: %w: prompt blocked (%s)", models.ErrPolicyRefusal, fb.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return fmt.Errorf("gemini: %w: response stopped for safety", models.ErrPolicyRefusal)
	}
	return nil
}
