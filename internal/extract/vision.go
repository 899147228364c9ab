package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/reviewstudio/studio/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	visionSystemPrompt = "You are an OCR engine for regulatory PDFs. Preserve tables when possible. Output plain text (no markdown)."
	visionUserPrompt   = "Extract all readable text from this page. Preserve tables and headings."

	// DefaultVisionMaxTokens bounds the transcription of a single page.
	DefaultVisionMaxTokens = 12000

	visionConcurrency = 4
)

// Generator sends one generation request.
type Generator interface {
	Generate(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)
}

// VisionOptions picks the model that reads the pages.
type VisionOptions struct {
	Provider    models.ProviderKind
	Model       string
	MaxTokens   int
	Credentials map[models.ProviderKind]string
}

// VisionOCR transcribes scanned pages by handing each one, as a single-page
// PDF, to a model that reads documents.
type VisionOCR struct {
	gen Generator
	ex  *Extractor
}

// NewVisionOCR creates a transcriber. ex is used to split the document.
func NewVisionOCR(gen Generator, ex *Extractor) *VisionOCR {
	if ex == nil {
		ex = New()
	}
	return &VisionOCR{gen: gen, ex: ex}
}

// Transcribe returns the text of the selected pages, each under a
// "--- PAGE n ---" marker where n counts the selection from 1. No ranges
// selects every page. Any failed page fails the whole transcription.
func (v *VisionOCR) Transcribe(ctx context.Context, doc []byte, ranges []PageRange, opts VisionOptions) (string, error) {
	n, err := v.ex.PageCount(doc)
	if err != nil {
		return "", err
	}
	if len(ranges) == 0 {
		ranges = []PageRange{{Start: 1, End: n}}
	}
	pages := Pages(ClampRanges(ranges, n))
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: no pages selected out of %d", models.ErrExtraction, n)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultVisionMaxTokens
	}

	// pdfcpu writes to its configuration while collecting, so the split stays
	// sequential and only the model calls fan out.
	singles := make([][]byte, len(pages))
	for i, p := range pages {
		if singles[i], err = v.ex.Trim(doc, []PageRange{{Start: p, End: p}}); err != nil {
			return "", err
		}
	}

	texts := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(visionConcurrency)
	for i, p := range pages {
		g.Go(func() error {
			resp, err := v.gen.Generate(gctx, &models.GenerateRequest{
				Provider:           opts.Provider,
				Model:              opts.Model,
				SystemPrompt:       visionSystemPrompt,
				UserPrompt:         visionUserPrompt,
				MaxTokens:          opts.MaxTokens,
				SessionCredentials: opts.Credentials,
				Attachment: &models.Attachment{
					Name:     fmt.Sprintf("page-%d.pdf", p),
					MIMEType: "application/pdf",
					Data:     singles[i],
				},
			})
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			texts[i] = strings.TrimSpace(resp.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&b, "--- PAGE %d ---\n%s\n\n", i+1, t)
	}
	log.Info().
		Str("provider", string(opts.Provider)).
		Str("model", opts.Model).
		Int("pages", len(pages)).
		Msg("👁️ Vision OCR complete")
	return strings.TrimSpace(b.String()), nil
}
