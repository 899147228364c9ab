// Package extract reads PDF submissions: page-range selection, trimming,
// plain-text extraction and an embeddable preview.
//
// Text comes from github.com/ledongthuc/pdf; trimming rewrites the document
// with pdfcpu's page collection so that ranges may repeat or reorder pages.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/pkg/models"
)

// DefaultPreviewHeight is the iframe height in pixels when none is given.
const DefaultPreviewHeight = 520

// PageRange is an inclusive, 1-based span of pages.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r PageRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParsePageRanges reads "1-5, 10, 12-14". Reversed spans are swapped.
// A blank string yields no ranges.
func ParsePageRanges(s string) ([]PageRange, error) {
	var out []PageRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isSpan := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid page range %q", models.ErrExtraction, part)
		}
		b := a
		if isSpan {
			if b, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("%w: invalid page range %q", models.ErrExtraction, part)
			}
		}
		if a > b {
			a, b = b, a
		}
		out = append(out, PageRange{Start: a, End: b})
	}
	return out, nil
}

// ClampRanges bounds every range to [1, pageCount] and drops ranges that end
// up empty.
func ClampRanges(ranges []PageRange, pageCount int) []PageRange {
	out := make([]PageRange, 0, len(ranges))
	for _, r := range ranges {
		r.Start = max(1, r.Start)
		r.End = min(pageCount, r.End)
		if r.Start <= r.End {
			out = append(out, r)
		}
	}
	return out
}

// Pages expands ranges into a page list, keeping order and repeats.
func Pages(ranges []PageRange) []int {
	var pages []int
	for _, r := range ranges {
		for p := r.Start; p <= r.End; p++ {
			pages = append(pages, p)
		}
	}
	return pages
}

// Extractor implements the document operations.
type Extractor struct {
	conf *model.Configuration
}

// New creates an extractor with pdfcpu's default configuration.
func New() *Extractor {
	return &Extractor{conf: model.NewDefaultConfiguration()}
}

func open(doc []byte) (*pdf.Reader, error) {
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: empty document", models.ErrExtraction)
	}
	r, err := pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf: %v", models.ErrExtraction, err)
	}
	return r, nil
}

// PageCount returns the number of pages in doc.
func (e *Extractor) PageCount(doc []byte) (int, error) {
	r, err := open(doc)
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

// ExtractText returns the plain text of the selected pages joined by blank
// lines. No ranges selects every page.
func (e *Extractor) ExtractText(ctx context.Context, doc []byte, ranges []PageRange) (text string, err error) {
	r, err := open(doc)
	if err != nil {
		return "", err
	}
	n := r.NumPage()
	pages := Pages(ClampRanges(ranges, n))
	if len(ranges) == 0 {
		pages = Pages([]PageRange{{Start: 1, End: n}})
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("%w: no pages selected out of %d", models.ErrExtraction, n)
	}

	// The reader panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: %v", models.ErrExtraction, rec)
		}
	}()

	chunks := make([]string, 0, len(pages))
	for _, i := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			chunks = append(chunks, "")
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Page text extraction failed")
			t = ""
		}
		chunks = append(chunks, t)
	}
	return strings.TrimSpace(strings.Join(chunks, "\n\n")), nil
}

// Trim writes a new document containing the selected pages in range order.
// Ranges are clamped to the document; selecting nothing is an error.
func (e *Extractor) Trim(doc []byte, ranges []PageRange) ([]byte, error) {
	n, err := e.PageCount(doc)
	if err != nil {
		return nil, err
	}
	pages := Pages(ClampRanges(ranges, n))
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages selected out of %d", models.ErrExtraction, n)
	}

	selected := make([]string, len(pages))
	for i, p := range pages {
		selected[i] = strconv.Itoa(p)
	}

	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(doc), &out, selected, e.conf); err != nil {
		return nil, fmt.Errorf("%w: trim: %v", models.ErrExtraction, err)
	}
	log.Debug().Int("pages_in", n).Int("pages_out", len(pages)).Msg("✂️ Document trimmed")
	return out.Bytes(), nil
}

// RenderPreview returns an iframe embedding doc as a data URI.
func (e *Extractor) RenderPreview(doc []byte, height int) string {
	if height <= 0 {
		height = DefaultPreviewHeight
	}
	return fmt.Sprintf(
		`<iframe src="data:application/pdf;base64,%s" width="100%%" height="%d" style="border: 1px solid #ddd; border-radius: 14px; background: white;" type="application/pdf"></iframe>`,
		base64.StdEncoding.EncodeToString(doc), height)
}
