package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/reviewstudio/studio/internal/extract"
	"github.com/reviewstudio/studio/pkg/models"
)

type documentView struct {
	Name     string `json:"name"`
	Bytes    int    `json:"bytes"`
	Pages    int    `json:"pages"`
	Trimmed  bool   `json:"trimmed"`
	RawChars int    `json:"raw_chars"`
	OCRChars int    `json:"ocr_chars"`
}

// UploadDocument handles POST /api/v1/sessions/{sessionID}/document.
// The PDF is either a multipart "file" field or the raw request body
// (name from ?name=).
func (h *Handlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}

	name, data, err := h.readDocument(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty document")
		return
	}

	pages, err := h.Extractor.PageCount(data)
	if err != nil {
		respondErr(w, err)
		return
	}

	sess.Lock()
	defer sess.Unlock()
	sess.SetDocument(name, data)

	log.Info().Str("session", sess.ID).Str("document", name).Int("pages", pages).Msg("📄 Document uploaded")
	respondJSON(w, http.StatusCreated, documentView{Name: name, Bytes: len(data), Pages: pages,
		RawChars: len(sess.RawText), OCRChars: len(sess.OCRText)})
}

func (h *Handlers) readDocument(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	body := http.MaxBytesReader(w, r.Body, h.MaxDocumentBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = body
		file, hdr, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		return filepath.Base(hdr.Filename), data, nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "document.pdf"
	}
	return filepath.Base(name), data, nil
}

// GetDocument handles GET /api/v1/sessions/{sessionID}/document and returns
// the working PDF (trimmed when a trim was made).
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	doc, name := sess.WorkingDocument(), sess.DocumentName
	sess.Unlock()
	if len(doc) == 0 {
		respondError(w, http.StatusNotFound, "no document loaded")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// PreviewDocument handles GET /api/v1/sessions/{sessionID}/document/preview?height=N.
func (h *Handlers) PreviewDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	sess.Lock()
	doc := sess.WorkingDocument()
	sess.Unlock()
	if len(doc) == 0 {
		respondError(w, http.StatusNotFound, "no document loaded")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, h.Extractor.RenderPreview(doc, queryInt(r, "height", extract.DefaultPreviewHeight)))
}

// OCR engines for the document text.
const (
	engineText   = "text"
	engineVision = "vision"
)

type pagesRequest struct {
	// Pages is a range list such as "1-5, 10, 12-14". Blank means every page.
	Pages string `json:"pages"`
	// Engine fills the OCR text: "text" (default) copies the text layer,
	// "vision" has a document-capable model read each page. ?engine= also works.
	Engine   string              `json:"engine"`
	Provider models.ProviderKind `json:"provider"`
	Model    string              `json:"model"`
}

type extractionView struct {
	documentView
	Ranges []extract.PageRange `json:"ranges"`
	Engine string              `json:"engine"`
}

// ocrEngine normalizes the requested engine and fills the vision defaults.
func (h *Handlers) ocrEngine(r *http.Request, req *pagesRequest) error {
	engine := strings.ToLower(strings.TrimSpace(req.Engine))
	if engine == "" {
		engine = strings.ToLower(strings.TrimSpace(r.URL.Query().Get("engine")))
	}
	switch engine {
	case "", engineText:
		req.Engine = engineText
		return nil
	case engineVision:
		req.Engine = engineVision
	default:
		return fmt.Errorf("%w: unknown OCR engine %q", models.ErrConfigValidation, engine)
	}

	if req.Provider == "" {
		req.Provider = models.ProviderOpenAI
	}
	if !req.Provider.Valid() {
		return fmt.Errorf("%w: unknown provider %q", models.ErrConfigValidation, req.Provider)
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = h.Catalog.DefaultModel(req.Provider)
	}
	return nil
}

// TrimDocument handles POST /api/v1/sessions/{sessionID}/document/trim. The
// selected pages of the uploaded PDF become the working document and their
// text populates both the raw and the OCR text.
func (h *Handlers) TrimDocument(w http.ResponseWriter, r *http.Request) {
	h.extractPages(w, r, true)
}

// ExtractDocument handles POST /api/v1/sessions/{sessionID}/document/extract.
// Text of the selected pages of the working document fills the raw and the
// OCR text; the document is left as is. With the vision engine the OCR text
// is a model's page-by-page transcription instead.
func (h *Handlers) ExtractDocument(w http.ResponseWriter, r *http.Request) {
	h.extractPages(w, r, false)
}

func (h *Handlers) extractPages(w http.ResponseWriter, r *http.Request, trim bool) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req pagesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ranges, err := extract.ParsePageRanges(req.Pages)
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := h.ocrEngine(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.Engine == engineVision && h.Vision == nil {
		respondError(w, http.StatusNotImplemented, "vision OCR is not configured")
		return
	}

	sess.Lock()
	defer sess.Unlock()

	doc := sess.WorkingDocument()
	if trim {
		doc = sess.Document
	}
	if len(doc) == 0 {
		respondError(w, http.StatusNotFound, "no document loaded")
		return
	}

	count, err := h.Extractor.PageCount(doc)
	if err != nil {
		respondErr(w, err)
		return
	}
	if len(ranges) == 0 {
		ranges = []extract.PageRange{{Start: 1, End: count}}
	}
	ranges = extract.ClampRanges(ranges, count)
	if len(ranges) == 0 {
		respondErr(w, fmt.Errorf("%w: no pages selected within 1-%d", models.ErrExtraction, count))
		return
	}

	selected, extractRanges := ranges, ranges
	if trim {
		trimmed, err := h.Extractor.Trim(doc, ranges)
		if err != nil {
			respondErr(w, err)
			return
		}
		sess.Trimmed = trimmed
		doc = trimmed
		count = len(extract.Pages(ranges))
		extractRanges = nil
	}

	text, err := h.Extractor.ExtractText(r.Context(), doc, extractRanges)
	if err != nil {
		respondErr(w, err)
		return
	}
	ocr := text
	if req.Engine == engineVision {
		ocr, err = h.Vision.Transcribe(r.Context(), doc, extractRanges, extract.VisionOptions{
			Provider:    req.Provider,
			Model:       req.Model,
			MaxTokens:   h.StepMaxTokens,
			Credentials: sess.CredentialsCopy(),
		})
		if err != nil {
			respondErr(w, err)
			return
		}
	}
	sess.RawText = text
	sess.OCRText = ocr
	sess.Touch()

	log.Info().
		Str("session", sess.ID).
		Bool("trim", trim).
		Str("engine", req.Engine).
		Int("chars", len(text)).
		Int("ocr_chars", len(ocr)).
		Msg("🧾 Document text extracted")
	respondJSON(w, http.StatusOK, extractionView{
		documentView: documentView{
			Name:     sess.DocumentName,
			Bytes:    len(doc),
			Pages:    count,
			Trimmed:  len(sess.Trimmed) > 0,
			RawChars: len(sess.RawText),
			OCRChars: len(sess.OCRText),
		},
		Ranges: selected,
		Engine: req.Engine,
	})
}
