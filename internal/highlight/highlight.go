// Package highlight marks regulatory keywords in generated text and reports
// for HTML rendering.
package highlight

import (
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/reviewstudio/studio/pkg/models"
)

// DefaultOntology is the built-in keyword list.
var DefaultOntology = []string{
	"predicate", "warning", "contraindication", "sterile", "biocompatibility",
	"malfunction", "recall", "mri", "latex", "serious injury", "death",
	"cybersecurity", "software", "failure", "misfire", "udi", "510(k)",
	"k-number", "k number", "intended use",
}

const coralOpen, coralClose = `<span class="coral"><b>`, `</b></span>`

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	colorPattern = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20}|rgba?\(\s*[0-9.,%\s]+\))$`)
)

// Highlighter wraps keyword matches in a coral span.
type Highlighter struct {
	re *regexp.Regexp
}

// New builds a case-insensitive matcher preferring the longest keyword.
// An empty list uses DefaultOntology.
func New(keywords []string) *Highlighter {
	seen := make(map[string]bool)
	var kws []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" && !seen[k] {
			seen[k] = true
			kws = append(kws, k)
		}
	}
	if len(kws) == 0 {
		return New(DefaultOntology)
	}
	sort.SliceStable(kws, func(i, j int) bool { return len(kws[i]) > len(kws[j]) })

	alts := make([]string, len(kws))
	for i, k := range kws {
		alts[i] = regexp.QuoteMeta(html.EscapeString(k))
	}
	return &Highlighter{re: regexp.MustCompile(`(?i)(` + strings.Join(alts, "|") + `)`)}
}

// Coral escapes text for HTML and wraps every keyword occurrence.
func (h *Highlighter) Coral(text string) string {
	if text == "" {
		return ""
	}
	return h.re.ReplaceAllString(html.EscapeString(text), coralOpen+"$1"+coralClose)
}

// KeywordColor is a reviewer-chosen phrase and the CSS color to show it in.
type KeywordColor = models.KeywordColor

// Render applies coral highlighting, then colours each exact phrase outside
// of markup. Pairs with a blank keyword or an unrecognised color are skipped.
func (h *Highlighter) Render(text string, pairs []KeywordColor) string {
	out := h.Coral(text)
	for _, p := range pairs {
		kw := html.EscapeString(p.Keyword)
		if strings.TrimSpace(kw) == "" || !colorPattern.MatchString(strings.TrimSpace(p.Color)) {
			continue
		}
		span := `<span style="color:` + strings.TrimSpace(p.Color) + `; font-weight:900">` + kw + `</span>`
		out = replaceOutsideTags(out, kw, span)
	}
	return out
}

func replaceOutsideTags(s, old, repl string) string {
	var b strings.Builder
	last := 0
	for _, loc := range tagPattern.FindAllStringIndex(s, -1) {
		b.WriteString(strings.ReplaceAll(s[last:loc[0]], old, repl))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ReplaceAll(s[last:], old, repl))
	return b.String()
}
