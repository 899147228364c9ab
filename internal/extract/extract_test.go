package extract_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/reviewstudio/studio/internal/extract"
	"github.com/reviewstudio/studio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal document with one line of Helvetica text per page.
func buildPDF(pages ...string) []byte {
	n := len(pages)
	fontObj := 3 + 2*n
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return b.Bytes()
}

func TestParsePageRanges(t *testing.T) {
	got, err := extract.ParsePageRanges("1-5, 10, 14-12,, ")
	require.NoError(t, err)
	assert.Equal(t, []extract.PageRange{{Start: 1, End: 5}, {Start: 10, End: 10}, {Start: 12, End: 14}}, got)

	got, err = extract.ParsePageRanges("   ")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"a", "1-x", "1-2-3"} {
		_, err := extract.ParsePageRanges(bad)
		assert.True(t, errors.Is(err, models.ErrExtraction), bad)
	}
}

func TestClampRanges(t *testing.T) {
	got := extract.ClampRanges([]extract.PageRange{
		{Start: -3, End: 2},
		{Start: 4, End: 99},
		{Start: 20, End: 30},
	}, 6)
	assert.Equal(t, []extract.PageRange{{Start: 1, End: 2}, {Start: 4, End: 6}}, got)
}

func TestPageRangeString(t *testing.T) {
	assert.Equal(t, "3", extract.PageRange{Start: 3, End: 3}.String())
	assert.Equal(t, "1-4", extract.PageRange{Start: 1, End: 4}.String())
}

func TestPages_KeepsOrderAndRepeats(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2, 3}, extract.Pages([]extract.PageRange{{Start: 3, End: 3}, {Start: 1, End: 3}}))
}

func TestPageCountAndExtractText(t *testing.T) {
	e := extract.New()
	doc := buildPDF("Alpha page", "Beta page", "Gamma page")

	n, err := e.PageCount(doc)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := e.ExtractText(context.Background(), doc, nil)
	require.NoError(t, err)
	assert.Contains(t, all, "Alpha")
	assert.Contains(t, all, "Gamma")

	some, err := e.ExtractText(context.Background(), doc, []extract.PageRange{{Start: 2, End: 9}})
	require.NoError(t, err)
	assert.NotContains(t, some, "Alpha")
	assert.Contains(t, some, "Beta")
	assert.Contains(t, some, "Gamma")

	_, err = e.ExtractText(context.Background(), doc, []extract.PageRange{{Start: 7, End: 9}})
	assert.True(t, errors.Is(err, models.ErrExtraction))
}

func TestTrim(t *testing.T) {
	e := extract.New()
	doc := buildPDF("Alpha page", "Beta page", "Gamma page")

	trimmed, err := e.Trim(doc, []extract.PageRange{{Start: 3, End: 5}})
	require.NoError(t, err)
	n, err := e.PageCount(trimmed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	text, err := e.ExtractText(context.Background(), trimmed, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "Gamma")

	_, err = e.Trim(doc, []extract.PageRange{{Start: 8, End: 9}})
	assert.True(t, errors.Is(err, models.ErrExtraction))
}

func TestMalformedDocument(t *testing.T) {
	e := extract.New()
	for name, doc := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("this is not a pdf"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.PageCount(doc)
			assert.True(t, errors.Is(err, models.ErrExtraction))
			_, err = e.ExtractText(context.Background(), doc, nil)
			assert.True(t, errors.Is(err, models.ErrExtraction))
			_, err = e.Trim(doc, []extract.PageRange{{Start: 1, End: 1}})
			assert.True(t, errors.Is(err, models.ErrExtraction))
		})
	}
}

func TestRenderPreview(t *testing.T) {
	html := extract.New().RenderPreview([]byte("%PDF"), 0)
	assert.Contains(t, html, `src="data:application/pdf;base64,JVBERg=="`)
	assert.Contains(t, html, `height="520"`)
	assert.Contains(t, html, `width="100%"`)
}
