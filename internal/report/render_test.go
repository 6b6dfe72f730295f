package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/assessment-engine/internal/models"
)

func testDocument() Document {
	s := NewSynthesizer(DefaultPolicy())
	byDomain := map[string]float64{"Trust": 20, "Communication": 100}

	return Document{
		AssessmentName: "Team <Health> Check",
		Result: &models.Result{
			SessionID:    "s-1",
			AssessmentID: "team-health",
			UserID:       "user-1",
			Overall:      60,
			ByDomain:     byDomain,
			Report:       s.Synthesize(60, byDomain),
			CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"markdown": FormatMarkdown, "HTML": FormatHTML, "pdf": FormatPDF} {
		f, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, f)
	}

	_, err := ParseFormat("docx")
	assert.Error(t, err)

	assert.Equal(t, "application/pdf", FormatPDF.ContentType())
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer().Markdown(&buf, testDocument()))

	out := buf.String()
	assert.Contains(t, out, "# Team <Health> Check")
	assert.Contains(t, out, "**Overall score:** 60% (moderate)")
	assert.Contains(t, out, "| Communication | 100% |")
	assert.Contains(t, out, "| Trust | 20% |")
	assert.Contains(t, out, "## Strengths\n\n- Communication")
	assert.Contains(t, out, "## Growth areas\n\n- Trust")
	assert.Contains(t, out, "Suggested retake: 2026-04-30 (in 60 days)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Communication |")), bytes.Index(buf.Bytes(), []byte("Trust |")))
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer().Render(&buf, FormatHTML, testDocument()))

	out := buf.String()
	assert.Contains(t, out, "<title>Team &lt;Health&gt; Check</title>")
	assert.Contains(t, out, "<h2>Recommendations</h2>")
	assert.Contains(t, out, "<li>Trust</li>")
	assert.NotContains(t, out, "<Health>")
}

func TestPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewRenderer().Render(&buf, FormatPDF, testDocument()))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewRenderer().Render(&buf, Format("docx"), testDocument()))
}
