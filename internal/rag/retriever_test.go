package rag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sectionedDocument mimics a report with distinct sections so overview
// retrieval has topical spread to find.
var sectionedDocument = strings.Join([]string{
	strings.Repeat("Intro: this report studies the migration habits of arctic terns. ", 12),
	strings.Repeat("Methods: birds were tagged with lightweight GPS loggers over two seasons. ", 12),
	strings.Repeat("Results: the average round trip covered seventy thousand kilometres. ", 12),
}, "\n\n")

func newTestRetriever(t *testing.T) (*Retriever, string) {
	t.Helper()
	ix := openTestIndex(t)
	embedder := &fakeEmbedder{}
	splitter, err := NewSplitter(40, 8)
	require.NoError(t, err)

	cache := NewCache(ix, embedder, splitter)
	cache.extract = func(string) (string, error) { return sectionedDocument, nil }

	// The retriever stats the path before indexing, so hand it a real file.
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))

	cfg := RetrieverConfig{SpecificK: 2, OverviewK: 5, CandidatePool: 12, Diversity: 0.5}
	return NewRetriever(cache, ix, embedder, cfg), path
}

func countPassages(report string) int {
	return strings.Count(report, "[Passage ")
}

func TestClassifyQuery(t *testing.T) {
	overview := []string{
		"What is this document about?",
		"Give me a summary of the report",
		"summarize the key points",
		"Provide an overview please",
	}
	for _, q := range overview {
		assert.Equal(t, QueryOverview, ClassifyQuery(q), q)
	}

	specific := []string{
		"How far did the terns fly?",
		"Which loggers were used in season two?",
		"average round trip distance",
	}
	for _, q := range specific {
		assert.Equal(t, QuerySpecific, ClassifyQuery(q), q)
	}
}

func TestOverviewRetrievesMoreThanSpecific(t *testing.T) {
	r, path := newTestRetriever(t)
	ctx := context.Background()

	overview, err := r.Retrieve(ctx, path, "What is this document about?")
	require.NoError(t, err)
	specific, err := r.Retrieve(ctx, path, "How far did the terns fly?")
	require.NoError(t, err)

	assert.Greater(t, countPassages(overview), countPassages(specific))
	assert.GreaterOrEqual(t, countPassages(overview), 2)
}

func TestOverviewReportSpansSections(t *testing.T) {
	r, path := newTestRetriever(t)

	report, err := r.Retrieve(context.Background(), path, "What is this document about?")
	require.NoError(t, err)

	sections := 0
	for _, marker := range []string{"Intro:", "Methods:", "Results:"} {
		if strings.Contains(report, marker) {
			sections++
		}
	}
	assert.GreaterOrEqual(t, sections, 2, "overview retrieval should span more than one section")
}

func TestReportStructure(t *testing.T) {
	r, path := newTestRetriever(t)

	overview, err := r.Retrieve(context.Background(), path, "Give me an overview")
	require.NoError(t, err)
	assert.Contains(t, overview, "RETRIEVED PASSAGES (")
	assert.Contains(t, overview, "[Passage 1/")
	assert.Contains(t, overview, "END OF RETRIEVED PASSAGES")
	assert.Contains(t, overview, "synthesize")

	specific, err := r.Retrieve(context.Background(), path, "How far did the terns fly?")
	require.NoError(t, err)
	assert.Contains(t, specific, "INSTRUCTIONS:")
	assert.Contains(t, specific, "precisely")
	assert.NotContains(t, specific, "synthesize")
}

func TestRetrieveMissingDocument(t *testing.T) {
	r, _ := newTestRetriever(t)

	_, err := r.Retrieve(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"), "anything")
	assert.ErrorIs(t, err, ErrMissingDocument)
}
