package rag

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// QueryKind classifies what shape of retrieval a query calls for.
type QueryKind int

const (
	// QuerySpecific asks for a particular fact; retrieval favors pure
	// similarity over a small passage set.
	QuerySpecific QueryKind = iota
	// QueryOverview asks for a broad summary; retrieval favors topical
	// spread over a larger passage set.
	QueryOverview
)

// overviewVocabulary is the fixed set of phrasings that mark a query as
// overview-style.
var overviewVocabulary = []string{
	"summarize",
	"summarise",
	"summary",
	"overview",
	"about",
	"main idea",
	"main topic",
	"key points",
	"key takeaways",
	"gist",
	"what is this document",
	"what is the document",
	"describe the document",
	"explain the document",
	"whole document",
	"entire document",
}

// ClassifyQuery decides between overview-style and specific retrieval.
func ClassifyQuery(query string) QueryKind {
	q := strings.ToLower(query)
	for _, term := range overviewVocabulary {
		if strings.Contains(q, term) {
			return QueryOverview
		}
	}
	return QuerySpecific
}

// RetrieverConfig tunes passage counts per query kind. OverviewK must
// exceed SpecificK so overview answers see more of the document.
type RetrieverConfig struct {
	SpecificK     int
	OverviewK     int
	CandidatePool int
	Diversity     float64
}

// DefaultRetrieverConfig mirrors the tuning the agent ships with.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		SpecificK:     4,
		OverviewK:     8,
		CandidatePool: 24,
		Diversity:     0.5,
	}
}

// Retriever answers document queries with a formatted passage report. It
// consults the Cache for the document's index and adapts the retrieval
// strategy to the query's shape.
type Retriever struct {
	cache    *Cache
	index    *Index
	embedder Embedder
	cfg      RetrieverConfig
}

// NewRetriever wires a retriever to the cache and index it reads from.
func NewRetriever(cache *Cache, index *Index, embedder Embedder, cfg RetrieverConfig) *Retriever {
	if cfg.SpecificK <= 0 || cfg.OverviewK <= cfg.SpecificK {
		cfg = DefaultRetrieverConfig()
	}
	return &Retriever{cache: cache, index: index, embedder: embedder, cfg: cfg}
}

// Retrieve returns the formatted passage report for the query against the
// document at path. Indexing failures (missing file, unsupported format,
// empty extraction) are returned as errors for the tool layer to wrap.
func (r *Retriever) Retrieve(ctx context.Context, path, query string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingDocument, path)
		}
		return "", fmt.Errorf("stat document: %w", err)
	}

	docID, err := r.cache.GetOrBuild(ctx, path)
	if err != nil {
		return "", err
	}

	queryVecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	queryVec := queryVecs[0]

	kind := ClassifyQuery(query)
	var passages []ScoredPassage
	switch kind {
	case QueryOverview:
		passages, err = r.index.SearchDiverse(ctx, docID, queryVec, r.cfg.CandidatePool, r.cfg.OverviewK, r.cfg.Diversity)
	default:
		passages, err = r.index.Search(ctx, docID, queryVec, r.cfg.SpecificK)
	}
	if err != nil {
		return "", fmt.Errorf("search index: %w", err)
	}

	if len(passages) == 0 {
		return "No relevant information was found in the document for this query.", nil
	}

	return formatReport(passages, kind), nil
}

func formatReport(passages []ScoredPassage, kind QueryKind) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "RETRIEVED PASSAGES (%d total)\n", len(passages))
	for i, p := range passages {
		fmt.Fprintf(&sb, "\n[Passage %d/%d]\n%s\n", i+1, len(passages), p.Text)
	}
	sb.WriteString("\nEND OF RETRIEVED PASSAGES\n\n")

	switch kind {
	case QueryOverview:
		sb.WriteString("INSTRUCTIONS: These passages span different parts of the document. " +
			"Read every passage and synthesize them into one answer describing the " +
			"document as a whole. Do not restate only the first passage.")
	default:
		sb.WriteString("INSTRUCTIONS: Answer the question precisely using these passages. " +
			"Quote or extract the specific facts asked for; do not pad the answer " +
			"with unrelated material.")
	}
	return sb.String()
}
