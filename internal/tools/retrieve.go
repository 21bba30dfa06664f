// Package tools contains the agent's callable tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/synapse/internal/engine"
	"github.com/user/synapse/internal/rag"
)

// DocumentRetrieval exposes the RAG retriever as a tool. Indexing failures
// (missing file, unsupported format, empty extraction) surface as error
// values, which the engine turns into error-bearing tool results the model
// can react to.
type DocumentRetrieval struct {
	retriever *rag.Retriever
}

// NewDocumentRetrieval creates the retrieval tool.
func NewDocumentRetrieval(retriever *rag.Retriever) *DocumentRetrieval {
	return &DocumentRetrieval{retriever: retriever}
}

func (d *DocumentRetrieval) Name() string { return engine.RetrievalToolName }

func (d *DocumentRetrieval) Description() string {
	return "Search the uploaded document and return the most relevant passages for a query. " +
		"Indexes the document on first use and reuses the index afterwards."
}

func (d *DocumentRetrieval) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to the uploaded PDF or DOCX file"},
			"query": {"type": "string", "description": "The user's question or search query"}
		},
		"required": ["file_path", "query"]
	}`)
}

func (d *DocumentRetrieval) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		FilePath string `json:"file_path"`
		Query    string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.FilePath == "" {
		return "", fmt.Errorf("file_path is required")
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	return d.retriever.Retrieve(ctx, params.FilePath, params.Query)
}
