package rag

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Passage is a bounded chunk of extracted document text, the unit of
// retrieval. Ordinal is its position in the source document.
type Passage struct {
	Ordinal int
	Text    string
}

// Splitter cuts extracted text into token-bounded passages with bounded
// overlap between neighbors.
type Splitter struct {
	enc     *tiktoken.Tiktoken
	chunk   int
	overlap int
}

// NewSplitter creates a splitter producing passages of at most chunkTokens
// tokens, each sharing overlapTokens tokens with its predecessor.
func NewSplitter(chunkTokens, overlapTokens int) (*Splitter, error) {
	if chunkTokens <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkTokens)
	}
	if overlapTokens < 0 || overlapTokens >= chunkTokens {
		return nil, fmt.Errorf("overlap must be in [0, chunk), got %d", overlapTokens)
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get tokenizer: %w", err)
	}
	return &Splitter{enc: enc, chunk: chunkTokens, overlap: overlapTokens}, nil
}

// Split returns the passages of text in source order. Empty or
// whitespace-only input yields no passages.
func (s *Splitter) Split(text string) []Passage {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ids := s.enc.Encode(text, nil, nil)
	step := s.chunk - s.overlap

	var passages []Passage
	for start := 0; start < len(ids); start += step {
		end := start + s.chunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := strings.TrimSpace(s.enc.Decode(ids[start:end]))
		if chunk != "" {
			passages = append(passages, Passage{Ordinal: len(passages), Text: chunk})
		}
		if end == len(ids) {
			break
		}
	}
	return passages
}
