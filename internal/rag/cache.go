package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/user/synapse/internal/types"
)

// Cache implements the cache-or-build policy over the persisted Index.
// Building is idempotent: a singleflight group keyed by document identifier
// guarantees at most one build in progress per identifier, and concurrent
// callers wait for that build and share its result.
type Cache struct {
	index    *Index
	embedder Embedder
	splitter *Splitter
	group    singleflight.Group

	// extract is swapped in tests; production always uses ExtractText.
	extract func(path string) (string, error)
}

// NewCache wires the cache to its index, embedder, and splitter.
func NewCache(index *Index, embedder Embedder, splitter *Splitter) *Cache {
	return &Cache{
		index:    index,
		embedder: embedder,
		splitter: splitter,
		extract:  ExtractText,
	}
}

// DocumentIdentity derives the content identifier for a document. Identity
// is the hash of the cleaned path, not the file bytes: re-indexing never has
// to read the whole document up front, at the cost of treating two paths to
// the same bytes as distinct documents.
func DocumentIdentity(path string) types.DocumentID {
	sum := md5.Sum([]byte(filepath.Clean(path)))
	return types.DocumentID(hex.EncodeToString(sum[:]))
}

// GetOrBuild returns the identifier of a completed index for the document,
// building it first if none exists. Unsupported formats and documents with
// no extractable text fail explicitly; nothing is persisted for them.
func (c *Cache) GetOrBuild(ctx context.Context, path string) (types.DocumentID, error) {
	id := DocumentIdentity(path)

	_, err, _ := c.group.Do(string(id), func() (any, error) {
		exists, err := c.index.Has(ctx, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
		return nil, c.build(ctx, id, path)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Cache) build(ctx context.Context, id types.DocumentID, path string) error {
	slog.Info("building document index", "document_id", string(id), "path", path)

	text, err := c.extract(path)
	if err != nil {
		return err
	}

	passages := c.splitter.Split(text)
	if len(passages) == 0 {
		return fmt.Errorf("%w: %s", ErrNoText, path)
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}

	if err := c.index.Insert(ctx, id, path, passages, vectors); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	slog.Info("document index built", "document_id", string(id), "passages", len(passages))
	return nil
}
