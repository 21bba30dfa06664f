package rag

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/synapse/internal/types"
)

// fakeEmbedder returns deterministic vectors derived from each text's bytes
// and counts how many embedding batches it served.
type fakeEmbedder struct {
	calls atomic.Int64
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 8)
		for j, b := range []byte(text) {
			v[j%8] += float32(b) / 255
		}
		vectors[i] = v
	}
	return vectors, nil
}

func newTestCache(t *testing.T, extract func(string) (string, error)) (*Cache, *Index, *fakeEmbedder) {
	t.Helper()
	ix := openTestIndex(t)
	embedder := &fakeEmbedder{}
	splitter, err := NewSplitter(20, 4)
	require.NoError(t, err)

	cache := NewCache(ix, embedder, splitter)
	if extract != nil {
		cache.extract = extract
	}
	return cache, ix, embedder
}

func TestGetOrBuildBuildsOnceAcrossCalls(t *testing.T) {
	var extractions atomic.Int64
	cache, ix, embedder := newTestCache(t, func(string) (string, error) {
		extractions.Add(1)
		return "some document text that will be split into passages for the index", nil
	})
	ctx := context.Background()

	first, err := cache.GetOrBuild(ctx, "/docs/report.pdf")
	require.NoError(t, err)
	second, err := cache.GetOrBuild(ctx, "/docs/report.pdf")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, extractions.Load())
	assert.EqualValues(t, 1, embedder.calls.Load())

	ok, err := ix.Has(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetOrBuildConcurrentCallersShareOneBuild(t *testing.T) {
	var extractions atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	cache, _, embedder := newTestCache(t, func(string) (string, error) {
		if extractions.Add(1) == 1 {
			close(started)
			<-release
		}
		return "shared document text used by every concurrent caller at once", nil
	})
	ctx := context.Background()

	const callers = 8
	ids := make([]types.DocumentID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := cache.GetOrBuild(ctx, "/docs/shared.pdf")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
			}
			ids[i] = id
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, extractions.Load())
	assert.EqualValues(t, 1, embedder.calls.Load())
	for i := 1; i < callers; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestGetOrBuildUnsupportedFormatCreatesNoIndex(t *testing.T) {
	cache, ix, _ := newTestCache(t, nil) // real extractor
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))

	_, err := cache.GetOrBuild(ctx, path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	ok, err := ix.Has(ctx, DocumentIdentity(path))
	require.NoError(t, err)
	assert.False(t, ok, "no index may be created for a rejected format")
}

func TestGetOrBuildEmptyExtractionFails(t *testing.T) {
	cache, ix, _ := newTestCache(t, func(string) (string, error) {
		return "   \n ", nil
	})
	ctx := context.Background()

	_, err := cache.GetOrBuild(ctx, "/docs/empty.pdf")
	require.ErrorIs(t, err, ErrNoText)

	ok, err := ix.Has(ctx, DocumentIdentity("/docs/empty.pdf"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentIdentityIsPathStable(t *testing.T) {
	assert.Equal(t, DocumentIdentity("/a/b/c.pdf"), DocumentIdentity("/a/b/../b/c.pdf"))
	assert.NotEqual(t, DocumentIdentity("/a/b/c.pdf"), DocumentIdentity("/a/b/d.pdf"))
}
