package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fissler.com/cooker-assistant/internal/family"
	"fissler.com/cooker-assistant/internal/index"
)

type testChunk struct {
	content string
	source  string
}

func buildIndex(t *testing.T, chunks []testChunk) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "manuals.db")
	ix, err := index.Create(path)
	require.NoError(t, err)
	defer ix.Close()

	var rows []index.Chunk
	for _, c := range chunks {
		vec, err := hashEmbedder{}.Embed(ctx, c.content)
		require.NoError(t, err)
		rows = append(rows, index.Chunk{Content: c.content, Source: c.source, Family: family.Infer(c.source), Embedding: vec})
	}
	require.NoError(t, ix.Add(ctx, rows))
	return path
}

func TestSearchMissingIndex(t *testing.T) {
	r := NewManualRetriever(filepath.Join(t.TempDir(), "nope.db"), hashEmbedder{})
	assert.Equal(t, IndexMissingMessage, r.Search(context.Background(), "valve", SessionContext{Family: family.Vitavit}))
}

func TestSearchNothingFound(t *testing.T) {
	path := buildIndex(t, []testChunk{{content: "adamant frying pan care", source: "Adamant.pdf"}})
	r := NewManualRetriever(path, hashEmbedder{})
	out := r.Search(context.Background(), "valve", SessionContext{Family: family.Vitavit})
	assert.Equal(t, NothingFoundMessage, out)
}

func TestSearchRoundTripIsFamilyScoped(t *testing.T) {
	path := buildIndex(t, []testChunk{
		{content: "vitaquick lid valve cleaning steps", source: "VitaQuick_Manual.pdf"},
		{content: "adamant pan coating care", source: "Adamant_Manual.pdf"},
		{content: "warranty covers two years", source: "Warranty.pdf"},
	})
	r := NewManualRetriever(path, hashEmbedder{})
	ctx := context.Background()

	out := r.Search(ctx, "valve cleaning", SessionContext{Family: family.VitaQuick})
	assert.Contains(t, out, "vitaquick lid valve cleaning steps")
	assert.Contains(t, out, "warranty covers two years")
	assert.NotContains(t, out, "adamant")

	out = r.Search(ctx, "valve cleaning", SessionContext{Family: family.Adamant})
	assert.NotContains(t, out, "vitaquick lid valve")
	assert.Contains(t, out, "adamant pan coating care")

	out = r.Search(ctx, "valve cleaning", SessionContext{Family: family.General})
	assert.Equal(t, "warranty covers two years", out)
}

func TestSearchCapsResultsAndKeepsFamilyFirst(t *testing.T) {
	var chunks []testChunk
	for i := 0; i < 20; i++ {
		chunks = append(chunks, testChunk{content: fmt.Sprintf("vitavit page %d about the valve", i), source: "Vitavit_Manual.pdf"})
	}
	for i := 0; i < 5; i++ {
		chunks = append(chunks, testChunk{content: fmt.Sprintf("general page %d about the valve", i), source: "Warranty.pdf"})
	}
	path := buildIndex(t, chunks)
	r := NewManualRetriever(path, hashEmbedder{})
	ctx := context.Background()

	parts := strings.Split(r.Search(ctx, "valve", SessionContext{Family: family.Vitavit}), "\n\n")
	assert.Len(t, parts, MaxResultChunks)
	for _, p := range parts {
		assert.True(t, strings.HasPrefix(p, "vitavit page"), p)
	}

	small := buildIndex(t, append(chunks[:2:2], chunks[20:]...))
	parts = strings.Split(NewManualRetriever(small, hashEmbedder{}).Search(ctx, "valve", SessionContext{Family: family.Vitavit}), "\n\n")
	require.Len(t, parts, 2+generalResultLimit)
	assert.True(t, strings.HasPrefix(parts[0], "vitavit page"))
	assert.True(t, strings.HasPrefix(parts[1], "vitavit page"))
	for _, p := range parts[2:] {
		assert.True(t, strings.HasPrefix(p, "general page"), p)
	}
}

func TestSearchEmbeddingFailureIsText(t *testing.T) {
	path := buildIndex(t, []testChunk{{content: "warranty", source: "Warranty.pdf"}})
	r := NewManualRetriever(path, hashEmbedder{err: errors.New("quota exceeded")})
	out := r.Search(context.Background(), "valve", SessionContext{Family: family.Vitavit})
	assert.Contains(t, out, "Searching the manuals failed")
}
