package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/textsplitter"
)

// KnowledgeBase is an in-memory vector index over the chunks of one document
type KnowledgeBase struct {
	chunks   []string
	vectors  [][]float32
	embedder embeddings.Embedder
}

// LoadKnowledge reads the file at path, splits it and embeds every chunk
func LoadKnowledge(ctx context.Context, path string, splitter textsplitter.TextSplitter, embedder embeddings.Embedder) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	return BuildKnowledge(ctx, string(data), splitter, embedder)
}

// BuildKnowledge indexes text already in memory
func BuildKnowledge(ctx context.Context, text string, splitter textsplitter.TextSplitter, embedder embeddings.Embedder) (*KnowledgeBase, error) {
	split, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split knowledge base: %w", err)
	}
	chunks := split[:0]
	for _, c := range split {
		if strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return nil, errors.New("knowledge base is empty")
	}

	vectors, err := embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed knowledge base: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	return &KnowledgeBase{chunks: chunks, vectors: vectors, embedder: embedder}, nil
}

// Len returns the number of indexed chunks
func (kb *KnowledgeBase) Len() int {
	return len(kb.chunks)
}

// Search returns up to k chunks most similar to query, best first
func (kb *KnowledgeBase) Search(ctx context.Context, query string, k int) ([]string, error) {
	q, err := kb.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(kb.vectors))
	for i, v := range kb.vectors {
		ranked[i] = scored{idx: i, score: cosine(q, v)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, k)
	for i := range out {
		out[i] = kb.chunks[ranked[i].idx]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
