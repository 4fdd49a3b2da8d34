package retrieval

import (
	"context"
	"fmt"
	"irouter/internal/config"
	"irouter/internal/logger"
	"irouter/internal/repository/db"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"
)

// Separators are tried in order when splitting documents into chunks
var Separators = []string{"\n=== File:", "\n--- Page", "\n\n", "\n", ".", "!", "?", ",", " ", ""}

// TextExtractor turns file references into plain text
type TextExtractor interface {
	ProcessFiles(ctx context.Context, refs []string) (string, error)
}

// Embedder computes one embedding per text
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Augmenter indexes uploaded documents into short-lived collections and searches them
type Augmenter struct {
	extractor TextExtractor
	embedder  Embedder
	store     db.VectorStore
	splitter  textsplitter.TextSplitter
	topK      int
	maxAge    time.Duration
	now       func() time.Time
	newID     func() string
}

// NewAugmenter creates an augmenter with the configured chunking and retention
func NewAugmenter(extractor TextExtractor, embedder Embedder, store db.VectorStore, cfg config.RetrievalConfig) *Augmenter {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	return &Augmenter{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators(Separators),
		),
		topK:   topK,
		maxAge: maxAge,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Sweep deletes collections older than the retention age. Failures are logged, never returned.
func (a *Augmenter) Sweep(ctx context.Context) {
	collections, err := a.store.ListCollections(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("Error listing collections for cleanup")
		return
	}

	cutoff := a.now().Add(-a.maxAge)
	removed := 0
	for _, c := range collections {
		if !c.CreatedAt.Before(cutoff) {
			continue
		}
		if err := a.store.DeleteCollection(ctx, c.ID); err != nil {
			logger.Log.WithField("collection", c.Name).WithError(err).Error("Error deleting old collection")
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Log.WithField("removed", removed).Info("Cleaned up old collections")
	}
}

// Index extracts, splits and embeds the documents into a fresh collection.
// It returns nil when no text survives splitting. If the collection cannot be
// created the most recent existing collection is reused.
func (a *Augmenter) Index(ctx context.Context, textRefs []string) (*db.Collection, error) {
	a.Sweep(ctx)

	text, err := a.extractor.ProcessFiles(ctx, textRefs)
	if err != nil {
		return nil, fmt.Errorf("error extracting document text: %w", err)
	}

	chunks, err := a.split(text)
	if err != nil {
		return nil, fmt.Errorf("error splitting documents: %w", err)
	}
	if len(chunks) == 0 {
		logger.Log.WithField("files", len(textRefs)).Warn("No text content found in documents")
		return nil, nil
	}

	collection, err := a.createCollection(ctx, chunks)
	if err == nil {
		return collection, nil
	}

	logger.Log.WithError(err).Warn("Error creating collection, trying most recent one")
	latest, lerr := a.store.LatestCollection(ctx)
	if lerr != nil {
		return nil, fmt.Errorf("failed to create collection and no fallback available: %w", err)
	}

	logger.Log.WithField("collection", latest.Name).Info("Using existing collection")
	return latest, nil
}

func (a *Augmenter) split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := a.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

func (a *Augmenter) createCollection(ctx context.Context, texts []string) (*db.Collection, error) {
	vectors, err := a.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(texts))
	}

	id := a.newID()
	collection := db.Collection{
		ID:        id,
		Name:      "collection_" + id,
		CreatedAt: a.now(),
	}

	chunks := make([]db.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = db.Chunk{
			CollectionID: id,
			Content:      t,
			Source:       fmt.Sprintf("chunk_%d", i),
			Embedding:    vectors[i],
		}
	}

	if err := a.store.CreateCollection(ctx, collection, chunks); err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{"collection": collection.Name, "chunks": len(chunks)}).Info("Indexed documents")
	return &collection, nil
}

// Retrieve returns the chunks of collection most similar to query
func (a *Augmenter) Retrieve(ctx context.Context, collection *db.Collection, query string) ([]db.ScoredChunk, error) {
	if collection == nil {
		return nil, nil
	}

	vectors, err := a.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("error embedding query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	hits, err := a.store.SearchChunks(ctx, collection.ID, vectors[0], a.topK)
	if err != nil {
		return nil, fmt.Errorf("error searching collection: %w", err)
	}
	return hits, nil
}

// SourcedContext renders chunks with their source tag, separated by blank lines
func SourcedContext(chunks []db.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = "[Source: " + c.Source + "]\n" + c.Content
	}
	return strings.Join(parts, "\n\n")
}

// PlainContext joins chunk contents with newlines
func PlainContext(chunks []db.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n")
}
