package retrieval

import (
	"context"
	"errors"
	"fmt"
	"irouter/internal/config"
	"irouter/internal/repository/db"
	"irouter/internal/testutil"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAugmenter(extractor TextExtractor, embedder Embedder, store db.VectorStore, cfg config.RetrievalConfig) *Augmenter {
	a := NewAugmenter(extractor, embedder, store, cfg)
	a.now = func() time.Time { return fixedNow }
	a.newID = func() string { return "abc" }
	return a
}

func fakeEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func defaultRetrieval() config.RetrievalConfig {
	return config.RetrievalConfig{ChunkSize: 500, ChunkOverlap: 100, TopK: 4, MaxAge: 24 * time.Hour}
}

func TestIndex_CreatesCollection(t *testing.T) {
	extractor := &testutil.MockFileProcessor{
		ProcessFilesFunc: func(ctx context.Context, refs []string) (string, error) {
			return "\n=== File: notes.txt ===\nThe launch is scheduled for Tuesday.", nil
		},
	}
	var stored []db.Chunk
	var created db.Collection
	store := &testutil.MockVectorStore{
		ListCollectionsFunc: func(ctx context.Context) ([]db.Collection, error) { return nil, nil },
		CreateCollectionFunc: func(ctx context.Context, c db.Collection, chunks []db.Chunk) error {
			created = c
			stored = chunks
			return nil
		},
	}

	a := newTestAugmenter(extractor, &testutil.MockEmbedder{EmbedFunc: fakeEmbeddings}, store, defaultRetrieval())
	collection, err := a.Index(context.Background(), []string{"notes.txt"})
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if collection == nil || collection.Name != "collection_abc" {
		t.Fatalf("collection = %+v, want collection_abc", collection)
	}
	if !created.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v", created.CreatedAt)
	}
	if len(stored) == 0 {
		t.Fatal("no chunks stored")
	}
	for i, c := range stored {
		if c.Source != fmt.Sprintf("chunk_%d", i) {
			t.Errorf("chunk %d source = %s", i, c.Source)
		}
		if c.CollectionID != "abc" || len(c.Embedding) != 2 {
			t.Errorf("chunk %d = %+v", i, c)
		}
	}
	if !strings.Contains(stored[0].Content, "Tuesday") {
		t.Errorf("chunk content = %q", stored[0].Content)
	}
}

func TestIndex_SplitsLongDocuments(t *testing.T) {
	long := strings.Repeat("alpha beta gamma delta. ", 40)
	extractor := &testutil.MockFileProcessor{
		ProcessFilesFunc: func(ctx context.Context, refs []string) (string, error) { return long, nil },
	}
	var stored []db.Chunk
	store := &testutil.MockVectorStore{
		ListCollectionsFunc: func(ctx context.Context) ([]db.Collection, error) { return nil, nil },
		CreateCollectionFunc: func(ctx context.Context, c db.Collection, chunks []db.Chunk) error {
			stored = chunks
			return nil
		},
	}

	cfg := defaultRetrieval()
	cfg.ChunkSize = 100
	cfg.ChunkOverlap = 20
	a := newTestAugmenter(extractor, &testutil.MockEmbedder{EmbedFunc: fakeEmbeddings}, store, cfg)
	if _, err := a.Index(context.Background(), []string{"a.txt"}); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if len(stored) < 2 {
		t.Fatalf("got %d chunks, want several", len(stored))
	}
	for _, c := range stored {
		if len(c.Content) > 100 {
			t.Errorf("chunk longer than chunk size: %d", len(c.Content))
		}
	}
}

func TestIndex_NoText(t *testing.T) {
	extractor := &testutil.MockFileProcessor{
		ProcessFilesFunc: func(ctx context.Context, refs []string) (string, error) { return "  \n ", nil },
	}
	store := &testutil.MockVectorStore{
		ListCollectionsFunc: func(ctx context.Context) ([]db.Collection, error) { return nil, nil },
	}
	embedder := &testutil.MockEmbedder{
		EmbedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			t.Error("Embed called without text")
			return nil, nil
		},
	}

	collection, err := newTestAugmenter(extractor, embedder, store, defaultRetrieval()).Index(context.Background(), []string{"empty.txt"})
	if err != nil || collection != nil {
		t.Errorf("Index() = %v, %v; want nil, nil", collection, err)
	}
}

func TestIndex_FallbackToLatest(t *testing.T) {
	extractor := &testutil.MockFileProcessor{
		ProcessFilesFunc: func(ctx context.Context, refs []string) (string, error) { return "some text", nil },
	}
	latest := &db.Collection{ID: "old", Name: "collection_old"}

	tests := []struct {
		name      string
		embedErr  error
		createErr error
		latest    *db.Collection
		latestErr error
		wantName  string
		wantErr   bool
	}{
		{name: "create fails", createErr: errors.New("disk full"), latest: latest, wantName: "collection_old"},
		{name: "embed fails", embedErr: errors.New("rate limited"), latest: latest, wantName: "collection_old"},
		{name: "no fallback", createErr: errors.New("disk full"), latestErr: db.ErrNotFound, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &testutil.MockEmbedder{
				EmbedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
					if tt.embedErr != nil {
						return nil, tt.embedErr
					}
					return fakeEmbeddings(ctx, texts)
				},
			}
			store := &testutil.MockVectorStore{
				ListCollectionsFunc: func(ctx context.Context) ([]db.Collection, error) { return nil, nil },
				CreateCollectionFunc: func(ctx context.Context, c db.Collection, chunks []db.Chunk) error {
					return tt.createErr
				},
				LatestCollectionFunc: func(ctx context.Context) (*db.Collection, error) {
					return tt.latest, tt.latestErr
				},
			}

			collection, err := newTestAugmenter(extractor, embedder, store, defaultRetrieval()).Index(context.Background(), []string{"a.txt"})
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Index() error = %v", err)
			}
			if collection.Name != tt.wantName {
				t.Errorf("collection = %s, want %s", collection.Name, tt.wantName)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	var deleted []string
	store := &testutil.MockVectorStore{
		ListCollectionsFunc: func(ctx context.Context) ([]db.Collection, error) {
			return []db.Collection{
				{ID: "fresh", CreatedAt: fixedNow.Add(-time.Hour)},
				{ID: "stale", CreatedAt: fixedNow.Add(-25 * time.Hour)},
				{ID: "broken", CreatedAt: fixedNow.Add(-48 * time.Hour)},
			}, nil
		},
		DeleteCollectionFunc: func(ctx context.Context, id string) error {
			if id == "broken" {
				return errors.New("locked")
			}
			deleted = append(deleted, id)
			return nil
		},
	}

	newTestAugmenter(nil, nil, store, defaultRetrieval()).Sweep(context.Background())
	if len(deleted) != 1 || deleted[0] != "stale" {
		t.Errorf("deleted = %v, want [stale]", deleted)
	}
}

func TestSweep_ListError(t *testing.T) {
	store := &testutil.MockVectorStore{
		ListCollectionsFunc: func(ctx context.Context) ([]db.Collection, error) {
			return nil, errors.New("connection refused")
		},
	}
	// Must not panic or propagate
	newTestAugmenter(nil, nil, store, defaultRetrieval()).Sweep(context.Background())
}

func TestRetrieve(t *testing.T) {
	var gotK int
	var gotCollection string
	store := &testutil.MockVectorStore{
		SearchChunksFunc: func(ctx context.Context, collectionID string, embedding []float32, k int) ([]db.ScoredChunk, error) {
			gotK = k
			gotCollection = collectionID
			return []db.ScoredChunk{{Chunk: db.Chunk{Content: "hit", Source: "chunk_3"}, Distance: 0.1}}, nil
		},
	}

	a := newTestAugmenter(nil, &testutil.MockEmbedder{EmbedFunc: fakeEmbeddings}, store, defaultRetrieval())
	hits, err := a.Retrieve(context.Background(), &db.Collection{ID: "abc"}, "when is launch?")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if gotK != 4 || gotCollection != "abc" {
		t.Errorf("search k=%d collection=%s", gotK, gotCollection)
	}
	if len(hits) != 1 || hits[0].Source != "chunk_3" {
		t.Errorf("hits = %+v", hits)
	}

	hits, err = a.Retrieve(context.Background(), nil, "q")
	if err != nil || hits != nil {
		t.Errorf("Retrieve(nil) = %v, %v", hits, err)
	}
}

func TestContextRendering(t *testing.T) {
	chunks := []db.ScoredChunk{
		{Chunk: db.Chunk{Content: "first", Source: "chunk_0"}},
		{Chunk: db.Chunk{Content: "second", Source: "chunk_1"}},
	}

	if got, want := SourcedContext(chunks), "[Source: chunk_0]\nfirst\n\n[Source: chunk_1]\nsecond"; got != want {
		t.Errorf("SourcedContext() = %q, want %q", got, want)
	}
	if got, want := PlainContext(chunks), "first\nsecond"; got != want {
		t.Errorf("PlainContext() = %q, want %q", got, want)
	}
	if SourcedContext(nil) != "" {
		t.Error("SourcedContext(nil) should be empty")
	}
}
