package knowledge

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultTopK = 4

type Config struct {
	Dir        string
	DBPath     string
	Collection string
	TopK       int
	ChunkSize  int

	EmbedBaseURL string
	EmbedAPIKey  string
	EmbedModel   string
}

type SearchResult struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float32 `json:"similarity"`
}

// Store keeps knowledge-base chunks in a chromem collection and answers
// similarity queries. Reindex replaces the whole collection, so concurrent
// searches during a reindex see either the old or the new snapshot.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	name       string
	dir        string
	chunkSize  int
	topK       int
}

func NewStore(c Config) (*Store, error) {
	embed := chromem.NewEmbeddingFuncOpenAICompat(c.EmbedBaseURL, c.EmbedAPIKey, c.EmbedModel, nil)
	return NewStoreWithEmbedding(c, embed)
}

// NewStoreWithEmbedding takes the embedding function directly. Tests use it
// to avoid a remote embedding endpoint.
func NewStoreWithEmbedding(c Config, embed chromem.EmbeddingFunc) (*Store, error) {
	var db *chromem.DB
	var err error
	if c.DBPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(c.DBPath, false)
		if err != nil {
			return nil, fmt.Errorf("open knowledge db: %w", err)
		}
	}
	name := c.Collection
	if name == "" {
		name = "knowledge"
	}
	topK := c.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	collection, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open knowledge collection: %w", err)
	}
	return &Store{
		db:         db,
		collection: collection,
		embed:      embed,
		name:       name,
		dir:        c.Dir,
		chunkSize:  c.ChunkSize,
		topK:       topK,
	}, nil
}

// Reindex reloads every document under the configured directory and swaps it
// in as the new collection content. Returns the number of chunks indexed.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("dir", s.dir))
	start := time.Now()
	docs, err := loadDocuments(s.dir, s.chunkSize)
	if err != nil {
		return 0, fmt.Errorf("load knowledge documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.name); err != nil {
		return 0, fmt.Errorf("reset knowledge collection: %w", err)
	}
	collection, err := s.db.GetOrCreateCollection(s.name, nil, s.embed)
	if err != nil {
		return 0, fmt.Errorf("recreate knowledge collection: %w", err)
	}
	s.collection = collection
	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return 0, fmt.Errorf("index knowledge documents: %w", err)
		}
	}
	logger.Info("knowledge reindex completed",
		zap.Int("chunks", len(docs)),
		zap.Duration("cost", time.Since(start)))
	return len(docs), nil
}

// Search returns up to topK chunks ranked by similarity. topK smaller than 1
// falls back to the configured default.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = s.topK
	}
	s.mu.RLock()
	collection := s.collection
	s.mu.RUnlock()

	// chromem rejects queries asking for more results than stored.
	if count := collection.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}
	results, err := collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query knowledge collection: %w", err)
	}
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			ID:         r.ID,
			Content:    r.Content,
			Source:     r.Metadata["source"],
			Similarity: r.Similarity,
		})
	}
	return out, nil
}
