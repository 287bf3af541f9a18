// Package vectorstore maintains documentation chunk vectors for
// retrieval. Vectors persist in the doc_embeddings table and are served
// from an in-memory index; scoring is cosine similarity.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

// Document is one chunk to index, addressed by (tenant, source, key).
type Document struct {
	TenantID string
	Source   string
	Key      string
	Content  string
	Vector   []float32
	Metadata json.RawMessage
}

// Result is one search hit.
type Result struct {
	Source   string          `json:"source"`
	Key      string          `json:"key"`
	Score    float64         `json:"score"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Filter restricts a search to a tenant and optionally one source.
type Filter struct {
	TenantID string
	Source   string
}

type item struct {
	tenantID string
	source   string
	key      string
	content  string
	vector   []float32
	metadata json.RawMessage
}

// Store is safe for concurrent use. With a nil database client it runs
// purely in memory.
type Store struct {
	db         *database.Client
	dimensions int
	logger     *slog.Logger

	mu    sync.RWMutex
	items map[string]*item
}

// New creates a vector store expecting vectors of the given dimension.
func New(db *database.Client, dimensions int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:         db,
		dimensions: dimensions,
		logger:     logger.With("component", "vectorstore"),
		items:      make(map[string]*item),
	}
}

func indexKey(tenantID, source, key string) string {
	return tenantID + "\x00" + source + "\x00" + key
}

// Load hydrates the in-memory index for one tenant from the database.
func (s *Store) Load(ctx context.Context, tenantID string) error {
	if s.db == nil {
		return nil
	}

	var rows []models.DocEmbedding
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, tenant_id, source, key, content, embedding, metadata_json, updated_at
		 FROM doc_embeddings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("load embeddings for tenant %s: %w", tenantID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace the tenant's slice of the index wholesale.
	for k, it := range s.items {
		if it.tenantID == tenantID {
			delete(s.items, k)
		}
	}
	for i := range rows {
		row := &rows[i]
		s.items[indexKey(row.TenantID, row.Source, row.Key)] = &item{
			tenantID: row.TenantID,
			source:   row.Source,
			key:      row.Key,
			content:  row.Content,
			vector:   row.Vector(),
			metadata: row.Metadata,
		}
	}

	s.logger.Info("Vector index loaded", "tenant_id", tenantID, "vectors", len(rows))
	return nil
}

// Upsert inserts or replaces documents by logical key.
func (s *Store) Upsert(ctx context.Context, docs ...Document) error {
	for _, doc := range docs {
		if doc.TenantID == "" || doc.Source == "" || doc.Key == "" {
			return fmt.Errorf("document requires tenant, source and key (got %q, %q, %q)", doc.TenantID, doc.Source, doc.Key)
		}
		if s.dimensions > 0 && len(doc.Vector) != s.dimensions {
			return fmt.Errorf("vector for %s/%s has dimension %d, want %d", doc.Source, doc.Key, len(doc.Vector), s.dimensions)
		}
	}

	if s.db != nil {
		for _, doc := range docs {
			encoded, err := json.Marshal(doc.Vector)
			if err != nil {
				return fmt.Errorf("encode vector: %w", err)
			}
			_, err = s.db.ExecContext(ctx,
				`INSERT INTO doc_embeddings (tenant_id, source, key, content, embedding, metadata_json, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (tenant_id, source, key) DO UPDATE
				 SET content = EXCLUDED.content,
				     embedding = EXCLUDED.embedding,
				     metadata_json = EXCLUDED.metadata_json,
				     updated_at = EXCLUDED.updated_at`,
				doc.TenantID, doc.Source, doc.Key, doc.Content, encoded, doc.Metadata, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("upsert embedding %s/%s: %w", doc.Source, doc.Key, err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.items[indexKey(doc.TenantID, doc.Source, doc.Key)] = &item{
			tenantID: doc.TenantID,
			source:   doc.Source,
			key:      doc.Key,
			content:  doc.Content,
			vector:   doc.Vector,
			metadata: doc.Metadata,
		}
	}
	return nil
}

// Delete removes one document by logical key. Deleting a missing key is
// not an error.
func (s *Store) Delete(ctx context.Context, tenantID, source, key string) error {
	if s.db != nil {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM doc_embeddings WHERE tenant_id = $1 AND source = $2 AND key = $3`,
			tenantID, source, key)
		if err != nil {
			return fmt.Errorf("delete embedding %s/%s: %w", source, key, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, indexKey(tenantID, source, key))
	return nil
}

// DeleteSource removes every document of one source for a tenant, used
// when a documentation snapshot is re-indexed.
func (s *Store) DeleteSource(ctx context.Context, tenantID, source string) error {
	if s.db != nil {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM doc_embeddings WHERE tenant_id = $1 AND source = $2`,
			tenantID, source)
		if err != nil {
			return fmt.Errorf("delete embeddings for source %s: %w", source, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, it := range s.items {
		if it.tenantID == tenantID && it.source == source {
			delete(s.items, k)
		}
	}
	return nil
}

// Search returns the top-k items by cosine similarity against the
// in-memory index.
func (s *Store) Search(_ context.Context, vector []float32, topK int, filter *Filter) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}
	if s.dimensions > 0 && len(vector) != s.dimensions {
		return nil, fmt.Errorf("query vector has dimension %d, want %d", len(vector), s.dimensions)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(s.items))
	for _, it := range s.items {
		if filter != nil {
			if filter.TenantID != "" && it.tenantID != filter.TenantID {
				continue
			}
			if filter.Source != "" && it.source != filter.Source {
				continue
			}
		}
		score := cosineSimilarity(vector, it.vector)
		results = append(results, Result{
			Source:   it.source,
			Key:      it.key,
			Score:    score,
			Content:  it.content,
			Metadata: it.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Stable order for equal scores.
		return strings.Compare(results[i].Key, results[j].Key) < 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Len returns the number of indexed vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// cosineSimilarity returns a value in [-1, 1]; mismatched or zero
// vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
