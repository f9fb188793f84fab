// Package vector wraps the embedded chromem-go database behind the memory
// engine's vector index contract: a single "memories" collection holding
// one record per memory id, searched by L2 distance over unit-normalized
// embeddings.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/scrypster/engram/internal/ids"
	"github.com/scrypster/engram/pkg/types"
)

// collectionName is the single collection every memory record lives in.
const collectionName = "memories"

// Vector store errors.
var (
	// ErrInvalidID indicates a memory id that is not a valid ULID.
	ErrInvalidID = errors.New("invalid memory id")

	// ErrDimensionMismatch indicates an embedding whose length differs
	// from the store's configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidFilter indicates a memory type filter outside the enum.
	ErrInvalidFilter = errors.New("invalid memory type filter")
)

// Record is one row of the vector index.
type Record struct {
	MemoryID   string
	MemoryType types.MemoryType
	Content    string
	CreatedAt  time.Time

	// Distance is the L2 distance to the query vector; zero for records
	// returned by non-search reads.
	Distance float64
}

// Store is an embedded vector index. The collection is created lazily on
// first write; concurrent first-writes resolve to a single creation.
type Store struct {
	db   *chromem.DB
	dims int

	mu  sync.Mutex
	col *chromem.Collection
}

// Open opens (or creates) a persistent vector store under dir. Embeddings
// must have length dims.
func Open(dir string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	return &Store{db: db, dims: dims}, nil
}

// OpenInMemory creates an ephemeral vector store, used by tests and the
// in-memory database mode.
func OpenInMemory(dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}
	return &Store{db: chromem.NewDB(), dims: dims}, nil
}

// Add inserts one record. The id must be a structurally valid ULID and the
// vector must match the configured dimensionality.
func (s *Store) Add(ctx context.Context, memoryID string, memoryType types.MemoryType, vec []float32, content string, createdAt time.Time) error {
	doc, err := s.document(memoryID, memoryType, vec, content, createdAt)
	if err != nil {
		return err
	}

	col, err := s.ensure()
	if err != nil {
		return err
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add vector for %s: %w", memoryID, err)
	}
	return nil
}

// AddBatch inserts many records. Every record is validated before any
// write; an empty batch is a no-op. All-or-nothing is not guaranteed.
func (s *Store) AddBatch(ctx context.Context, records []Record, vecs [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(vecs) {
		return fmt.Errorf("got %d records but %d vectors", len(records), len(vecs))
	}

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		doc, err := s.document(rec.MemoryID, rec.MemoryType, vecs[i], rec.Content, rec.CreatedAt)
		if err != nil {
			return err
		}
		docs[i] = doc
	}

	col, err := s.ensure()
	if err != nil {
		return err
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add vector batch: %w", err)
	}
	return nil
}

// Search returns up to limit records ordered by ascending L2 distance to
// the query vector. A non-empty typeFilter restricts results to one memory
// type and is refused outside the enum.
func (s *Store) Search(ctx context.Context, query []float32, limit int, typeFilter types.MemoryType) ([]Record, error) {
	if len(query) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.dims)
	}
	if typeFilter != "" && !types.IsValidMemoryType(typeFilter) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, typeFilter)
	}
	if limit <= 0 {
		return nil, nil
	}

	col := s.peek()
	if col == nil {
		return nil, nil
	}

	// chromem rejects nResults above the collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	var where map[string]string
	if typeFilter != "" {
		where = map[string]string{"memory_type": string(typeFilter)}
	}

	results, err := col.QueryEmbedding(ctx, query, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, res := range results {
		rec, err := recordFromResult(res)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes the record with the given id. Deleting an id that is not
// present (or an empty store) is a no-op.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	if !ids.Valid(memoryID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, memoryID)
	}

	col := s.peek()
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, memoryID); err != nil {
		return fmt.Errorf("failed to delete vector for %s: %w", memoryID, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	col := s.peek()
	if col == nil {
		return 0
	}
	return col.Count()
}

// List returns every stored record. chromem has no scan primitive, so the
// repair pass reads the whole collection with a basis-vector query sized
// to the collection count.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	col := s.peek()
	if col == nil {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	probe := make([]float32, s.dims)
	probe[0] = 1

	results, err := col.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, res := range results {
		rec, err := recordFromResult(res)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// document validates one record and converts it to a chromem document.
func (s *Store) document(memoryID string, memoryType types.MemoryType, vec []float32, content string, createdAt time.Time) (chromem.Document, error) {
	if !ids.Valid(memoryID) {
		return chromem.Document{}, fmt.Errorf("%w: %q", ErrInvalidID, memoryID)
	}
	if !types.IsValidMemoryType(memoryType) {
		return chromem.Document{}, fmt.Errorf("%w: %q", ErrInvalidFilter, memoryType)
	}
	if len(vec) != s.dims {
		return chromem.Document{}, fmt.Errorf("%w: got %d, want %d for %s", ErrDimensionMismatch, len(vec), s.dims, memoryID)
	}

	return chromem.Document{
		ID:        memoryID,
		Embedding: vec,
		Content:   content,
		Metadata: map[string]string{
			"memory_type": string(memoryType),
			"created_at":  types.FormatTimestamp(createdAt),
		},
	}, nil
}

// ensure returns the collection, creating it on first use. The mutex makes
// concurrent first-writes resolve to a single creation.
func (s *Store) ensure() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.col != nil {
		return s.col, nil
	}

	col, err := s.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector collection: %w", err)
	}
	s.col = col
	return col, nil
}

// peek returns the collection if it exists (in memory or on disk) without
// creating it, so read paths on an empty store stay write-free.
func (s *Store) peek() *chromem.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.col == nil {
		s.col = s.db.GetCollection(collectionName, nil)
	}
	return s.col
}

func recordFromResult(res chromem.Result) (Record, error) {
	createdAt, err := types.ParseTimestamp(res.Metadata["created_at"])
	if err != nil {
		return Record{}, fmt.Errorf("failed to parse created_at for vector %s: %w", res.ID, err)
	}
	return Record{
		MemoryID:   res.ID,
		MemoryType: types.MemoryType(res.Metadata["memory_type"]),
		Content:    res.Content,
		CreatedAt:  createdAt,
		Distance:   distanceFromSimilarity(res.Similarity),
	}, nil
}

// distanceFromSimilarity converts chromem's cosine similarity to L2
// distance. For unit vectors, d = sqrt(2 - 2*cos); the clamp guards
// against float drift pushing the radicand below zero.
func distanceFromSimilarity(sim float32) float64 {
	d2 := 2 - 2*float64(sim)
	if d2 < 0 {
		d2 = 0
	}
	return math.Sqrt(d2)
}
