package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// VectorDimension is the embedding dimension stored in pgvector.
// gemini-embedding-001 is truncated to this size via OutputDimensionality.
const VectorDimension = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 15 * time.Second

// MaxPassageLength caps stored passage text.
const MaxPassageLength = 8192

// MaxSearchQueryLen caps the query text sent to the embedder.
const MaxSearchQueryLen = 2048

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages curated passages backed by PostgreSQL + pgvector.
// Passages are grouped into named collections and searched by cosine
// similarity.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a passage Store.
func NewStore(db querier, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := int32(VectorDimension)
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add inserts one passage into a collection. Exact duplicates within a
// collection are ignored.
func (s *Store) Add(ctx context.Context, collection, sourceID, text string) error {
	if collection == "" {
		return fmt.Errorf("collection is required")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("passage text is required")
	}
	if len(text) > MaxPassageLength {
		return fmt.Errorf("passage length %d exceeds maximum %d", len(text), MaxPassageLength)
	}
	if sourceID == "" {
		sourceID = collection
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, text)
	if err != nil {
		return fmt.Errorf("embedding passage: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO passages (collection, source_id, content, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (collection, md5(content)) DO NOTHING`,
		collection, sourceID, text, vec,
	)
	if err != nil {
		return fmt.Errorf("inserting passage: %w", err)
	}
	return nil
}

// Search finds passages in a collection similar to the query.
// Returns up to topK results ordered by cosine similarity descending.
// An empty query or collection yields no results without touching the
// embedder.
func (s *Store) Search(ctx context.Context, collection, query string, topK int) ([]Passage, error) {
	if query == "" || collection == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 4
	}
	if len(query) > MaxSearchQueryLen {
		query = query[:MaxSearchQueryLen]
	}
	if strings.ContainsRune(query, 0) {
		return nil, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT source_id, content
		 FROM passages
		 WHERE collection = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		collection, vec, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.SourceID, &p.Text); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}
	return passages, nil
}

// Count reports the number of passages stored in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM passages WHERE collection = $1`, collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return n, nil
}
