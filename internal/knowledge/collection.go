package knowledge

import (
	"context"
	"log/slog"
	"time"
)

// RetrieveTimeout bounds one curated retrieval end to end, embedding and
// similarity query included.
const RetrieveTimeout = 20 * time.Second

// searcher is the slice of Store used by CollectionSource.
type searcher interface {
	Search(ctx context.Context, collection, query string, topK int) ([]Passage, error)
}

// CollectionSource adapts one curated collection in the Store to the Source
// interface. Failures, timeouts, and empty results all degrade to the
// sentinel passage so the answer step can proceed on the model's own
// knowledge.
type CollectionSource struct {
	store      searcher
	collection string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewCollectionSource creates a Source over a named collection.
func NewCollectionSource(store searcher, collection string, logger *slog.Logger) *CollectionSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollectionSource{
		store:      store,
		collection: collection,
		timeout:    RetrieveTimeout,
		logger:     logger,
	}
}

// Collection returns the collection name this source searches.
func (c *CollectionSource) Collection() string { return c.collection }

// Retrieve implements Source. It never returns an error together with
// usable passages; retrieval failures and timeouts are logged and degrade
// to the sentinel, while cancellation of the caller's context is
// propagated.
func (c *CollectionSource) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	passages, err := c.store.Search(callCtx, c.collection, query, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("collection search failed, returning sentinel",
			"collection", c.collection, "error", err)
		return []Passage{SentinelPassage(c.collection)}, nil
	}
	if len(passages) == 0 {
		return []Passage{SentinelPassage(c.collection)}, nil
	}
	return passages, nil
}
