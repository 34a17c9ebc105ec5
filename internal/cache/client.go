package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/models"
)

// Fetcher loads a negotiation record from the backend.
type Fetcher interface {
	GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error)
}

// Client writes fetched records through to the Store and serves the last
// snapshot when the backend cannot be reached.
type Client struct {
	fetcher Fetcher
	store   *Store
	log     zerolog.Logger
}

// NewClient wraps fetcher with a write-through snapshot cache.
func NewClient(fetcher Fetcher, store *Store, log zerolog.Logger) *Client {
	return &Client{fetcher: fetcher, store: store, log: log}
}

// GetNegotiation fetches a record from the backend. Backend rejections are
// returned as is; transport failures fall back to the snapshot, flagged
// FromCache.
func (c *Client) GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error) {
	rec, err := c.fetcher.GetNegotiation(ctx, id)
	if err == nil {
		if perr := c.store.Put(rec); perr != nil {
			c.log.Warn().Err(perr).Str("negotiation", id).Msg("snapshot write failed")
		}
		return rec, nil
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) || ctx.Err() != nil {
		return nil, err
	}
	snap, cerr := c.store.Get(id)
	if cerr != nil {
		if !errors.Is(cerr, ErrNotFound) {
			c.log.Warn().Err(cerr).Str("negotiation", id).Msg("snapshot read failed")
		}
		return nil, err
	}
	c.log.Info().Err(err).Str("negotiation", id).Msg("backend unreachable, serving cached snapshot")
	return snap, nil
}
