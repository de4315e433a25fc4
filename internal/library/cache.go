package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/melophiliacs/internal/kvs"
	"github.com/desertthunder/melophiliacs/internal/metrics"
	"github.com/desertthunder/melophiliacs/internal/models"
	"github.com/desertthunder/melophiliacs/internal/shared"
)

// Session-scoped cache slots.
const (
	SlotSavedItems = "saved_items"
	SlotTopArtists = "top_artists"
	SlotTopAlbums  = "top_albums"
)

var slots = []string{SlotSavedItems, SlotTopArtists, SlotTopAlbums}

// SlotKey returns the store key of slot for a session token, e.g. "saved_items:{token}".
func SlotKey(slot, token string) string {
	return slot + ":" + token
}

// Cache reads and writes the JSON-encoded collections cached per session.
//
// A stored empty list is a hit.
type Cache struct {
	kv      kvs.Store
	metrics *metrics.Metrics
}

func NewCache(kv kvs.Store, m *metrics.Metrics) *Cache {
	return &Cache{kv: kv, metrics: m}
}

// Keys returns every cache key belonging to token.
func (c *Cache) Keys(token string) []string {
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = SlotKey(slot, token)
	}
	return keys
}

func (c *Cache) SavedItems(ctx context.Context, token string) ([]models.SavedItem, bool, error) {
	var items []models.SavedItem
	found, err := c.read(ctx, SlotSavedItems, token, &items)
	return items, found, err
}

func (c *Cache) TopArtists(ctx context.Context, token string) ([]models.ArtistCount, bool, error) {
	var artists []models.ArtistCount
	found, err := c.read(ctx, SlotTopArtists, token, &artists)
	return artists, found, err
}

func (c *Cache) TopAlbums(ctx context.Context, token string) ([]models.AlbumSummary, bool, error) {
	var albums []models.AlbumSummary
	found, err := c.read(ctx, SlotTopAlbums, token, &albums)
	return albums, found, err
}

func (c *Cache) read(ctx context.Context, slot, token string, dst any) (bool, error) {
	data, found, err := c.kv.Get(ctx, SlotKey(slot, token))
	if err != nil {
		return false, fmt.Errorf("%w: reading %s: %v", shared.ErrStoreUnavailable, slot, err)
	}
	c.metrics.CacheLookup(slot, found)
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("%w: corrupt %s entry: %v", shared.ErrStoreUnavailable, slot, err)
	}
	return true, nil
}

// write stores v in slot. A nil slice is stored as [] so it reads back as a hit.
func (c *Cache) write(ctx context.Context, slot, token string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", shared.ErrCachePersist, slot, err)
	}
	if string(data) == "null" {
		data = []byte("[]")
	}
	if err := c.kv.Set(ctx, SlotKey(slot, token), data, ttl); err != nil {
		return fmt.Errorf("%w: writing %s: %v", shared.ErrCachePersist, slot, err)
	}
	return nil
}
