package models

import (
	"encoding/json"
	"fmt"
)

// Image is an artwork resource. Spotify omits dimensions for some images.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Artist is a simplified Spotify artist.
type Artist struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	URI          string            `json:"uri,omitempty"`
	ExternalURLs map[string]string `json:"external_urls,omitempty"`
}

// Album is a simplified Spotify album as nested in a track.
type Album struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	AlbumType            string            `json:"album_type,omitempty"`
	ReleaseDate          string            `json:"release_date"`
	ReleaseDatePrecision string            `json:"release_date_precision,omitempty"`
	TotalTracks          int               `json:"total_tracks"`
	Images               []Image           `json:"images"`
	Artists              []Artist          `json:"artists"`
	URI                  string            `json:"uri,omitempty"`
	ExternalURLs         map[string]string `json:"external_urls,omitempty"`
}

// Track is a full Spotify track.
type Track struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      []Artist          `json:"artists"`
	Album        Album             `json:"album"`
	DurationMS   int               `json:"duration_ms"`
	Explicit     bool              `json:"explicit"`
	Popularity   int               `json:"popularity"`
	PreviewURL   *string           `json:"preview_url"`
	TrackNumber  int               `json:"track_number,omitempty"`
	DiscNumber   int               `json:"disc_number,omitempty"`
	IsLocal      bool              `json:"is_local"`
	URI          string            `json:"uri"`
	ExternalIDs  map[string]string `json:"external_ids,omitempty"`
	ExternalURLs map[string]string `json:"external_urls,omitempty"`
}

// SavedItem is one entry of the user's saved-tracks library.
//
// Track is nil when Spotify returns an item without a playable track.
type SavedItem struct {
	AddedAt string `json:"added_at"`
	Track   *Track `json:"track"`
}

// SavedItemsPage is a paginated response of saved tracks.
type SavedItemsPage struct {
	Items    []SavedItem `json:"items"`
	Total    int         `json:"total"`
	Limit    int         `json:"limit"`
	Offset   int         `json:"offset"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
}

// ArtistCount pairs an artist display name with the number of saved tracks crediting it.
//
// It is encoded as a two-element JSON array: ["Artist", 3].
type ArtistCount struct {
	Name  string
	Count int
}

func (a ArtistCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{a.Name, a.Count})
}

func (a *ArtistCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("artist count: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &a.Name); err != nil {
		return fmt.Errorf("artist count name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &a.Count); err != nil {
		return fmt.Errorf("artist count value: %w", err)
	}
	return nil
}

// AlbumSummary describes an album represented in the saved library.
type AlbumSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	ImageURL    string   `json:"image_url"`
	TotalTracks int      `json:"total_tracks"`
	SavedCount  int      `json:"saved_count"`
	ReleaseDate string   `json:"release_date"`
}

// Key is the grouping key used when ranking albums.
func (a AlbumSummary) Key() string {
	return AlbumKey(a.ID, a.Name)
}

// AlbumKey joins an album id and name into the key albums are grouped by.
func AlbumKey(id, name string) string {
	return id + "|" + name
}
