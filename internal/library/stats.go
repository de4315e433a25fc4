package library

import (
	"cmp"
	"context"
	"slices"

	"github.com/desertthunder/melophiliacs/internal/models"
	"github.com/desertthunder/melophiliacs/internal/session"
)

// artworkSize is the preferred album image edge in pixels.
const artworkSize = 300

// TopArtists returns the session's most saved artists, served from its own cache slot when present.
func (a *Aggregator) TopArtists(ctx context.Context, sess *session.Session) ([]models.ArtistCount, error) {
	if artists, found, err := a.cache.TopArtists(ctx, sess.Token); err != nil {
		return nil, err
	} else if found {
		return artists, nil
	}

	v, err, _ := a.flight.Do(SlotKey(SlotTopArtists, sess.Token), func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		items, err := a.SavedItems(ctx, sess)
		if err != nil {
			return nil, err
		}
		artists := RankArtists(items, a.cfg.TopArtists)
		if err := a.cache.write(ctx, SlotTopArtists, sess.Token, artists, a.cfg.StatsTTL); err != nil {
			return nil, err
		}
		return artists, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.ArtistCount), nil
}

// TopAlbums returns the albums with the most saved tracks, served from its own cache slot when present.
func (a *Aggregator) TopAlbums(ctx context.Context, sess *session.Session) ([]models.AlbumSummary, error) {
	if albums, found, err := a.cache.TopAlbums(ctx, sess.Token); err != nil {
		return nil, err
	} else if found {
		return albums, nil
	}

	v, err, _ := a.flight.Do(SlotKey(SlotTopAlbums, sess.Token), func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		items, err := a.SavedItems(ctx, sess)
		if err != nil {
			return nil, err
		}
		albums := RankAlbums(items, a.cfg.TopAlbums)
		if err := a.cache.write(ctx, SlotTopAlbums, sess.Token, albums, a.cfg.StatsTTL); err != nil {
			return nil, err
		}
		return albums, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.AlbumSummary), nil
}

// RankArtists counts every credit of each artist name across the saved tracks and returns the
// n most frequent, ordered by count descending then name ascending.
func RankArtists(items []models.SavedItem, n int) []models.ArtistCount {
	counts := make(map[string]int)
	for _, item := range items {
		if item.Track == nil || len(item.Track.Artists) == 0 {
			continue
		}
		for _, artist := range item.Track.Artists {
			if artist.Name != "" {
				counts[artist.Name]++
			}
		}
	}

	ranked := make([]models.ArtistCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, models.ArtistCount{Name: name, Count: count})
	}
	slices.SortFunc(ranked, func(a, b models.ArtistCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return head(ranked, n)
}

// RankAlbums groups saved tracks by album and returns the n albums with the most saved tracks,
// ordered by saved count descending then album key ascending.
func RankAlbums(items []models.SavedItem, n int) []models.AlbumSummary {
	albums := make(map[string]*models.AlbumSummary)
	for _, item := range items {
		if item.Track == nil {
			continue
		}
		album := item.Track.Album
		if album.ID == "" && album.Name == "" {
			continue
		}

		key := models.AlbumKey(album.ID, album.Name)
		summary, ok := albums[key]
		if !ok {
			summary = &models.AlbumSummary{
				ID:          album.ID,
				Name:        album.Name,
				Artists:     albumArtists(item.Track),
				ImageURL:    artwork(album.Images),
				TotalTracks: album.TotalTracks,
				ReleaseDate: album.ReleaseDate,
			}
			albums[key] = summary
		}
		summary.SavedCount++
	}

	ranked := make([]models.AlbumSummary, 0, len(albums))
	for _, summary := range albums {
		ranked = append(ranked, *summary)
	}
	slices.SortFunc(ranked, func(a, b models.AlbumSummary) int {
		if c := cmp.Compare(b.SavedCount, a.SavedCount); c != 0 {
			return c
		}
		return cmp.Compare(a.Key(), b.Key())
	})
	return head(ranked, n)
}

// albumArtists lists the album's credited artists, falling back to the track's.
func albumArtists(track *models.Track) []string {
	source := track.Album.Artists
	if len(source) == 0 {
		source = track.Artists
	}
	names := make([]string, 0, len(source))
	for _, artist := range source {
		if artist.Name != "" {
			names = append(names, artist.Name)
		}
	}
	return names
}

func artwork(images []models.Image) string {
	for _, img := range images {
		if img.Width == artworkSize && img.Height == artworkSize {
			return img.URL
		}
	}
	if len(images) > 0 {
		return images[0].URL
	}
	return ""
}

func head[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}
