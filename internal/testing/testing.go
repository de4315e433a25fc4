// package testing contains shared testing utilities
package testing

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/desertthunder/melophiliacs/internal/models"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// SavedItem builds a saved item for a track credited to artists on the given album.
func SavedItem(trackID string, artists []string, albumID, albumName string) models.SavedItem {
	credited := make([]models.Artist, len(artists))
	for i, name := range artists {
		credited[i] = models.Artist{ID: "artist-" + name, Name: name}
	}

	return models.SavedItem{
		AddedAt: "2024-01-01T00:00:00Z",
		Track: &models.Track{
			ID:      trackID,
			Name:    "Track " + trackID,
			Artists: credited,
			Album: models.Album{
				ID:          albumID,
				Name:        albumName,
				ReleaseDate: "2020-01-01",
				TotalTracks: 12,
				Artists:     credited,
				Images: []models.Image{
					{URL: "https://i.scdn.co/" + albumID + "-640", Height: 640, Width: 640},
					{URL: "https://i.scdn.co/" + albumID + "-300", Height: 300, Width: 300},
					{URL: "https://i.scdn.co/" + albumID + "-64", Height: 64, Width: 64},
				},
			},
		},
	}
}

// SavedItems builds n distinct saved items whose track ids encode their position ("t0000", "t0001", ...).
func SavedItems(n int) []models.SavedItem {
	items := make([]models.SavedItem, n)
	for i := range items {
		items[i] = SavedItem(fmt.Sprintf("t%04d", i), []string{fmt.Sprintf("Artist %d", i%7)}, fmt.Sprintf("al%d", i%5), fmt.Sprintf("Album %d", i%5))
	}
	return items
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
