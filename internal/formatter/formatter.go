// package formatter renders cached library statistics as plain text, Markdown, CSV, or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/melophiliacs/internal/models"
	"github.com/desertthunder/melophiliacs/internal/shared"
)

// Supported output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
	FormatJSON     = "json"
)

// Formats lists the values accepted by [Render].
var Formats = []string{FormatText, FormatMarkdown, FormatCSV, FormatJSON}

// Report is what is cached for one session. A slot that was not cached has its Has* field unset.
type Report struct {
	Session       string                `json:"session"`
	HasSavedItems bool                  `json:"-"`
	SavedItems    []models.SavedItem    `json:"-"`
	HasArtists    bool                  `json:"-"`
	Artists       []models.ArtistCount  `json:"top_artists"`
	HasAlbums     bool                  `json:"-"`
	Albums        []models.AlbumSummary `json:"top_albums"`
}

// SavedCount returns the number of cached saved items, or -1 when none are cached.
func (r *Report) SavedCount() int {
	if !r.HasSavedItems {
		return -1
	}
	return len(r.SavedItems)
}

// SavedDuration sums the duration in milliseconds of the cached saved tracks.
func (r *Report) SavedDuration() int {
	total := 0
	for _, item := range r.SavedItems {
		if item.Track != nil {
			total += item.Track.DurationMS
		}
	}
	return total
}

// Render converts r into the named format.
func Render(r *Report, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return ExportToText(r)
	case FormatMarkdown, "md":
		return ExportToMarkdown(r)
	case FormatCSV:
		return ExportToCSV(r)
	case FormatJSON:
		return ExportToJSON(r)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// ExportToCSV writes one row per ranked entry with columns: Kind, Rank, Name, Artists, Count
func ExportToCSV(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Kind", "Rank", "Name", "Artists", "Count"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, artist := range r.Artists {
		record := []string{"artist", strconv.Itoa(i + 1), artist.Name, artist.Name, strconv.Itoa(artist.Count)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	for i, album := range r.Albums {
		record := []string{"album", strconv.Itoa(i + 1), album.Name, strings.Join(album.Artists, "; "), strconv.Itoa(album.SavedCount)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the report as a Markdown document with one section per statistic
func ExportToMarkdown(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Library for session %s\n\n", r.Session))
	buf.WriteString(fmt.Sprintf("**Saved tracks**: %s\n", savedSummary(r)))
	if r.HasSavedItems {
		buf.WriteString(fmt.Sprintf("**Listening time**: %s\n", FormatDuration(r.SavedDuration())))
	}
	buf.WriteString("\n")

	buf.WriteString("## Top Artists\n\n")
	if !r.HasArtists {
		buf.WriteString("_not cached_\n")
	}
	for i, artist := range r.Artists {
		buf.WriteString(fmt.Sprintf("%d. %s (%d)\n", i+1, artist.Name, artist.Count))
	}

	buf.WriteString("\n## Top Albums\n\n")
	if !r.HasAlbums {
		buf.WriteString("_not cached_\n")
	}
	for i, album := range r.Albums {
		cover := ""
		if album.ImageURL != "" {
			cover = fmt.Sprintf(" ![cover](%s)", album.ImageURL)
		}
		buf.WriteString(fmt.Sprintf("%d. **%s** - %s [%d/%d saved]%s\n",
			i+1, album.Name, strings.Join(album.Artists, ", "), album.SavedCount, album.TotalTracks, cover))
	}

	return buf.Bytes(), nil
}

// ExportToText renders the report as plain text
func ExportToText(r *Report) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Session: %s\n", r.Session))
	buf.WriteString(fmt.Sprintf("Saved tracks: %s\n\n", savedSummary(r)))

	buf.WriteString("Top artists:\n")
	if !r.HasArtists {
		buf.WriteString("  (not cached)\n")
	}
	for i, artist := range r.Artists {
		buf.WriteString(fmt.Sprintf("%3d. %s (%d)\n", i+1, artist.Name, artist.Count))
	}

	buf.WriteString("\nTop albums:\n")
	if !r.HasAlbums {
		buf.WriteString("  (not cached)\n")
	}
	for i, album := range r.Albums {
		buf.WriteString(fmt.Sprintf("%3d. %s - %s (%d)\n", i+1, strings.Join(album.Artists, ", "), album.Name, album.SavedCount))
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders the ranked statistics with the saved track count as indented JSON
func ExportToJSON(r *Report) ([]byte, error) {
	rep := *r
	out := struct {
		*Report
		SavedTracks int `json:"saved_tracks"`
	}{&rep, r.SavedCount()}
	if out.Artists == nil {
		out.Artists = []models.ArtistCount{}
	}
	if out.Albums == nil {
		out.Albums = []models.AlbumSummary{}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteExport renders r in format and writes it to path.
func WriteExport(r *Report, format, path string) error {
	data, err := Render(r, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FormatDuration formats milliseconds as H:MM:SS, or M:SS under an hour.
func FormatDuration(ms int) string {
	seconds := ms / 1000
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func savedSummary(r *Report) string {
	if !r.HasSavedItems {
		return "not cached"
	}
	return strconv.Itoa(len(r.SavedItems))
}
