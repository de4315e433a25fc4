package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/melophiliacs/internal/models"
	"github.com/desertthunder/melophiliacs/internal/shared"
	th "github.com/desertthunder/melophiliacs/internal/testing"
)

func sampleReport() *Report {
	items := []models.SavedItem{
		th.SavedItem("t1", []string{"Artist One"}, "al1", "Album One"),
		th.SavedItem("t2", []string{"Artist One", "Artist Two"}, "al1", "Album One"),
	}
	items[0].Track.DurationMS = 180000
	items[1].Track.DurationMS = 240000

	return &Report{
		Session:       "abcd...wxyz",
		HasSavedItems: true,
		SavedItems:    items,
		HasArtists:    true,
		Artists:       []models.ArtistCount{{Name: "Artist One", Count: 2}, {Name: "Artist Two", Count: 1}},
		HasAlbums:     true,
		Albums: []models.AlbumSummary{{
			ID: "al1", Name: "Album One", Artists: []string{"Artist One", "Artist Two"},
			ImageURL: "https://i.scdn.co/al1-300", TotalTracks: 12, SavedCount: 2,
		}},
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleReport())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "Kind,Rank,Name,Artists,Count\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "artist,1,Artist One,Artist One,2") {
			t.Errorf("CSV missing top artist row, got: %s", output)
		}
		if !strings.Contains(output, "album,1,Album One,Artist One; Artist Two,2") {
			t.Errorf("CSV missing album row, got: %s", output)
		}
		if lines := strings.Count(output, "\n"); lines != 4 {
			t.Errorf("expected 4 lines, got %d", lines)
		}
	})

	t.Run("ExportToCSV Escapes Commas", func(t *testing.T) {
		r := &Report{HasArtists: true, Artists: []models.ArtistCount{{Name: "Crosby, Stills & Nash", Count: 1}}}
		data, err := ExportToCSV(r)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}
		if !strings.Contains(string(data), `"Crosby, Stills & Nash"`) {
			t.Errorf("expected quoted name, got: %s", data)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(sampleReport())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Library for session abcd...wxyz",
			"**Saved tracks**: 2",
			"**Listening time**: 7:00",
			"## Top Artists",
			"1. Artist One (2)",
			"2. Artist Two (1)",
			"1. **Album One** - Artist One, Artist Two [2/12 saved] ![cover](https://i.scdn.co/al1-300)",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToMarkdown Not Cached", func(t *testing.T) {
		data, err := ExportToMarkdown(&Report{Session: "****"})
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		if strings.Count(string(data), "_not cached_") != 2 {
			t.Errorf("expected both sections marked not cached, got:\n%s", data)
		}
		if strings.Contains(string(data), "Listening time") {
			t.Errorf("listening time shown without cached items")
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(sampleReport())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Session: abcd...wxyz") {
			t.Errorf("text missing session, got:\n%s", output)
		}
		if !strings.Contains(output, "  1. Artist One (2)") {
			t.Errorf("text missing artist line, got:\n%s", output)
		}
		if !strings.Contains(output, "  1. Artist One, Artist Two - Album One (2)") {
			t.Errorf("text missing album line, got:\n%s", output)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(sampleReport())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var decoded struct {
			Session     string                `json:"session"`
			SavedTracks int                   `json:"saved_tracks"`
			Artists     []models.ArtistCount  `json:"top_artists"`
			Albums      []models.AlbumSummary `json:"top_albums"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, data)
		}
		if decoded.SavedTracks != 2 || len(decoded.Artists) != 2 || len(decoded.Albums) != 1 {
			t.Errorf("unexpected report %+v", decoded)
		}
		if decoded.Artists[0] != (models.ArtistCount{Name: "Artist One", Count: 2}) {
			t.Errorf("unexpected top artist %+v", decoded.Artists[0])
		}
	})

	t.Run("ExportToJSON Empty", func(t *testing.T) {
		data, err := ExportToJSON(&Report{})
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}
		output := string(data)
		if !strings.Contains(output, `"top_artists": []`) || !strings.Contains(output, `"saved_tracks": -1`) {
			t.Errorf("unexpected empty report:\n%s", output)
		}
	})
}

func TestRender(t *testing.T) {
	r := sampleReport()
	for _, format := range append(Formats, "", "MD") {
		t.Run("Format "+format, func(t *testing.T) {
			data, err := Render(r, format)
			if err != nil {
				t.Fatalf("Render(%q) failed: %v", format, err)
			}
			if len(data) == 0 {
				t.Errorf("Render(%q) returned no output", format)
			}
		})
	}

	t.Run("Unknown Format", func(t *testing.T) {
		_, err := Render(r, "yaml")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("Writes File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.md")
		if err := WriteExport(sampleReport(), FormatMarkdown, path); err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.HasPrefix(content, "# Library") {
			t.Errorf("unexpected content:\n%s", content)
		}
	})

	t.Run("Bad Directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "report.csv")
		if err := WriteExport(sampleReport(), FormatCSV, path); err == nil {
			t.Error("expected error for missing directory")
		}
	})
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0:00"},
		{59000, "0:59"},
		{420000, "7:00"},
		{3723000, "1:02:03"},
	}
	for _, tc := range tests {
		if got := FormatDuration(tc.ms); got != tc.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}
