package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/melophiliacs/internal/formatter"
)

var _ Painter = (*Palette)(nil)

// FormatPretty selects the styled terminal rendering in the CLI.
const FormatPretty = "pretty"

func Title(s string) string   { return styles.title.Render(s) }
func Success(s string) string { return styles.ok.Render(s) }
func Error(s string) string   { return styles.err.Render(s) }
func Warning(s string) string { return styles.warn.Render(s) }
func Help(s string) string    { return styles.help.Render(s) }

// RenderReport draws the cached statistics of a session as styled tables.
func RenderReport(r *formatter.Report) string {
	var b strings.Builder

	b.WriteString(Title("Session " + r.Session))
	b.WriteString("\n")
	if r.HasSavedItems {
		b.WriteString(Success(fmt.Sprintf("%d saved tracks", len(r.SavedItems))))
		b.WriteString(Help(" (" + formatter.FormatDuration(r.SavedDuration()) + ")"))
	} else {
		b.WriteString(Warning("saved tracks not cached"))
	}
	b.WriteString("\n\n")

	b.WriteString(Title("Top Artists"))
	b.WriteString("\n")
	if r.HasArtists {
		rows := make([][]string, len(r.Artists))
		for i, a := range r.Artists {
			rows[i] = []string{strconv.Itoa(i + 1), a.Name, strconv.Itoa(a.Count)}
		}
		b.WriteString(newTable([]string{"#", "Artist", "Saved"}, rows))
	} else {
		b.WriteString(Warning("not cached"))
	}
	b.WriteString("\n\n")

	b.WriteString(Title("Top Albums"))
	b.WriteString("\n")
	if r.HasAlbums {
		rows := make([][]string, len(r.Albums))
		for i, a := range r.Albums {
			rows[i] = []string{strconv.Itoa(i + 1), a.Name, strings.Join(a.Artists, ", "), fmt.Sprintf("%d/%d", a.SavedCount, a.TotalTracks)}
		}
		b.WriteString(newTable([]string{"#", "Album", "Artists", "Saved"}, rows))
	} else {
		b.WriteString(Warning("not cached"))
	}
	b.WriteString("\n")

	return b.String()
}

func newTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.header
			}
			return styles.cell
		}).
		Render()
}
