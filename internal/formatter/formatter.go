// package formatter renders migration reports, playlists and search results as text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/musiclink/internal/models"
	"github.com/desertthunder/musiclink/internal/shared"
)

// Format names an output format.
type Format string

const (
	Text     Format = "text"
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{Text, JSON, CSV, Markdown}
}

// ParseFormat resolves a format name, accepting "md" and "txt" as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// ReportToCSV converts a MigrationReport to CSV with one row per source track.
func ReportToCSV(report *models.MigrationReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Source Title", "Source Artist", "Matched Title", "Matched Artist", "Matched ID", "Score", "Added"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, m := range report.Matches {
		record := []string{
			strconv.Itoa(i + 1),
			m.Source.Title,
			m.Source.Artist,
			"", "", "",
			strconv.FormatFloat(m.Score, 'f', 1, 64),
			strconv.FormatBool(m.Added),
		}
		if m.Matched != nil {
			record[3], record[4], record[5] = m.Matched.Title, m.Matched.Artist, m.Matched.ExternalID
		}
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

// ReportToMarkdown converts a MigrationReport to Markdown with a summary and a results table.
func ReportToMarkdown(report *models.MigrationReport) []byte {
	var buf bytes.Buffer

	name := report.SourcePlaylistName
	if name == "" {
		name = report.SourcePlaylistID
	}
	fmt.Fprintf(&buf, "# %s\n\n", name)
	fmt.Fprintf(&buf, "**From**: %s (%s)\n", report.SourceProvider.DisplayName(), report.SourcePlaylistID)
	if report.TargetPlaylistID != "" {
		fmt.Fprintf(&buf, "**To**: %s (%s)\n", report.TargetProvider.DisplayName(), report.TargetPlaylistID)
	} else {
		fmt.Fprintf(&buf, "**To**: %s\n", report.TargetProvider.DisplayName())
	}
	fmt.Fprintf(&buf, "**Status**: %s\n", statusLabel(report))
	fmt.Fprintf(&buf, "**Added**: %d of %d (min score %.1f)\n\n", report.Added, report.Total, report.MinScore)

	if len(report.Matches) == 0 {
		return buf.Bytes()
	}

	buf.WriteString("## Tracks\n\n")
	buf.WriteString("| # | Source | Match | Score | Added |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for i, m := range report.Matches {
		match := "-"
		if m.Matched != nil {
			match = mdEscape(trackLabel(*m.Matched))
		}
		added := "no"
		if m.Added {
			added = "yes"
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %.1f | %s |\n", i+1, mdEscape(trackLabel(m.Source)), match, m.Score, added)
	}

	return buf.Bytes()
}

// ReportToText converts a MigrationReport to plain text.
func ReportToText(report *models.MigrationReport) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Migration: %s\n", report.ID)
	fmt.Fprintf(&buf, "Source: %s playlist %s", report.SourceProvider.DisplayName(), report.SourcePlaylistID)
	if report.SourcePlaylistName != "" {
		fmt.Fprintf(&buf, " (%s)", report.SourcePlaylistName)
	}
	buf.WriteString("\n")
	if report.TargetPlaylistID != "" {
		created := ""
		if report.CreatedNewPlaylist {
			created = " (created)"
		}
		fmt.Fprintf(&buf, "Target: %s playlist %s%s\n", report.TargetProvider.DisplayName(), report.TargetPlaylistID, created)
	}
	fmt.Fprintf(&buf, "Status: %s\n", statusLabel(report))
	fmt.Fprintf(&buf, "Tracks: %d total, %d added, %d failed\n\n", report.Total, report.Added, report.Failed)

	for i, m := range report.Matches {
		mark := "✗"
		if m.Added {
			mark = "✓"
		}
		line := fmt.Sprintf("%d. %s %s", i+1, mark, trackLabel(m.Source))
		if m.Matched != nil {
			line += fmt.Sprintf(" -> %s", trackLabel(*m.Matched))
		}
		fmt.Fprintf(&buf, "%s [%.1f]\n", line, m.Score)
	}

	return buf.Bytes()
}

// ReportToJSON converts a MigrationReport to indented JSON.
func ReportToJSON(report *models.MigrationReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderReport returns report encoded in format.
func RenderReport(report *models.MigrationReport, format Format) ([]byte, error) {
	switch format {
	case Text, "":
		return ReportToText(report), nil
	case JSON:
		return ReportToJSON(report)
	case CSV:
		return ReportToCSV(report)
	case Markdown:
		return ReportToMarkdown(report), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteReport renders report in format to w.
func WriteReport(w io.Writer, report *models.MigrationReport, format Format) error {
	data, err := RenderReport(report, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteReportFile renders report in format to a file at path.
func WriteReportFile(report *models.MigrationReport, path string, format Format) error {
	data, err := RenderReport(report, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}

// Summary returns a short styled summary of report for terminal display.
func Summary(report *models.MigrationReport) string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("%s → %s", report.SourceProvider.DisplayName(), report.TargetProvider.DisplayName())))
	b.WriteString("\n")

	switch {
	case report.Status == models.StatusNoTracks:
		b.WriteString(styles.warn.Render("Source playlist has no tracks; nothing was migrated."))
	case report.DryRun:
		matched := 0
		for _, m := range report.Matches {
			if m.Matched != nil {
				matched++
			}
		}
		b.WriteString(styles.ok.Render(fmt.Sprintf("Dry run: %d of %d tracks would be added", matched, report.Total)))
	case report.Failed == 0:
		b.WriteString(styles.ok.Render(fmt.Sprintf("All %d tracks added", report.Total)))
	default:
		b.WriteString(styles.ok.Render(fmt.Sprintf("%d added", report.Added)))
		b.WriteString(", ")
		b.WriteString(styles.err.Render(fmt.Sprintf("%d not added", report.Failed)))
		b.WriteString(fmt.Sprintf(" of %d", report.Total))
	}

	if report.TargetPlaylistID != "" {
		b.WriteString("\n")
		b.WriteString(styles.help.Render(fmt.Sprintf("target playlist: %s", report.TargetPlaylistID)))
	}
	return b.String()
}

// PlaylistsToText lists playlists, one per line.
func PlaylistsToText(provider models.Provider, playlists []models.Playlist) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s playlists: %d\n\n", provider.DisplayName(), len(playlists))
	for i, p := range playlists {
		fmt.Fprintf(&buf, "%d. %s (%d tracks) [%s]", i+1, p.Name, p.TrackCount, p.ID)
		if p.Visibility != "" {
			fmt.Fprintf(&buf, " %s", p.Visibility)
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// TracksToText lists tracks under a provider heading, or the provider's error when err is set.
func TracksToText(provider models.Provider, tracks []models.Track, err error) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s:\n", provider.DisplayName())
	switch {
	case err != nil:
		fmt.Fprintf(&buf, "  error: %v\n", err)
	case len(tracks) == 0:
		buf.WriteString("  no results\n")
	default:
		for i, t := range tracks {
			fmt.Fprintf(&buf, "  %d. %s [%s]\n", i+1, trackLabel(t), t.ExternalID)
		}
	}
	return buf.Bytes()
}

// LinkStatusToText renders link status lines.
func LinkStatusToText(statuses []models.LinkStatus) []byte {
	var buf bytes.Buffer

	for _, s := range statuses {
		switch {
		case !s.Linked:
			fmt.Fprintf(&buf, "%s: not linked\n", s.Provider.DisplayName())
		case s.Refreshable:
			fmt.Fprintf(&buf, "%s: linked (token expires %s, refreshable)\n", s.Provider.DisplayName(), s.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		default:
			fmt.Fprintf(&buf, "%s: linked (token expires %s)\n", s.Provider.DisplayName(), s.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		}
	}
	return buf.Bytes()
}

func statusLabel(report *models.MigrationReport) string {
	if report.DryRun && report.Status == models.StatusOK {
		return "dry run"
	}
	return report.Status
}

func trackLabel(t models.Track) string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
