// package formatter renders favorites and import runs for the terminal and for export (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/rpansync/internal/models"
)

// Format names accepted by [Export].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func blacklist(s models.UserSubscription) string {
	if len(s.SubredditBlacklist) == 0 {
		return "-"
	}
	return strings.Join(s.SubredditBlacklist, ";")
}

// SubscriptionsToCSV converts favorites to CSV format with columns: Username, Notify, Cooldown, Sound, Blacklist, Icon
func SubscriptionsToCSV(subs []models.UserSubscription) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Username", "Notify", "Cooldown", "Sound", "Blacklist", "Icon"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range subs {
		record := []string{
			s.Username,
			onOff(s.Notify),
			onOff(s.Cooldown),
			s.Sound,
			strings.Join(s.SubredditBlacklist, ";"),
			s.IconURL,
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

// SubscriptionsToMarkdown renders favorites as a Markdown table with avatar thumbnails.
func SubscriptionsToMarkdown(subs []models.UserSubscription) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Favorite broadcasters\n\n")
	buf.WriteString(fmt.Sprintf("**Favorites**: %d\n\n", len(subs)))

	if len(subs) == 0 {
		return buf.Bytes(), nil
	}

	buf.WriteString("| | Username | Notify | Cooldown | Sound | Blacklist |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range subs {
		icon := ""
		if s.HasIcon() {
			icon = fmt.Sprintf("<img src=\"%s\" width=\"24\">", s.IconURL)
		}
		buf.WriteString(fmt.Sprintf("| %s | [u/%s](https://www.reddit.com/user/%s) | %s | %s | %s | %s |\n",
			icon, s.Username, s.Username, onOff(s.Notify), onOff(s.Cooldown), s.SoundDisplayName(), blacklist(s)))
	}

	return buf.Bytes(), nil
}

// SubscriptionsToText renders favorites as an aligned plain text table.
func SubscriptionsToText(subs []models.UserSubscription) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Favorites: %d\n\n", len(subs)))
	if len(subs) == 0 {
		return buf.Bytes(), nil
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tUSERNAME\tNOTIFY\tCOOLDOWN\tSOUND\tBLACKLIST")
	for i, s := range subs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, s.Username, onOff(s.Notify), onOff(s.Cooldown), s.SoundDisplayName(), blacklist(s))
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}

	return buf.Bytes(), nil
}

// SubscriptionsToJSON renders favorites in their stored JSON shape.
func SubscriptionsToJSON(subs []models.UserSubscription, pretty bool) ([]byte, error) {
	if subs == nil {
		subs = []models.UserSubscription{}
	}
	if pretty {
		return json.MarshalIndent(subs, "", "  ")
	}
	return json.Marshal(subs)
}

// Export renders favorites in the named format.
func Export(subs []models.UserSubscription, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return SubscriptionsToText(subs)
	case FormatCSV:
		return SubscriptionsToCSV(subs)
	case FormatMarkdown, "md":
		return SubscriptionsToMarkdown(subs)
	case FormatJSON:
		return SubscriptionsToJSON(subs, true)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// WriteExport renders favorites and writes them to path.
//
// Defaults to favorites.{ext} when path is empty.
func WriteExport(subs []models.UserSubscription, format, path string) (string, error) {
	data, err := Export(subs, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = "favorites." + extension(format)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

func extension(format string) string {
	switch strings.ToLower(format) {
	case FormatCSV:
		return "csv"
	case FormatMarkdown, "md":
		return "md"
	case FormatJSON:
		return "json"
	default:
		return "txt"
	}
}

// RunsToText renders import run history, newest first as stored.
func RunsToText(runs []*models.ImportRun) ([]byte, error) {
	var buf bytes.Buffer

	if len(runs) == 0 {
		buf.WriteString("No imports recorded\n")
		return buf.Bytes(), nil
	}

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATE\tPAGES\tFETCHED\tADDED\tDURATION\tERROR")
	for _, run := range runs {
		duration := "-"
		if run.FinishedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		errText := run.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime), run.State, run.Pages, run.Fetched, run.Added, duration, errText)
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush table: %w", err)
	}

	return buf.Bytes(), nil
}
