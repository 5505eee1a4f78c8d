package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marianozunino/gallery/internal/gallery"
	"github.com/marianozunino/gallery/internal/model"
	"github.com/marianozunino/gallery/internal/notify"
	"github.com/marianozunino/gallery/internal/utils"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dayStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	nameStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

func kindStyle(kind notify.Kind) (lipgloss.Style, string) {
	switch kind {
	case notify.KindSuccess:
		return successStyle, "✓"
	case notify.KindInfo:
		return infoStyle, "i"
	default:
		return errorStyle, "✗"
	}
}

// toastPrinter renders toasts as they are raised.
func toastPrinter(w io.Writer) func(notify.Toast) {
	return func(t notify.Toast) {
		style, icon := kindStyle(t.Kind)
		fmt.Fprintln(w, style.Render(icon+" "+t.Message))
	}
}

func printNotifications(w io.Writer, notes []notify.Notification) {
	if len(notes) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No notifications."))
		return
	}
	for _, n := range notes {
		style, icon := kindStyle(n.Kind)
		stamp := dimStyle.Render(n.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(w, "%s %s\n", stamp, style.Render(icon+" "+n.Message))
	}
}

func thumbnailState(rec *model.FileRecord) string {
	if rec.ThumbnailURL() == "" {
		return dimStyle.Render("no thumbnail")
	}
	return dimStyle.Render("thumbnail ready")
}

func printGallery(w io.Writer, idx *gallery.Index, now time.Time) {
	days := idx.SortedDates()
	if len(days) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No files yet. Upload some with `gallery upload`."))
		return
	}

	for i, day := range days {
		if i > 0 {
			fmt.Fprintln(w)
		}
		heading, err := utils.FormatDay(day)
		if err != nil {
			heading = day
		}
		recs := idx.Bucket(day)
		fmt.Fprintf(w, "%s %s\n", dayStyle.Render(heading), dimStyle.Render("("+utils.Plural(len(recs), "file")+")"))
		for _, rec := range recs {
			line := fmt.Sprintf("  %s  %s  %s  %s  %s",
				rec.ID,
				nameStyle.Render(rec.Name),
				rec.Type,
				utils.FormatFileSize(rec.Size),
				dimStyle.Render(utils.FormatUploaded(rec.UploadDate, now)),
			)
			if rec.IsImage() || rec.IsVideo() {
				line += "  " + thumbnailState(rec)
			}
			fmt.Fprintln(w, line)
		}
	}
}

func printDetails(w io.Writer, rec *model.FileRecord, loc *time.Location) {
	rows := [][2]string{
		{"ID", rec.ID.String()},
		{"Name", rec.Name},
		{"Type", rec.Type},
		{"Size", utils.FormatFileSize(rec.Size)},
		{"Uploaded", rec.UploadDate.In(loc).Format("January 2, 2006 15:04")},
		{"Thumbnail", orNone(rec.ThumbnailURL())},
		{"Preview", orNone(rec.FullURL())},
	}
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%-10s %s\n", row[0]+":", row[1])
	}
	fmt.Fprint(w, b.String())
	if rec.IsImage() && rec.FullURL() != "" {
		fmt.Fprintln(w, infoStyle.Render("Fullscreen view available for this image."))
	}
}

func orNone(s string) string {
	if s == "" {
		return dimStyle.Render("none")
	}
	return s
}
