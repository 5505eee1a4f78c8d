package utils

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marianozunino/gallery/internal/model"
)

// FormatFileSize converts bytes to human-readable format
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(size))
}

// FormatDay renders a day key as a heading, e.g. "March 1, 2024".
func FormatDay(day string) (string, error) {
	t, err := time.Parse(model.DayLayout, day)
	if err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", day, err)
	}
	return t.Format("January 2, 2006"), nil
}

// FormatUploaded describes when t happened relative to now.
func FormatUploaded(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// Plural picks the singular or plural form of noun for n.
func Plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), noun)
}
