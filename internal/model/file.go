package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marianozunino/gallery/internal/apperr"
)

// DayLayout is the canonical form of a gallery date key.
const DayLayout = "2006-01-02"

// ID identifies a remote file. The API sends strings, but numeric ids are
// accepted and kept in their decimal form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// FileRecord is a remote media object as the client sees it. Records are
// always shared by pointer: the gallery index, the preview cache and the
// current selection all observe the same instance.
type FileRecord struct {
	ID         ID        `json:"id"`
	ThumbID    ID        `json:"thumbId"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"uploadDate"`

	mu           sync.RWMutex
	thumbnailURL string
	fullURL      string
}

// ThumbnailURL is the local object URL of the thumbnail, or "" until loaded.
func (f *FileRecord) ThumbnailURL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.thumbnailURL
}

// FullURL is the local object URL of the full media, or "" until loaded.
func (f *FileRecord) FullURL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fullURL
}

// SetThumbnailURL stores url unless a thumbnail URL is already set.
func (f *FileRecord) SetThumbnailURL(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.thumbnailURL != "" {
		return false
	}
	f.thumbnailURL = url
	return true
}

// SetFullURL stores url unless a full URL is already set.
func (f *FileRecord) SetFullURL(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fullURL != "" {
		return false
	}
	f.fullURL = url
	return true
}

// IsImage reports whether the record holds an image.
func (f *FileRecord) IsImage() bool {
	return strings.HasPrefix(f.Type, "image/")
}

// IsVideo reports whether the record holds a video.
func (f *FileRecord) IsVideo() bool {
	return strings.HasPrefix(f.Type, "video/")
}

// Previewable reports whether the full payload may be fetched for preview.
func (f *FileRecord) Previewable() bool {
	return f.IsImage() || f.IsVideo()
}

// DayKey is the calendar day of the upload instant in loc.
func (f *FileRecord) DayKey(loc *time.Location) string {
	return f.UploadDate.In(loc).Format(DayLayout)
}

// Validate checks the fields every record must carry.
func (f *FileRecord) Validate() error {
	var missing []string
	if f.ID == "" {
		missing = append(missing, "id")
	}
	if f.ThumbID == "" {
		missing = append(missing, "thumbId")
	}
	if f.Name == "" {
		missing = append(missing, "name")
	}
	if f.UploadDate.IsZero() {
		missing = append(missing, "uploadDate")
	}
	if len(missing) > 0 {
		return &apperr.ValidationAnomaly{
			Reason: fmt.Sprintf("record %q missing %s", f.ID, strings.Join(missing, ", ")),
		}
	}
	if f.Size < 0 {
		return &apperr.ValidationAnomaly{Reason: fmt.Sprintf("record %q has negative size", f.ID)}
	}
	return nil
}

// DecodeFileList parses the list endpoint payload. A payload that is not a
// JSON array yields no records and a ValidationAnomaly. Individual records
// that fail to decode or validate are dropped and reported together in the
// returned anomaly; the valid ones are still returned in server order.
func DecodeFileList(data []byte) ([]*FileRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		what := "empty body"
		if len(data) > 0 {
			what = "got " + describeJSON(data)
		}
		return nil, &apperr.ValidationAnomaly{Reason: "file list is not an array (" + what + ")"}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &apperr.ValidationAnomaly{Reason: "file list is not valid JSON: " + err.Error()}
	}

	records := make([]*FileRecord, 0, len(raw))
	var problems []string
	for i, item := range raw {
		rec := &FileRecord{}
		if err := json.Unmarshal(item, rec); err != nil {
			problems = append(problems, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		if err := rec.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		records = append(records, rec)
	}

	if len(problems) > 0 {
		return records, &apperr.ValidationAnomaly{
			Reason: fmt.Sprintf("dropped %d invalid record(s): %s", len(problems), strings.Join(problems, "; ")),
		}
	}
	return records, nil
}

func describeJSON(data []byte) string {
	switch data[0] {
	case '{':
		return "object"
	case '"':
		return "string"
	case 'n':
		return "null"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}
