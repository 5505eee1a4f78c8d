// Package gallery keeps the client's view of the remote file list, grouped
// by the viewer's local calendar day.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/marianozunino/gallery/internal/logging"
	"github.com/marianozunino/gallery/internal/model"
	"github.com/marianozunino/gallery/internal/notify"
)

// DeletePrompt is shown before a file is deleted.
const DeletePrompt = "Are you sure you want to delete this file? This action cannot be undone."

// ErrDeleteDeclined is returned when the user did not confirm a delete.
var ErrDeleteDeclined = errors.New("delete not confirmed")

// Fetcher issues authenticated API requests.
type Fetcher interface {
	Fetch(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error)
}

// ThumbnailLoader starts background thumbnail loading for freshly listed
// records.
type ThumbnailLoader interface {
	Prefetch(ctx context.Context, recs []*model.FileRecord)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

// Index maps day keys (YYYY-MM-DD) to the records uploaded that day, in
// server order. No bucket is ever empty.
type Index struct {
	fetcher  Fetcher
	notifier notify.Notifier
	thumbs   ThumbnailLoader
	loc      *time.Location
	logger   *logging.Logger

	mu       sync.RWMutex
	buckets  map[string][]*model.FileRecord
	gen      atomic.Uint64
	inflight atomic.Int32
}

// Config collects the Index's collaborators.
type Config struct {
	Fetcher    Fetcher
	Notifier   notify.Notifier
	Thumbnails ThumbnailLoader
	Location   *time.Location
	Logger     *logging.Logger
}

func New(cfg Config) *Index {
	idx := &Index{
		fetcher:  cfg.Fetcher,
		notifier: cfg.Notifier,
		thumbs:   cfg.Thumbnails,
		loc:      cfg.Location,
		logger:   cfg.Logger,
		buckets:  map[string][]*model.FileRecord{},
	}
	if idx.loc == nil {
		idx.loc = time.Local
	}
	if idx.logger == nil {
		idx.logger = logging.Discard()
	}
	return idx
}

// GroupByDay buckets records by the calendar day of their upload instant in
// loc, keeping arrival order inside each bucket.
func GroupByDay(records []*model.FileRecord, loc *time.Location) map[string][]*model.FileRecord {
	buckets := make(map[string][]*model.FileRecord)
	for _, rec := range records {
		key := rec.DayKey(loc)
		buckets[key] = append(buckets[key], rec)
	}
	return buckets
}

// Load fetches the full file list and replaces the index with it. Only the
// most recently started Load may apply its result; older ones that finish
// later are discarded. Failures other than Unauthorized are reported to the
// user and leave the previous index in place. A payload that is not a valid
// list is reported and treated as empty (or as its valid records only).
func (idx *Index) Load(ctx context.Context) error {
	gen := idx.gen.Add(1)
	idx.inflight.Add(1)
	defer idx.inflight.Add(-1)

	records, err := idx.fetchRecords(ctx)
	var anomaly *apperr.ValidationAnomaly
	switch {
	case err == nil:
	case errors.As(err, &anomaly):
		idx.logger.Warn("file list failed validation", "generation", gen, "reason", anomaly.Reason)
		idx.notifier.Notify("Unexpected file list from server: "+anomaly.Reason, notify.KindError)
	case apperr.IsUnauthorized(err):
		return err
	default:
		idx.logger.Error("failed to fetch files", "generation", gen, "err", err)
		idx.notifier.Notify("Error fetching files: "+err.Error(), notify.KindError)
		return err
	}

	if latest := idx.gen.Load(); gen != latest {
		idx.logger.Debug("discarding stale file list", "generation", gen, "latest", latest)
		return nil
	}

	buckets := GroupByDay(records, idx.loc)

	idx.mu.Lock()
	idx.buckets = buckets
	idx.mu.Unlock()

	idx.logger.Info("file list loaded", "generation", gen, "records", len(records), "days", len(buckets))

	if idx.thumbs != nil {
		idx.thumbs.Prefetch(ctx, records)
	}
	return nil
}

func (idx *Index) fetchRecords(ctx context.Context) ([]*model.FileRecord, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")

	resp, err := idx.fetcher.Fetch(ctx, http.MethodGet, "/files", nil, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &apperr.ServerError{Status: resp.StatusCode, Message: "Failed to fetch files."}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Network(fmt.Errorf("failed to read file list: %w", err))
	}

	return model.DecodeFileList(data)
}

// Remove drops the record with id from every bucket and deletes buckets
// left empty. It reports whether anything was removed. Call it only after
// the server confirmed the delete.
func (idx *Index) Remove(id model.ID) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := false
	for day, recs := range idx.buckets {
		kept := recs[:0:0]
		for _, rec := range recs {
			if rec.ID == id {
				removed = true
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(idx.buckets, day)
			continue
		}
		idx.buckets[day] = kept
	}
	return removed
}

// Delete asks for confirmation, deletes rec on the server and, once the
// server agreed, removes it from the index.
func (idx *Index) Delete(ctx context.Context, rec *model.FileRecord, confirmer Confirmer) error {
	if confirmer != nil {
		ok, err := confirmer.Confirm(DeletePrompt)
		if err != nil {
			return fmt.Errorf("confirmation failed: %w", err)
		}
		if !ok {
			return ErrDeleteDeclined
		}
	}

	resp, err := idx.fetcher.Fetch(ctx, http.MethodDelete, "/files/"+rec.ID.String(), nil, nil)
	if err != nil {
		if !apperr.IsUnauthorized(err) {
			idx.notifier.Notify("Failed to delete file.", notify.KindError)
		}
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		idx.logger.Error("delete rejected", "id", rec.ID, "status", resp.StatusCode)
		idx.notifier.Notify("Failed to delete file.", notify.KindError)
		return &apperr.ServerError{Status: resp.StatusCode, Message: "Failed to delete file."}
	}

	idx.Remove(rec.ID)
	idx.notifier.Notify(`"`+rec.Name+`" deleted successfully.`, notify.KindSuccess)
	return nil
}

// SortedDates lists the day keys, newest first.
func (idx *Index) SortedDates() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	days := make([]string, 0, len(idx.buckets))
	for day := range idx.buckets {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days
}

// Bucket returns a copy of the records uploaded on day.
func (idx *Index) Bucket(day string) []*model.FileRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	recs := idx.buckets[day]
	out := make([]*model.FileRecord, len(recs))
	copy(out, recs)
	return out
}

// Records returns every record, newest day first, server order within a day.
func (idx *Index) Records() []*model.FileRecord {
	var out []*model.FileRecord
	for _, day := range idx.SortedDates() {
		out = append(out, idx.Bucket(day)...)
	}
	return out
}

// Find returns the record with id, or nil.
func (idx *Index) Find(id model.ID) *model.FileRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	for _, recs := range idx.buckets {
		for _, rec := range recs {
			if rec.ID == id {
				return rec
			}
		}
	}
	return nil
}

// Len is the number of records across all buckets.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := 0
	for _, recs := range idx.buckets {
		n += len(recs)
	}
	return n
}

// Loading reports whether a Load is in flight.
func (idx *Index) Loading() bool {
	return idx.inflight.Load() > 0
}
