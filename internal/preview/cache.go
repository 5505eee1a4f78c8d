// Package preview lazily fetches thumbnail and full-size payloads and
// attaches them to file records as object URLs.
package preview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/marianozunino/gallery/internal/logging"
	"github.com/marianozunino/gallery/internal/model"
	"github.com/marianozunino/gallery/internal/notify"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Fetcher issues authenticated API requests.
type Fetcher interface {
	Fetch(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error)
}

// Cache owns no records; it only fills in their derived URL fields. A field
// is written at most once and never refreshed.
type Cache struct {
	fetcher  Fetcher
	registry *Registry
	notifier notify.Notifier
	logger   *logging.Logger
	workers  int

	group singleflight.Group
	wg    sync.WaitGroup
}

func NewCache(fetcher Fetcher, registry *Registry, notifier notify.Notifier, logger *logging.Logger, workers int) *Cache {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{
		fetcher:  fetcher,
		registry: registry,
		notifier: notifier,
		logger:   logger,
		workers:  workers,
	}
}

// LoadThumbnail fetches the thumbnail of rec unless it is already loaded.
// Failures are logged and reported; the field is left empty.
func (c *Cache) LoadThumbnail(ctx context.Context, rec *model.FileRecord) error {
	if rec.ThumbnailURL() != "" {
		return nil
	}

	url, err := c.fetchURL(ctx, rec.ThumbID)
	if err != nil {
		c.logger.Error("failed to load thumbnail", "file", rec.Name, "thumb_id", rec.ThumbID, "err", err)
		if !apperr.IsUnauthorized(err) {
			c.notifier.Notify(fmt.Sprintf("Could not load thumbnail for %s", rec.Name), notify.KindError)
		}
		return err
	}

	rec.SetThumbnailURL(url)
	return nil
}

// LoadFull fetches the full payload of rec for preview. Only images and
// videos are fetched; other types are a no-op.
func (c *Cache) LoadFull(ctx context.Context, rec *model.FileRecord) error {
	if rec.FullURL() != "" || !rec.Previewable() {
		return nil
	}

	url, err := c.fetchURL(ctx, rec.ID)
	if err != nil {
		c.logger.Error("failed to load preview", "file", rec.Name, "id", rec.ID, "err", err)
		if !apperr.IsUnauthorized(err) {
			c.notifier.Notify(fmt.Sprintf("Could not load preview for %s", rec.Name), notify.KindError)
		}
		return err
	}

	rec.SetFullURL(url)
	return nil
}

// Prefetch loads thumbnails for recs in the background with at most the
// configured number of requests in flight. It returns immediately.
func (c *Cache) Prefetch(ctx context.Context, recs []*model.FileRecord) {
	if len(recs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var g errgroup.Group
		g.SetLimit(c.workers)
		for _, rec := range recs {
			rec := rec
			g.Go(func() error {
				// Failures are reported per record and must not stop the others.
				_ = c.LoadThumbnail(ctx, rec)
				return nil
			})
		}
		g.Wait()
	}()
}

// Wait blocks until every Prefetch started so far has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// fetchURL downloads /files/{id} once per concurrent burst and registers it.
func (c *Cache) fetchURL(ctx context.Context, id model.ID) (string, error) {
	v, err, _ := c.group.Do(id.String(), func() (interface{}, error) {
		blob, err := FetchBlob(ctx, c.fetcher, id)
		if err != nil {
			return "", err
		}
		return c.registry.Create(blob.Data, blob.Type), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FetchBlob downloads the binary payload stored under id.
func FetchBlob(ctx context.Context, fetcher Fetcher, id model.ID) (Blob, error) {
	resp, err := fetcher.Fetch(ctx, http.MethodGet, "/files/"+id.String(), nil, nil)
	if err != nil {
		return Blob{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Blob{}, &apperr.ServerError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("fetch %s failed: %s", id, http.StatusText(resp.StatusCode)),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Blob{}, apperr.Network(fmt.Errorf("failed to read body: %w", err))
	}
	return Blob{Data: data, Type: resp.Header.Get("Content-Type")}, nil
}
