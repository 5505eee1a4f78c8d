package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/marianozunino/gallery/internal/clock"
	"github.com/marianozunino/gallery/internal/model"
	"github.com/marianozunino/gallery/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeFetcher struct {
	mu    sync.Mutex
	blobs map[string][]byte
	types map[string]string
	errs  map[string]error
	calls map[string]int
	total atomic.Int32
	delay time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		blobs: map[string][]byte{},
		types: map[string]string{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	f.total.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[path]++

	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	data, ok := f.blobs[path]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
	}
	h := http.Header{}
	if ct := f.types[path]; ct != "" {
		h.Set("Content-Type", ct)
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(data)), Header: h}, nil
}

func (f *fakeFetcher) callsFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func newTestCache(f Fetcher) (*Cache, *Registry, *notify.Center) {
	center := notify.NewCenter(clock.NewManual(time.Time{}))
	reg := NewRegistry()
	return NewCache(f, reg, center, nil, 2), reg, center
}

func record(id, thumb, mime string) *model.FileRecord {
	return &model.FileRecord{
		ID:         model.ID(id),
		ThumbID:    model.ID(thumb),
		Name:       "file-" + id,
		Type:       mime,
		UploadDate: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestLoadThumbnailSetsObjectURL(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/11"] = pngHeader
	f.types["/files/11"] = "image/png"
	cache, reg, center := newTestCache(f)

	rec := record("1", "11", "image/png")
	require.NoError(t, cache.LoadThumbnail(context.Background(), rec))

	url := rec.ThumbnailURL()
	require.NotEmpty(t, url)
	assert.Contains(t, url, URLPrefix)

	blob, ok := reg.Open(url)
	require.True(t, ok)
	assert.Equal(t, pngHeader, blob.Data)
	assert.Equal(t, "image/png", blob.Type)
	assert.Empty(t, center.Notifications())
}

func TestLoadThumbnailIsIdempotent(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/11"] = pngHeader
	cache, reg, _ := newTestCache(f)

	rec := record("1", "11", "image/png")
	require.NoError(t, cache.LoadThumbnail(context.Background(), rec))
	first := rec.ThumbnailURL()

	require.NoError(t, cache.LoadThumbnail(context.Background(), rec))
	assert.Equal(t, first, rec.ThumbnailURL())
	assert.Equal(t, 1, f.callsFor("/files/11"))
	assert.Equal(t, 1, reg.Len())
}

func TestLoadFullIsIdempotent(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/1"] = pngHeader
	cache, _, _ := newTestCache(f)

	rec := record("1", "11", "image/png")
	require.NoError(t, cache.LoadFull(context.Background(), rec))
	first := rec.FullURL()
	require.NotEmpty(t, first)

	require.NoError(t, cache.LoadFull(context.Background(), rec))
	assert.Equal(t, first, rec.FullURL())
	assert.Equal(t, 1, f.callsFor("/files/1"))
}

func TestLoadFullSkipsNonMediaTypes(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/1"] = []byte("%PDF-1.4")
	cache, _, _ := newTestCache(f)

	rec := record("1", "11", "application/pdf")
	require.NoError(t, cache.LoadFull(context.Background(), rec))

	assert.Empty(t, rec.FullURL())
	assert.Equal(t, int32(0), f.total.Load())
}

func TestLoadFullVideo(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/2"] = []byte("video-bytes")
	f.types["/files/2"] = "video/mp4"
	cache, _, _ := newTestCache(f)

	rec := record("2", "12", "video/mp4")
	require.NoError(t, cache.LoadFull(context.Background(), rec))
	assert.NotEmpty(t, rec.FullURL())
	assert.Empty(t, rec.ThumbnailURL())
}

func TestLoadThumbnailFailureIsReportedAndLeavesFieldEmpty(t *testing.T) {
	f := newFakeFetcher()
	cache, _, center := newTestCache(f)

	rec := record("1", "11", "image/png")
	err := cache.LoadThumbnail(context.Background(), rec)

	var se *apperr.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Empty(t, rec.ThumbnailURL())

	notes := center.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Could not load thumbnail for file-1", notes[0].Message)

	// No automatic retry: a second call fetches again only because it is asked to.
	assert.Equal(t, 1, f.callsFor("/files/11"))
}

func TestLoadFullFailureMessage(t *testing.T) {
	f := newFakeFetcher()
	f.errs["/files/1"] = apperr.Network(fmt.Errorf("reset"))
	cache, _, center := newTestCache(f)

	rec := record("1", "11", "image/jpeg")
	assert.ErrorIs(t, cache.LoadFull(context.Background(), rec), apperr.ErrNetwork)

	notes := center.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Could not load preview for file-1", notes[0].Message)
}

func TestUnauthorizedIsNotReportedAgain(t *testing.T) {
	f := newFakeFetcher()
	f.errs["/files/11"] = apperr.ErrUnauthorized
	cache, _, center := newTestCache(f)

	err := cache.LoadThumbnail(context.Background(), record("1", "11", "image/png"))
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.Empty(t, center.Notifications())
}

func TestContentTypeIsSniffedWhenMissing(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/11"] = pngHeader
	cache, reg, _ := newTestCache(f)

	rec := record("1", "11", "image/png")
	require.NoError(t, cache.LoadThumbnail(context.Background(), rec))

	blob, ok := reg.Open(rec.ThumbnailURL())
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.Type)
}

func TestPrefetchLoadsEveryThumbnail(t *testing.T) {
	f := newFakeFetcher()
	var recs []*model.FileRecord
	for i := 0; i < 6; i++ {
		thumb := fmt.Sprintf("t%d", i)
		f.blobs["/files/"+thumb] = pngHeader
		recs = append(recs, record(fmt.Sprint(i), thumb, "image/png"))
	}
	// One thumbnail is missing on the server.
	delete(f.blobs, "/files/t3")

	cache, _, center := newTestCache(f)
	cache.Prefetch(context.Background(), recs)
	cache.Wait()

	for i, rec := range recs {
		if i == 3 {
			assert.Empty(t, rec.ThumbnailURL())
			continue
		}
		assert.NotEmpty(t, rec.ThumbnailURL(), "record %d", i)
	}
	assert.Len(t, center.Notifications(), 1)
}

func TestPrefetchOutlivesCallerContext(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/11"] = pngHeader
	f.delay = 20 * time.Millisecond
	cache, _, _ := newTestCache(f)

	ctx, cancel := context.WithCancel(context.Background())
	rec := record("1", "11", "image/png")
	cache.Prefetch(ctx, []*model.FileRecord{rec})
	cancel()
	cache.Wait()

	assert.NotEmpty(t, rec.ThumbnailURL())
}

func TestConcurrentLoadsShareOneRequest(t *testing.T) {
	f := newFakeFetcher()
	f.blobs["/files/11"] = pngHeader
	f.delay = 50 * time.Millisecond
	cache, _, _ := newTestCache(f)

	rec := record("1", "11", "image/png")
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.LoadThumbnail(context.Background(), rec)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.callsFor("/files/11"))
	assert.NotEmpty(t, rec.ThumbnailURL())
}
