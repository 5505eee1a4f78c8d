package preview

import (
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// URLPrefix starts every object URL handed out by a Registry.
const URLPrefix = "blob:gallery/"

// Blob is an in-memory binary payload.
type Blob struct {
	Data []byte
	Type string
}

// Registry hands out process-local object URLs for in-memory blobs, the way
// a browser does for URL.createObjectURL. URLs stay valid until revoked.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string]Blob)}
}

// Create registers data and returns its object URL. An empty contentType is
// replaced by the sniffed type of data.
func (r *Registry) Create(data []byte, contentType string) string {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}

	url := URLPrefix + uuid.NewString()

	r.mu.Lock()
	r.blobs[url] = Blob{Data: data, Type: contentType}
	r.mu.Unlock()
	return url
}

// Open dereferences url.
func (r *Registry) Open(url string) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[url]
	return b, ok
}

// Revoke releases url. Unknown URLs are ignored.
func (r *Registry) Revoke(url string) {
	r.mu.Lock()
	delete(r.blobs, url)
	r.mu.Unlock()
}

// RevokeAll releases every URL, e.g. on logout.
func (r *Registry) RevokeAll() {
	r.mu.Lock()
	r.blobs = make(map[string]Blob)
	r.mu.Unlock()
}

// Len is the number of live URLs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Size is the total number of bytes held by live URLs.
func (r *Registry) Size() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, b := range r.blobs {
		n += int64(len(b.Data))
	}
	return n
}
