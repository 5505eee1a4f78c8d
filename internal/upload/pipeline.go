// Package upload batches selected files into one multipart request and
// interprets full, partial and failed outcomes.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/marianozunino/gallery/internal/logging"
	"github.com/marianozunino/gallery/internal/notify"
	"github.com/spf13/afero"
)

// DefaultField is the multipart field every file is sent under.
const DefaultField = "files"

// Fetcher issues authenticated API requests.
type Fetcher interface {
	Fetch(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error)
}

// Loader refreshes the gallery after a successful upload.
type Loader interface {
	Load(ctx context.Context) error
}

// File is one entry of the pending selection.
type File struct {
	Name string
	Data []byte
}

// Size is the payload length in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// ContentType sniffs the payload, falling back to the extension.
func (f File) ContentType() string {
	mtype := mimetype.Detect(f.Data)
	if mtype.Is("application/octet-stream") || mtype.Is("text/plain") {
		if byExt := mimetype.Lookup(extensionType(f.Name)); byExt != nil {
			return byExt.String()
		}
	}
	return mtype.String()
}

var extensionTypes = map[string]string{
	".svg":  "image/svg+xml",
	".json": "application/json",
	".csv":  "text/csv",
}

func extensionType(name string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}

// FilesFromPaths reads every path from fs into a selection.
func FilesFromPaths(fs afero.Fs, paths []string) ([]File, error) {
	files := make([]File, 0, len(paths))
	for _, path := range paths {
		info, err := fs.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		files = append(files, File{Name: filepath.Base(path), Data: data})
	}
	return files, nil
}

// Pipeline owns the pending selection and submits it.
type Pipeline struct {
	fetcher  Fetcher
	notifier notify.Notifier
	loader   Loader
	logger   *logging.Logger
	field    string

	mu        sync.Mutex
	pending   []File
	uploading atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithField overrides the multipart field name.
func WithField(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.field = name
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(fetcher Fetcher, notifier notify.Notifier, loader Loader, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:  fetcher,
		notifier: notifier,
		loader:   loader,
		logger:   logging.Discard(),
		field:    DefaultField,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Select replaces the pending selection.
func (p *Pipeline) Select(files []File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append([]File(nil), files...)
}

// Pending returns a copy of the pending selection.
func (p *Pipeline) Pending() []File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]File(nil), p.pending...)
}

func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
}

// IsUploading reports whether an Upload call is in progress.
func (p *Pipeline) IsUploading() bool {
	return p.uploading.Load()
}

// Upload sends the pending selection as one request. On full or partial
// success the selection is cleared and the gallery reloaded; a partial
// outcome is returned as *apperr.PartialFailure. On total failure the
// selection is kept and a *apperr.ServerError (or the transport error) is
// returned. Every outcome except an expired session is notified exactly
// once by the pipeline.
func (p *Pipeline) Upload(ctx context.Context) error {
	files := p.Pending()
	if len(files) == 0 {
		return nil
	}

	p.uploading.Store(true)
	defer p.uploading.Store(false)

	body, contentType, err := p.buildBody(files)
	if err != nil {
		p.logger.Error("failed to build upload body", "err", err)
		p.notifier.Notify("Upload failed", notify.KindError)
		return err
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Accept", "application/json")

	p.logger.Info("uploading files", "count", len(files), "bytes", body.Len())

	resp, err := p.fetcher.Fetch(ctx, http.MethodPost, "/files", body, header)
	if err != nil {
		if !apperr.IsUnauthorized(err) {
			p.logger.Error("upload request failed", "err", err)
			p.notifier.Notify("Upload failed", notify.KindError)
		}
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Error("failed to read upload response", "status", resp.StatusCode, "err", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		p.notifier.Notify(successMessage(files), notify.KindSuccess)
		p.finish(ctx)
		return nil

	case http.StatusMultiStatus:
		details := partialDetails(respBody)
		p.logger.Warn("partial upload", "failed", len(details))
		p.notifier.Notify("Some files failed to upload: "+strings.Join(details, "; "), notify.KindError)
		p.finish(ctx)
		return &apperr.PartialFailure{Details: details}

	default:
		message := errorMessage(respBody)
		p.logger.Error("upload rejected", "status", resp.StatusCode, "message", message)
		p.notifier.Notify(message, notify.KindError)
		return &apperr.ServerError{Status: resp.StatusCode, Message: message}
	}
}

func (p *Pipeline) finish(ctx context.Context) {
	p.Clear()
	if p.loader == nil {
		return
	}
	// Load reports its own failures.
	if err := p.loader.Load(ctx); err != nil {
		p.logger.Debug("reload after upload failed", "err", err)
	}
}

func (p *Pipeline) buildBody(files []File) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(p.field), escapeQuotes(f.Name)))
		h.Set("Content-Type", f.ContentType())

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("failed to copy file: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func successMessage(files []File) string {
	if len(files) == 1 {
		return `"` + files[0].Name + `" uploaded successfully!`
	}
	return strconv.Itoa(len(files)) + " files uploaded successfully!"
}

// partialDetails reads the per-file messages of a 207 body, which is either
// a JSON string array or plain text.
func partialDetails(body []byte) []string {
	var details []string
	if err := json.Unmarshal(body, &details); err == nil && len(details) > 0 {
		return details
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil
	}
	return []string{text}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "Upload failed"
}
