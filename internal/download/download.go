// Package download saves remote files to a local directory.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/marianozunino/gallery/internal/apperr"
	"github.com/marianozunino/gallery/internal/logging"
	"github.com/marianozunino/gallery/internal/model"
	"github.com/marianozunino/gallery/internal/notify"
	"github.com/marianozunino/gallery/internal/preview"
	"github.com/spf13/afero"
)

// WriteCounter tracks the bytes written and reports progress to Out.
type WriteCounter struct {
	Total uint64
	Out   io.Writer
}

func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.Total += uint64(n)
	wc.PrintProgress()
	return n, nil
}

// PrintProgress redraws the progress line.
func (wc *WriteCounter) PrintProgress() {
	if wc.Out == nil {
		return
	}
	fmt.Fprintf(wc.Out, "\r%s", strings.Repeat(" ", 50))
	fmt.Fprintf(wc.Out, "\rDownloading... %s complete", humanize.Bytes(wc.Total))
}

// Downloader fetches full payloads through the session and writes them to
// an afero filesystem. The object URL taken for each download is revoked as
// soon as the file is on disk.
type Downloader struct {
	fetcher  preview.Fetcher
	registry *preview.Registry
	fs       afero.Fs
	notifier notify.Notifier
	logger   *logging.Logger
	progress io.Writer
}

func New(fetcher preview.Fetcher, registry *preview.Registry, fs afero.Fs, notifier notify.Notifier, logger *logging.Logger) *Downloader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Downloader{
		fetcher:  fetcher,
		registry: registry,
		fs:       fs,
		notifier: notifier,
		logger:   logger,
	}
}

// SetProgress enables progress output on w.
func (d *Downloader) SetProgress(w io.Writer) {
	d.progress = w
}

// Download saves rec into dir under its own name and returns the path.
// Failures are reported as "Download failed: ...".
func (d *Downloader) Download(ctx context.Context, rec *model.FileRecord, dir string) (string, error) {
	path, err := d.download(ctx, rec, dir)
	if err != nil {
		d.logger.Error("download failed", "file", rec.Name, "id", rec.ID, "err", err)
		if !apperr.IsUnauthorized(err) {
			d.notifier.Notify("Download failed: "+failureText(err), notify.KindError)
		}
		return "", err
	}
	d.logger.Info("file downloaded", "file", rec.Name, "path", path, "size", rec.Size)
	return path, nil
}

func (d *Downloader) download(ctx context.Context, rec *model.FileRecord, dir string) (string, error) {
	blob, err := preview.FetchBlob(ctx, d.fetcher, rec.ID)
	if err != nil {
		return "", err
	}

	url := d.registry.Create(blob.Data, blob.Type)
	defer d.registry.Revoke(url)

	stored, ok := d.registry.Open(url)
	if !ok {
		return "", fmt.Errorf("object %s vanished before it was saved", url)
	}

	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, LocalName(rec))
	tmpPath := path + ".tmp"

	out, err := d.fs.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	counter := &WriteCounter{Out: d.progress}
	_, err = io.Copy(out, io.TeeReader(bytes.NewReader(stored.Data), counter))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		d.fs.Remove(tmpPath)
		return "", fmt.Errorf("failed to copy data: %w", err)
	}
	if d.progress != nil {
		fmt.Fprintln(d.progress)
	}

	if err := d.fs.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return path, nil
}

// LocalName is the file name a record is saved under. Path elements in the
// server-supplied name are stripped.
func LocalName(rec *model.FileRecord) string {
	name := filepath.Base(filepath.Clean("/" + rec.Name))
	if name == "/" || name == "." || name == "" {
		return rec.ID.String()
	}
	return name
}

func failureText(err error) string {
	var se *apperr.ServerError
	if errors.As(err, &se) {
		return "Server error: " + http.StatusText(se.Status)
	}
	return err.Error()
}
