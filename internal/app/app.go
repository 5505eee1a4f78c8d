package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/marianozunino/gallery/internal/clock"
	"github.com/marianozunino/gallery/internal/config"
	"github.com/marianozunino/gallery/internal/db"
	"github.com/marianozunino/gallery/internal/download"
	"github.com/marianozunino/gallery/internal/gallery"
	"github.com/marianozunino/gallery/internal/logging"
	"github.com/marianozunino/gallery/internal/model"
	"github.com/marianozunino/gallery/internal/notify"
	"github.com/marianozunino/gallery/internal/preview"
	"github.com/marianozunino/gallery/internal/session"
	"github.com/marianozunino/gallery/internal/upload"
)

// App wires the gallery client components together
type App struct {
	Config        *config.Config
	Logger        *logging.Logger
	Notifications *notify.Center
	Session       *session.Guard
	Registry      *preview.Registry
	Previews      *preview.Cache
	Gallery       *gallery.Index
	Uploads       *upload.Pipeline
	Downloads     *download.Downloader
	FS            afero.Fs

	db       *db.DB
	redirect clock.Scheduler
	closed   bool
}

// historyKey stores the notification log between runs.
const historyKey = "notifications"

type options struct {
	client     *http.Client
	toasts     clock.Scheduler
	redirect   clock.Scheduler
	redirector session.Redirector
	store      session.Store
	fs         afero.Fs
	sink       func(notify.Toast)
	logger     *logging.Logger
	location   *time.Location
}

// Option customises the wiring, mostly for tests.
type Option func(*options)

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithScheduler drives both toast expiry and login redirects from s.
func WithScheduler(s clock.Scheduler) Option {
	return func(o *options) {
		o.toasts = s
		o.redirect = s
	}
}

func WithRedirector(r session.Redirector) Option {
	return func(o *options) { o.redirector = r }
}

// WithStore replaces the SQLite credential store.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

func WithFS(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithToastSink receives every toast as it is raised.
func WithToastSink(fn func(notify.Toast)) Option {
	return func(o *options) { o.sink = fn }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.location = loc }
}

// New creates a new application instance
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logging.New(os.Stderr, cfg.LogLevel)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.toasts == nil {
		// Toast expiry never delays exit, so it gets its own untracked clock.
		o.toasts = clock.NewReal()
	}
	if o.redirect == nil {
		o.redirect = clock.NewReal()
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if o.location == nil {
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		o.location = loc
	}

	a := &App{
		Config:   cfg,
		Logger:   o.logger,
		FS:       o.fs,
		redirect: o.redirect,
	}

	if o.store == nil {
		if err := setup(cfg); err != nil {
			return nil, err
		}
		database, err := db.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		a.db = database
		o.store = session.NewDBStore(database)
	}

	o.logger.Debug("configuration", "server", cfg.Server, "api", cfg.APIBase(), "state", cfg.StatePath, "timezone", o.location.String())

	a.Notifications = notify.NewCenter(o.toasts,
		notify.WithDuration(cfg.ToastDuration),
		notify.WithLimit(cfg.NotificationLimit),
		notify.WithSink(o.sink),
	)

	if err := a.restoreHistory(); err != nil {
		o.logger.Warn("could not restore notification history", "err", err)
	}

	a.Session = session.NewGuard(session.GuardConfig{
		Client:        o.client,
		BaseURL:       cfg.APIBase(),
		Store:         o.store,
		Notifier:      a.Notifications,
		Redirector:    o.redirector,
		Scheduler:     o.redirect,
		RedirectDelay: cfg.RedirectDelay,
		LogoutDelay:   cfg.LogoutDelay,
		Logger:        o.logger.With("component", "session"),
	})

	a.Registry = preview.NewRegistry()
	a.Previews = preview.NewCache(a.Session, a.Registry, a.Notifications, o.logger.With("component", "preview"), cfg.ThumbnailWorkers)

	a.Gallery = gallery.New(gallery.Config{
		Fetcher:    a.Session,
		Notifier:   a.Notifications,
		Thumbnails: a.Previews,
		Location:   o.location,
		Logger:     o.logger.With("component", "gallery"),
	})

	a.Uploads = upload.New(a.Session, a.Notifications, a.Gallery,
		upload.WithField(cfg.UploadField),
		upload.WithLogger(o.logger.With("component", "upload")),
	)

	a.Downloads = download.New(a.Session, a.Registry, o.fs, a.Notifications, o.logger.With("component", "download"))

	return a, nil
}

// Lookup loads the gallery if needed and returns the record with id.
func (a *App) Lookup(ctx context.Context, id string) (*model.FileRecord, error) {
	if a.Gallery.Len() == 0 {
		if err := a.Gallery.Load(ctx); err != nil {
			return nil, err
		}
	}
	rec := a.Gallery.Find(model.ID(id))
	if rec == nil {
		return nil, fmt.Errorf("file %s not found", id)
	}
	return rec, nil
}

// UploadPaths selects the files at paths and uploads them.
func (a *App) UploadPaths(ctx context.Context, paths []string) error {
	files, err := upload.FilesFromPaths(a.FS, paths)
	if err != nil {
		return err
	}
	a.Uploads.Select(files)
	return a.Uploads.Upload(ctx)
}

// SetProgress routes download progress to w.
func (a *App) SetProgress(w io.Writer) {
	a.Downloads.SetProgress(w)
}

// Close waits for background thumbnail loads and pending login redirects,
// then releases every object URL, saves the notification log and closes the
// state database.
func (a *App) Close() error {
	a.Previews.Wait()
	if w, ok := a.redirect.(interface{ Wait() }); ok {
		w.Wait()
	}
	a.Registry.RevokeAll()
	if a.db == nil || a.closed {
		return nil
	}
	a.closed = true
	return errors.Join(a.saveHistory(), a.db.Close())
}

func (a *App) restoreHistory() error {
	if a.db == nil {
		return nil
	}
	raw, err := a.db.GetValue(historyKey)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var notes []notify.Notification
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return fmt.Errorf("failed to decode notification history: %w", err)
	}
	a.Notifications.Restore(notes)
	return nil
}

func (a *App) saveHistory() error {
	data, err := json.Marshal(a.Notifications.Notifications())
	if err != nil {
		return fmt.Errorf("failed to encode notification history: %w", err)
	}
	return a.db.SetValue(historyKey, string(data))
}

// setup ensures all necessary directories and files exist
func setup(cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.StatePath), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}
