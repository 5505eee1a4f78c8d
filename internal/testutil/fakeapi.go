// Package testutil provides an in-process gallery API for tests.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/marianozunino/gallery/internal/middleware"
)

// Prefix is the path the fake API is mounted under.
const Prefix = "/api"

// StoredFile is a file held by the fake API.
type StoredFile struct {
	ID         string    `json:"id"`
	ThumbID    string    `json:"thumbId"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"uploadDate"`

	Data []byte `json:"-"`
}

// FakeAPI is an echo server speaking the gallery file API. Knobs are safe to
// change while the server runs.
type FakeAPI struct {
	Echo   *echo.Echo
	Server *httptest.Server

	mu       sync.Mutex
	token    string
	files    []*StoredFile
	thumbs   map[string][]byte
	rejects  map[string]string
	status   map[string]int
	rawList  []byte
	requests []string
	now      func() time.Time
}

// NewFakeAPI starts a server that accepts token as the only valid credential.
// It is closed when the test ends.
func NewFakeAPI(t interface{ Cleanup(func()) }, token string) *FakeAPI {
	api := &FakeAPI{
		token:   token,
		thumbs:  map[string][]byte{},
		rejects: map[string]string{},
		status:  map[string]int{},
		now:     time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(api.record)

	g := e.Group(Prefix, middleware.NoStore(), middleware.BearerAuth(api.validToken))
	g.GET("/files", api.handleList)
	g.GET("/files/:id", api.handleDownload)
	g.DELETE("/files/:id", api.handleDelete)
	g.POST("/files", api.handleUpload)

	api.Echo = e
	api.Server = httptest.NewServer(e)
	t.Cleanup(api.Server.Close)
	return api
}

// URL is the server root, with a trailing slash.
func (a *FakeAPI) URL() string {
	return a.Server.URL + "/"
}

// SetToken changes the accepted credential; "" rejects everything.
func (a *FakeAPI) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// SetClock overrides the upload timestamp source.
func (a *FakeAPI) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// ForceStatus makes every request to "METHOD /files" (or "METHOD /files/:id")
// answer with status and a JSON error. Zero clears it.
func (a *FakeAPI) ForceStatus(route string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if status == 0 {
		delete(a.status, route)
		return
	}
	a.status[route] = status
}

// SetRawList makes the list endpoint return body verbatim; nil restores it.
func (a *FakeAPI) SetRawList(body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rawList = body
}

// Reject makes uploads of name fail with reason.
func (a *FakeAPI) Reject(name, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects[name] = reason
}

// Add stores a file as if it had been uploaded at date.
func (a *FakeAPI) Add(name string, data []byte, date time.Time) *StoredFile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store(name, data, "", date)
}

// Files returns a snapshot of the stored files in list order.
func (a *FakeAPI) Files() []StoredFile {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StoredFile, 0, len(a.files))
	for _, f := range a.files {
		out = append(out, *f)
	}
	return out
}

// Requests lists "METHOD path" for every request received.
func (a *FakeAPI) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

func (a *FakeAPI) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		a.mu.Lock()
		a.requests = append(a.requests, c.Request().Method+" "+c.Request().URL.Path)
		a.mu.Unlock()
		return next(c)
	}
}

func (a *FakeAPI) validToken(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != "" && token == a.token
}

func (a *FakeAPI) forced(c echo.Context) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	route := c.Request().Method + " " + c.Path()[len(Prefix):]
	status, ok := a.status[route]
	return status, ok
}

func writeJSONError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// store must be called with mu held.
func (a *FakeAPI) store(name string, data []byte, contentType string, date time.Time) *StoredFile {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	f := &StoredFile{
		ID:         uuid.NewString(),
		ThumbID:    uuid.NewString(),
		Name:       filepath.Base(name),
		Type:       contentType,
		Size:       int64(len(data)),
		UploadDate: date.UTC(),
		Data:       data,
	}
	a.files = append(a.files, f)
	a.thumbs[f.ThumbID] = data
	return f
}

func (a *FakeAPI) handleList(c echo.Context) error {
	if status, ok := a.forced(c); ok {
		return writeJSONError(c, status, "failed to list files")
	}

	a.mu.Lock()
	raw := a.rawList
	list := make([]StoredFile, 0, len(a.files))
	for _, f := range a.files {
		list = append(list, *f)
	}
	a.mu.Unlock()

	if raw != nil {
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, raw)
	}
	return c.JSON(http.StatusOK, list)
}

func (a *FakeAPI) handleDownload(c echo.Context) error {
	if status, ok := a.forced(c); ok {
		return writeJSONError(c, status, "failed to fetch file")
	}

	id := c.Param("id")

	a.mu.Lock()
	var (
		data  []byte
		ctype string
		name  string
		found bool
	)
	for _, f := range a.files {
		if f.ID == id {
			data, ctype, name, found = f.Data, f.Type, f.Name, true
			break
		}
		if f.ThumbID == id {
			data, ctype, name, found = a.thumbs[id], f.Type, "thumb_"+f.Name, true
			break
		}
	}
	a.mu.Unlock()

	if !found {
		return writeJSONError(c, http.StatusNotFound, "file not found")
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, ctype, data)
}

func (a *FakeAPI) handleDelete(c echo.Context) error {
	if status, ok := a.forced(c); ok {
		return writeJSONError(c, status, "failed to delete file")
	}

	id := c.Param("id")

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, f := range a.files {
		if f.ID == id {
			a.files = append(a.files[:i], a.files[i+1:]...)
			delete(a.thumbs, f.ThumbID)
			return c.NoContent(http.StatusNoContent)
		}
	}
	return writeJSONError(c, http.StatusNotFound, "file not found")
}

func (a *FakeAPI) handleUpload(c echo.Context) error {
	if status, ok := a.forced(c); ok {
		return writeJSONError(c, status, "upload rejected")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return writeJSONError(c, http.StatusBadRequest, err.Error())
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return writeJSONError(c, http.StatusBadRequest, "no files in request")
	}

	var errs []string
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", fh.Filename, err))
			continue
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", fh.Filename, err))
			continue
		}

		a.mu.Lock()
		reason, rejected := a.rejects[fh.Filename]
		if !rejected {
			a.store(fh.Filename, data, fh.Header.Get("Content-Type"), a.now())
		}
		a.mu.Unlock()

		if rejected {
			errs = append(errs, fmt.Sprintf("%s: %s", fh.Filename, reason))
		}
	}

	if len(errs) > 0 {
		messages := append([]string{fmt.Sprintf("failed to upload %d file(s)", len(errs))}, errs...)
		return c.JSON(http.StatusMultiStatus, messages)
	}
	return c.NoContent(http.StatusCreated)
}
