// Package notify keeps the transient toast queue and the session-long
// notification log that every other component reports outcomes to.
package notify

import (
	"sync"
	"time"

	"github.com/marianozunino/gallery/internal/clock"
)

// Kind classifies a message for presentation.
type Kind string

const (
	KindError   Kind = "error"
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
)

// DefaultDuration is how long a toast stays visible unless overridden.
const DefaultDuration = 5 * time.Second

// Toast is a short-lived message. It expires on its own and can be
// dismissed earlier.
type Toast struct {
	ID        int
	Message   string
	Kind      Kind
	CreatedAt time.Time
}

// Notification is the durable copy of a toast kept for the whole session.
type Notification struct {
	ID        int       `json:"id"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is the part of the Center other components depend on.
type Notifier interface {
	Notify(message string, kind Kind)
}

// Center owns both lists. It is safe for concurrent use.
type Center struct {
	mu            sync.Mutex
	sched         clock.Scheduler
	duration      time.Duration
	limit         int
	toasts        []Toast
	notifications []Notification
	nextToast     int
	nextNote      int
	sink          func(Toast)
}

// Option configures a Center.
type Option func(*Center)

// WithDuration overrides the default toast lifetime.
func WithDuration(d time.Duration) Option {
	return func(c *Center) {
		if d > 0 {
			c.duration = d
		}
	}
}

// WithLimit caps the notification log; the oldest entries are dropped first.
// Zero keeps everything.
func WithLimit(n int) Option {
	return func(c *Center) {
		if n >= 0 {
			c.limit = n
		}
	}
}

// WithSink registers a callback invoked (outside the lock) for every new toast.
func WithSink(fn func(Toast)) Option {
	return func(c *Center) {
		c.sink = fn
	}
}

func NewCenter(sched clock.Scheduler, opts ...Option) *Center {
	c := &Center{
		sched:    sched,
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify queues a toast with the default lifetime.
func (c *Center) Notify(message string, kind Kind) {
	c.NotifyFor(message, kind, c.duration)
}

// NotifyFor appends a toast, records the matching notification (newest
// first) and schedules removal of the toast alone after d.
func (c *Center) NotifyFor(message string, kind Kind, d time.Duration) {
	if kind == "" {
		kind = KindError
	}
	if d <= 0 {
		d = c.duration
	}

	now := c.sched.Now()

	c.mu.Lock()
	toast := Toast{ID: c.nextToast, Message: message, Kind: kind, CreatedAt: now}
	c.nextToast++
	c.toasts = append(c.toasts, toast)

	note := Notification{ID: c.nextNote, Message: message, Kind: kind, CreatedAt: now}
	c.nextNote++
	c.notifications = append([]Notification{note}, c.notifications...)
	if c.limit > 0 && len(c.notifications) > c.limit {
		c.notifications = c.notifications[:c.limit]
	}
	sink := c.sink
	c.mu.Unlock()

	c.sched.AfterFunc(d, func() { c.DismissToast(toast.ID) })

	if sink != nil {
		sink(toast)
	}
}

// DismissToast removes the toast with the given id. Unknown ids are ignored.
func (c *Center) DismissToast(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.toasts {
		if t.ID == id {
			c.toasts = append(c.toasts[:i:i], c.toasts[i+1:]...)
			return
		}
	}
}

// Toasts returns the visible toasts, oldest first.
func (c *Center) Toasts() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Toast, len(c.toasts))
	copy(out, c.toasts)
	return out
}

// Notifications returns the log, newest first.
func (c *Center) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out
}

// ClearNotifications empties the log. Toasts are left alone.
func (c *Center) ClearNotifications() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = nil
}

// Restore seeds the log with notes from an earlier run, newest first. New
// notifications are placed in front of them and the limit still applies.
func (c *Center) Restore(notes []Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	restored := make([]Notification, 0, len(notes)+len(c.notifications))
	restored = append(restored, c.notifications...)
	restored = append(restored, notes...)
	if c.limit > 0 && len(restored) > c.limit {
		restored = restored[:c.limit]
	}
	c.notifications = restored

	for _, n := range notes {
		if n.ID >= c.nextNote {
			c.nextNote = n.ID + 1
		}
	}
}
