package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/marianozunino/gallery/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCenter(opts ...Option) (*Center, *clock.Manual) {
	m := clock.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewCenter(m, opts...), m
}

func TestNotifyAppendsToastAndNotification(t *testing.T) {
	c, _ := newTestCenter()

	c.Notify("first", KindError)
	c.Notify("second", KindSuccess)

	toasts := c.Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "first", toasts[0].Message)
	assert.Equal(t, "second", toasts[1].Message)
	assert.Less(t, toasts[0].ID, toasts[1].ID)

	notes := c.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, "second", notes[0].Message)
	assert.Equal(t, KindSuccess, notes[0].Kind)
	assert.Equal(t, "first", notes[1].Message)
}

func TestNotifyDefaultsKindToError(t *testing.T) {
	c, _ := newTestCenter()
	c.Notify("oops", "")
	assert.Equal(t, KindError, c.Toasts()[0].Kind)
}

func TestToastExpiresButNotificationStays(t *testing.T) {
	c, m := newTestCenter()

	c.Notify("hello", KindInfo)
	m.Advance(4 * time.Second)
	assert.Len(t, c.Toasts(), 1)

	m.Advance(time.Second)
	assert.Empty(t, c.Toasts())
	assert.Len(t, c.Notifications(), 1)
}

func TestNotifyForCustomDuration(t *testing.T) {
	c, m := newTestCenter()

	c.NotifyFor("short", KindInfo, time.Second)
	c.NotifyFor("long", KindInfo, 10*time.Second)

	m.Advance(time.Second)
	toasts := c.Toasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, "long", toasts[0].Message)
}

func TestWithDurationOverridesDefault(t *testing.T) {
	c, m := newTestCenter(WithDuration(time.Second))
	c.Notify("quick", KindInfo)
	m.Advance(time.Second)
	assert.Empty(t, c.Toasts())
}

func TestDismissToast(t *testing.T) {
	c, m := newTestCenter()
	c.Notify("a", KindError)
	c.Notify("b", KindError)

	id := c.Toasts()[0].ID
	c.DismissToast(id)
	require.Len(t, c.Toasts(), 1)
	assert.Equal(t, "b", c.Toasts()[0].Message)

	// Natural expiry of an already dismissed toast must be harmless.
	m.Advance(DefaultDuration)
	assert.Empty(t, c.Toasts())
}

func TestDismissUnknownToastIsNoop(t *testing.T) {
	c, _ := newTestCenter()
	c.Notify("keep", KindError)

	assert.NotPanics(t, func() { c.DismissToast(999) })
	assert.Len(t, c.Toasts(), 1)

	empty, _ := newTestCenter()
	assert.NotPanics(t, func() { empty.DismissToast(0) })
}

func TestLimitDropsOldestNotifications(t *testing.T) {
	c, _ := newTestCenter(WithLimit(3))
	for i := 0; i < 5; i++ {
		c.Notify(fmt.Sprintf("msg %d", i), KindInfo)
	}

	notes := c.Notifications()
	require.Len(t, notes, 3)
	assert.Equal(t, "msg 4", notes[0].Message)
	assert.Equal(t, "msg 2", notes[2].Message)
	assert.Len(t, c.Toasts(), 5)
}

func TestZeroLimitIsUnbounded(t *testing.T) {
	c, _ := newTestCenter(WithLimit(0))
	for i := 0; i < 300; i++ {
		c.Notify("x", KindInfo)
	}
	assert.Len(t, c.Notifications(), 300)
}

func TestSinkReceivesToasts(t *testing.T) {
	var seen []Toast
	c, _ := newTestCenter(WithSink(func(t Toast) { seen = append(seen, t) }))

	c.Notify("visible", KindSuccess)

	require.Len(t, seen, 1)
	assert.Equal(t, "visible", seen[0].Message)
	assert.Equal(t, KindSuccess, seen[0].Kind)
}

func TestClearNotifications(t *testing.T) {
	c, _ := newTestCenter()
	c.Notify("a", KindInfo)
	c.ClearNotifications()

	assert.Empty(t, c.Notifications())
	assert.Len(t, c.Toasts(), 1)
}

func TestCreatedAtUsesScheduler(t *testing.T) {
	c, m := newTestCenter()
	m.Advance(time.Minute)
	c.Notify("stamped", KindInfo)
	assert.Equal(t, m.Now(), c.Toasts()[0].CreatedAt)
}

func TestRestoreKeepsNewestFirstAndContinuesIDs(t *testing.T) {
	c, _ := newTestCenter(WithLimit(3))

	c.Restore([]Notification{
		{ID: 7, Message: "older", Kind: KindSuccess},
		{ID: 6, Message: "oldest", Kind: KindError},
	})
	c.Notify("fresh", KindInfo)

	notes := c.Notifications()
	require.Len(t, notes, 3)
	assert.Equal(t, "fresh", notes[0].Message)
	assert.Equal(t, 8, notes[0].ID)
	assert.Equal(t, "older", notes[1].Message)
	assert.Equal(t, "oldest", notes[2].Message)

	c.Notify("newer", KindInfo)
	notes = c.Notifications()
	require.Len(t, notes, 3)
	assert.Equal(t, "older", notes[2].Message)
}
