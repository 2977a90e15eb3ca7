package state

import (
	"alfredoptarigan/report-console/internal/models"
)

const defaultFeedSize = 100

// feed is a bounded notification buffer; the oldest entries fall off first.
type feed struct {
	size    int
	nextID  uint64
	entries []models.Notification
}

func newFeed(size int) *feed {
	return &feed{size: size}
}

func (f *feed) push(n models.Notification) models.Notification {
	f.nextID++
	n.ID = f.nextID
	f.entries = append(f.entries, n)
	if len(f.entries) > f.size {
		f.entries = append([]models.Notification(nil), f.entries[len(f.entries)-f.size:]...)
	}
	return n
}

func (f *feed) recent() []models.Notification {
	return append([]models.Notification(nil), f.entries...)
}

func (f *feed) drain() []models.Notification {
	out := f.entries
	f.entries = nil
	return out
}

// Notify appends a user-visible notification and publishes it.
func (a *App) Notify(level models.NotificationLevel, message string) {
	a.mutate(func() []Event {
		n := a.feed.push(models.Notification{
			Level:     level,
			Message:   message,
			CreatedAt: a.now(),
		})
		return []Event{{Kind: EventNotification, Notification: &n}}
	})
}

// Notifications returns the buffered notifications, removing them when
// drain is set.
func (a *App) Notifications(drain bool) []models.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()
	if drain {
		return a.feed.drain()
	}
	return a.feed.recent()
}
