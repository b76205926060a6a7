// Package delivery keeps a client-side view of one conversation in sync with the server.
// Confirmed messages come from polling; messages the user sends show up immediately
// as pending entries and are swapped for the server copy once the append succeeds.
package delivery

import (
	"sort"
	"time"

	"github.com/damoang/angple-market/pkg/client"
)

// Status delivery state of a timeline entry
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Entry one line of the timeline. Local entries carry a negative temporary id.
type Entry struct {
	CreatedAt time.Time
	Err       error // last send error of a failed entry
	Author    *client.User
	Content   string
	Status    Status
	ID        int64
	// newest confirmed id when the entry was sent; only later messages can be its server copy
	after int64
}

// Local reports whether the entry has not been confirmed by the server yet
func (e Entry) Local() bool {
	return e.Status != StatusConfirmed
}

// Timeline confirmed server history followed by local entries in send order.
// It is not safe for concurrent use; Loop guards it.
type Timeline struct {
	confirmed []Entry
	local     []Entry
}

func fromMessage(m *client.Message) Entry {
	author := m.Sender
	if author == nil && m.SenderID != 0 {
		author = &client.User{ID: m.SenderID}
	}
	return Entry{
		ID:        m.ID,
		Content:   m.Content,
		Author:    author,
		CreatedAt: m.CreatedAt,
		Status:    StatusConfirmed,
	}
}

// ShouldReplace reports whether a fetched window differs from the confirmed history:
// a different count or a different tail id.
func (t *Timeline) ShouldReplace(items []*client.Message) bool {
	if len(items) != len(t.confirmed) {
		return true
	}
	if len(items) == 0 {
		return false
	}
	return items[len(items)-1].ID != t.confirmed[len(t.confirmed)-1].ID
}

// Replace swaps the confirmed history. Local entries are kept unless the
// fetched history already holds their server copy (the append landed before its response).
func (t *Timeline) Replace(items []*client.Message) {
	confirmed := make([]Entry, 0, len(items))
	for _, m := range items {
		if m != nil {
			confirmed = append(confirmed, fromMessage(m))
		}
	}
	t.confirmed = confirmed
	t.dropDelivered()
}

// dropDelivered removes local entries matched by a confirmed message from the same
// author with the same content and an id newer than the entry's send point.
// Each confirmed message matches at most one entry.
func (t *Timeline) dropDelivered() {
	if len(t.local) == 0 {
		return
	}
	claimed := make(map[int64]bool)
	kept := t.local[:0]
	for _, e := range t.local {
		matched := false
		for _, c := range t.confirmed {
			if c.ID > e.after && !claimed[c.ID] && c.Content == e.Content && sameAuthor(c.Author, e.Author) {
				claimed[c.ID] = true
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, e)
		}
	}
	t.local = kept
}

func sameAuthor(a, b *client.User) bool {
	if a == nil || b == nil {
		return b == nil
	}
	return a.ID == b.ID
}

// AddPending appends a local entry
func (t *Timeline) AddPending(e Entry) {
	e.Status = StatusPending
	e.after = t.newestConfirmedID()
	t.local = append(t.local, e)
}

func (t *Timeline) newestConfirmedID() int64 {
	var newest int64
	for _, c := range t.confirmed {
		newest = max(newest, c.ID)
	}
	return newest
}

// Confirm replaces the local entry tempID with the server's message.
// It reports false when the entry is gone (discarded or timeline reset).
func (t *Timeline) Confirm(tempID int64, m *client.Message) bool {
	if !t.removeLocal(tempID) {
		return false
	}
	for _, e := range t.confirmed {
		if e.ID == m.ID {
			// a poll already brought it in
			return true
		}
	}
	t.confirmed = append(t.confirmed, fromMessage(m))
	sort.SliceStable(t.confirmed, func(i, j int) bool {
		a, b := t.confirmed[i], t.confirmed[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return true
}

// Fail marks a pending entry as failed
func (t *Timeline) Fail(tempID int64, err error) bool {
	i := t.indexLocal(tempID)
	if i < 0 {
		return false
	}
	t.local[i].Status = StatusFailed
	t.local[i].Err = err
	return true
}

// Retry moves a failed entry back to pending and returns it
func (t *Timeline) Retry(tempID int64) (Entry, bool) {
	i := t.indexLocal(tempID)
	if i < 0 || t.local[i].Status != StatusFailed {
		return Entry{}, false
	}
	t.local[i].Status = StatusPending
	t.local[i].Err = nil
	return t.local[i], true
}

// Discard drops a failed entry
func (t *Timeline) Discard(tempID int64) bool {
	i := t.indexLocal(tempID)
	if i < 0 || t.local[i].Status != StatusFailed {
		return false
	}
	return t.removeLocal(tempID)
}

// HasLocal reports whether tempID is a local entry
func (t *Timeline) HasLocal(tempID int64) bool {
	return t.indexLocal(tempID) >= 0
}

// Entries returns a copy, confirmed history first
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, 0, len(t.confirmed)+len(t.local))
	out = append(out, t.confirmed...)
	return append(out, t.local...)
}

func (t *Timeline) indexLocal(tempID int64) int {
	for i, e := range t.local {
		if e.ID == tempID {
			return i
		}
	}
	return -1
}

func (t *Timeline) removeLocal(tempID int64) bool {
	i := t.indexLocal(tempID)
	if i < 0 {
		return false
	}
	t.local = append(t.local[:i], t.local[i+1:]...)
	return true
}
