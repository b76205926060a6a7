package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/damoang/angple-market/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI in-memory conversation store paging like the server
type fakeAPI struct {
	mu       sync.Mutex
	messages map[uint64][]*client.Message
	nextID   int64
	sendErr  error
	listErr  error
	lists    atomic.Int32
	// listGate blocks ListMessages until closed when non-nil
	listGate chan struct{}
	// sendGate blocks SendMessage until closed when non-nil
	sendGate chan struct{}
	// ackGate holds the SendMessage response after the message is stored
	ackGate chan struct{}
	// senderID author of messages stored through SendMessage
	senderID uint64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: map[uint64][]*client.Message{}}
}

func (f *fakeAPI) add(convID uint64, content string) *client.Message {
	return f.addFrom(convID, 0, content)
}

func (f *fakeAPI) addFrom(convID, senderID uint64, content string) *client.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m := &client.Message{
		ID:             f.nextID,
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Unix(f.nextID, 0),
	}
	f.messages[convID] = append(f.messages[convID], m)
	return m
}

func (f *fakeAPI) ListMessages(ctx context.Context, convID uint64, page, pageSize int) (*client.MessagePage, error) {
	f.lists.Add(1)
	f.mu.Lock()
	gate, listErr := f.listGate, f.listErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if listErr != nil {
		return nil, listErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.messages[convID]
	total := len(all)
	pages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	items := []*client.Message{}
	if start < total {
		end := min(start+pageSize, total)
		items = append(items, all[start:end]...)
	}
	return &client.MessagePage{Items: items, Page: page, PageSize: pageSize, Total: int64(total), TotalPages: pages}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, convID uint64, content string) (*client.Message, error) {
	f.mu.Lock()
	gate, ack, sendErr, senderID := f.sendGate, f.ackGate, f.sendErr, f.senderID
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if sendErr != nil {
		return nil, sendErr
	}
	m := f.addFrom(convID, senderID, content)
	if ack != nil {
		select {
		case <-ack:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m, nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func contents(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Content)
	}
	return out
}

func newLoop(t *testing.T, api API, opts Options) *Loop {
	t.Helper()
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	l := New(api, opts)
	t.Cleanup(l.Close)
	return l
}

func TestTimeline_ReplaceKeepsLocalEntries(t *testing.T) {
	var tl Timeline
	msgs := []*client.Message{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}}

	assert.True(t, tl.ShouldReplace(msgs))
	tl.Replace(msgs)
	assert.False(t, tl.ShouldReplace(msgs))
	assert.False(t, tl.ShouldReplace([]*client.Message{{ID: 9}, {ID: 2}}), "same count and tail")
	assert.True(t, tl.ShouldReplace([]*client.Message{{ID: 1}, {ID: 3}}), "tail changed")

	tl.AddPending(Entry{ID: -5, Content: "pending"})
	tl.Replace([]*client.Message{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}, {ID: 3, Content: "c"}})
	assert.Equal(t, []string{"a", "b", "c", "pending"}, contents(tl.Entries()))
}

func TestTimeline_ConfirmFailRetryDiscard(t *testing.T) {
	var tl Timeline
	tl.Replace([]*client.Message{{ID: 1, Content: "a", CreatedAt: time.Unix(1, 0)}})
	tl.AddPending(Entry{ID: -1, Content: "x"})
	tl.AddPending(Entry{ID: -2, Content: "y"})

	require.True(t, tl.Confirm(-1, &client.Message{ID: 2, Content: "x", CreatedAt: time.Unix(2, 0)}))
	entries := tl.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, StatusConfirmed, entries[1].Status)
	assert.Equal(t, int64(2), entries[1].ID)
	assert.Equal(t, StatusPending, entries[2].Status)

	// already polled in: no duplicate
	tl.AddPending(Entry{ID: -3, Content: "z"})
	tl.Replace([]*client.Message{{ID: 1}, {ID: 2}, {ID: 3, Content: "z"}})
	require.True(t, tl.Confirm(-3, &client.Message{ID: 3, Content: "z"}))
	assert.Len(t, tl.Entries(), 4)

	assert.False(t, tl.Discard(-2), "pending entries cannot be discarded")
	require.True(t, tl.Fail(-2, errors.New("boom")))
	_, ok := tl.Retry(-2)
	assert.True(t, ok)
	_, ok = tl.Retry(-2)
	assert.False(t, ok, "only failed entries are retried")

	require.True(t, tl.Fail(-2, errors.New("boom")))
	assert.True(t, tl.Discard(-2))
	assert.False(t, tl.HasLocal(-2))
	assert.False(t, tl.Confirm(-2, &client.Message{ID: 4}), "discarded entries stay gone")
}

func TestSelect_FetchesLatestWindow(t *testing.T) {
	api := newFakeAPI()
	for i := 0; i < 7; i++ {
		api.add(1, string(rune('a'+i)))
	}
	l := newLoop(t, api, Options{PageSize: 3})

	require.NoError(t, l.Select(context.Background(), 1))
	snap := l.Snapshot()
	assert.Equal(t, uint64(1), snap.ConversationID)
	assert.Equal(t, []string{"e", "f", "g"}, contents(snap.Entries))
}

func TestFetchLatest_ShortLastPage(t *testing.T) {
	api := newFakeAPI()
	for i := 0; i < 4; i++ {
		api.add(1, string(rune('a'+i)))
	}
	l := newLoop(t, api, Options{PageSize: 3})

	require.NoError(t, l.Select(context.Background(), 1))
	assert.Equal(t, []string{"b", "c", "d"}, contents(l.Snapshot().Entries))
}

func TestRefresh_ReplacesOnlyOnChange(t *testing.T) {
	api := newFakeAPI()
	api.add(1, "hola")

	var changes atomic.Int32
	l := newLoop(t, api, Options{OnChange: func(Snapshot) { changes.Add(1) }})
	require.NoError(t, l.Select(context.Background(), 1))
	base := changes.Load()

	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, base, changes.Load(), "unchanged poll is silent")

	api.add(1, "que tal")
	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, base+1, changes.Load())
	assert.Equal(t, []string{"hola", "que tal"}, contents(l.Snapshot().Entries))
}

func TestSend_OptimisticThenConfirmed(t *testing.T) {
	api := newFakeAPI()
	gate := make(chan struct{})
	api.sendGate = gate

	l := newLoop(t, api, Options{Author: &client.User{ID: 1}})
	require.NoError(t, l.Select(context.Background(), 1))

	tempID, err := l.Send("  hola  ")
	require.NoError(t, err)
	assert.Negative(t, tempID)

	entries := l.Snapshot().Entries
	require.Len(t, entries, 1)
	assert.Equal(t, StatusPending, entries[0].Status)
	assert.Equal(t, "hola", entries[0].Content)
	assert.Equal(t, uint64(1), entries[0].Author.ID)

	close(gate)
	require.Eventually(t, func() bool {
		e := l.Snapshot().Entries
		return len(e) == 1 && e[0].Status == StatusConfirmed
	}, time.Second, 5*time.Millisecond)
	assert.Positive(t, l.Snapshot().Entries[0].ID)
}

func TestSend_FailureIsVisibleAndRetryable(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = errors.New("network down")

	l := newLoop(t, api, Options{})
	require.NoError(t, l.Select(context.Background(), 1))

	tempID, err := l.Send("hola")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		e := l.Snapshot().Entries
		return len(e) == 1 && e[0].Status == StatusFailed
	}, time.Second, 5*time.Millisecond)
	assert.EqualError(t, l.Snapshot().Entries[0].Err, "network down")

	select {
	case err := <-l.Errors():
		assert.EqualError(t, err, "network down")
	case <-time.After(time.Second):
		t.Fatal("send error not reported")
	}

	api.set(func(f *fakeAPI) { f.sendErr = nil })
	require.NoError(t, l.Retry(tempID))
	require.Eventually(t, func() bool {
		e := l.Snapshot().Entries
		return len(e) == 1 && e[0].Status == StatusConfirmed
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, l.Retry(tempID), ErrNotFailed)
}

func TestSend_Discard(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = errors.New("nope")
	l := newLoop(t, api, Options{})
	require.NoError(t, l.Select(context.Background(), 1))

	tempID, err := l.Send("hola")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		e := l.Snapshot().Entries
		return len(e) == 1 && e[0].Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Discard(tempID))
	assert.Empty(t, l.Snapshot().Entries)
	assert.ErrorIs(t, l.Discard(tempID), ErrNotFailed)
}

func TestSend_Validation(t *testing.T) {
	l := newLoop(t, newFakeAPI(), Options{})

	_, err := l.Send("hi")
	assert.ErrorIs(t, err, ErrNoConversation)

	require.NoError(t, l.Select(context.Background(), 1))
	_, err = l.Send("   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestPendingSurvivesPoll(t *testing.T) {
	api := newFakeAPI()
	gate := make(chan struct{})
	api.sendGate = gate
	l := newLoop(t, api, Options{})
	require.NoError(t, l.Select(context.Background(), 1))

	_, err := l.Send("mine")
	require.NoError(t, err)

	api.add(1, "theirs")
	require.NoError(t, l.Refresh(context.Background()))
	entries := l.Snapshot().Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "theirs", entries[0].Content)
	assert.Equal(t, StatusPending, entries[1].Status)

	close(gate)
	require.Eventually(t, func() bool {
		e := l.Snapshot().Entries
		return len(e) == 2 && e[1].Status == StatusConfirmed
	}, time.Second, 5*time.Millisecond)
}

func TestPollBeforeAckReplacesPendingEntry(t *testing.T) {
	api := newFakeAPI()
	api.senderID = 7
	ack := make(chan struct{})
	api.ackGate = ack
	api.addFrom(1, 7, "hi")
	api.add(1, "hello")

	l := newLoop(t, api, Options{Author: &client.User{ID: 7}})
	require.NoError(t, l.Select(context.Background(), 1))

	_, err := l.Send("hi")
	require.NoError(t, err)

	// stored on the server, response still in flight
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.messages[1]) == 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Refresh(context.Background()))
	entries := l.Snapshot().Entries
	assert.Equal(t, []string{"hi", "hello", "hi"}, contents(entries), "earlier identical message is not taken for the new one")
	for _, e := range entries {
		assert.Equal(t, StatusConfirmed, e.Status)
		assert.Positive(t, e.ID)
	}

	close(ack)
	l.sends.Wait()
	assert.Equal(t, []string{"hi", "hello", "hi"}, contents(l.Snapshot().Entries))
}

func TestPollBeforeFailedAckDoesNotLeaveFailedCopy(t *testing.T) {
	var tl Timeline
	me := &client.User{ID: 7}
	tl.Replace([]*client.Message{{ID: 1, Content: "hello"}})
	tl.AddPending(Entry{ID: -1, Content: "hi", Author: me})
	tl.AddPending(Entry{ID: -2, Content: "hi", Author: me})

	tl.Replace([]*client.Message{{ID: 1, Content: "hello"}, {ID: 2, Content: "hi", SenderID: 7}})
	entries := tl.Entries()
	require.Len(t, entries, 3, "one server copy covers one pending entry")
	assert.Equal(t, int64(-2), entries[2].ID)

	assert.False(t, tl.Fail(-1, errors.New("timeout")), "covered entry is gone")
	tl.Replace([]*client.Message{{ID: 1, Content: "hello"}, {ID: 2, Content: "hi", SenderID: 7}, {ID: 3, Content: "hi", SenderID: 8}})
	assert.Len(t, tl.Entries(), 4, "another author's message does not cover ours")
}

func TestSelect_DiscardsStalePolls(t *testing.T) {
	api := newFakeAPI()
	api.add(1, "one")
	api.add(2, "two")

	l := newLoop(t, api, Options{})
	require.NoError(t, l.Select(context.Background(), 1))

	// hold the next poll of conversation 1 in flight
	gate := make(chan struct{})
	api.set(func(f *fakeAPI) { f.listGate = gate })
	refreshed := make(chan error, 1)
	go func() { refreshed <- l.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return api.lists.Load() >= 2 }, time.Second, time.Millisecond)

	selected := make(chan error, 1)
	go func() { selected <- l.Select(context.Background(), 2) }()
	require.Eventually(t, func() bool { return l.Snapshot().ConversationID == 2 }, time.Second, time.Millisecond)

	api.set(func(f *fakeAPI) { f.listGate = nil })
	close(gate)

	require.NoError(t, <-refreshed)
	require.NoError(t, <-selected)
	snap := l.Snapshot()
	assert.Equal(t, uint64(2), snap.ConversationID)
	assert.Equal(t, []string{"two"}, contents(snap.Entries))
}

func TestOverlappingPollIsSkipped(t *testing.T) {
	api := newFakeAPI()
	l := newLoop(t, api, Options{})
	require.NoError(t, l.Select(context.Background(), 1))

	gate := make(chan struct{})
	api.set(func(f *fakeAPI) { f.listGate = gate })
	before := api.lists.Load()

	first := make(chan error, 1)
	go func() { first <- l.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return api.lists.Load() == before+1 }, time.Second, time.Millisecond)

	// second poll returns immediately without calling the API
	require.NoError(t, l.Refresh(context.Background()))
	assert.Equal(t, before+1, api.lists.Load())

	close(gate)
	require.NoError(t, <-first)
}

func TestPollErrorIsRecoverable(t *testing.T) {
	api := newFakeAPI()
	api.add(1, "hola")
	l := newLoop(t, api, Options{})
	require.NoError(t, l.Select(context.Background(), 1))

	api.set(func(f *fakeAPI) { f.listErr = errors.New("timeout") })
	assert.Error(t, l.Refresh(context.Background()))
	snap := l.Snapshot()
	assert.EqualError(t, snap.Err, "timeout")
	assert.Len(t, snap.Entries, 1, "history is kept on error")

	api.set(func(f *fakeAPI) { f.listErr = nil })
	require.NoError(t, l.Refresh(context.Background()))
	assert.NoError(t, l.Snapshot().Err)
}

func TestPollerTicksAndNudge(t *testing.T) {
	api := newFakeAPI()
	l := newLoop(t, api, Options{Interval: 20 * time.Millisecond})
	require.NoError(t, l.Select(context.Background(), 1))

	api.add(1, "tick")
	require.Eventually(t, func() bool {
		return len(l.Snapshot().Entries) == 1
	}, time.Second, 5*time.Millisecond)

	l.Nudge()
	l.Nudge() // coalesced
}

func TestClose(t *testing.T) {
	api := newFakeAPI()
	api.sendGate = make(chan struct{})
	l := New(api, Options{Interval: 10 * time.Millisecond})
	require.NoError(t, l.Select(context.Background(), 1))
	_, err := l.Send("in flight")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		l.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	l.Close()
	_, open := <-l.Errors()
	assert.False(t, open)
	assert.ErrorIs(t, l.Select(context.Background(), 1), ErrClosed)
	_, err = l.Send("late")
	assert.ErrorIs(t, err, ErrClosed)
}
