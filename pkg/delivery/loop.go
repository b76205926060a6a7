package delivery

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/damoang/angple-market/pkg/client"
	"github.com/damoang/angple-market/pkg/logger"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultPageSize = 50

	errBuffer = 16
)

var (
	ErrNoConversation = errors.New("no conversation selected")
	ErrEmptyContent   = errors.New("message content is required")
	ErrNotFailed      = errors.New("entry is not a failed message")
	ErrClosed         = errors.New("delivery loop closed")
)

// API the subset of the market client the loop needs
type API interface {
	ListMessages(ctx context.Context, conversationID uint64, page, pageSize int) (*client.MessagePage, error)
	SendMessage(ctx context.Context, conversationID uint64, content string) (*client.Message, error)
}

// Options loop settings. Zero values fall back to defaults.
type Options struct {
	Interval time.Duration
	PageSize int
	// Author is shown on pending entries
	Author *client.User
	// OnChange is called outside the lock after every visible change
	OnChange func(Snapshot)
}

// Snapshot immutable view of the loop state
type Snapshot struct {
	Err            error // last poll error, cleared by the next successful poll
	Entries        []Entry
	ConversationID uint64
}

// Loop reconciles one selected conversation: it polls the latest window of
// confirmed messages and sends new ones optimistically.
// At most one poller runs per Loop and at most one poll is in flight.
type Loop struct {
	api  API
	opts Options

	mu         sync.Mutex
	convID     uint64
	generation uint64
	timeline   Timeline
	lastErr    error
	stopPoller context.CancelFunc
	pollerDone chan struct{}
	closed     bool

	polling sync.Mutex // held by the poll in flight
	nudge   chan struct{}
	errs    chan error

	ctx    context.Context
	cancel context.CancelFunc
	sends  sync.WaitGroup
}

// New creates an idle Loop; call Select to start polling
func New(api API, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		api:    api,
		opts:   opts,
		nudge:  make(chan struct{}, 1),
		errs:   make(chan error, errBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Select switches to a conversation: the previous poller is torn down, the
// latest window is fetched and a new poller is started. The returned error is
// the initial fetch error; polling continues regardless.
func (l *Loop) Select(ctx context.Context, conversationID uint64) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	prevDone := l.stopLocked()
	l.generation++
	gen := l.generation
	l.convID = conversationID
	l.timeline = Timeline{}
	l.lastErr = nil

	pollCtx, cancel := context.WithCancel(l.ctx)
	done := make(chan struct{})
	l.stopPoller, l.pollerDone = cancel, done
	l.mu.Unlock()

	if prevDone != nil {
		<-prevDone
	}
	l.emit()

	initialCtx, stop := context.WithCancel(ctx)
	release := context.AfterFunc(pollCtx, stop)
	l.polling.Lock()
	err := l.poll(initialCtx, gen, conversationID, true)
	l.polling.Unlock()
	release()
	stop()

	go l.run(pollCtx, gen, conversationID, done)
	return err
}

// stopLocked cancels the running poller and returns its done channel
func (l *Loop) stopLocked() chan struct{} {
	if l.stopPoller == nil {
		return nil
	}
	l.stopPoller()
	done := l.pollerDone
	l.stopPoller, l.pollerDone = nil, nil
	return done
}

func (l *Loop) run(ctx context.Context, gen, convID uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-l.nudge:
		}
		_ = l.tryPoll(ctx, gen, convID)
	}
}

// Refresh polls now unless a poll is already running
func (l *Loop) Refresh(ctx context.Context) error {
	l.mu.Lock()
	gen, convID := l.generation, l.convID
	l.mu.Unlock()
	if convID == 0 {
		return ErrNoConversation
	}
	return l.tryPoll(ctx, gen, convID)
}

// Nudge asks the poller to poll as soon as possible, e.g. after a push hint
func (l *Loop) Nudge() {
	select {
	case l.nudge <- struct{}{}:
	default:
	}
}

func (l *Loop) tryPoll(ctx context.Context, gen, convID uint64) error {
	// a tick that fires while a poll is running is skipped
	if !l.polling.TryLock() {
		return nil
	}
	defer l.polling.Unlock()
	return l.poll(ctx, gen, convID, false)
}

func (l *Loop) poll(ctx context.Context, gen, convID uint64, force bool) error {
	items, err := l.fetchLatest(ctx, convID)

	l.mu.Lock()
	if gen != l.generation {
		// conversation changed while the request was in flight
		l.mu.Unlock()
		return nil
	}
	changed := false
	if err != nil {
		changed = true
		l.lastErr = err
	} else {
		changed = l.lastErr != nil
		l.lastErr = nil
		if force || l.timeline.ShouldReplace(items) {
			l.timeline.Replace(items)
			changed = true
		}
	}
	l.mu.Unlock()

	if err != nil {
		l.report(err)
	}
	if changed {
		l.emit()
	}
	return err
}

// fetchLatest returns the newest PageSize messages, oldest first.
// The API pages from the oldest message, so the tail is read from the last pages.
func (l *Loop) fetchLatest(ctx context.Context, convID uint64) ([]*client.Message, error) {
	size := l.opts.PageSize
	first, err := l.api.ListMessages(ctx, convID, 1, size)
	if err != nil {
		return nil, err
	}
	if first.TotalPages <= 1 {
		return first.Items, nil
	}

	last, err := l.api.ListMessages(ctx, convID, first.TotalPages, size)
	if err != nil {
		return nil, err
	}
	items := last.Items
	if len(items) < size {
		prev := first
		if first.TotalPages > 2 {
			if prev, err = l.api.ListMessages(ctx, convID, first.TotalPages-1, size); err != nil {
				return nil, err
			}
		}
		items = append(append([]*client.Message{}, prev.Items...), items...)
		if len(items) > size {
			items = items[len(items)-size:]
		}
	}
	return items, nil
}

// Send shows content as a pending entry at once and appends it in the background.
// It returns the entry's temporary id.
func (l *Loop) Send(content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, ErrEmptyContent
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	if l.convID == 0 {
		l.mu.Unlock()
		return 0, ErrNoConversation
	}
	tempID := l.newTempIDLocked()
	l.timeline.AddPending(Entry{
		ID:        tempID,
		Content:   content,
		Author:    l.opts.Author,
		CreatedAt: time.Now(),
	})
	gen, convID := l.generation, l.convID
	l.sends.Add(1)
	l.mu.Unlock()

	l.emit()
	go l.deliver(gen, convID, tempID, content)
	return tempID, nil
}

// Retry re-sends a failed entry
func (l *Loop) Retry(tempID int64) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	entry, ok := l.timeline.Retry(tempID)
	if !ok {
		l.mu.Unlock()
		return ErrNotFailed
	}
	gen, convID := l.generation, l.convID
	l.sends.Add(1)
	l.mu.Unlock()

	l.emit()
	go l.deliver(gen, convID, tempID, entry.Content)
	return nil
}

// Discard removes a failed entry
func (l *Loop) Discard(tempID int64) error {
	l.mu.Lock()
	ok := l.timeline.Discard(tempID)
	l.mu.Unlock()
	if !ok {
		return ErrNotFailed
	}
	l.emit()
	return nil
}

func (l *Loop) deliver(gen, convID uint64, tempID int64, content string) {
	defer l.sends.Done()

	msg, err := l.api.SendMessage(l.ctx, convID, content)

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return
	}
	var changed bool
	if err != nil {
		changed = l.timeline.Fail(tempID, err)
	} else {
		changed = l.timeline.Confirm(tempID, msg)
	}
	l.mu.Unlock()

	if err != nil {
		logger.GetLogger().Debug().Err(err).Uint64("conversation_id", convID).Msg("send failed")
		l.report(err)
	}
	if changed {
		l.emit()
	}
}

// newTempIDLocked returns a negative id unused in the timeline
func (l *Loop) newTempIDLocked() int64 {
	for {
		id := -(rand.Int64N(1<<53) + 1)
		if !l.timeline.HasLocal(id) {
			return id
		}
	}
}

// Snapshot returns the current state
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		ConversationID: l.convID,
		Entries:        l.timeline.Entries(),
		Err:            l.lastErr,
	}
}

// Errors delivers recoverable poll and send errors. Errors are dropped while the buffer is full.
// The channel is closed by Close.
func (l *Loop) Errors() <-chan error {
	return l.errs
}

func (l *Loop) report(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.errs <- err:
	default:
	}
}

func (l *Loop) emit() {
	if l.opts.OnChange != nil {
		l.opts.OnChange(l.Snapshot())
	}
}

// Close stops polling, cancels in-flight sends and waits for every goroutine to exit
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.generation++
	done := l.stopLocked()
	l.mu.Unlock()

	l.cancel()
	if done != nil {
		<-done
	}
	l.sends.Wait()

	l.mu.Lock()
	close(l.errs)
	l.mu.Unlock()
}
