package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/damoang/angple-market/pkg/client"
	"github.com/damoang/angple-market/pkg/delivery"
	pkglogger "github.com/damoang/angple-market/pkg/logger"
	"golang.org/x/term"
)

func (c *cli) chat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	convID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || convID == 0 {
		return fmt.Errorf("invalid conversation id %q", args[0])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	me := c.session.User()
	var view chatView
	if c.plain || !isTerminal(c.in) {
		view = newPlainView(c.out, me)
	} else {
		view = newTUIView(me, convID)
	}

	loop := delivery.New(c.api, delivery.Options{
		Interval: time.Duration(c.cfg.Client.PollInterval) * time.Millisecond,
		PageSize: delivery.DefaultPageSize,
		Author:   me,
		OnChange: view.Render,
	})
	defer loop.Close()

	// push is only a hint to poll early
	go func() {
		err := c.api.Subscribe(ctx, func(ev client.PushEvent) {
			if msg, err := ev.Message(); err == nil && msg.ConversationID == convID {
				loop.Nudge()
			}
		})
		if err != nil && ctx.Err() == nil {
			pkglogger.GetLogger().Debug().Err(err).Msg("push channel unavailable, polling only")
		}
	}()

	return view.Run(ctx, loop, convID, c.in)
}

// chatView renders snapshots and feeds user input into the loop
type chatView interface {
	Render(delivery.Snapshot)
	Run(ctx context.Context, loop *delivery.Loop, convID uint64, in io.Reader) error
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func authorName(e delivery.Entry, me *client.User) string {
	if e.Author == nil {
		return "?"
	}
	if me != nil && e.Author.ID == me.ID {
		return "you"
	}
	return e.Author.DisplayName()
}

// plainView line based chat for pipes and dumb terminals.
// Confirmed messages are printed once; sends are echoed as pending and
// failures are announced with their temp id.
type plainView struct {
	mu      sync.Mutex
	out     io.Writer
	me      *client.User
	printed map[int64]bool
	pending map[int64]bool
	failed  map[int64]bool
}

func newPlainView(out io.Writer, me *client.User) *plainView {
	return &plainView{
		out:     out,
		me:      me,
		printed: map[int64]bool{},
		pending: map[int64]bool{},
		failed:  map[int64]bool{},
	}
}

func (v *plainView) Render(s delivery.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, e := range s.Entries {
		switch e.Status {
		case delivery.StatusConfirmed:
			if !v.printed[e.ID] {
				v.printed[e.ID] = true
				fmt.Fprintf(v.out, "[%s] %s: %s\n", e.CreatedAt.Local().Format("15:04"), authorName(e, v.me), e.Content)
			}
		case delivery.StatusFailed:
			if !v.failed[e.ID] {
				v.failed[e.ID] = true
				delete(v.pending, e.ID)
				fmt.Fprintf(v.out, "! not sent: %q (%v), /retry %d or /discard %d\n", e.Content, e.Err, e.ID, e.ID)
			}
		case delivery.StatusPending:
			if !v.pending[e.ID] {
				v.pending[e.ID] = true
				delete(v.failed, e.ID)
				fmt.Fprintf(v.out, "… sending: %s\n", e.Content)
			}
		}
	}
}

func (v *plainView) Run(ctx context.Context, loop *delivery.Loop, convID uint64, in io.Reader) error {
	if err := loop.Select(ctx, convID); err != nil {
		return err
	}
	fmt.Fprintln(v.out, "-- type a message and press enter, /quit to leave --")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-loop.Errors():
			if ok {
				v.notice("! %v", err)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := v.handle(loop, line); quit {
				return nil
			}
		}
	}
}

func (v *plainView) handle(loop *delivery.Loop, line string) (quit bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/retry "), strings.HasPrefix(line, "/discard "):
		cmd, arg, _ := strings.Cut(line, " ")
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			v.notice("! usage: %s <id>", cmd)
			return false
		}
		if cmd == "/retry" {
			err = loop.Retry(id)
		} else {
			err = loop.Discard(id)
		}
		if err != nil {
			v.notice("! %v", err)
		}
	default:
		if _, err := loop.Send(line); err != nil {
			v.notice("! %v", err)
		}
	}
	return false
}

func (v *plainView) notice(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format+"\n", args...)
}
