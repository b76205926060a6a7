package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/damoang/angple-market/pkg/client"
	"github.com/damoang/angple-market/pkg/delivery"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

var (
	colorBorder  = tcell.NewRGBColor(0, 255, 255)
	colorInputBg = tcell.NewRGBColor(0, 0, 64)
)

// tuiView full screen chat
type tuiView struct {
	app       *tview.Application
	history   *tview.TextView
	input     *tview.InputField
	statusBar *tview.TextView
	me        *client.User
	running   atomic.Bool

	mu         sync.Mutex
	lastFailed int64 // most recent failed entry, target of F2/F3
}

func newTUIView(me *client.User, convID uint64) *tuiView {
	v := &tuiView{app: tview.NewApplication(), me: me}

	v.history = tview.NewTextView()
	v.history.SetDynamicColors(true).SetScrollable(true).SetWrap(true)
	v.history.SetBorder(true).SetBorderColor(colorBorder).
		SetTitle(fmt.Sprintf(" conversation #%d ", convID))

	v.input = tview.NewInputField()
	v.input.SetLabel("> ").SetFieldWidth(0).SetFieldBackgroundColor(colorInputBg)
	v.input.SetBorder(true).SetBorderColor(colorBorder).SetTitle(" Message ")

	v.statusBar = tview.NewTextView()
	v.statusBar.SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	v.statusBar.SetText(" Enter:Send | F2:Retry | F3:Discard | F5:Refresh | Esc:Quit ")
	return v
}

// Render is called by the loop from its own goroutines
func (v *tuiView) Render(s delivery.Snapshot) {
	text, lastFailed := v.format(s)

	v.mu.Lock()
	v.lastFailed = lastFailed
	v.mu.Unlock()

	if !v.running.Load() {
		return
	}
	v.app.QueueUpdateDraw(func() {
		v.history.SetText(text)
		v.history.ScrollToEnd()
		if s.Err != nil {
			v.statusBar.SetText(fmt.Sprintf(" [red]%s[-] | retrying every poll ", tview.Escape(s.Err.Error())))
		} else {
			v.statusBar.SetText(" Enter:Send | F2:Retry | F3:Discard | F5:Refresh | Esc:Quit ")
		}
	})
}

func (v *tuiView) format(s delivery.Snapshot) (string, int64) {
	var b strings.Builder
	var lastFailed int64
	for _, e := range s.Entries {
		line := fmt.Sprintf("[gray]%s[-] [yellow]%s[-]: %s",
			e.CreatedAt.Local().Format("15:04"), tview.Escape(authorName(e, v.me)), tview.Escape(e.Content))
		switch e.Status {
		case delivery.StatusPending:
			line += " [gray](sending)[-]"
		case delivery.StatusFailed:
			line = "[red]" + line + " (not sent)[-]"
			lastFailed = e.ID
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), lastFailed
}

func (v *tuiView) failedTarget() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastFailed
}

func (v *tuiView) Run(ctx context.Context, loop *delivery.Loop, convID uint64, _ io.Reader) error {
	v.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := v.input.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		if _, err := loop.Send(text); err != nil {
			v.statusBar.SetText(" [red]" + tview.Escape(err.Error()) + "[-] ")
			return
		}
		v.input.SetText("")
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.history, 0, 1, false).
		AddItem(v.input, 3, 0, true).
		AddItem(v.statusBar, 1, 0, false)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			v.app.Stop()
			return nil
		case tcell.KeyF2:
			if id := v.failedTarget(); id != 0 {
				_ = loop.Retry(id)
			}
			return nil
		case tcell.KeyF3:
			if id := v.failedTarget(); id != 0 {
				_ = loop.Discard(id)
			}
			return nil
		case tcell.KeyF5:
			go func() { _ = loop.Refresh(ctx) }()
			return nil
		case tcell.KeyPgUp:
			row, col := v.history.GetScrollOffset()
			v.history.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := v.history.GetScrollOffset()
			v.history.ScrollTo(row+10, col)
			return nil
		}
		return event
	})

	v.running.Store(true)
	defer v.running.Store(false)

	go func() {
		<-ctx.Done()
		v.app.Stop()
	}()
	go func() {
		// first fetch after the screen is up so queued draws have a consumer
		if err := loop.Select(ctx, convID); err != nil {
			v.app.QueueUpdateDraw(func() {
				v.statusBar.SetText(" [red]" + tview.Escape(err.Error()) + "[-] ")
			})
		}
	}()

	return v.app.SetRoot(layout, true).EnableMouse(false).Run()
}
