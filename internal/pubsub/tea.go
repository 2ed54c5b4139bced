package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ClosedMsg is delivered once when a listened channel closes.
type ClosedMsg struct{}

// ListenCmd waits for the next event on ch. It yields the Event, ClosedMsg
// when ch closes, or nil when ctx is done.
func ListenCmd[T any](ctx context.Context, ch <-chan Event[T]) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return ClosedMsg{}
			}
			return event
		}
	}
}

// ContinuousListener keeps one subscription for a Bubble Tea model. Update
// calls Listen again after handling each event.
type ContinuousListener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewContinuousListener subscribes to sub for the lifetime of ctx.
func NewContinuousListener[T any](ctx context.Context, sub Subscriber[T]) *ContinuousListener[T] {
	return &ContinuousListener[T]{
		ctx: ctx,
		ch:  sub.Subscribe(ctx),
	}
}

// Listen returns the command receiving the next event.
func (l *ContinuousListener[T]) Listen() tea.Cmd {
	return ListenCmd(l.ctx, l.ch)
}
