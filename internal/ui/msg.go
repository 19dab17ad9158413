package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rovshanmuradov/fairlaunch/internal/feed"
)

// FeedMsg carries one message from the launchpad feed.
type FeedMsg struct {
	Message feed.Message
}

// FeedClosedMsg reports that the feed connection ended.
type FeedClosedMsg struct {
	Err error
}

type tickMsg time.Time

// Source is a stream of feed messages.
type Source interface {
	Messages() <-chan feed.Message
	Err() error
}

// WaitForFeed returns a command that blocks until the next feed message.
func WaitForFeed(src Source) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-src.Messages()
		if !ok {
			return FeedClosedMsg{Err: src.Err()}
		}
		return FeedMsg{Message: m}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
