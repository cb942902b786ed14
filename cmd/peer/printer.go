package main

import (
	"context"
	"fmt"
	"io"
	"reading-room/domain"
	"reading-room/domain/event"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/samber/lo"
)

// printer renders room events on the terminal.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	self    domain.UserID
	colours bool
}

func newPrinter(out io.Writer, self domain.UserID, colours bool) *printer {
	return &printer{out: out, self: self, colours: colours}
}

func (p *printer) Consume(_ context.Context, e event.DomainEvent) error {
	switch e := e.(type) {
	case event.PeerList:
		p.line(color.FgCyan, "in %s with: %s", e.Room, joinUsers(e.Peers))
	case event.UserJoined:
		p.line(color.FgGreen, "%s joined", e.Participant.DisplayIdentity)
	case event.UserLeft:
		p.line(color.FgYellow, "%s left (%s)", e.Participant.DisplayIdentity, e.Reason)
	case event.MessagePosted:
		p.message(e.Message)
	case event.MessageDeleted:
		p.line(color.FgGray, "message %s deleted by %s", e.MessageID, e.DeletedBy)
	case event.TypingStarted:
		if e.User != p.self {
			p.line(color.FgGray, "%s is typing...", e.User)
		}
	case event.Rejected:
		p.line(color.FgRed, "%s rejected: %s", e.RequestType, e.Reason)
	}
	return nil
}

func (p *printer) message(msg domain.ChatMessage) {
	if msg.IsSystem {
		p.line(color.FgGray, "%s", msg.Text)
		return
	}
	text := msg.Text
	if msg.IsFlagged {
		text += " [flagged]"
	}
	header := fmt.Sprintf("[%s] %s", msg.ID, msg.Sender.DisplayIdentity)
	if p.colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	p.write(fmt.Sprintf("%s: %s", header, text))
}

// direct prints a payload received over a WebRTC data channel.
func (p *printer) direct(remote domain.UserID, data []byte) {
	p.line(color.FgMagenta, "(direct) %s: %s", remote, string(data))
}

func (p *printer) peers(peers []domain.UserID) {
	p.line(color.FgCyan, "linked with: %s", joinUsers(peers))
}

func (p *printer) failure(err error) {
	p.line(color.FgRed, "error: %v", err)
}

func (p *printer) line(c color.Color, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.colours {
		text = c.Render(text)
	}
	p.write(text)
}

func (p *printer) write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, text)
}

func joinUsers(users []domain.UserID) string {
	if len(users) == 0 {
		return "nobody"
	}
	return strings.Join(lo.Map(users, func(u domain.UserID, _ int) string { return string(u) }), ", ")
}
