package client

import (
	"log/slog"
	"reading-room/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// loopback wires two pion peers together without a server, keeping signal order per target.
type loopback struct {
	queues map[domain.UserID]chan []byte
}

func newLoopback(users ...domain.UserID) *loopback {
	l := &loopback{queues: make(map[domain.UserID]chan []byte)}
	for _, u := range users {
		l.queues[u] = make(chan []byte, 64)
	}
	return l
}

func (l *loopback) sender(target domain.UserID) func([]byte) error {
	return func(payload []byte) error {
		l.queues[target] <- payload
		return nil
	}
}

func (l *loopback) serve(user domain.UserID, peer PeerLink, done <-chan struct{}) {
	for {
		select {
		case payload := <-l.queues[user]:
			_ = peer.HandleSignal(payload)
		case <-done:
			return
		}
	}
}

func TestPionFactory_PeersConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	req := require.New(t)
	log := slog.New(slog.DiscardHandler)
	received := make(chan string, 1)
	net := newLoopback("alice", "bob")
	done := make(chan struct{})
	defer close(done)

	bob, err := NewPionFactory(nil, log, func(remote domain.UserID, data []byte) {
		received <- string(remote) + ":" + string(data)
	}).NewPeer("alice", false, net.sender("alice"))
	req.NoError(err)
	defer func() { _ = bob.Close() }()

	// alice < bob, alice offers
	alice, err := NewPionFactory(nil, log, nil).NewPeer("bob", true, net.sender("bob"))
	req.NoError(err)
	defer func() { _ = alice.Close() }()

	go net.serve("bob", bob, done)
	go net.serve("alice", alice, done)

	req.Eventually(func() bool {
		return alice.(*PionPeer).Send([]byte("hello")) == nil
	}, 10*time.Second, 50*time.Millisecond)

	select {
	case got := <-received:
		req.Equal("alice:hello", got)
	case <-time.After(5 * time.Second):
		req.Fail("bob never received the message")
	}
}
