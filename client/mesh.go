package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"reading-room/domain"
	"reading-room/domain/event"
	"sort"
	"sync"
)

// Signaler forwards signaling payloads through the server.
type Signaler interface {
	Signal(room domain.RoomID, target domain.UserID, payload []byte) error
}

// PeerLink is the local end of the connection towards one remote participant.
type PeerLink interface {
	HandleSignal(payload json.RawMessage) error
	Close() error
}

// PeerFactory opens a link. When initiator is true the link must send the offer.
type PeerFactory interface {
	NewPeer(remote domain.UserID, initiator bool, send func(payload []byte) error) (PeerLink, error)
}

// Mesh owns the peer links of one room, keyed by remote identity.
// Links are only created and destroyed from presence events, so there is at most one link per remote.
type Mesh struct {
	mu       sync.Mutex
	self     domain.UserID
	room     domain.RoomID
	factory  PeerFactory
	signaler Signaler
	log      *slog.Logger
	links    map[domain.UserID]PeerLink
}

func NewMesh(self domain.UserID, room domain.RoomID, factory PeerFactory, signaler Signaler, log *slog.Logger) *Mesh {
	return &Mesh{
		self:     self,
		room:     room,
		factory:  factory,
		signaler: signaler,
		log:      log,
		links:    make(map[domain.UserID]PeerLink),
	}
}

// Consume lets the mesh sit next to the other event consumers of a session.
func (m *Mesh) Consume(_ context.Context, e event.DomainEvent) error {
	if e.RoomID() != m.room {
		return nil
	}
	switch evt := e.(type) {
	case event.PeerList:
		m.onPeerList(evt.Peers)
	case event.UserJoined:
		m.onUserJoined(evt.Participant.UserID)
	case event.UserLeft:
		m.onUserLeft(evt.Participant.UserID)
	case event.SignalRelayed:
		return m.onSignal(evt.From, evt.Signal)
	}
	return nil
}

func (m *Mesh) onPeerList(peers []domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	present := make(map[domain.UserID]struct{}, len(peers))
	for _, peer := range peers {
		present[peer] = struct{}{}
		if _, ok := m.links[peer]; !ok {
			m.openLocked(peer)
		}
	}
	for remote := range m.links {
		if _, ok := present[remote]; !ok {
			m.closeLocked(remote)
		}
	}
}

// onUserJoined also covers a remote that reconnected: its old link is useless.
func (m *Mesh) onUserJoined(remote domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[remote]; ok {
		m.closeLocked(remote)
	}
	m.openLocked(remote)
}

func (m *Mesh) onUserLeft(remote domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(remote)
}

func (m *Mesh) onSignal(from domain.UserID, payload json.RawMessage) error {
	m.mu.Lock()
	link, ok := m.links[from]
	m.mu.Unlock()
	if !ok {
		// presence always precedes signals of a present peer, this one is stale
		m.log.Debug("Signal from unknown peer dropped", "room_id", string(m.room), "from", string(from))
		return nil
	}
	return link.HandleSignal(payload)
}

func (m *Mesh) openLocked(remote domain.UserID) PeerLink {
	if remote == m.self || remote == "" {
		return nil
	}
	initiator := domain.IsInitiator(m.self, remote)
	link, err := m.factory.NewPeer(remote, initiator, func(payload []byte) error {
		return m.signaler.Signal(m.room, remote, payload)
	})
	if err != nil {
		m.log.Error("Unable to open peer link", "room_id", string(m.room), "remote", string(remote), "error", err)
		return nil
	}
	m.links[remote] = link
	m.log.Debug("Peer link opened", "room_id", string(m.room), "remote", string(remote), "initiator", initiator)
	return link
}

func (m *Mesh) closeLocked(remote domain.UserID) {
	link, ok := m.links[remote]
	if !ok {
		return
	}
	delete(m.links, remote)
	if err := link.Close(); err != nil {
		m.log.Debug("Peer link close failed", "remote", string(remote), "error", err)
	}
}

// Peers returns the remotes with an open link.
func (m *Mesh) Peers() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]domain.UserID, 0, len(m.links))
	for remote := range m.links {
		peers = append(peers, remote)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

func (m *Mesh) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for remote := range m.links {
		m.closeLocked(remote)
	}
}
