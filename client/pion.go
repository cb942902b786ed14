package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reading-room/domain"
	"sync"

	pion "github.com/pion/webrtc/v4"
)

const dataChannelLabel = "reading-room"

// SignalMessage is the payload exchanged between two pion peers through the relay.
type SignalMessage struct {
	Type      string                  `json:"type"`
	SDP       string                  `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

const (
	signalOffer     = "offer"
	signalAnswer    = "answer"
	signalCandidate = "candidate"
)

// PionFactory opens real WebRTC peer connections.
type PionFactory struct {
	config    pion.Configuration
	log       *slog.Logger
	onMessage func(remote domain.UserID, data []byte)
}

func NewPionFactory(stunServers []string, log *slog.Logger, onMessage func(remote domain.UserID, data []byte)) *PionFactory {
	config := pion.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []pion.ICEServer{{URLs: stunServers}}
	}
	return &PionFactory{config: config, log: log, onMessage: onMessage}
}

func (f *PionFactory) NewPeer(remote domain.UserID, initiator bool, send func(payload []byte) error) (PeerLink, error) {
	pc, err := pion.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	peer := &PionPeer{pc: pc, remote: remote, send: send, log: f.log, onMessage: f.onMessage}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		peer.signal(SignalMessage{Type: signalCandidate, Candidate: &candidate})
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		f.log.Debug("Peer connection state changed", "remote", string(remote), "state", state.String())
	})
	pc.OnDataChannel(peer.attach)

	if !initiator {
		return peer, nil
	}
	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	peer.attach(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	peer.signal(SignalMessage{Type: signalOffer, SDP: offer.SDP})
	return peer, nil
}

// PionPeer buffers remote candidates until the remote description is known.
type PionPeer struct {
	mu        sync.Mutex
	pc        *pion.PeerConnection
	dc        *pion.DataChannel
	remote    domain.UserID
	send      func(payload []byte) error
	log       *slog.Logger
	onMessage func(remote domain.UserID, data []byte)
	pending   []pion.ICECandidateInit
}

func (p *PionPeer) HandleSignal(payload json.RawMessage) error {
	var msg SignalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}

	switch msg.Type {
	case signalOffer:
		if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		p.signal(SignalMessage{Type: signalAnswer, SDP: answer.SDP})
		return p.flushCandidates()
	case signalAnswer:
		if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: msg.SDP}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		return p.flushCandidates()
	case signalCandidate:
		if msg.Candidate == nil {
			return nil
		}
		if p.pc.RemoteDescription() == nil {
			p.mu.Lock()
			p.pending = append(p.pending, *msg.Candidate)
			p.mu.Unlock()
			return nil
		}
		return p.pc.AddICECandidate(*msg.Candidate)
	default:
		return fmt.Errorf("unexpected signal type %q", msg.Type)
	}
}

func (p *PionPeer) flushCandidates() error {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, candidate := range pending {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	return nil
}

func (p *PionPeer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()
	dc.OnOpen(func() {
		p.log.Info("Peer channel open", "remote", string(p.remote))
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if p.onMessage != nil {
			p.onMessage(p.remote, msg.Data)
		}
	})
}

// Send writes on the data channel once it is open.
func (p *PionPeer) Send(data []byte) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return fmt.Errorf("channel towards %s is not open", p.remote)
	}
	return dc.Send(data)
}

func (p *PionPeer) signal(msg SignalMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.log.Error("Unable to encode signal", "error", err)
		return
	}
	if err := p.send(payload); err != nil {
		p.log.Warn("Unable to send signal", "remote", string(p.remote), "error", err)
	}
}

func (p *PionPeer) Close() error {
	return p.pc.Close()
}
